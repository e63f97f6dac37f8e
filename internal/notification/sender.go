package notification

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"garagecall_backend/platform/config"
)

// Sender delivers notification emails. Implementations must be safe for
// concurrent use; event handlers may fire from multiple goroutines.
type Sender interface {
	SendReportReadyEmail(ctx context.Context, toEmail string, shopCount, quotesObtained int, reportURL string) error
	SendSessionFailedEmail(ctx context.Context, toEmail, reason string) error
}

// SMTPSender delivers notification emails over a direct SMTP connection
// via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates an SMTPSender from the email configuration.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

// SendReportReadyEmail notifies the session owner that the quote comparison
// report is available.
func (s *SMTPSender) SendReportReadyEmail(ctx context.Context, toEmail string, shopCount, quotesObtained int, reportURL string) error {
	data := reportReadyEmailData{
		Heading:        "Your repair quotes are in",
		ShopCount:      shopCount,
		QuotesObtained: quotesObtained,
	}
	if reportURL != "" {
		data.CTAURL = reportURL
		data.CTALabel = "View your report"
	}

	content, err := renderEmailTemplate("report_ready.html", data)
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, "Your repair quote report is ready", content)
}

// SendSessionFailedEmail notifies the session owner that the quote workflow
// could not be completed.
func (s *SMTPSender) SendSessionFailedEmail(ctx context.Context, toEmail, reason string) error {
	content, err := renderEmailTemplate("session_failed.html", sessionFailedEmailData{
		Heading: "We could not complete your quote request",
		Reason:  reason,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, "Your quote request could not be completed", content)
}
