package notification

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"garagecall_backend/internal/events"
	sessiondomain "garagecall_backend/internal/sessions/domain"
	"garagecall_backend/platform/logger"
)

type fakeSender struct {
	reportReady   int
	sessionFailed int

	lastEmail  string
	lastShops  int
	lastQuotes int
	lastURL    string
	lastReason string
}

func (f *fakeSender) SendReportReadyEmail(_ context.Context, toEmail string, shopCount, quotesObtained int, reportURL string) error {
	f.reportReady++
	f.lastEmail = toEmail
	f.lastShops = shopCount
	f.lastQuotes = quotesObtained
	f.lastURL = reportURL
	return nil
}

func (f *fakeSender) SendSessionFailedEmail(_ context.Context, toEmail, reason string) error {
	f.sessionFailed++
	f.lastEmail = toEmail
	f.lastReason = reason
	return nil
}

type fakeReader struct {
	session sessiondomain.Session
}

func (f *fakeReader) GetByID(context.Context, uuid.UUID) (sessiondomain.Session, error) {
	return f.session, nil
}

type testEmailConfig struct {
	enabled bool
	baseURL string
}

func (c testEmailConfig) GetEmailEnabled() bool       { return c.enabled }
func (c testEmailConfig) GetSMTPHost() string         { return "localhost" }
func (c testEmailConfig) GetSMTPPort() int            { return 1025 }
func (c testEmailConfig) GetSMTPUsername() string     { return "" }
func (c testEmailConfig) GetSMTPPassword() string     { return "" }
func (c testEmailConfig) GetEmailFromName() string    { return "GarageCall" }
func (c testEmailConfig) GetEmailFromAddress() string { return "noreply@example.com" }
func (c testEmailConfig) GetAppBaseURL() string       { return c.baseURL }

func TestReportReadySendsEmailWithQuoteCount(t *testing.T) {
	sessionID := uuid.New()
	sender := &fakeSender{}
	reader := &fakeReader{session: sessiondomain.Session{
		ID:        sessionID,
		UserEmail: "owner@example.com",
		Status:    sessiondomain.StatusDone,
		Report:    &sessiondomain.Report{QuotesObtained: 2},
	}}
	m := NewModule(testEmailConfig{enabled: true, baseURL: "https://app.example.com/"}, sender, reader, logger.New("development"))

	err := m.onReportReady(context.Background(), events.ReportReady{
		BaseEvent: events.NewBaseEvent(),
		SessionID: sessionID,
		UserEmail: "owner@example.com",
		ShopCount: 3,
	})
	if err != nil {
		t.Fatalf("onReportReady: %v", err)
	}
	if sender.reportReady != 1 {
		t.Fatalf("expected 1 report ready email, got %d", sender.reportReady)
	}
	if sender.lastEmail != "owner@example.com" {
		t.Fatalf("sent to %q", sender.lastEmail)
	}
	if sender.lastShops != 3 || sender.lastQuotes != 2 {
		t.Fatalf("shops=%d quotes=%d", sender.lastShops, sender.lastQuotes)
	}
	want := "https://app.example.com/sessions/" + sessionID.String() + "/report"
	if sender.lastURL != want {
		t.Fatalf("report url = %q, want %q", sender.lastURL, want)
	}
}

func TestReportReadySkippedWhenDisabledOrNoEmail(t *testing.T) {
	sender := &fakeSender{}
	reader := &fakeReader{session: sessiondomain.Session{ID: uuid.New()}}

	disabled := NewModule(testEmailConfig{enabled: false}, sender, reader, logger.New("development"))
	if err := disabled.onReportReady(context.Background(), events.ReportReady{
		BaseEvent: events.NewBaseEvent(),
		SessionID: uuid.New(),
		UserEmail: "owner@example.com",
	}); err != nil {
		t.Fatalf("disabled: %v", err)
	}

	enabled := NewModule(testEmailConfig{enabled: true}, sender, reader, logger.New("development"))
	if err := enabled.onReportReady(context.Background(), events.ReportReady{
		BaseEvent: events.NewBaseEvent(),
		SessionID: uuid.New(),
	}); err != nil {
		t.Fatalf("no email: %v", err)
	}

	if sender.reportReady != 0 {
		t.Fatalf("expected no emails, got %d", sender.reportReady)
	}
}

func TestSessionFailedLooksUpOwnerEmail(t *testing.T) {
	sessionID := uuid.New()
	sender := &fakeSender{}
	reader := &fakeReader{session: sessiondomain.Session{
		ID:        sessionID,
		UserEmail: "owner@example.com",
		Status:    sessiondomain.StatusFailed,
	}}
	m := NewModule(testEmailConfig{enabled: true}, sender, reader, logger.New("development"))

	err := m.onSessionFailed(context.Background(), events.SessionFailed{
		BaseEvent: events.NewBaseEvent(),
		SessionID: sessionID,
		Reason:    "damage analysis failed",
	})
	if err != nil {
		t.Fatalf("onSessionFailed: %v", err)
	}
	if sender.sessionFailed != 1 {
		t.Fatalf("expected 1 failure email, got %d", sender.sessionFailed)
	}
	if sender.lastReason != "damage analysis failed" {
		t.Fatalf("reason = %q", sender.lastReason)
	}
}

func TestRenderReportReadyTemplate(t *testing.T) {
	content, err := renderEmailTemplate("report_ready.html", reportReadyEmailData{
		Heading:        "Your repair quotes are in",
		ShopCount:      3,
		QuotesObtained: 2,
		CTALabel:       "View your report",
		CTAURL:         "https://app.example.com/sessions/abc/report",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Your repair quotes are in", "View your report", "https://app.example.com/sessions/abc/report"} {
		if !strings.Contains(content, want) {
			t.Fatalf("rendered email missing %q", want)
		}
	}
}
