// Package notification sends email notifications in response to domain
// events. It has no HTTP surface; it only subscribes to the event bus.
package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"garagecall_backend/internal/events"
	sessiondomain "garagecall_backend/internal/sessions/domain"
	"garagecall_backend/platform/config"
	"garagecall_backend/platform/logger"
)

// SessionReader provides read access to sessions for enriching
// notification content beyond what the event payload carries.
type SessionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (sessiondomain.Session, error)
}

// Module wires domain events to outbound email notifications.
type Module struct {
	cfg      config.EmailConfig
	sender   Sender
	sessions SessionReader
	log      *logger.Logger
}

// NewModule creates the notification module. When email is disabled in the
// configuration, handlers become no-ops but still subscribe so the wiring
// stays uniform.
func NewModule(cfg config.EmailConfig, sender Sender, sessions SessionReader, log *logger.Logger) *Module {
	return &Module{cfg: cfg, sender: sender, sessions: sessions, log: log}
}

// Name identifies the module in logs.
func (m *Module) Name() string { return "notification" }

// RegisterHandlers subscribes the module to the events it reacts to.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ReportReady{}.EventName(), events.HandlerFunc(m.onReportReady))
	bus.Subscribe(events.SessionFailed{}.EventName(), events.HandlerFunc(m.onSessionFailed))
}

func (m *Module) onReportReady(ctx context.Context, event events.Event) error {
	e, ok := event.(events.ReportReady)
	if !ok {
		return fmt.Errorf("notification: unexpected event type %T", event)
	}
	if !m.cfg.GetEmailEnabled() || e.UserEmail == "" {
		return nil
	}

	quotesObtained := 0
	if session, err := m.sessions.GetByID(ctx, e.SessionID); err != nil {
		m.log.Warn("notification: could not load session for report email",
			"sessionId", e.SessionID.String(), "error", err)
	} else if session.Report != nil {
		quotesObtained = session.Report.QuotesObtained
	}

	if err := m.sender.SendReportReadyEmail(ctx, e.UserEmail, e.ShopCount, quotesObtained, m.reportURL(e.SessionID)); err != nil {
		m.log.Error("notification: report ready email failed",
			"sessionId", e.SessionID.String(), "error", err)
		return err
	}

	m.log.Info("notification: report ready email sent", "sessionId", e.SessionID.String())
	return nil
}

func (m *Module) onSessionFailed(ctx context.Context, event events.Event) error {
	e, ok := event.(events.SessionFailed)
	if !ok {
		return fmt.Errorf("notification: unexpected event type %T", event)
	}
	if !m.cfg.GetEmailEnabled() {
		return nil
	}

	session, err := m.sessions.GetByID(ctx, e.SessionID)
	if err != nil {
		m.log.Warn("notification: could not load session for failure email",
			"sessionId", e.SessionID.String(), "error", err)
		return nil
	}
	if session.UserEmail == "" {
		return nil
	}

	reason := e.Reason
	if reason == "" {
		reason = "an unexpected error occurred"
	}

	if err := m.sender.SendSessionFailedEmail(ctx, session.UserEmail, reason); err != nil {
		m.log.Error("notification: session failed email failed",
			"sessionId", e.SessionID.String(), "error", err)
		return err
	}

	m.log.Info("notification: session failed email sent", "sessionId", e.SessionID.String())
	return nil
}

func (m *Module) reportURL(sessionID uuid.UUID) string {
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/sessions/%s/report", base, sessionID.String())
}
