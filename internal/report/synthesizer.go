package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	callrepo "garagecall_backend/internal/calls/repository"
	"garagecall_backend/internal/events"
	"garagecall_backend/internal/sessions/domain"
	sessionrepo "garagecall_backend/internal/sessions/repository"
	"garagecall_backend/platform/apperr"
	"garagecall_backend/platform/config"
	"garagecall_backend/platform/logger"
)

type recommendFunc func(ctx context.Context, session *domain.Session, ranked []domain.ShopQuote) (string, error)

// Synthesizer assembles the final comparison report and completes the
// session. It runs exactly once per session: the caller only reaches it
// after winning the CALLING to SUMMARIZING transition, and the report write
// itself is the SUMMARIZING to DONE compare-and-set.
type Synthesizer struct {
	sessionRepo sessionrepo.SessionRepository
	callRepo    callrepo.CallRepository
	bus         events.Bus
	log         *logger.Logger
	recommend   recommendFunc
}

// NewSynthesizer creates a Synthesizer backed by the Gemini API.
func NewSynthesizer(ctx context.Context, cfg config.AIConfig, sessionRepo sessionrepo.SessionRepository, callRepo callrepo.CallRepository, bus events.Bus, log *logger.Logger) (*Synthesizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := cfg.GetReportModel()
	s := &Synthesizer{
		sessionRepo: sessionRepo,
		callRepo:    callRepo,
		bus:         bus,
		log:         log,
	}
	s.recommend = func(ctx context.Context, session *domain.Session, ranked []domain.ShopQuote) (string, error) {
		prompt, err := buildRecommendationPrompt(session, ranked)
		if err != nil {
			return "", err
		}
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err != nil {
			return "", apperr.External("report synthesis model call failed", err)
		}
		return resp.Text(), nil
	}
	return s, nil
}

// Synthesize builds and persists the report for a session sitting in
// SUMMARIZING. Re-running after completion is a no-op, so a retried
// synthesis job cannot produce a second report.
func (s *Synthesizer) Synthesize(ctx context.Context, sessionID uuid.UUID) error {
	log := s.log.WithSession(sessionID.String())

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	switch session.Status {
	case domain.StatusSummarizing:
	case domain.StatusDone, domain.StatusFailed:
		log.Info("skipping synthesis for finished session", "status", string(session.Status))
		return nil
	default:
		log.Warn("synthesis requested before calls finished", "status", string(session.Status))
		return nil
	}

	calls, err := s.callRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	quotes := BuildQuotes(&session, calls)
	ranked := Rank(quotes)
	obtained := QuotesObtained(ranked)

	report := domain.Report{
		Ranked:         ranked,
		QuotesObtained: obtained,
		GeneratedAt:    time.Now().UTC(),
	}

	if obtained == 0 {
		report.Recommendation = "No price quotes could be obtained from the contacted shops. Consider adding more shops or contacting these shops directly."
	} else {
		recommendation, err := s.recommend(ctx, &session, ranked)
		if err != nil {
			log.Error("report synthesis failed", "error", err)
			if ferr := s.sessionRepo.MarkFailed(ctx, sessionID, "report synthesis failed"); ferr != nil {
				log.DatabaseError("sessions.mark_failed", ferr)
			}
			s.publishFailed(ctx, sessionID, "report synthesis failed")
			return err
		}
		report.Recommendation = recommendation
	}

	wrote, err := s.sessionRepo.SetReport(ctx, sessionID, report)
	if err != nil {
		log.DatabaseError("sessions.set_report", err)
		return err
	}
	if !wrote {
		log.Info("report already written by a concurrent synthesis run")
		return nil
	}

	log.Info("report synthesized", "quotes_obtained", obtained, "shops", len(ranked))
	if s.bus != nil {
		s.bus.Publish(ctx, events.ReportReady{
			BaseEvent: events.NewBaseEvent(),
			SessionID: sessionID,
			UserID:    session.UserID,
			UserEmail: session.UserEmail,
			ShopCount: len(ranked),
		})
	}
	return nil
}

func (s *Synthesizer) publishFailed(ctx context.Context, sessionID uuid.UUID, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.SessionFailed{
		BaseEvent: events.NewBaseEvent(),
		SessionID: sessionID,
		Reason:    reason,
	})
}

func buildRecommendationPrompt(session *domain.Session, ranked []domain.ShopQuote) (string, error) {
	payload, err := json.Marshal(ranked)
	if err != nil {
		return "", err
	}
	prompt := "You are summarizing repair quotes gathered by phone for a vehicle owner. " +
		"Given the ranked quotes below as JSON, write a short recommendation (3-4 sentences): " +
		"which shop offers the best value and why, and anything the owner should double-check. " +
		"Mention shops by name. Do not invent prices that are not in the data.\n\n"
	if d := session.DamageSummary; d != nil {
		prompt += fmt.Sprintf("Damage: %s (%s)\n", d.Summary, d.Severity)
	}
	prompt += "Quotes: " + string(payload)
	return prompt, nil
}
