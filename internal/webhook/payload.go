// Package webhook is the intake for call lifecycle events from the voice
// platform. Delivery is at-least-once and unordered; everything downstream
// of this package must tolerate duplicates and stale events.
package webhook

import (
	"github.com/google/uuid"

	calldomain "garagecall_backend/internal/calls/domain"
	callsvc "garagecall_backend/internal/calls/service"
)

// Event is the envelope the voice platform posts for every call
// lifecycle change.
type Event struct {
	Type     string       `json:"type" validate:"required"`
	EventID  string       `json:"eventId"`
	Call     CallPayload  `json:"call"`
	Metadata CorrelationM `json:"metadata"`
}

type CallPayload struct {
	ID              string           `json:"id"`
	EndedReason     string           `json:"endedReason,omitempty"`
	FailureReason   string           `json:"failureReason,omitempty"`
	CostCents       int              `json:"costCents,omitempty"`
	DurationSeconds int              `json:"durationSeconds,omitempty"`
	Transcript      string           `json:"transcript,omitempty"`
	Analysis        *AnalysisPayload `json:"analysis,omitempty"`
}

type AnalysisPayload struct {
	StructuredData *StructuredData `json:"structuredData,omitempty"`
}

// StructuredData mirrors the extraction schema the assistant config asks
// the platform to fill in. Prices arrive as numbers and may carry cents.
type StructuredData struct {
	QuoteProvided     bool    `json:"quoteProvided"`
	PriceEstimateLow  float64 `json:"priceEstimateLow"`
	PriceEstimateHigh float64 `json:"priceEstimateHigh"`
	Timeframe         string  `json:"timeframe"`
	CanHandleRepair   bool    `json:"canHandleRepair"`
	Notes             string  `json:"notes"`
}

// CorrelationM is the metadata echoed back from the StartCall request. It is
// the only link between a platform event and a (session, shop) pair.
type CorrelationM struct {
	SessionID string `json:"sessionId"`
	ShopID    string `json:"shopId"`
}

// Correlate resolves the envelope's metadata. ok is false when the event
// cannot be tied to a session and must be dropped.
func (e *Event) Correlate() (sessionID uuid.UUID, shopID string, ok bool) {
	if e.Metadata.SessionID == "" || e.Metadata.ShopID == "" {
		return uuid.UUID{}, "", false
	}
	id, err := uuid.Parse(e.Metadata.SessionID)
	if err != nil {
		return uuid.UUID{}, "", false
	}
	return id, e.Metadata.ShopID, true
}

// ToCallEvent maps the envelope onto the aggregator's input.
func (e *Event) ToCallEvent(sessionID uuid.UUID, shopID string) callsvc.CallEvent {
	event := callsvc.CallEvent{
		SessionID:      sessionID,
		ShopID:         shopID,
		ExternalCallID: e.Call.ID,
		Type:           e.Type,
		Transcript:     e.Call.Transcript,
		CostCents:      e.Call.CostCents,
		DurationSec:    e.Call.DurationSeconds,
		EndedReason:    e.Call.EndedReason,
		FailureReason:  e.Call.FailureReason,
	}
	if e.Call.Analysis != nil && e.Call.Analysis.StructuredData != nil {
		d := e.Call.Analysis.StructuredData
		event.Extraction = &calldomain.Extraction{
			QuoteProvided:     d.QuoteProvided,
			PriceEstimateLow:  int(d.PriceEstimateLow),
			PriceEstimateHigh: int(d.PriceEstimateHigh),
			Timeframe:         d.Timeframe,
			CanHandleRepair:   d.CanHandleRepair,
			Notes:             d.Notes,
		}
	}
	return event
}
