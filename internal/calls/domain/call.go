// Package domain holds the pure call model shared by the dispatcher,
// the aggregator, and the call repository.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the per-call lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether the status admits no further mutation.
// COMPLETED and FAILED are sticky: a stale started event must never
// downgrade a terminal call back to IN_PROGRESS.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Extraction is the structured data pulled from a finished call.
type Extraction struct {
	QuoteProvided     bool   `json:"quote_provided"`
	PriceEstimateLow  int    `json:"price_estimate_low,omitempty"`
	PriceEstimateHigh int    `json:"price_estimate_high,omitempty"`
	Timeframe         string `json:"timeframe,omitempty"`
	CanHandleRepair   bool   `json:"can_handle_repair,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// Call is one outbound voice interaction with one shop, keyed by
// (session id, shop id).
type Call struct {
	SessionID      uuid.UUID
	ShopID         string
	ShopName       string
	DialedNumber   string // post-safety-gate destination actually dialed
	ExternalCallID string // assigned by the voice platform once dispatch succeeds
	Status         Status
	Transcript     string
	Extraction     *Extraction
	CostCents      int
	DurationSec    int
	EndedReason    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
