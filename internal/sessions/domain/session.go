// Package domain holds the pure session model: statuses, transition rules,
// and the data carried through the quote workflow. No I/O lives here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the session workflow state.
type Status string

const (
	StatusCreated     Status = "CREATED"
	StatusAnalyzing   Status = "ANALYZING"
	StatusCalling     Status = "CALLING"
	StatusSummarizing Status = "SUMMARIZING"
	StatusDone        Status = "DONE"
	StatusFailed      Status = "FAILED"
)

// transitions enumerates every legal forward edge. All transitions are
// monotonic; there is no path back to an earlier state.
var transitions = map[Status][]Status{
	StatusCreated:     {StatusAnalyzing},
	StatusAnalyzing:   {StatusCalling, StatusFailed},
	StatusCalling:     {StatusSummarizing, StatusFailed},
	StatusSummarizing: {StatusDone, StatusFailed},
}

// CanTransition reports whether from -> to is a legal session transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func IsTerminal(s Status) bool {
	return s == StatusDone || s == StatusFailed
}

// Shop describes one candidate repair shop provided by the caller.
type Shop struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address,omitempty"`
}

// VehicleInfo is the optional vehicle description attached to a session.
type VehicleInfo struct {
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Year  int    `json:"year,omitempty"`
	Color string `json:"color,omitempty"`
}

// DamageSummary is the structured output of the damage-analysis engine.
type DamageSummary struct {
	Severity      string   `json:"severity"` // minor, moderate, severe
	DamagedParts  []string `json:"damagedParts"`
	LikelyRepairs []string `json:"likelyRepairs"`
	SeverityScore int      `json:"severityScore"` // 1-10
	Summary       string   `json:"summary"`
}

// ShopQuote is one shop's entry in the final comparison report.
type ShopQuote struct {
	ShopID            string `json:"shopId"`
	ShopName          string `json:"shopName"`
	QuoteProvided     bool   `json:"quoteProvided"`
	PriceEstimateLow  int    `json:"priceEstimateLow,omitempty"`
	PriceEstimateHigh int    `json:"priceEstimateHigh,omitempty"`
	Timeframe         string `json:"timeframe,omitempty"`
	Notes             string `json:"notes,omitempty"`
	CallFailed        bool   `json:"callFailed,omitempty"`
}

// Report is the ranked comparison produced once all calls are terminal.
type Report struct {
	Ranked         []ShopQuote `json:"ranked"`
	Recommendation string      `json:"recommendation,omitempty"`
	QuotesObtained int         `json:"quotesObtained"`
	GeneratedAt    time.Time   `json:"generatedAt"`
}

// Session is one end-to-end quote request.
type Session struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	UserEmail     string
	Location      string
	Vehicle       *VehicleInfo
	Description   string
	PhotoKeys     []string
	Shops         []Shop
	DamageSummary *DamageSummary
	Report        *Report
	Status        Status
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ShopByID returns the shop descriptor with the given id, if present.
func (s *Session) ShopByID(id string) (Shop, bool) {
	for _, shop := range s.Shops {
		if shop.ID == id {
			return shop, true
		}
	}
	return Shop{}, false
}
