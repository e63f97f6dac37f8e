// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"garagecall_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Session Domain Events
// =============================================================================

// SessionCreated is published when a new quote session is created.
type SessionCreated struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	UserID    uuid.UUID `json:"userId"`
	ShopCount int       `json:"shopCount"`
}

func (e SessionCreated) EventName() string { return "sessions.created" }

// WorkflowStarted is published when the quote workflow is started for a session.
type WorkflowStarted struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	UserID    uuid.UUID `json:"userId"`
}

func (e WorkflowStarted) EventName() string { return "sessions.workflow.started" }

// DamageAnalyzed is published once the damage summary has been persisted.
type DamageAnalyzed struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	Severity  string    `json:"severity"`
}

func (e DamageAnalyzed) EventName() string { return "sessions.damage.analyzed" }

// CallDispatched is published for each shop after a dispatch attempt.
type CallDispatched struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	ShopID    string    `json:"shopId"`
	Dialed    string    `json:"dialed"`
	Succeeded bool      `json:"succeeded"`
}

func (e CallDispatched) EventName() string { return "calls.dispatched" }

// CallTerminal is published when a call reaches COMPLETED or FAILED.
type CallTerminal struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	ShopID    string    `json:"shopId"`
	Status    string    `json:"status"`
}

func (e CallTerminal) EventName() string { return "calls.terminal" }

// SessionSummarizing is published exactly once per session, when the last
// call reaches a terminal state and the session wins the status transition.
type SessionSummarizing struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
}

func (e SessionSummarizing) EventName() string { return "sessions.summarizing" }

// ReportReady is published when the comparison report has been persisted
// and the session reached DONE.
type ReportReady struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	UserID    uuid.UUID `json:"userId"`
	UserEmail string    `json:"userEmail,omitempty"`
	ShopCount int       `json:"shopCount"`
}

func (e ReportReady) EventName() string { return "sessions.report.ready" }

// SessionFailed is published when a session transitions to FAILED.
type SessionFailed struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	Reason    string    `json:"reason"`
}

func (e SessionFailed) EventName() string { return "sessions.failed" }
