package webhook

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	callsvc "garagecall_backend/internal/calls/service"
	"garagecall_backend/platform/logger"
)

// EventProcessor consumes correlated call lifecycle events.
type EventProcessor interface {
	OnCallEvent(ctx context.Context, event callsvc.CallEvent) error
}

// Handler handles webhook HTTP requests from the voice platform.
type Handler struct {
	processor EventProcessor
	deduper   *Deduper
	log       *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(processor EventProcessor, deduper *Deduper, log *logger.Logger) *Handler {
	return &Handler{processor: processor, deduper: deduper, log: log}
}

// HandleVoiceEvent ingests one call lifecycle event.
// POST /api/v1/webhook/voice
//
// The platform delivers at-least-once: every parseable event is answered
// with 200 so it stops retrying, including events we drop. Only a storage
// failure returns 5xx, because a retry can actually help there.
func (h *Handler) HandleVoiceEvent(c *gin.Context) {
	var event Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	if h.deduper.Seen(c.Request.Context(), event.EventID) {
		h.log.Debug("duplicate webhook event short-circuited", "event_id", event.EventID)
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	sessionID, shopID, ok := event.Correlate()
	if !ok {
		h.log.Warn("dropping webhook event without correlation",
			"event_type", event.Type, "external_call_id", event.Call.ID)
		c.JSON(http.StatusOK, gin.H{"status": "dropped"})
		return
	}

	if err := h.processor.OnCallEvent(c.Request.Context(), event.ToCallEvent(sessionID, shopID)); err != nil {
		h.log.Error("webhook event processing failed",
			"event_type", event.Type, "session_id", sessionID.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	h.deduper.Mark(c.Request.Context(), event.EventID)
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
