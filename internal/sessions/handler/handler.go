// Package handler exposes the sessions REST API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"garagecall_backend/internal/sessions/service"
	"garagecall_backend/internal/sessions/transport"
	"garagecall_backend/platform/httpkit"
	"garagecall_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid session id"
)

// Handler handles HTTP requests for quote sessions.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new sessions handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Create creates a new quote session.
// POST /api/v1/sessions
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	userID, ok := httpkit.UserID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	session, err := h.svc.Create(c.Request.Context(), userID, httpkit.UserEmail(c), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToSessionResponse(session))
}

// Start begins the quote workflow for a session.
// POST /api/v1/sessions/:id/start
func (h *Handler) Start(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	userID, ok := httpkit.UserID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	session, err := h.svc.Start(c.Request.Context(), userID, sessionID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSessionResponse(session))
}

// Get returns a session with its current workflow state.
// GET /api/v1/sessions/:id
func (h *Handler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	userID, ok := httpkit.UserID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	session, err := h.svc.Get(c.Request.Context(), userID, sessionID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSessionResponse(session))
}

// List returns the caller's sessions.
// GET /api/v1/sessions
func (h *Handler) List(c *gin.Context) {
	userID, ok := httpkit.UserID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	sessions, err := h.svc.List(c.Request.Context(), userID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSessionListResponse(sessions))
}

// GetReport returns the final comparison report for a DONE session.
// GET /api/v1/sessions/:id/report
func (h *Handler) GetReport(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	userID, ok := httpkit.UserID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	report, err := h.svc.GetReport(c.Request.Context(), userID, sessionID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ReportResponse{SessionID: sessionID, Report: report})
}
