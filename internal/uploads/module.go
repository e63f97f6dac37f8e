// Package uploads issues presigned upload URLs for damage photos. Clients
// PUT the photo straight to object storage and pass the returned key when
// creating a session.
package uploads

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"garagecall_backend/internal/adapters/storage"
	apphttp "garagecall_backend/internal/http"
	"garagecall_backend/platform/httpkit"
	"garagecall_backend/platform/validator"
)

// PhotoUploadRequest asks for one presigned upload grant.
type PhotoUploadRequest struct {
	FileName    string `json:"fileName" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,gt=0"`
}

// Module exposes the photo upload endpoint.
type Module struct {
	store *storage.PhotoStore
	val   *validator.Validator
}

// NewModule creates the uploads module. The store must be non-nil; callers
// skip the module entirely when photo storage is disabled.
func NewModule(store *storage.PhotoStore, val *validator.Validator) *Module {
	return &Module{store: store, val: val}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "uploads"
}

// RegisterRoutes mounts the upload endpoint.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.POST("/uploads/photos", m.createUploadURL)
}

// createUploadURL returns a presigned PUT URL for one damage photo.
// POST /api/v1/uploads/photos
func (m *Module) createUploadURL(c *gin.Context) {
	var req PhotoUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := m.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	presigned, err := m.store.GenerateUploadURL(c.Request.Context(), req.FileName, req.ContentType, req.SizeBytes)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, presigned)
}
