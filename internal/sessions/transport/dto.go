// Package transport defines request and response DTOs for the sessions API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"garagecall_backend/internal/sessions/domain"
)

type VehicleRequest struct {
	Make  string `json:"make" validate:"omitempty,max=60"`
	Model string `json:"model" validate:"omitempty,max=60"`
	Year  int    `json:"year" validate:"omitempty,gte=1950,lte=2100"`
	Color string `json:"color" validate:"omitempty,max=40"`
}

type ShopRequest struct {
	ID      string `json:"id" validate:"omitempty,max=60"`
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"required,max=32"`
	Address string `json:"address" validate:"omitempty,max=240"`
}

type CreateSessionRequest struct {
	Location    string          `json:"location" validate:"omitempty,max=200"`
	Vehicle     *VehicleRequest `json:"vehicle"`
	Description string          `json:"description" validate:"required,min=10,max=4000"`
	PhotoKeys   []string        `json:"photoKeys" validate:"omitempty,max=10,dive,max=500"`
	Shops       []ShopRequest   `json:"shops" validate:"omitempty,max=10,dive"`
}

type ShopResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address,omitempty"`
}

type SessionResponse struct {
	ID            uuid.UUID             `json:"id"`
	Status        string                `json:"status"`
	Location      string                `json:"location,omitempty"`
	Vehicle       *domain.VehicleInfo   `json:"vehicle,omitempty"`
	Description   string                `json:"description"`
	PhotoKeys     []string              `json:"photoKeys,omitempty"`
	Shops         []ShopResponse        `json:"shops"`
	DamageSummary *domain.DamageSummary `json:"damageSummary,omitempty"`
	FailureReason string                `json:"failureReason,omitempty"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

type ReportResponse struct {
	SessionID uuid.UUID     `json:"sessionId"`
	Report    domain.Report `json:"report"`
}

func ToSessionResponse(s domain.Session) SessionResponse {
	shops := make([]ShopResponse, 0, len(s.Shops))
	for _, shop := range s.Shops {
		shops = append(shops, ShopResponse{
			ID:      shop.ID,
			Name:    shop.Name,
			Phone:   shop.Phone,
			Address: shop.Address,
		})
	}
	return SessionResponse{
		ID:            s.ID,
		Status:        string(s.Status),
		Location:      s.Location,
		Vehicle:       s.Vehicle,
		Description:   s.Description,
		PhotoKeys:     s.PhotoKeys,
		Shops:         shops,
		DamageSummary: s.DamageSummary,
		FailureReason: s.FailureReason,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func ToSessionListResponse(sessions []domain.Session) []SessionResponse {
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, ToSessionResponse(s))
	}
	return out
}
