package demo

import (
	"github.com/gin-gonic/gin"

	apphttp "garagecall_backend/internal/http"
	"garagecall_backend/internal/sessions/transport"
	"garagecall_backend/platform/httpkit"
)

// Module exposes the demo shop directory over HTTP.
type Module struct {
	directory *Directory
}

// NewModule creates the demo module from a loaded directory.
func NewModule(directory *Directory) *Module {
	return &Module{directory: directory}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "demo"
}

// RegisterRoutes mounts the demo shop listing.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/demo/shops", m.listShops)
}

// listShops returns the preconfigured demo shops.
// GET /api/v1/demo/shops
func (m *Module) listShops(c *gin.Context) {
	shops := m.directory.Shops()
	out := make([]transport.ShopResponse, 0, len(shops))
	for _, shop := range shops {
		out = append(out, transport.ShopResponse{
			ID:      shop.ID,
			Name:    shop.Name,
			Phone:   shop.Phone,
			Address: shop.Address,
		})
	}
	httpkit.OK(c, gin.H{"shops": out})
}
