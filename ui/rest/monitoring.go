package rest

import (
	"github.com/AzielCF/az-crm/pkg/pipemonitor"
	"github.com/gofiber/fiber/v2"
)

type Monitoring struct{}

// InitRestMonitoring registra el feed de monitoreo del pipeline
func InitRestMonitoring(app fiber.Router) Monitoring {
	rest := Monitoring{}
	group := app.Group("/monitoring")
	group.Get("/stats", rest.GetStats)
	return rest
}

// GetStats returns pipeline counters plus the recent event feed
func (handler *Monitoring) GetStats(c *fiber.Ctx) error {
	return c.JSON(pipemonitor.GetStats())
}
