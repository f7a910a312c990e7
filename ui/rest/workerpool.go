package rest

import (
	"github.com/AzielCF/az-crm/pkg/taskpool"
	"github.com/gofiber/fiber/v2"
)

type WorkerPool struct {
	Pool *taskpool.Pool
}

func InitRestWorkerPool(app fiber.Router, pool *taskpool.Pool) WorkerPool {
	rest := WorkerPool{Pool: pool}
	app.Get("/workers/stats", rest.GetStats)
	return rest
}

// GetStats returns real-time AI reply worker pool statistics
func (handler *WorkerPool) GetStats(c *fiber.Ctx) error {
	if handler.Pool == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Worker pool not initialized",
		})
	}
	return c.JSON(handler.Pool.GetStats())
}
