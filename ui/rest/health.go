package rest

import (
	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/health"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Health struct {
	Service health.IHealthUsecase
}

// InitRestHealth registra la sonda pública /health y el detalle operativo
// bajo /api/health.
func InitRestHealth(app fiber.Router, service health.IHealthUsecase) Health {
	handler := Health{Service: service}

	app.Get("/health", handler.Liveness)

	group := app.Group("/api/health")
	group.Get("/status", handler.GetStatus)
	group.Post("/check-all", handler.CheckAll)
	group.Post("/channel/:channel/check", handler.CheckChannel)

	return handler
}

// Liveness responde lo que un balanceador necesita: base de datos y Valkey,
// verificados en el momento. 503 solo cuando la base de datos está caída.
func (h *Health) Liveness(c *fiber.Ctx) error {
	ctx := c.UserContext()

	dbRecord, _ := h.Service.CheckDatabase(ctx)
	valkeyRecord, _ := h.Service.CheckValkey(ctx)

	status := "healthy"
	httpStatus := fiber.StatusOK
	if dbRecord.Status == health.StatusError {
		status = "unhealthy"
		httpStatus = fiber.StatusServiceUnavailable
	} else if valkeyRecord.Status == health.StatusError {
		status = "degraded"
	}

	version := ""
	if coreconfig.Global != nil {
		version = coreconfig.Global.App.Version
	}
	return c.Status(httpStatus).JSON(fiber.Map{
		"status":   status,
		"version":  version,
		"database": string(dbRecord.Status),
		"valkey":   string(valkeyRecord.Status),
	})
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	records, err := h.Service.GetStatus(c.UserContext())
	if err != nil {
		return c.Status(500).JSON(utils.ResponseData{
			Status:  500,
			Code:    "INTERNAL_SERVER_ERROR",
			Message: err.Error(),
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Health status retrieved",
		Results: records,
	})
}

func (h *Health) CheckAll(c *fiber.Ctx) error {
	records, err := h.Service.CheckAll(c.UserContext())
	if err != nil {
		return c.Status(500).JSON(utils.ResponseData{
			Status:  500,
			Code:    "INTERNAL_SERVER_ERROR",
			Message: err.Error(),
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Verification completed for all entities",
		Results: records,
	})
}

func (h *Health) CheckChannel(c *fiber.Ctx) error {
	record, err := h.Service.CheckChannel(c.UserContext(), c.Params("channel"))
	if err != nil {
		return c.Status(500).JSON(utils.ResponseData{
			Status:  500,
			Code:    "INTERNAL_SERVER_ERROR",
			Message: err.Error(),
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Channel gateway check completed",
		Results: record,
	})
}
