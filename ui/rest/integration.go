package rest

import (
	domainIntegration "github.com/AzielCF/az-crm/domains/integration"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Integration struct {
	Service domainIntegration.IIntegrationUsecase
}

func InitRestIntegration(app fiber.Router, service domainIntegration.IIntegrationUsecase) Integration {
	rest := Integration{Service: service}
	app.Get("/integrations", rest.List)
	app.Post("/integrations", rest.Create)
	app.Get("/integrations/:id", rest.Get)
	app.Patch("/integrations/:id", rest.Update)
	app.Delete("/integrations/:id", rest.Delete)
	return rest
}

func (handler *Integration) List(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	integrations, err := handler.Service.ListByTenant(c.UserContext(), tenantID)
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Integrations fetched",
		Results: integrations,
	})
}

func (handler *Integration) Create(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	var request domainIntegration.CreateIntegrationRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	integration, err := handler.Service.Create(c.UserContext(), tenantID, request)
	utils.PanicIfNeeded(restError(err))

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "SUCCESS",
		Message: "Integration created",
		Results: integration,
	})
}

func (handler *Integration) Get(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	integration, err := handler.Service.GetByID(c.UserContext(), tenantID, c.Params("id"))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Integration fetched",
		Results: integration,
	})
}

func (handler *Integration) Update(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	var request domainIntegration.UpdateIntegrationRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	integration, err := handler.Service.Update(c.UserContext(), tenantID, c.Params("id"), request)
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Integration updated",
		Results: integration,
	})
}

func (handler *Integration) Delete(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	err := handler.Service.Delete(c.UserContext(), tenantID, c.Params("id"))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Integration deleted",
	})
}
