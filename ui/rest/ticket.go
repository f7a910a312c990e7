package rest

import (
	"github.com/AzielCF/az-crm/domains/crm"
	domainTicket "github.com/AzielCF/az-crm/domains/ticket"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Ticket struct {
	Service domainTicket.ITicketUsecase
}

func InitRestTicket(app fiber.Router, service domainTicket.ITicketUsecase) Ticket {
	rest := Ticket{Service: service}
	app.Get("/tickets", rest.List)
	app.Post("/tickets", rest.Create)
	app.Get("/tickets/:id", rest.Get)
	app.Patch("/tickets/:id", rest.Update)
	app.Get("/tickets/:id/activities", rest.ListActivities)
	return rest
}

func (handler *Ticket) List(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	filter := crm.TicketFilter{
		Category: c.Query("category"),
		Limit:    queryInt(c, "limit", 50),
		Offset:   queryInt(c, "offset", 0),
	}
	if v := c.Query("status"); v != "" {
		status := crm.TicketStatus(v)
		filter.Status = &status
	}
	if v := c.Query("priority"); v != "" {
		priority := crm.TicketPriority(v)
		filter.Priority = &priority
	}

	tickets, err := handler.Service.List(c.UserContext(), tenantID, filter)
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Tickets fetched",
		Results: tickets,
	})
}

func (handler *Ticket) Create(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	var request domainTicket.CreateTicketRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	ticket, err := handler.Service.Create(c.UserContext(), tenantID, request)
	utils.PanicIfNeeded(restError(err))

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "SUCCESS",
		Message: "Ticket created",
		Results: ticket,
	})
}

func (handler *Ticket) Get(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	ticket, err := handler.Service.GetByID(c.UserContext(), tenantID, c.Params("id"))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Ticket fetched",
		Results: ticket,
	})
}

func (handler *Ticket) Update(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	var request domainTicket.UpdateTicketRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	ticket, err := handler.Service.Update(c.UserContext(), tenantID, c.Params("id"), request)
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Ticket updated",
		Results: ticket,
	})
}

func (handler *Ticket) ListActivities(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	activities, err := handler.Service.ListActivities(c.UserContext(), tenantID, c.Params("id"))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Ticket activities fetched",
		Results: activities,
	})
}
