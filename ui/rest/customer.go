package rest

import (
	domainCustomer "github.com/AzielCF/az-crm/domains/customer"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Customer struct {
	Service domainCustomer.ICustomerUsecase
}

func InitRestCustomer(app fiber.Router, service domainCustomer.ICustomerUsecase) Customer {
	rest := Customer{Service: service}
	app.Get("/customers", rest.List)
	app.Get("/customers/:id", rest.Get)
	app.Patch("/customers/:id", rest.Update)
	return rest
}

func (handler *Customer) List(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	customers, err := handler.Service.List(c.UserContext(), tenantID, c.Query("search"), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Customers fetched",
		Results: customers,
	})
}

func (handler *Customer) Get(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	customer, err := handler.Service.GetByID(c.UserContext(), tenantID, c.Params("id"))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Customer fetched",
		Results: customer,
	})
}

func (handler *Customer) Update(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	var request domainCustomer.UpdateCustomerRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	customer, err := handler.Service.Update(c.UserContext(), tenantID, c.Params("id"), request)
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Customer updated",
		Results: customer,
	})
}
