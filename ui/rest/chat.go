package rest

import (
	domainChat "github.com/AzielCF/az-crm/domains/chat"
	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Chat struct {
	Service domainChat.IChatUsecase
}

func InitRestChat(app fiber.Router, service domainChat.IChatUsecase) Chat {
	rest := Chat{Service: service}
	app.Get("/chats", rest.List)
	app.Get("/chats/:id", rest.Get)
	app.Patch("/chats/:id", rest.Update)
	app.Get("/chats/:id/messages", rest.ListMessages)
	app.Post("/chats/:id/messages", rest.SendMessage)
	return rest
}

func (handler *Chat) List(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	filter := crm.ChatFilter{
		AgentID: c.Query("agent_id"),
		Search:  c.Query("search"),
		Limit:   queryInt(c, "limit", 50),
		Offset:  queryInt(c, "offset", 0),
	}
	if v := c.Query("status"); v != "" {
		status := crm.ChatStatus(v)
		filter.Status = &status
	}
	if v := c.Query("channel"); v != "" {
		channel := crm.Channel(v)
		filter.Channel = &channel
	}
	if v := c.Query("handled_by"); v != "" {
		handledBy := crm.HandledBy(v)
		filter.HandledBy = &handledBy
	}

	list, err := handler.Service.List(c.UserContext(), tenantID, filter)
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Chats fetched",
		Results: list,
	})
}

func (handler *Chat) Get(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	view, err := handler.Service.GetByID(c.UserContext(), tenantID, c.Params("id"))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Chat fetched",
		Results: view,
	})
}

func (handler *Chat) Update(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	var request domainChat.UpdateChatRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	chat, err := handler.Service.Update(c.UserContext(), tenantID, c.Params("id"), request)
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Chat updated",
		Results: chat,
	})
}

func (handler *Chat) ListMessages(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	messages, err := handler.Service.ListMessages(c.UserContext(), tenantID, c.Params("id"), queryInt(c, "limit", 0))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Messages fetched",
		Results: messages,
	})
}

func (handler *Chat) SendMessage(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)

	var request domainChat.SendMessageRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	message, err := handler.Service.SendMessage(c.UserContext(), tenantID, c.Params("id"), request)
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message sent",
		Results: message,
	})
}
