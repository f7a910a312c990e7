package rest

import (
	domainRouter "github.com/AzielCF/az-crm/domains/router"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type Webhook struct {
	Service domainRouter.IInboundUsecase
}

// InitRestWebhook registra los webhooks públicos de los gateways de canal.
// Siempre responden 200: un gateway que reintenta ante un 4xx/5xx duplica
// mensajes, y la deduplicación ya vive en el router.
func InitRestWebhook(app fiber.Router, service domainRouter.IInboundUsecase) Webhook {
	rest := Webhook{Service: service}
	app.Post("/webhook/whatsapp", rest.WhatsApp)
	app.Post("/webhook/telegram", rest.Telegram)
	app.Post("/webhook/email", rest.Email)
	return rest
}

func (handler *Webhook) WhatsApp(c *fiber.Ctx) error {
	var payload domainRouter.WhatsAppEventPayload
	if err := c.BodyParser(&payload); err != nil {
		logrus.Warnf("[Inbound] Malformed whatsapp webhook body: %v", err)
		return c.JSON(domainRouter.RouteResponse{Success: false, Channel: "whatsapp", Message: "invalid payload"})
	}

	response, err := handler.Service.HandleWhatsApp(c.UserContext(), payload)
	if err != nil {
		logrus.Errorf("[Inbound] WhatsApp webhook failed: %v", err)
		if response.Message == "" {
			response.Message = err.Error()
		}
	}
	return c.JSON(response)
}

func (handler *Webhook) Telegram(c *fiber.Ctx) error {
	var payload domainRouter.TelegramWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		logrus.Warnf("[Inbound] Malformed telegram webhook body: %v", err)
		return c.JSON(domainRouter.RouteResponse{Success: false, Channel: "telegram", Message: "invalid payload"})
	}

	response, err := handler.Service.HandleTelegram(c.UserContext(), payload)
	if err != nil {
		logrus.Errorf("[Inbound] Telegram webhook failed: %v", err)
		if response.Message == "" {
			response.Message = err.Error()
		}
	}
	return c.JSON(response)
}

func (handler *Webhook) Email(c *fiber.Ctx) error {
	var payload domainRouter.EmailWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		logrus.Warnf("[Inbound] Malformed email webhook body: %v", err)
		return c.JSON(domainRouter.RouteResponse{Success: false, Channel: "email", Message: "invalid payload"})
	}

	response, err := handler.Service.HandleEmail(c.UserContext(), payload)
	if err != nil {
		logrus.Errorf("[Inbound] Email webhook failed: %v", err)
		if response.Message == "" {
			response.Message = err.Error()
		}
	}
	return c.JSON(response)
}
