package middleware

import (
	pkgError "github.com/AzielCF/az-crm/pkg/error"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Recovery convierte los panics de los handlers en respuestas JSON. Los
// handlers validan con utils.PanicIfNeeded y errores tipados de
// pkg/error; cualquier otro panic se responde como 500 sin filtrar el
// detalle interno al cliente.
func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			res := utils.ResponseData{
				Status:  500,
				Code:    "INTERNAL_SERVER_ERROR",
				Message: "internal server error",
			}

			if typed, ok := recovered.(pkgError.GenericError); ok {
				res.Status = typed.StatusCode()
				res.Code = typed.ErrCode()
				res.Message = typed.Error()
			} else {
				logrus.Errorf("[Recovery] Panic on %s %s: %v", ctx.Method(), ctx.Path(), recovered)
			}

			_ = ctx.Status(res.Status).JSON(res)
		}()

		return ctx.Next()
	}
}
