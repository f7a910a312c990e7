package rest

import (
	"errors"
	"strconv"
	"strings"

	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/knowledge"
	pkgError "github.com/AzielCF/az-crm/pkg/error"
	"github.com/gofiber/fiber/v2"
)

// tenantIDFrom resuelve la organización de la petición: cabecera
// X-Tenant-ID o, en su defecto, query tenant_id.
func tenantIDFrom(c *fiber.Ctx) string {
	tenantID := c.Get("X-Tenant-ID")
	if tenantID == "" {
		tenantID = c.Query("tenant_id")
	}
	if tenantID == "" {
		panic(pkgError.ValidationError("tenant id is required (X-Tenant-ID header or tenant_id query)"))
	}
	return tenantID
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return n
	}
	return def
}

// restError traduce los errores de dominio al vocabulario HTTP del panel
// antes de entregarlos al middleware de recuperación.
func restError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, crm.ErrTenantNotFound),
		errors.Is(err, crm.ErrAgentNotFound),
		errors.Is(err, crm.ErrCustomerNotFound),
		errors.Is(err, crm.ErrChatNotFound),
		errors.Is(err, crm.ErrMessageNotFound),
		errors.Is(err, crm.ErrTicketNotFound),
		errors.Is(err, crm.ErrIntegrationNotFound),
		errors.Is(err, knowledge.ErrDocumentNotFound):
		return pkgError.NotFoundError(err.Error())
	case errors.Is(err, crm.ErrInvalidContact),
		errors.Is(err, crm.ErrDuplicateTenant),
		errors.Is(err, crm.ErrDuplicateAgent),
		errors.Is(err, crm.ErrDuplicateIntegration),
		errors.Is(err, knowledge.ErrEmptyDocument):
		return pkgError.ValidationError(err.Error())
	}
	return err
}
