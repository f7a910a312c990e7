package crm

import "errors"

var (
	// ErrTenantNotFound se retorna cuando no se encuentra el tenant
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrAgentNotFound se retorna cuando no se encuentra el agente
	ErrAgentNotFound = errors.New("agent not found")

	// ErrCustomerNotFound se retorna cuando no se encuentra el cliente
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrChatNotFound se retorna cuando no se encuentra el chat
	ErrChatNotFound = errors.New("chat not found")

	// ErrMessageNotFound se retorna cuando no se encuentra el mensaje
	ErrMessageNotFound = errors.New("message not found")

	// ErrTicketNotFound se retorna cuando no se encuentra el ticket
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrIntegrationNotFound se retorna cuando el canal no está configurado
	ErrIntegrationNotFound = errors.New("integration not found")

	// ErrInvalidContact se retorna cuando el contacto llega vacío o "none"
	ErrInvalidContact = errors.New("contact is empty or invalid")

	// ErrDuplicateTenant se retorna al registrar dos tenants con el mismo slug
	ErrDuplicateTenant = errors.New("tenant with this slug already exists")

	// ErrDuplicateAgent se retorna al registrar dos agentes con el mismo
	// identificador de canal dentro de un tenant
	ErrDuplicateAgent = errors.New("agent with this channel identifier already exists")

	// ErrDuplicateIntegration se retorna cuando el tenant ya tiene ese canal configurado
	ErrDuplicateIntegration = errors.New("integration for this channel already exists")

	// ErrInsufficientCredits se retorna cuando el tenant agotó su saldo
	ErrInsufficientCredits = errors.New("tenant has no remaining credits")
)
