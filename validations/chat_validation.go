package validations

import (
	"context"

	domainChat "github.com/AzielCF/az-crm/domains/chat"
	"github.com/AzielCF/az-crm/domains/crm"
	pkgError "github.com/AzielCF/az-crm/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateUpdateChat(ctx context.Context, request domainChat.UpdateChatRequest) error {
	escalating := request.HandledBy != nil && *request.HandledBy == crm.HandledByHuman

	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Status,
			validation.In(crm.ChatOpen, crm.ChatAssigned, crm.ChatResolved, crm.ChatClosed),
		),
		validation.Field(&request.HandledBy,
			validation.In(crm.HandledByAI, crm.HandledByHuman),
		),
		// Escalar a humano exige saber a qué operador se asigna.
		validation.Field(&request.AssignedTo,
			validation.When(escalating, validation.Required),
		),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateSendMessage(ctx context.Context, request domainChat.SendMessageRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Content, validation.Required),
		validation.Field(&request.SenderType,
			validation.In(crm.SenderCustomer, crm.SenderAgent, crm.SenderAI, crm.SenderSystem),
		),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
