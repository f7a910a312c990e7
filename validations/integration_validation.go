package validations

import (
	"context"

	"github.com/AzielCF/az-crm/domains/crm"
	domainIntegration "github.com/AzielCF/az-crm/domains/integration"
	pkgError "github.com/AzielCF/az-crm/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateCreateIntegration(ctx context.Context, request domainIntegration.CreateIntegrationRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Channel,
			validation.Required,
			validation.In(crm.ChannelWhatsApp, crm.ChannelTelegram, crm.ChannelEmail, crm.ChannelWebChat),
		),
		validation.Field(&request.Name, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
