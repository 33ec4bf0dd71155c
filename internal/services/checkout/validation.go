package checkout

import (
	"strings"

	"github.com/kevin07696/checkout-aggregator/internal/domain"
	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
)

// validateInitiate rejects bad initiation input before any provider call or
// persistence happens
func validateInitiate(req InitiateRequest) error {
	if !req.Provider.IsValid() {
		return domain.ErrProviderUnknown
	}

	if !req.Amount.IsPositive() {
		return domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "amount must be greater than zero").
			WithDetail("amount", req.Amount.String())
	}

	if strings.TrimSpace(req.Customer.Name) == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "customer name is required")
	}

	email := strings.TrimSpace(req.Customer.Email)
	if email == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "customer email is required")
	}
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "customer email is malformed").
			WithDetail("email", email)
	}

	// PayPal checkout collects contact details itself; the Indian providers
	// require a phone number up front
	if req.Provider != models.ProviderPayPal && strings.TrimSpace(req.Customer.Phone) == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "customer phone is required for this provider").
			WithDetail("provider", string(req.Provider))
	}

	return nil
}
