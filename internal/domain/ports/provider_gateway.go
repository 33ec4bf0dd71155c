package ports

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
)

// InitiateOrder is the provider-agnostic order passed to a gateway
type InitiateOrder struct {
	TransactionID string
	Amount        decimal.Decimal
	Customer      models.Customer
}

// ProviderHandle is the opaque session obtained from a provider at initiation
type ProviderHandle struct {
	// Handle is the provider-assigned order/session identifier used for
	// later status queries
	Handle string
	// RedirectTarget is the checkout URL (or approval link) the payer is
	// sent to
	RedirectTarget string
}

// ProviderGateway is the narrow capability each provider adapter supplies to
// the lifecycle controller: initiation, status polling, and a total pure
// translation of raw provider status payloads into the unified state.
type ProviderGateway interface {
	Name() models.Provider

	// Initiate creates the provider-side order/session for the given
	// transaction. Errors abort transaction creation.
	Initiate(ctx context.Context, order InitiateOrder) (*ProviderHandle, error)

	// QueryStatus fetches the current raw status payload for a previously
	// initiated transaction. Errors are surfaced as provider-call failures,
	// distinct from a FAILED payment outcome.
	QueryStatus(ctx context.Context, handle string) (json.RawMessage, error)

	// TranslateStatus maps a raw provider payload to the unified state.
	// Total: malformed or unrecognized payloads map to StateFailed, never
	// to an error, since webhook payloads are untrusted input.
	TranslateStatus(raw json.RawMessage) models.TransactionState
}
