package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies the third-party checkout provider a transaction runs on
type Provider string

const (
	ProviderPhonePe  Provider = "phonepe"
	ProviderPayPal   Provider = "paypal"
	ProviderCashfree Provider = "cashfree"
)

// IsValid reports whether the provider is one of the supported processors
func (p Provider) IsValid() bool {
	switch p {
	case ProviderPhonePe, ProviderPayPal, ProviderCashfree:
		return true
	}
	return false
}

// TransactionState represents the unified lifecycle state of a transaction
type TransactionState string

const (
	StatePending             TransactionState = "PENDING"
	StateInitiated           TransactionState = "INITIATED"
	StatePendingVerification TransactionState = "PENDING_VERIFICATION"
	StateSuccess             TransactionState = "SUCCESS"
	StateFailed              TransactionState = "FAILED"
)

// rank orders states along the lifecycle graph; terminals share the top rank
func (s TransactionState) rank() int {
	switch s {
	case StatePending:
		return 0
	case StateInitiated:
		return 1
	case StatePendingVerification:
		return 2
	case StateSuccess, StateFailed:
		return 3
	}
	return -1
}

// IsTerminal reports whether the state is SUCCESS or FAILED
func (s TransactionState) IsTerminal() bool {
	return s == StateSuccess || s == StateFailed
}

// CanTransitionTo reports whether moving from s to next is a forward move on
// the lifecycle graph. Re-applying the current terminal state is not a
// transition; callers treat it as an idempotent no-op.
func (s TransactionState) CanTransitionTo(next TransactionState) bool {
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Customer holds the payer contact details captured at initiation
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// PlanSelection carries the free-form purchase labels chosen at checkout.
// Informational only; never validated against a catalog.
type PlanSelection struct {
	Plan     string `json:"plan,omitempty"`
	Duration string `json:"duration,omitempty"`
	AddOns   string `json:"add_ons,omitempty"`
}

// Transaction is one attempted payment tracked through its lifecycle.
// ID doubles as the idempotency key for post-success side effects.
type Transaction struct {
	ID                    string           `json:"id"`
	Provider              Provider         `json:"provider"`
	Amount                decimal.Decimal  `json:"amount"`
	Customer              Customer         `json:"customer"`
	Plan                  PlanSelection    `json:"plan"`
	State                 TransactionState `json:"state"`
	ProviderHandle        string           `json:"provider_handle"`
	RedirectTarget        string           `json:"redirect_target"`
	SideEffectsDispatched bool             `json:"side_effects_dispatched"`
	RawProviderPayload    json.RawMessage  `json:"raw_provider_payload,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
	VerifiedAt            *time.Time       `json:"verified_at,omitempty"`
}

// Snapshot is the immutable view of a finalized transaction handed to the
// notification and archive collaborators.
type Snapshot struct {
	TransactionID  string           `json:"transaction_id"`
	Provider       Provider         `json:"provider"`
	Amount         decimal.Decimal  `json:"amount"`
	Customer       Customer         `json:"customer"`
	Plan           PlanSelection    `json:"plan"`
	State          TransactionState `json:"state"`
	ProviderHandle string           `json:"provider_handle"`
	CompletedAt    time.Time        `json:"completed_at"`
}

// ToSnapshot copies the fields side-effect collaborators are allowed to see
func (t *Transaction) ToSnapshot() Snapshot {
	completed := t.UpdatedAt
	if t.VerifiedAt != nil {
		completed = *t.VerifiedAt
	}
	return Snapshot{
		TransactionID:  t.ID,
		Provider:       t.Provider,
		Amount:         t.Amount,
		Customer:       t.Customer,
		Plan:           t.Plan,
		State:          t.State,
		ProviderHandle: t.ProviderHandle,
		CompletedAt:    completed,
	}
}
