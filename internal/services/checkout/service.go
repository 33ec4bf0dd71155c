package checkout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/checkout-aggregator/internal/domain"
	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
	"github.com/kevin07696/checkout-aggregator/pkg/observability"
)

// SideEffectDispatcher triggers the post-success side effects. Implemented
// by the dispatch service; a mock in tests.
type SideEffectDispatcher interface {
	OnSuccess(snap models.Snapshot)
}

// Outcome is the verification vocabulary surfaced to clients. Downstream
// UIs key behavior off these exact values.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomePending Outcome = "PENDING"
	OutcomeFailed  Outcome = "FAILED"
)

// InitiateRequest is the provider-agnostic initiation input
type InitiateRequest struct {
	Provider models.Provider
	Amount   decimal.Decimal
	Customer models.Customer
	Plan     models.PlanSelection
}

// InitiateResponse carries the new transaction id and where to send the payer
type InitiateResponse struct {
	TransactionID  string
	RedirectTarget string
}

// VerifyResult is the synchronous answer to a client verification pull
type VerifyResult struct {
	TransactionID string
	Outcome       Outcome
	State         models.TransactionState
	Provider      models.Provider
	Amount        decimal.Decimal
}

// Service is the lifecycle controller: the only component that mutates a
// transaction's state. One instance serves all providers through the
// gateway registry; poll, webhook, and redirect callback all converge on
// ApplyStatus.
type Service struct {
	store      ports.TransactionRepository
	gateways   map[models.Provider]ports.ProviderGateway
	dispatcher SideEffectDispatcher
	logger     ports.Logger
}

// NewService creates a lifecycle controller over the given provider gateways
func NewService(store ports.TransactionRepository, dispatcher SideEffectDispatcher, logger ports.Logger, gateways ...ports.ProviderGateway) *Service {
	registry := make(map[models.Provider]ports.ProviderGateway, len(gateways))
	for _, gw := range gateways {
		registry[gw.Name()] = gw
	}
	return &Service{
		store:      store,
		gateways:   registry,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Initiate validates the request, obtains a provider session, and persists
// the transaction in INITIATED state. The provider call happens first: a
// record is never stored without a confirmed handle, so a provider outage
// cannot leave orphaned un-payable records behind.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if err := validateInitiate(req); err != nil {
		observability.RecordInitiation(string(req.Provider), "validation_error")
		return nil, err
	}

	gw, ok := s.gateways[req.Provider]
	if !ok {
		observability.RecordInitiation(string(req.Provider), "validation_error")
		return nil, domain.ErrProviderUnknown
	}

	id := uuid.New().String()

	handle, err := gw.Initiate(ctx, ports.InitiateOrder{
		TransactionID: id,
		Amount:        req.Amount,
		Customer:      req.Customer,
	})
	if err != nil {
		observability.RecordInitiation(string(req.Provider), "provider_error")
		observability.RecordProviderCallError(string(req.Provider), "initiate")
		s.logger.Error("provider initiation failed",
			ports.String("provider", string(req.Provider)),
			ports.String("transaction_id", id),
			ports.Err(err))
		return nil, err
	}

	now := time.Now()
	tx := &models.Transaction{
		ID:             id,
		Provider:       req.Provider,
		Amount:         req.Amount,
		Customer:       req.Customer,
		Plan:           req.Plan,
		State:          models.StateInitiated,
		ProviderHandle: handle.Handle,
		RedirectTarget: handle.RedirectTarget,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, tx); err != nil {
		return nil, err
	}

	observability.RecordInitiation(string(req.Provider), "created")
	s.logger.Info("transaction initiated",
		ports.String("transaction_id", id),
		ports.String("provider", string(req.Provider)),
		ports.String("amount", req.Amount.String()))

	return &InitiateResponse{
		TransactionID:  id,
		RedirectTarget: handle.RedirectTarget,
	}, nil
}

// ApplyStatus folds a raw provider status signal into the transaction's
// lifecycle. It is safe to call from any of the three entry points, in any
// order, any number of times: transitions are monotonic, duplicates are
// no-ops, and the dispatched flag flips inside the same atomic update that
// records the transition into SUCCESS.
func (s *Service) ApplyStatus(ctx context.Context, id string, raw json.RawMessage) (models.TransactionState, error) {
	var dispatch bool
	var from models.TransactionState

	updated, err := s.store.Update(ctx, id, func(tx *models.Transaction) error {
		dispatch = false
		from = tx.State

		gw, ok := s.gateways[tx.Provider]
		if !ok {
			return domain.ErrProviderUnknown
		}

		// Last-seen payload is retained regardless of what it translates to
		tx.RawProviderPayload = raw

		next := gw.TranslateStatus(raw)
		switch {
		case next == tx.State:
			// Duplicate signal; idempotent no-op

		case tx.State.IsTerminal():
			// Never move backward out of a terminal state

		case next == models.StateSuccess:
			tx.State = models.StateSuccess
			now := time.Now()
			tx.VerifiedAt = &now
			if !tx.SideEffectsDispatched {
				tx.SideEffectsDispatched = true
				dispatch = true
			}

		case next == models.StateFailed:
			tx.State = models.StateFailed

		case tx.State.CanTransitionTo(next):
			tx.State = next
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	// Duplicate and sticky-terminal signals leave the state where it was and
	// are not counted as transitions
	if updated.State != from {
		observability.RecordTransition(string(updated.Provider), string(updated.State))
	}

	if dispatch {
		s.logger.Info("transaction completed, dispatching side effects",
			ports.String("transaction_id", updated.ID),
			ports.String("provider", string(updated.Provider)))
		s.dispatcher.OnSuccess(updated.ToSnapshot())
	}

	return updated.State, nil
}

// Verify polls the provider for the transaction's current status, applies
// it, and reports the resulting outcome to the caller. A provider query
// failure surfaces as PROVIDER_UNAVAILABLE and leaves the stored state
// untouched so a later retry can still succeed; it is never reported as a
// FAILED payment.
func (s *Service) Verify(ctx context.Context, id string) (*VerifyResult, error) {
	tx, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	gw, ok := s.gateways[tx.Provider]
	if !ok {
		return nil, domain.ErrProviderUnknown
	}

	raw, err := gw.QueryStatus(ctx, tx.ProviderHandle)
	if err != nil {
		observability.RecordProviderCallError(string(tx.Provider), "query_status")
		s.logger.Warn("provider status query failed",
			ports.String("transaction_id", id),
			ports.String("provider", string(tx.Provider)),
			ports.Err(err))
		return nil, err
	}

	state, err := s.ApplyStatus(ctx, id, raw)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{
		TransactionID: id,
		Outcome:       outcomeOf(state),
		State:         state,
		Provider:      tx.Provider,
		Amount:        tx.Amount,
	}, nil
}

// GetTransaction retrieves a transaction by id
func (s *Service) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return s.store.GetByID(ctx, id)
}

func outcomeOf(state models.TransactionState) Outcome {
	switch state {
	case models.StateSuccess:
		return OutcomeSuccess
	case models.StateFailed:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}
