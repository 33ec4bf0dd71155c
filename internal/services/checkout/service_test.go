package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/checkout-aggregator/internal/adapters/memory"
	"github.com/kevin07696/checkout-aggregator/internal/domain"
	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
	"github.com/kevin07696/checkout-aggregator/test/mocks"
)

// recordingDispatcher captures OnSuccess invocations synchronously so tests
// can assert exact dispatch counts without goroutine coordination
type recordingDispatcher struct {
	mu    sync.Mutex
	snaps []models.Snapshot
}

func (d *recordingDispatcher) OnSuccess(snap models.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snaps = append(d.snaps, snap)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.snaps)
}

type testEnv struct {
	store      *memory.TransactionRepository
	dispatcher *recordingDispatcher
	phonepe    *mocks.MockProviderGateway
	paypal     *mocks.MockProviderGateway
	cashfree   *mocks.MockProviderGateway
	service    *Service
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:      memory.NewTransactionRepository(),
		dispatcher: &recordingDispatcher{},
		phonepe:    mocks.NewMockProviderGateway(models.ProviderPhonePe),
		paypal:     mocks.NewMockProviderGateway(models.ProviderPayPal),
		cashfree:   mocks.NewMockProviderGateway(models.ProviderCashfree),
	}
	// Mock gateways translate the real provider payload shapes the way the
	// production adapters do, so lifecycle tests can use realistic payloads
	env.phonepe.SetTranslateFunc(translatePhonePe)
	env.paypal.SetTranslateFunc(translatePayPal)
	env.cashfree.SetTranslateFunc(translateCashfree)
	env.service = NewService(env.store, env.dispatcher, mocks.NewMockLogger(),
		env.phonepe, env.paypal, env.cashfree)
	return env
}

func translatePhonePe(raw json.RawMessage) models.TransactionState {
	var p struct {
		State string `json:"state"`
		Data  *struct {
			State string `json:"state"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.StateFailed
	}
	state := p.State
	if p.Data != nil && p.Data.State != "" {
		state = p.Data.State
	}
	switch state {
	case "COMPLETED":
		return models.StateSuccess
	case "PENDING":
		return models.StatePendingVerification
	default:
		return models.StateFailed
	}
}

func translatePayPal(raw json.RawMessage) models.TransactionState {
	var p struct {
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					Status string `json:"status"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.StateFailed
	}
	for _, u := range p.PurchaseUnits {
		for _, c := range u.Payments.Captures {
			if c.Status == "COMPLETED" {
				return models.StateSuccess
			}
		}
	}
	switch p.Status {
	case "COMPLETED":
		return models.StateSuccess
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return models.StatePendingVerification
	default:
		return models.StateFailed
	}
}

func translateCashfree(raw json.RawMessage) models.TransactionState {
	var p struct {
		OrderStatus string `json:"order_status"`
		Data        *struct {
			Order struct {
				OrderStatus string `json:"order_status"`
			} `json:"order"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.StateFailed
	}
	status := p.OrderStatus
	if p.Data != nil && p.Data.Order.OrderStatus != "" {
		status = p.Data.Order.OrderStatus
	}
	switch status {
	case "PAID":
		return models.StateSuccess
	case "ACTIVE":
		return models.StatePendingVerification
	default:
		return models.StateFailed
	}
}

func validRequest(provider models.Provider) InitiateRequest {
	return InitiateRequest{
		Provider: provider,
		Amount:   decimal.NewFromInt(500),
		Customer: models.Customer{
			Name:  "Asha Rao",
			Email: "asha@example.com",
			Phone: "9876543210",
		},
		Plan: models.PlanSelection{Plan: "premium", Duration: "12m"},
	}
}

func TestInitiate_Success(t *testing.T) {
	env := setupService(t)

	resp, err := env.service.Initiate(context.Background(), validRequest(models.ProviderPhonePe))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TransactionID)
	assert.NotEmpty(t, resp.RedirectTarget)

	tx, err := env.store.GetByID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateInitiated, tx.State)
	assert.Equal(t, models.ProviderPhonePe, tx.Provider)
	assert.False(t, tx.SideEffectsDispatched)
	assert.Equal(t, 1, env.phonepe.InitiateCalls)
}

func TestInitiate_ProviderErrorPersistsNothing(t *testing.T) {
	env := setupService(t)
	env.cashfree.SetInitiateResponse(nil, domain.NewDomainError(domain.ErrorCodeProviderError, "order create failed"))

	_, err := env.service.Initiate(context.Background(), validRequest(models.ProviderCashfree))
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeProviderError, domain.GetErrorCode(err))

	// The store must not contain a half-created transaction
	assert.Equal(t, 1, env.cashfree.InitiateCalls)
	req := env.cashfree.LastInitiateReq
	require.NotNil(t, req)
	_, err = env.store.GetByID(context.Background(), req.TransactionID)
	assert.ErrorIs(t, err, domain.ErrTxnNotFound)
}

func TestInitiate_ValidationErrors(t *testing.T) {
	env := setupService(t)

	tests := []struct {
		name   string
		mutate func(r *InitiateRequest)
		code   domain.ErrorCode
	}{
		{"unknown provider", func(r *InitiateRequest) { r.Provider = "stripe" }, domain.ErrorCodeProviderUnknown},
		{"zero amount", func(r *InitiateRequest) { r.Amount = decimal.Zero }, domain.ErrorCodeValidationAmountInvalid},
		{"negative amount", func(r *InitiateRequest) { r.Amount = decimal.NewFromInt(-10) }, domain.ErrorCodeValidationAmountInvalid},
		{"missing name", func(r *InitiateRequest) { r.Customer.Name = "  " }, domain.ErrorCodeValidationMissingField},
		{"missing email", func(r *InitiateRequest) { r.Customer.Email = "" }, domain.ErrorCodeValidationMissingField},
		{"malformed email", func(r *InitiateRequest) { r.Customer.Email = "not-an-email" }, domain.ErrorCodeValidationFailed},
		{"missing phone for phonepe", func(r *InitiateRequest) { r.Customer.Phone = "" }, domain.ErrorCodeValidationMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest(models.ProviderPhonePe)
			tt.mutate(&req)
			_, err := env.service.Initiate(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.code, domain.GetErrorCode(err))
		})
	}

	// No gateway was touched by any invalid request
	assert.Equal(t, 0, env.phonepe.InitiateCalls)
}

func TestInitiate_PayPalWithoutPhone(t *testing.T) {
	env := setupService(t)

	req := validRequest(models.ProviderPayPal)
	req.Customer.Phone = ""

	_, err := env.service.Initiate(context.Background(), req)
	assert.NoError(t, err)
}

func TestApplyStatus_UnknownTransaction(t *testing.T) {
	env := setupService(t)

	_, err := env.service.ApplyStatus(context.Background(), "no-such-id", json.RawMessage(`{"state":"COMPLETED"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTxnNotFound)
	assert.Equal(t, 0, env.dispatcher.count())
}

// A PhonePe payment reaches SUCCESS once; the duplicate callback is a no-op
// and side effects run exactly once.
// transitionCount reads payment_state_transitions_total for one label pair
// from the default registry
func transitionCount(t *testing.T, provider, state string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "payment_state_transitions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["provider"] == provider && labels["state"] == state {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestApplyStatus_DuplicateSignalDoesNotCountAsTransition(t *testing.T) {
	env := setupService(t)

	resp, err := env.service.Initiate(context.Background(), validRequest(models.ProviderPhonePe))
	require.NoError(t, err)

	payload := json.RawMessage(`{"success":true,"data":{"state":"COMPLETED","merchantTransactionId":"` + resp.TransactionID + `"}}`)

	before := transitionCount(t, "phonepe", "SUCCESS")

	_, err = env.service.ApplyStatus(context.Background(), resp.TransactionID, payload)
	require.NoError(t, err)
	assert.Equal(t, before+1, transitionCount(t, "phonepe", "SUCCESS"))

	// The duplicate leaves the state in place and must not be counted
	_, err = env.service.ApplyStatus(context.Background(), resp.TransactionID, payload)
	require.NoError(t, err)
	assert.Equal(t, before+1, transitionCount(t, "phonepe", "SUCCESS"))
}

func TestApplyStatus_PhonePeCompletedTwiceDispatchesOnce(t *testing.T) {
	env := setupService(t)

	resp, err := env.service.Initiate(context.Background(), validRequest(models.ProviderPhonePe))
	require.NoError(t, err)

	payload := json.RawMessage(`{"success":true,"data":{"state":"COMPLETED","merchantTransactionId":"` + resp.TransactionID + `"}}`)

	state, err := env.service.ApplyStatus(context.Background(), resp.TransactionID, payload)
	require.NoError(t, err)
	assert.Equal(t, models.StateSuccess, state)

	state, err = env.service.ApplyStatus(context.Background(), resp.TransactionID, payload)
	require.NoError(t, err)
	assert.Equal(t, models.StateSuccess, state)

	assert.Equal(t, 1, env.dispatcher.count())

	tx, err := env.store.GetByID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.True(t, tx.SideEffectsDispatched)
	require.NotNil(t, tx.VerifiedAt)

	snap := env.dispatcher.snaps[0]
	assert.Equal(t, resp.TransactionID, snap.TransactionID)
	assert.Equal(t, "asha@example.com", snap.Customer.Email)
	assert.True(t, decimal.NewFromInt(500).Equal(snap.Amount))
}

func TestApplyStatus_TerminalStatesAreSticky(t *testing.T) {
	env := setupService(t)

	resp, err := env.service.Initiate(context.Background(), validRequest(models.ProviderPhonePe))
	require.NoError(t, err)

	_, err = env.service.ApplyStatus(context.Background(), resp.TransactionID, json.RawMessage(`{"data":{"state":"FAILED"}}`))
	require.NoError(t, err)

	// A late success signal must not resurrect a failed transaction
	state, err := env.service.ApplyStatus(context.Background(), resp.TransactionID, json.RawMessage(`{"data":{"state":"COMPLETED"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, state)
	assert.Equal(t, 0, env.dispatcher.count())
}

func TestApplyStatus_PendingThenSuccess(t *testing.T) {
	env := setupService(t)

	resp, err := env.service.Initiate(context.Background(), validRequest(models.ProviderCashfree))
	require.NoError(t, err)

	state, err := env.service.ApplyStatus(context.Background(), resp.TransactionID, json.RawMessage(`{"order_status":"ACTIVE"}`))
	require.NoError(t, err)
	assert.Equal(t, models.StatePendingVerification, state)
	assert.Equal(t, 0, env.dispatcher.count())

	state, err = env.service.ApplyStatus(context.Background(), resp.TransactionID, json.RawMessage(`{"data":{"order":{"order_status":"PAID"}}}`))
	require.NoError(t, err)
	assert.Equal(t, models.StateSuccess, state)
	assert.Equal(t, 1, env.dispatcher.count())
}

func TestApplyStatus_MalformedPayloadFails(t *testing.T) {
	env := setupService(t)

	resp, err := env.service.Initiate(context.Background(), validRequest(models.ProviderPhonePe))
	require.NoError(t, err)

	// Translation never panics or errors; garbage maps to FAILED
	state, err := env.service.ApplyStatus(context.Background(), resp.TransactionID, json.RawMessage(`{{{`))
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, state)
	assert.Equal(t, 0, env.dispatcher.count())
}

func TestApplyStatus_RetainsLastPayload(t *testing.T) {
	env := setupService(t)

	resp, err := env.service.Initiate(context.Background(), validRequest(models.ProviderPhonePe))
	require.NoError(t, err)

	payload := json.RawMessage(`{"data":{"state":"PENDING"}}`)
	_, err = env.service.ApplyStatus(context.Background(), resp.TransactionID, payload)
	require.NoError(t, err)

	tx, err := env.store.GetByID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(tx.RawProviderPayload))
}

// Two Cashfree webhooks for the same PAID order race; exactly one dispatch
// must win regardless of interleaving.
func TestApplyStatus_ConcurrentWebhooksDispatchOnce(t *testing.T) {
	env := setupService(t)

	resp, err := env.service.Initiate(context.Background(), validRequest(models.ProviderCashfree))
	require.NoError(t, err)

	payload := json.RawMessage(`{"data":{"order":{"order_id":"` + resp.TransactionID + `","order_status":"PAID"}}}`)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.ApplyStatus(context.Background(), resp.TransactionID, payload)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.dispatcher.count())

	tx, err := env.store.GetByID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSuccess, tx.State)
	assert.True(t, tx.SideEffectsDispatched)
}

func TestVerify_Success(t *testing.T) {
	env := setupService(t)

	resp, err := env.service.Initiate(context.Background(), validRequest(models.ProviderPhonePe))
	require.NoError(t, err)

	env.phonepe.SetQueryResponse(json.RawMessage(`{"data":{"state":"COMPLETED"}}`), nil)

	result, err := env.service.Verify(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, models.StateSuccess, result.State)
	assert.Equal(t, models.ProviderPhonePe, result.Provider)
	assert.Equal(t, 1, env.dispatcher.count())
}

func TestVerify_PendingOutcome(t *testing.T) {
	env := setupService(t)

	resp, err := env.service.Initiate(context.Background(), validRequest(models.ProviderCashfree))
	require.NoError(t, err)

	env.cashfree.SetQueryResponse(json.RawMessage(`{"order_status":"ACTIVE"}`), nil)

	result, err := env.service.Verify(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)
	assert.Equal(t, models.StatePendingVerification, result.State)
}

func TestVerify_UnknownTransaction(t *testing.T) {
	env := setupService(t)

	_, err := env.service.Verify(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTxnNotFound)
}

// A capture call failing is a verification outage, not a payment failure:
// the state stays where it was and a later verify can still succeed.
func TestVerify_ProviderOutageThenRetry(t *testing.T) {
	env := setupService(t)

	resp, err := env.service.Initiate(context.Background(), validRequest(models.ProviderPayPal))
	require.NoError(t, err)

	env.paypal.SetQueryResponse(nil, domain.WrapError(domain.ErrorCodeProviderUnavailable, "capture failed", errors.New("timeout")))

	_, err = env.service.Verify(context.Background(), resp.TransactionID)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorCodeProviderUnavailable, domain.GetErrorCode(err))

	tx, err := env.store.GetByID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateInitiated, tx.State)

	// Provider recovers; the retry completes the payment
	env.paypal.SetQueryResponse(json.RawMessage(`{"status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"status":"COMPLETED"}]}}]}`), nil)

	result, err := env.service.Verify(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 1, env.dispatcher.count())
}

func TestVerify_UsesProviderHandle(t *testing.T) {
	env := setupService(t)

	env.paypal.SetInitiateResponse(&ports.ProviderHandle{
		Handle:         "5O190127TN364715T",
		RedirectTarget: "https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T",
	}, nil)

	resp, err := env.service.Initiate(context.Background(), validRequest(models.ProviderPayPal))
	require.NoError(t, err)

	env.paypal.SetQueryResponse(json.RawMessage(`{"status":"CREATED"}`), nil)
	_, err = env.service.Verify(context.Background(), resp.TransactionID)
	require.NoError(t, err)

	tx, err := env.store.GetByID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, tx.ProviderHandle, env.paypal.LastQueryHandle)
}
