package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
)

// MockProviderGateway is a mock implementation of ProviderGateway for testing
type MockProviderGateway struct {
	mu sync.Mutex

	Provider models.Provider

	// Responses to return
	initiateResponse *ports.ProviderHandle
	initiateError    error
	queryResponse    json.RawMessage
	queryError       error
	translateFunc    func(raw json.RawMessage) models.TransactionState

	// Call tracking
	InitiateCalls int
	QueryCalls    int

	// Last request received
	LastInitiateReq *ports.InitiateOrder
	LastQueryHandle string
}

// NewMockProviderGateway creates a new mock gateway for the given provider
func NewMockProviderGateway(provider models.Provider) *MockProviderGateway {
	return &MockProviderGateway{Provider: provider}
}

// SetInitiateResponse sets the response to return from Initiate
func (m *MockProviderGateway) SetInitiateResponse(handle *ports.ProviderHandle, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initiateResponse = handle
	m.initiateError = err
}

// SetQueryResponse sets the response to return from QueryStatus
func (m *MockProviderGateway) SetQueryResponse(raw json.RawMessage, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryResponse = raw
	m.queryError = err
}

// SetTranslateFunc overrides the status translation
func (m *MockProviderGateway) SetTranslateFunc(fn func(raw json.RawMessage) models.TransactionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.translateFunc = fn
}

func (m *MockProviderGateway) Name() models.Provider {
	return m.Provider
}

func (m *MockProviderGateway) Initiate(ctx context.Context, order ports.InitiateOrder) (*ports.ProviderHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitiateCalls++
	m.LastInitiateReq = &order
	if m.initiateError != nil {
		return nil, m.initiateError
	}
	if m.initiateResponse != nil {
		return m.initiateResponse, nil
	}
	return &ports.ProviderHandle{Handle: order.TransactionID, RedirectTarget: "https://pay.example.com/" + order.TransactionID}, nil
}

func (m *MockProviderGateway) QueryStatus(ctx context.Context, handle string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls++
	m.LastQueryHandle = handle
	if m.queryError != nil {
		return nil, m.queryError
	}
	if m.queryResponse != nil {
		return m.queryResponse, nil
	}
	return json.RawMessage(`{}`), nil
}

// TranslateStatus defaults to reading a bare {"state": "..."} payload with
// the lifecycle state names, unless a translate func was set
func (m *MockProviderGateway) TranslateStatus(raw json.RawMessage) models.TransactionState {
	m.mu.Lock()
	fn := m.translateFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(raw)
	}
	var payload struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.StateFailed
	}
	switch payload.State {
	case "SUCCESS":
		return models.StateSuccess
	case "PENDING_VERIFICATION":
		return models.StatePendingVerification
	default:
		return models.StateFailed
	}
}
