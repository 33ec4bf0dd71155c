package cashfree

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kevin07696/checkout-aggregator/internal/domain"
	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
)

// Config holds Cashfree PG credentials
type Config struct {
	BaseURL    string // e.g. https://api.cashfree.com/pg
	ClientID   string
	Secret     string
	APIVersion string // x-api-version header, e.g. 2022-09-01
	ReturnURL  string
	NotifyURL  string
}

// Adapter implements ports.ProviderGateway for the Cashfree orders API
type Adapter struct {
	config     Config
	httpClient ports.HTTPClient
	logger     ports.Logger
}

// NewAdapter creates a new Cashfree adapter with dependency injection
func NewAdapter(config Config, httpClient ports.HTTPClient, logger ports.Logger) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.APIVersion == "" {
		config.APIVersion = "2022-09-01"
	}
	return &Adapter{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Name returns the provider identity
func (a *Adapter) Name() models.Provider {
	return models.ProviderCashfree
}

type createOrderRequest struct {
	OrderID         string          `json:"order_id"`
	OrderAmount     float64         `json:"order_amount"`
	OrderCurrency   string          `json:"order_currency"`
	CustomerDetails customerDetails `json:"customer_details"`
	OrderMeta       orderMeta       `json:"order_meta"`
}

type customerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
}

type orderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type createOrderResponse struct {
	OrderID          string `json:"order_id"`
	OrderStatus      string `json:"order_status"`
	PaymentSessionID string `json:"payment_session_id"`
}

// Initiate creates a Cashfree order and returns its payment session
func (a *Adapter) Initiate(ctx context.Context, order ports.InitiateOrder) (*ports.ProviderHandle, error) {
	req := createOrderRequest{
		OrderID:       order.TransactionID,
		OrderAmount:   order.Amount.InexactFloat64(),
		OrderCurrency: "INR",
		CustomerDetails: customerDetails{
			CustomerID:    order.TransactionID,
			CustomerName:  order.Customer.Name,
			CustomerEmail: order.Customer.Email,
			CustomerPhone: order.Customer.Phone,
		},
		OrderMeta: orderMeta{
			ReturnURL: a.config.ReturnURL,
			NotifyURL: a.config.NotifyURL,
		},
	}

	var resp createOrderResponse
	if err := a.call(ctx, http.MethodPost, "/orders", req, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeProviderError, "cashfree order create failed", err)
	}
	if resp.PaymentSessionID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeProviderError, "cashfree order create returned no session")
	}

	a.logger.Info("cashfree order created",
		ports.String("merchant_transaction_id", order.TransactionID),
		ports.String("order_status", resp.OrderStatus))

	// Cashfree addresses orders by the merchant order id; the session id is
	// what the checkout frontend consumes
	return &ports.ProviderHandle{
		Handle:         order.TransactionID,
		RedirectTarget: resp.PaymentSessionID,
	}, nil
}

// QueryStatus fetches the raw order payload
func (a *Adapter) QueryStatus(ctx context.Context, handle string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.config.BaseURL+"/orders/"+url.PathEscape(handle), nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}
	a.setHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeProviderUnavailable, "cashfree status query failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeProviderUnavailable, "read cashfree response", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, domain.NewDomainError(domain.ErrorCodeProviderUnavailable, "cashfree status query rejected").
			WithDetail("status_code", resp.StatusCode)
	}
	return body, nil
}

// orderPayload is the subset of the order/webhook payload translation reads.
// Webhooks nest the order under data.order.
type orderPayload struct {
	OrderStatus string `json:"order_status"`
	Data        *struct {
		Order struct {
			OrderStatus string `json:"order_status"`
		} `json:"order"`
	} `json:"data"`
}

// TranslateStatus maps a raw Cashfree payload to the unified state.
// PAID is success, ACTIVE stays pending, anything else (EXPIRED, TERMINATED,
// or an unparseable payload) is failure.
func (a *Adapter) TranslateStatus(raw json.RawMessage) models.TransactionState {
	var payload orderPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.StateFailed
	}

	status := payload.OrderStatus
	if payload.Data != nil && payload.Data.Order.OrderStatus != "" {
		status = payload.Data.Order.OrderStatus
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

func (a *Adapter) call(ctx context.Context, method, path string, body, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	a.setHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("cashfree returned %d: %s", resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", a.config.ClientID)
	req.Header.Set("x-client-secret", a.config.Secret)
	req.Header.Set("x-api-version", a.config.APIVersion)
}

var _ ports.ProviderGateway = (*Adapter)(nil)
