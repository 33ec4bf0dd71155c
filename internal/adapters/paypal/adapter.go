package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kevin07696/checkout-aggregator/internal/domain"
	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
)

// Config holds PayPal REST credentials
type Config struct {
	BaseURL      string // e.g. https://api-m.paypal.com
	ClientID     string
	ClientSecret string
	Currency     string // e.g. USD
	ReturnURL    string
	CancelURL    string
}

// Adapter implements ports.ProviderGateway for the PayPal Orders v2 API
type Adapter struct {
	config     Config
	httpClient ports.HTTPClient
	logger     ports.Logger

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewAdapter creates a new PayPal adapter with dependency injection
func NewAdapter(config Config, httpClient ports.HTTPClient, logger ports.Logger) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Currency == "" {
		config.Currency = "USD"
	}
	return &Adapter{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Name returns the provider identity
func (a *Adapter) Name() models.Provider {
	return models.ProviderPayPal
}

type orderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	AppContext    appContext     `json:"application_context"`
}

type purchaseUnit struct {
	ReferenceID string      `json:"reference_id"`
	CustomID    string      `json:"custom_id"`
	Amount      orderAmount `json:"amount"`
}

type orderAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type appContext struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// Initiate creates a PayPal order and returns the approval link
func (a *Adapter) Initiate(ctx context.Context, order ports.InitiateOrder) (*ports.ProviderHandle, error) {
	req := orderRequest{
		Intent: "CAPTURE",
		// custom_id rides along on capture webhook resources, which carry
		// no purchase units; it is the only way to match those events back
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: order.TransactionID,
			CustomID:    order.TransactionID,
			Amount: orderAmount{
				CurrencyCode: a.config.Currency,
				Value:        order.Amount.StringFixed(2),
			},
		}},
		AppContext: appContext{
			ReturnURL: a.config.ReturnURL,
			CancelURL: a.config.CancelURL,
		},
	}

	var resp orderResponse
	if err := a.call(ctx, http.MethodPost, "/v2/checkout/orders", req, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeProviderError, "paypal order create failed", err)
	}
	if resp.ID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeProviderError, "paypal order create returned no id")
	}

	approve := ""
	for _, link := range resp.Links {
		if link.Rel == "approve" {
			approve = link.Href
			break
		}
	}
	if approve == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeProviderError, "paypal order has no approval link").
			WithDetail("order_id", resp.ID)
	}

	a.logger.Info("paypal order created",
		ports.String("merchant_transaction_id", order.TransactionID),
		ports.String("order_id", resp.ID))

	return &ports.ProviderHandle{Handle: resp.ID, RedirectTarget: approve}, nil
}

// QueryStatus captures an approved order, falling back to the order lookup
// when the order is not yet capturable. The returned payload is whichever
// response described the order last.
func (a *Adapter) QueryStatus(ctx context.Context, handle string) (json.RawMessage, error) {
	captureURL := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(handle))

	raw, status, err := a.callRaw(ctx, http.MethodPost, captureURL, struct{}{})
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeProviderUnavailable, "paypal capture failed", err)
	}
	if status < http.StatusBadRequest {
		return raw, nil
	}

	// ORDER_NOT_APPROVED and similar capture rejections: report the order as
	// it stands instead of treating the query as unavailable
	raw, status, err = a.callRaw(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(handle), nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeProviderUnavailable, "paypal order lookup failed", err)
	}
	if status >= http.StatusBadRequest {
		return nil, domain.NewDomainError(domain.ErrorCodeProviderUnavailable, "paypal order lookup rejected").
			WithDetail("status_code", status)
	}
	return raw, nil
}

// capturePayload covers both the order lookup and the capture response shape
type capturePayload struct {
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// TranslateStatus maps a raw PayPal payload to the unified state. A COMPLETED
// capture (nested or top-level) is success; an order still awaiting approval
// or capture stays pending; anything else, including unparseable payloads,
// is failure.
func (a *Adapter) TranslateStatus(raw json.RawMessage) models.TransactionState {
	var payload capturePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.StateFailed
	}

	for _, unit := range payload.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			if capture.Status == "COMPLETED" {
				return models.StateSuccess
			}
		}
	}

	switch payload.Status {
	case "COMPLETED":
		return models.StateSuccess
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return models.StatePendingVerification
	default:
		return models.StateFailed
	}
}

// call performs an authenticated JSON request and decodes the response
func (a *Adapter) call(ctx context.Context, method, path string, body, out interface{}) error {
	raw, status, err := a.callRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("paypal returned %d: %s", status, string(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (a *Adapter) callRaw(ctx context.Context, method, path string, body interface{}) (json.RawMessage, int, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, 0, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response body: %w", err)
	}
	return raw, resp.StatusCode, nil
}

// token returns a cached OAuth access token, refreshing when expired
func (a *Adapter) token(ctx context.Context) (string, error) {
	a.tokenMu.Lock()
	defer a.tokenMu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.BaseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(a.config.ClientID, a.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request returned %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	a.accessToken = tokenResp.AccessToken
	// Refresh a minute early to avoid using a token at the expiry edge
	a.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return a.accessToken, nil
}

var _ ports.ProviderGateway = (*Adapter)(nil)
