package phonepe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/checkout-aggregator/internal/domain"
	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
)

// PhonePe amounts are expressed in paise
var paiseFactor = decimal.NewFromInt(100)

// Config holds PhonePe PG credentials
type Config struct {
	BaseURL     string // e.g. https://api.phonepe.com/apis/hermes
	MerchantID  string
	SaltKey     string
	SaltIndex   string
	RedirectURL string
	CallbackURL string
}

// Adapter implements ports.ProviderGateway for the PhonePe pay-page API
type Adapter struct {
	config     Config
	httpClient ports.HTTPClient
	logger     ports.Logger
}

// NewAdapter creates a new PhonePe adapter with dependency injection
func NewAdapter(config Config, httpClient ports.HTTPClient, logger ports.Logger) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Adapter{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Name returns the provider identity
func (a *Adapter) Name() models.Provider {
	return models.ProviderPhonePe
}

// payRequest is the payload of the pay-page create call, sent base64 encoded
type payRequest struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"` // paise
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	MobileNumber          string            `json:"mobileNumber,omitempty"`
	PaymentInstrument     paymentInstrument `json:"paymentInstrument"`
}

type paymentInstrument struct {
	Type string `json:"type"` // PAY_PAGE
}

type payResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		InstrumentResponse    struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

// Initiate creates a PhonePe pay-page session for the order
func (a *Adapter) Initiate(ctx context.Context, order ports.InitiateOrder) (*ports.ProviderHandle, error) {
	req := payRequest{
		MerchantID:            a.config.MerchantID,
		MerchantTransactionID: order.TransactionID,
		MerchantUserID:        order.Customer.Email,
		Amount:                order.Amount.Mul(paiseFactor).IntPart(),
		RedirectURL:           a.config.RedirectURL,
		RedirectMode:          "REDIRECT",
		CallbackURL:           a.config.CallbackURL,
		MobileNumber:          order.Customer.Phone,
		PaymentInstrument:     paymentInstrument{Type: "PAY_PAGE"},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal pay request: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(body)

	const payPath = "/pg/v1/pay"
	envelope, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return nil, fmt.Errorf("marshal pay envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+payPath, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("create pay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", a.checksum(encoded+payPath))

	var resp payResponse
	if err := a.doJSON(httpReq, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeProviderError, "phonepe pay call failed", err)
	}
	if !resp.Success || resp.Data.InstrumentResponse.RedirectInfo.URL == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeProviderError, "phonepe pay rejected").
			WithDetail("code", resp.Code).
			WithDetail("message", resp.Message)
	}

	a.logger.Info("phonepe session created",
		ports.String("merchant_transaction_id", order.TransactionID))

	// PhonePe addresses orders by the merchant transaction id itself
	return &ports.ProviderHandle{
		Handle:         order.TransactionID,
		RedirectTarget: resp.Data.InstrumentResponse.RedirectInfo.URL,
	}, nil
}

// QueryStatus fetches the raw order status payload
func (a *Adapter) QueryStatus(ctx context.Context, handle string) (json.RawMessage, error) {
	statusPath := fmt.Sprintf("/pg/v1/status/%s/%s", a.config.MerchantID, handle)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+statusPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", a.checksum(statusPath))
	httpReq.Header.Set("X-MERCHANT-ID", a.config.MerchantID)

	raw, err := a.doRaw(httpReq)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeProviderUnavailable, "phonepe status query failed", err)
	}
	return raw, nil
}

// statusPayload is the subset of the status/callback payload translation
// reads. Callbacks wrap it in {"data": {...}}; polls return it under data
// as well, so both shapes decode the same way.
type statusPayload struct {
	State string `json:"state"`
	Data  *struct {
		State string `json:"state"`
	} `json:"data"`
}

// TranslateStatus maps a raw PhonePe payload to the unified state.
// COMPLETED is success, PENDING stays pending, anything else (including a
// payload that does not parse) is failure.
func (a *Adapter) TranslateStatus(raw json.RawMessage) models.TransactionState {
	var payload statusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.StateFailed
	}

	state := payload.State
	if payload.Data != nil && payload.Data.State != "" {
		state = payload.Data.State
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

// checksum computes the X-VERIFY header: sha256(payload + saltKey) + "###" + saltIndex
func (a *Adapter) checksum(payload string) string {
	sum := sha256.Sum256([]byte(payload + a.config.SaltKey))
	return hex.EncodeToString(sum[:]) + "###" + a.config.SaltIndex
}

func (a *Adapter) doJSON(req *http.Request, out interface{}) error {
	raw, err := a.doRaw(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (a *Adapter) doRaw(req *http.Request) (json.RawMessage, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("phonepe returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

var _ ports.ProviderGateway = (*Adapter)(nil)
