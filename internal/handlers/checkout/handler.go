package checkout

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/checkout-aggregator/internal/domain"
	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
	checkoutService "github.com/kevin07696/checkout-aggregator/internal/services/checkout"
)

// Handler exposes the lifecycle controller over HTTP. The three status
// entry points (verify poll, webhook, redirect callback) map onto the same
// service operations; this layer only translates envelopes.
type Handler struct {
	service *checkoutService.Service
	logger  ports.Logger
}

// NewHandler creates a new checkout HTTP handler
func NewHandler(service *checkoutService.Service, logger ports.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes attaches the payment routes to the router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/payments/{provider}/initiate", h.Initiate).Methods(http.MethodPost)
	r.HandleFunc("/api/payments/{id}/verify", h.Verify).Methods(http.MethodGet)
	r.HandleFunc("/api/payments/webhook/{provider}", h.Webhook).Methods(http.MethodPost)
	r.HandleFunc("/api/payments/callback/{provider}", h.Callback).Methods(http.MethodGet)
}

type initiateRequest struct {
	Amount   string `json:"amount"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Plan     string `json:"plan,omitempty"`
	Duration string `json:"duration,omitempty"`
	AddOns   string `json:"add_ons,omitempty"`
}

type initiateResponse struct {
	TransactionID  string `json:"transaction_id"`
	RedirectTarget string `json:"redirect_target"`
}

// Initiate creates a new transaction on the named provider
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	provider := models.Provider(mux.Vars(r)["provider"])

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.ErrorCodeValidationFailed, "invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.ErrorCodeValidationAmountInvalid, "amount is not a number")
		return
	}

	resp, err := h.service.Initiate(r.Context(), checkoutService.InitiateRequest{
		Provider: provider,
		Amount:   amount,
		Customer: models.Customer{Name: req.Name, Email: req.Email, Phone: req.Phone},
		Plan:     models.PlanSelection{Plan: req.Plan, Duration: req.Duration, AddOns: req.AddOns},
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, initiateResponse{
		TransactionID:  resp.TransactionID,
		RedirectTarget: resp.RedirectTarget,
	})
}

type verifyResponse struct {
	TransactionID string `json:"transaction_id"`
	Outcome       string `json:"outcome"`
	State         string `json:"state"`
	Provider      string `json:"provider"`
	Amount        string `json:"amount"`
}

// Verify is the client-initiated verification pull
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, err := h.service.Verify(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		TransactionID: result.TransactionID,
		Outcome:       string(result.Outcome),
		State:         string(result.State),
		Provider:      string(result.Provider),
		Amount:        result.Amount.StringFixed(2),
	})
}

// Webhook receives asynchronous provider notifications. Unknown transaction
// ids are rejected; a webhook can never create a record.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	provider := models.Provider(mux.Vars(r)["provider"])

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, domain.ErrorCodeValidationFailed, "invalid webhook body")
		return
	}

	id, payload, err := extractWebhook(provider, body)
	if err != nil {
		h.logger.Warn("webhook missing transaction reference",
			ports.String("provider", string(provider)),
			ports.Err(err))
		writeError(w, http.StatusBadRequest, domain.ErrorCodeValidationFailed, "webhook carries no transaction reference")
		return
	}

	if _, err := h.service.ApplyStatus(r.Context(), id, payload); err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Callback handles the payer's redirect back from the provider's checkout
// page. The redirect itself proves nothing, so the transaction is verified
// against the provider before an outcome is reported.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("transaction_id")
	if id == "" {
		id = r.URL.Query().Get("order_id")
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, domain.ErrorCodeValidationFailed, "callback carries no transaction reference")
		return
	}

	result, err := h.service.Verify(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		TransactionID: result.TransactionID,
		Outcome:       string(result.Outcome),
		State:         string(result.State),
		Provider:      string(result.Provider),
		Amount:        result.Amount.StringFixed(2),
	})
}

// extractWebhook pulls the merchant transaction id out of each provider's
// webhook envelope and returns the status payload to translate
func extractWebhook(provider models.Provider, body json.RawMessage) (string, json.RawMessage, error) {
	switch provider {
	case models.ProviderPhonePe:
		// PhonePe wraps the status payload base64 encoded under "response"
		var envelope struct {
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Response != "" {
			decoded, err := base64.StdEncoding.DecodeString(envelope.Response)
			if err != nil {
				return "", nil, errors.New("phonepe webhook response is not base64")
			}
			body = decoded
		}
		var payload struct {
			Data struct {
				MerchantTransactionID string `json:"merchantTransactionId"`
			} `json:"data"`
			MerchantTransactionID string `json:"merchantTransactionId"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", nil, err
		}
		id := payload.Data.MerchantTransactionID
		if id == "" {
			id = payload.MerchantTransactionID
		}
		if id == "" {
			return "", nil, errors.New("no merchantTransactionId in payload")
		}
		return id, body, nil

	case models.ProviderCashfree:
		var payload struct {
			Data struct {
				Order struct {
					OrderID string `json:"order_id"`
				} `json:"order"`
			} `json:"data"`
			OrderID string `json:"order_id"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", nil, err
		}
		id := payload.Data.Order.OrderID
		if id == "" {
			id = payload.OrderID
		}
		if id == "" {
			return "", nil, errors.New("no order_id in payload")
		}
		return id, body, nil

	case models.ProviderPayPal:
		// Capture events reference the merchant transaction through the
		// purchase unit; the resource body is the payload to translate
		var payload struct {
			Resource json.RawMessage `json:"resource"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", nil, err
		}
		resource := payload.Resource
		if len(resource) == 0 {
			resource = body
		}
		var ref struct {
			PurchaseUnits []struct {
				ReferenceID string `json:"reference_id"`
			} `json:"purchase_units"`
			CustomID string `json:"custom_id"`
		}
		if err := json.Unmarshal(resource, &ref); err != nil {
			return "", nil, err
		}
		if len(ref.PurchaseUnits) > 0 && ref.PurchaseUnits[0].ReferenceID != "" {
			return ref.PurchaseUnits[0].ReferenceID, resource, nil
		}
		if ref.CustomID != "" {
			return ref.CustomID, resource, nil
		}
		return "", nil, errors.New("no purchase unit reference in payload")
	}
	return "", nil, errors.New("unsupported provider")
}

// writeDomainError maps domain error codes onto HTTP statuses
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		h.logger.Error("unhandled error", ports.Err(err))
		writeError(w, http.StatusInternalServerError, domain.ErrorCodeInternalError, "internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch {
	case domain.IsValidationError(err), domainErr.Code == domain.ErrorCodeProviderUnknown:
		status = http.StatusBadRequest
	case domain.IsNotFoundError(err):
		status = http.StatusNotFound
	case domain.IsProviderError(err):
		// Verification unavailable: distinct from a FAILED payment outcome
		status = http.StatusBadGateway
	}

	writeError(w, status, domainErr.Code, domainErr.Message)
}

func writeError(w http.ResponseWriter, status int, code domain.ErrorCode, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    string(code),
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
