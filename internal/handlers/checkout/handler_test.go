package checkout

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/checkout-aggregator/internal/adapters/memory"
	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	checkoutService "github.com/kevin07696/checkout-aggregator/internal/services/checkout"
	"github.com/kevin07696/checkout-aggregator/test/mocks"
)

type noopDispatcher struct {
	mu    sync.Mutex
	count int
}

func (d *noopDispatcher) OnSuccess(models.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
}

type handlerEnv struct {
	router     *mux.Router
	store      *memory.TransactionRepository
	dispatcher *noopDispatcher
	phonepe    *mocks.MockProviderGateway
	paypal     *mocks.MockProviderGateway
	cashfree   *mocks.MockProviderGateway
}

func setupHandler(t *testing.T) *handlerEnv {
	t.Helper()
	env := &handlerEnv{
		router:     mux.NewRouter(),
		store:      memory.NewTransactionRepository(),
		dispatcher: &noopDispatcher{},
		phonepe:    mocks.NewMockProviderGateway(models.ProviderPhonePe),
		paypal:     mocks.NewMockProviderGateway(models.ProviderPayPal),
		cashfree:   mocks.NewMockProviderGateway(models.ProviderCashfree),
	}

	env.phonepe.SetTranslateFunc(func(raw json.RawMessage) models.TransactionState {
		var p struct {
			Data struct {
				State string `json:"state"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return models.StateFailed
		}
		switch p.Data.State {
		case "COMPLETED":
			return models.StateSuccess
		case "PENDING":
			return models.StatePendingVerification
		default:
			return models.StateFailed
		}
	})
	env.paypal.SetTranslateFunc(func(raw json.RawMessage) models.TransactionState {
		var p struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return models.StateFailed
		}
		if p.Status == "COMPLETED" {
			return models.StateSuccess
		}
		return models.StatePendingVerification
	})
	env.cashfree.SetTranslateFunc(func(raw json.RawMessage) models.TransactionState {
		var p struct {
			Data struct {
				Order struct {
					OrderStatus string `json:"order_status"`
				} `json:"order"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return models.StateFailed
		}
		if p.Data.Order.OrderStatus == "PAID" {
			return models.StateSuccess
		}
		return models.StatePendingVerification
	})

	service := checkoutService.NewService(env.store, env.dispatcher, mocks.NewMockLogger(),
		env.phonepe, env.paypal, env.cashfree)
	NewHandler(service, mocks.NewMockLogger()).RegisterRoutes(env.router)
	return env
}

func (e *handlerEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *handlerEnv) initiate(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/payments/phonepe/initiate",
		`{"amount":"500","name":"Asha Rao","email":"asha@example.com","phone":"9876543210","plan":"premium"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		TransactionID string `json:"transaction_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TransactionID)
	return resp.TransactionID
}

func TestHandler_Initiate(t *testing.T) {
	env := setupHandler(t)

	rec := env.do(t, http.MethodPost, "/api/payments/phonepe/initiate",
		`{"amount":"500","name":"Asha Rao","email":"asha@example.com","phone":"9876543210"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		TransactionID  string `json:"transaction_id"`
		RedirectTarget string `json:"redirect_target"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TransactionID)
	assert.NotEmpty(t, resp.RedirectTarget)
}

func TestHandler_Initiate_BadAmount(t *testing.T) {
	env := setupHandler(t)

	rec := env.do(t, http.MethodPost, "/api/payments/phonepe/initiate",
		`{"amount":"five hundred","name":"Asha Rao","email":"asha@example.com","phone":"9876543210"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_AMOUNT_INVALID")
}

func TestHandler_Initiate_UnknownProvider(t *testing.T) {
	env := setupHandler(t)

	rec := env.do(t, http.MethodPost, "/api/payments/stripe/initiate",
		`{"amount":"500","name":"Asha Rao","email":"asha@example.com","phone":"9876543210"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "PROVIDER_UNKNOWN")
}

func TestHandler_Initiate_MalformedBody(t *testing.T) {
	env := setupHandler(t)

	rec := env.do(t, http.MethodPost, "/api/payments/phonepe/initiate", `{{{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Verify(t *testing.T) {
	env := setupHandler(t)
	id := env.initiate(t)

	env.phonepe.SetQueryResponse(json.RawMessage(`{"data":{"state":"COMPLETED"}}`), nil)

	rec := env.do(t, http.MethodGet, "/api/payments/"+id+"/verify", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp verifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SUCCESS", resp.Outcome)
	assert.Equal(t, "SUCCESS", resp.State)
	assert.Equal(t, "phonepe", resp.Provider)
	assert.Equal(t, "500.00", resp.Amount)
}

func TestHandler_Verify_UnknownID(t *testing.T) {
	env := setupHandler(t)

	rec := env.do(t, http.MethodGet, "/api/payments/no-such-id/verify", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "TXN_NOT_FOUND")
}

func TestHandler_Webhook_Cashfree(t *testing.T) {
	env := setupHandler(t)

	rec := env.do(t, http.MethodPost, "/api/payments/cashfree/initiate",
		`{"amount":"299","name":"Ravi Kumar","email":"ravi@example.com","phone":"9876543210"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		TransactionID string `json:"transaction_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body := `{"type":"PAYMENT_SUCCESS_WEBHOOK","data":{"order":{"order_id":"` + created.TransactionID + `","order_status":"PAID"}}}`
	rec = env.do(t, http.MethodPost, "/api/payments/webhook/cashfree", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	tx, err := env.store.GetByID(context.Background(), created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSuccess, tx.State)
	assert.Equal(t, 1, env.dispatcher.count)
}

func TestHandler_Webhook_PhonePeBase64Envelope(t *testing.T) {
	env := setupHandler(t)
	id := env.initiate(t)

	payload := `{"success":true,"data":{"merchantTransactionId":"` + id + `","state":"COMPLETED"}}`
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))
	body := `{"response":"` + encoded + `"}`

	rec := env.do(t, http.MethodPost, "/api/payments/webhook/phonepe", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	tx, err := env.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StateSuccess, tx.State)
}

func TestHandler_Webhook_PayPalCaptureResource(t *testing.T) {
	env := setupHandler(t)

	rec := env.do(t, http.MethodPost, "/api/payments/paypal/initiate",
		`{"amount":"19.99","name":"Sam Lee","email":"sam@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		TransactionID string `json:"transaction_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Capture event resources carry no purchase units, only the custom_id
	// stamped on the order at creation time
	body := `{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"3C679366HH908993F","status":"COMPLETED","custom_id":"` + created.TransactionID + `"}}`
	rec = env.do(t, http.MethodPost, "/api/payments/webhook/paypal", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	tx, err := env.store.GetByID(context.Background(), created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSuccess, tx.State)
	assert.Equal(t, 1, env.dispatcher.count)
}

func TestHandler_Webhook_UnknownTransaction(t *testing.T) {
	env := setupHandler(t)

	body := `{"data":{"order":{"order_id":"ghost-id","order_status":"PAID"}}}`
	rec := env.do(t, http.MethodPost, "/api/payments/webhook/cashfree", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Webhook_NoReference(t *testing.T) {
	env := setupHandler(t)

	rec := env.do(t, http.MethodPost, "/api/payments/webhook/cashfree", `{"type":"TEST"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Callback(t *testing.T) {
	env := setupHandler(t)
	id := env.initiate(t)

	env.phonepe.SetQueryResponse(json.RawMessage(`{"data":{"state":"PENDING"}}`), nil)

	rec := env.do(t, http.MethodGet, "/api/payments/callback/phonepe?transaction_id="+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp verifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PENDING", resp.Outcome)
	assert.Equal(t, "PENDING_VERIFICATION", resp.State)
}

func TestHandler_Callback_NoReference(t *testing.T) {
	env := setupHandler(t)

	rec := env.do(t, http.MethodGet, "/api/payments/callback/phonepe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
