package paypalgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/honeynil/marketplace-tx/internal/gateway"
	"github.com/honeynil/marketplace-tx/internal/models"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paypalAPI struct {
	mu     sync.Mutex
	routes map[string]string
	status map[string]int
	bodies map[string]map[string]any
}

func newPaypalAPI(t *testing.T) (*paypalAPI, *Gateway) {
	api := &paypalAPI{routes: map[string]string{}, status: map[string]int{}, bodies: map[string]map[string]any{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/oauth2/token" {
			fmt.Fprint(w, `{"access_token":"A21AA","token_type":"Bearer","expires_in":32400}`)
			return
		}
		key := r.Method + " " + r.URL.Path
		raw, _ := io.ReadAll(r.Body)

		api.mu.Lock()
		var body map[string]any
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}
		api.bodies[key] = body
		resp, ok := api.routes[key]
		status := api.status[key]
		api.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"name":"RESOURCE_NOT_FOUND","message":"not found"}`)
			return
		}
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		fmt.Fprint(w, resp)
	}))
	t.Cleanup(srv.Close)

	gw, err := New(Config{ClientID: "client", Secret: "secret", WebhookID: "WH-1", BaseURL: srv.URL})
	require.NoError(t, err)
	return api, gw
}

func (a *paypalAPI) on(route string, status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[route] = body
	a.status[route] = status
}

func (a *paypalAPI) body(route string) map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bodies[route]
}

const approvedOrder = `{"id":"ORDER-1","status":"APPROVED","links":[{"href":"https://paypal.test/approve","rel":"approve","method":"GET"}]}`

const authorizedOrder = `{"id":"ORDER-1","status":"COMPLETED","purchase_units":[{"reference_id":"x","payments":{"authorizations":[{"id":"AUTH-1","status":"CREATED"}]}}]}`

const capturedOrder = `{"id":"ORDER-1","status":"COMPLETED","purchase_units":[{"reference_id":"x","payments":{"authorizations":[{"id":"AUTH-1","status":"CAPTURED"}],"captures":[{"id":"CAP-1","status":"COMPLETED"}]}}]}`

func TestCharge(t *testing.T) {
	api, gw := newPaypalAPI(t)
	api.on("POST /v2/checkout/orders", http.StatusCreated, `{"id":"ORDER-1","status":"CREATED","links":[{"href":"https://paypal.test/approve","rel":"approve","method":"GET"}]}`)
	txID := uuid.New()

	res, err := gw.Charge(context.Background(), gateway.ChargeRequest{
		TransactionUUID: txID,
		Amount:          models.NewMoney(3050, "usd"),
		Fee:             models.NewMoney(305, "usd"),
		Seller:          &models.SellerAccount{Gateway: models.GatewayPaypal, PayoutID: "MERCHANT1"},
		ReturnURL:       "https://market.test/return",
		CancelURL:       "https://market.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", res.ChargeID)
	assert.Equal(t, gateway.ChargeRequiresAction, res.Status)
	assert.Equal(t, "https://paypal.test/approve", res.RedirectURL)

	body := api.body("POST /v2/checkout/orders")
	assert.Equal(t, "AUTHORIZE", body["intent"])
	unit := body["purchase_units"].([]any)[0].(map[string]any)
	assert.Equal(t, txID.String(), unit["reference_id"])
	assert.Equal(t, map[string]any{"currency_code": "USD", "value": "30.50"}, unit["amount"])
	assert.Equal(t, map[string]any{"merchant_id": "MERCHANT1"}, unit["payee"])
}

func TestConfirm(t *testing.T) {
	t.Run("Approved order is authorized", func(t *testing.T) {
		api, gw := newPaypalAPI(t)
		api.on("GET /v2/checkout/orders/ORDER-1", http.StatusOK, approvedOrder)
		api.on("POST /v2/checkout/orders/ORDER-1/authorize", http.StatusCreated, authorizedOrder)

		res, err := gw.Confirm(context.Background(), "ORDER-1")
		require.NoError(t, err)
		assert.Equal(t, gateway.ChargeAuthorized, res.Status)
		assert.Equal(t, "ORDER-1", res.ChargeID)
	})

	t.Run("Not yet approved", func(t *testing.T) {
		api, gw := newPaypalAPI(t)
		api.on("GET /v2/checkout/orders/ORDER-1", http.StatusOK, strings.Replace(approvedOrder, "APPROVED", "CREATED", 1))

		res, err := gw.Confirm(context.Background(), "ORDER-1")
		require.NoError(t, err)
		assert.Equal(t, gateway.ChargeRequiresAction, res.Status)
		assert.Equal(t, "https://paypal.test/approve", res.RedirectURL)
	})

	t.Run("Instrument declined", func(t *testing.T) {
		api, gw := newPaypalAPI(t)
		api.on("GET /v2/checkout/orders/ORDER-1", http.StatusOK, approvedOrder)
		api.on("POST /v2/checkout/orders/ORDER-1/authorize", http.StatusUnprocessableEntity, `{"name":"UNPROCESSABLE_ENTITY","message":"INSTRUMENT_DECLINED"}`)

		_, err := gw.Confirm(context.Background(), "ORDER-1")
		assert.Equal(t, pkgerrors.CodePaymentDeclined, pkgerrors.CodeOf(err))
	})
}

func TestCaptureVoidRefund(t *testing.T) {
	t.Run("Capture", func(t *testing.T) {
		api, gw := newPaypalAPI(t)
		api.on("GET /v2/checkout/orders/ORDER-1", http.StatusOK, authorizedOrder)
		api.on("POST /v2/payments/authorizations/AUTH-1/capture", http.StatusCreated, `{"id":"CAP-1","status":"PENDING"}`)

		res, err := gw.Capture(context.Background(), "ORDER-1")
		require.NoError(t, err)
		assert.Equal(t, gateway.CapturePending, res.Status)
		assert.Equal(t, true, api.body("POST /v2/payments/authorizations/AUTH-1/capture")["final_capture"])
	})

	t.Run("Void", func(t *testing.T) {
		api, gw := newPaypalAPI(t)
		api.on("GET /v2/checkout/orders/ORDER-1", http.StatusOK, authorizedOrder)
		api.on("POST /v2/payments/authorizations/AUTH-1/void", http.StatusNoContent, "")

		require.NoError(t, gw.Void(context.Background(), "ORDER-1"))
	})

	t.Run("Void without authorization", func(t *testing.T) {
		api, gw := newPaypalAPI(t)
		api.on("GET /v2/checkout/orders/ORDER-1", http.StatusOK, approvedOrder)

		require.NoError(t, gw.Void(context.Background(), "ORDER-1"))
	})

	t.Run("Refund", func(t *testing.T) {
		api, gw := newPaypalAPI(t)
		api.on("GET /v2/checkout/orders/ORDER-1", http.StatusOK, capturedOrder)
		api.on("POST /v2/payments/captures/CAP-1/refund", http.StatusCreated, `{"id":"REF-1","status":"COMPLETED"}`)

		require.NoError(t, gw.Refund(context.Background(), "ORDER-1"))
	})

	t.Run("Connection issue", func(t *testing.T) {
		api, gw := newPaypalAPI(t)
		api.on("GET /v2/checkout/orders/ORDER-1", http.StatusServiceUnavailable, `{"name":"SERVICE_UNAVAILABLE","message":"try later"}`)

		_, err := gw.Capture(context.Background(), "ORDER-1")
		assert.True(t, errors.Is(err, pkgerrors.ErrPayment))
		assert.Equal(t, pkgerrors.CodeConnectionIssue, pkgerrors.CodeOf(err))
	})
}

func TestPayout(t *testing.T) {
	api, gw := newPaypalAPI(t)
	api.on("POST /v1/payments/payouts", http.StatusCreated, `{"batch_header":{"payout_batch_id":"BATCH-1","batch_status":"PENDING"}}`)
	txID := uuid.New()

	res, err := gw.Payout(context.Background(), gateway.PayoutRequest{
		TransactionUUID: txID,
		Amount:          models.NewMoney(2700, "EUR"),
		Seller:          &models.SellerAccount{Gateway: models.GatewayPaypal, PayoutID: "seller@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "BATCH-1", res.PayoutID)

	item := api.body("POST /v1/payments/payouts")["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "EMAIL", item["recipient_type"])
	assert.Equal(t, map[string]any{"currency": "EUR", "value": "27.00"}, item["amount"])
}

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		event   string
		kind    gateway.EventKind
		charge  string
		payload string
	}{
		{"CHECKOUT.ORDER.APPROVED", gateway.EventBuyerApproved, "ORDER-1", `{"id":"WH-EV-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORDER-1"}}`},
		{"PAYMENT.CAPTURE.COMPLETED", gateway.EventCaptureCompleted, "ORDER-1", `{"id":"WH-EV-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","supplementary_data":{"related_ids":{"order_id":"ORDER-1"}}}}`},
		{"PAYMENT.CAPTURE.DENIED", gateway.EventCaptureFailed, "ORDER-1", `{"id":"WH-EV-1","event_type":"PAYMENT.CAPTURE.DENIED","resource":{"id":"CAP-1","supplementary_data":{"related_ids":{"order_id":"ORDER-1"}}}}`},
		{"BILLING.PLAN.CREATED", gateway.EventIgnored, "", `{"id":"WH-EV-1","event_type":"BILLING.PLAN.CREATED","resource":{"id":"P-1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			api, gw := newPaypalAPI(t)
			api.on("POST /v1/notifications/verify-webhook-signature", http.StatusOK, `{"verification_status":"SUCCESS"}`)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(tt.payload))
			ev, err := gw.ParseWebhook(context.Background(), req, []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, "WH-EV-1", ev.ID)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.charge, ev.ChargeID)
		})
	}

	t.Run("Verification failed", func(t *testing.T) {
		api, gw := newPaypalAPI(t)
		api.on("POST /v1/notifications/verify-webhook-signature", http.StatusOK, `{"verification_status":"FAILURE"}`)

		payload := `{"id":"WH-EV-2","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{}}`
		req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(payload))
		_, err := gw.ParseWebhook(context.Background(), req, []byte(payload))
		assert.True(t, errors.Is(err, pkgerrors.ErrWebhookSignature))
	})
}

func TestValue(t *testing.T) {
	assert.Equal(t, "10.05", value(models.NewMoney(1005, "USD")))
	assert.Equal(t, "0.50", value(models.NewMoney(50, "EUR")))
	assert.Equal(t, "1500", value(models.NewMoney(1500, "JPY")))
}
