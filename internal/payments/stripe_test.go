package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"instafund/internal/accounts"
	"instafund/internal/challenge"
	"instafund/internal/events"
	"instafund/internal/settings"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

const testSecret = "whsec_test"

type fakeActivator struct {
	mu         sync.Mutex
	activated  []string
	references []string
	err        error
}

func (f *fakeActivator) Activate(_ context.Context, traderID, paymentRef string) (*challenge.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.activated = append(f.activated, traderID)
	f.references = append(f.references, paymentRef)
	return &challenge.Account{TraderID: traderID}, nil
}

type fakeKYC map[string]bool

func (f fakeKYC) IsVerified(_ context.Context, traderID string) (bool, error) {
	return f[traderID], nil
}

func signedEvent(t *testing.T, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
	return payload, header
}

func newTestService(act *fakeActivator) *Service {
	return NewService(Config{WebhookSecret: testSecret}, act, nil)
}

func TestHandleWebhook_CheckoutCompleted(t *testing.T) {
	act := &fakeActivator{}
	svc := newTestService(act)
	payload, sig := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test",
		"object":         "checkout.session",
		"payment_status": "paid",
		"payment_intent": "pi_1",
		"metadata":       map[string]string{"trader_id": "t1"},
	})

	traderID, err := svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "t1", traderID)
	assert.Equal(t, []string{"t1"}, act.activated)
	assert.Equal(t, []string{"pi_1"}, act.references)
}

func TestHandleWebhook_UnpaidCheckoutIgnored(t *testing.T) {
	act := &fakeActivator{}
	payload, sig := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test",
		"object":         "checkout.session",
		"payment_status": "unpaid",
		"metadata":       map[string]string{"trader_id": "t1"},
	})
	traderID, err := newTestService(act).HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Empty(t, traderID)
	assert.Empty(t, act.activated)
}

func TestHandleWebhook_PaymentIntentAlreadyActiveIsNoop(t *testing.T) {
	act := &fakeActivator{err: accounts.ErrAlreadyActive}
	payload, sig := signedEvent(t, "payment_intent.succeeded", map[string]any{
		"id":       "pi_test",
		"object":   "payment_intent",
		"metadata": map[string]string{"trader_id": "t1"},
	})
	traderID, err := newTestService(act).HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "t1", traderID)
}

func TestHandleWebhook_Rejects(t *testing.T) {
	act := &fakeActivator{}
	svc := newTestService(act)

	payload, _ := signedEvent(t, "checkout.session.completed", map[string]any{"id": "cs_test"})
	_, err := svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidEvent)

	payload, sig := signedEvent(t, "payment_intent.succeeded", map[string]any{
		"id":     "pi_test",
		"object": "payment_intent",
	})
	_, err = svc.HandleWebhook(context.Background(), payload, sig)
	assert.ErrorIs(t, err, ErrMissingTraderID)

	payload, sig = signedEvent(t, "customer.created", map[string]any{"id": "cus_test"})
	traderID, err := svc.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Empty(t, traderID)
	assert.Empty(t, act.activated)
}

func TestStripeWebhookHandler_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"activated", nil, http.StatusOK},
		{"kyc missing", accounts.ErrKYCRequired, http.StatusForbidden},
		{"store down", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(newTestService(&fakeActivator{err: tt.err}))
			payload, sig := signedEvent(t, "payment_intent.succeeded", map[string]any{
				"id":       "pi_test",
				"object":   "payment_intent",
				"metadata": map[string]string{"trader_id": "t1"},
			})
			req := httptest.NewRequest(http.MethodPost, "/v1/payments/stripe/webhook", bytes.NewReader(payload))
			req.Header.Set("Stripe-Signature", sig)
			rec := httptest.NewRecorder()
			h.StripeWebhook(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateCheckout(t *testing.T) {
	act := &fakeActivator{}
	svc := NewService(Config{APIKey: "sk_test", PriceID: "price_1", SuccessURL: "https://x/ok", CancelURL: "https://x/no"}, act, fakeKYC{"t1": true})
	var got *stripe.CheckoutSessionParams
	svc.newSession = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = p
		return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/cs_1"}, nil
	}

	c, err := svc.CreateCheckout(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "cs_1", c.SessionID)
	require.NotNil(t, got)
	assert.Equal(t, "t1", got.Metadata["trader_id"])
	assert.Equal(t, "t1", got.PaymentIntentData.Metadata["trader_id"])
	assert.Equal(t, "price_1", *got.LineItems[0].Price)

	_, err = svc.CreateCheckout(context.Background(), "unverified")
	assert.ErrorIs(t, err, accounts.ErrKYCRequired)

	_, err = NewService(Config{}, act, nil).CreateCheckout(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestConfirmHandler(t *testing.T) {
	act := &fakeActivator{}
	h := NewHandler(newTestService(act))

	rec := httptest.NewRecorder()
	h.Confirm(rec, httptest.NewRequest(http.MethodPost, "/v1/internal/payments/confirm",
		strings.NewReader(`{"trader_id":"t9","reference":"rzp_123"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"t9"}, act.activated)
	assert.Equal(t, []string{"rzp_123"}, act.references)

	for _, body := range []string{`{}`, `{"trader_id":"t9"}`} {
		rec = httptest.NewRecorder()
		h.Confirm(rec, httptest.NewRequest(http.MethodPost, "/v1/internal/payments/confirm", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Len(t, act.activated, 1)
}

func newAccountService(t *testing.T) *accounts.Service {
	t.Helper()
	store, err := settings.NewStore(settings.Snapshot{
		Rules: challenge.DefaultCatalog(),
		Admin: challenge.DefaultAdminSettings(),
	})
	require.NoError(t, err)
	return accounts.NewService(accounts.NewMemoryRepository(), nil, store, events.NewBus())
}

func losingTrade() challenge.TradeInput {
	return challenge.TradeInput{
		Symbol:     "NIFTY",
		Side:       challenge.SideBuy,
		Quantity:   decimal.NewFromInt(1),
		EntryPrice: decimal.NewFromInt(100000),
		ExitPrice:  decimal.NewFromInt(94000),
	}
}

func TestConfirm_ReplayAfterBreachKeepsBreach(t *testing.T) {
	ctx := context.Background()
	accts := newAccountService(t)
	svc := NewService(Config{WebhookSecret: testSecret}, accts, nil)

	require.NoError(t, svc.Confirm(ctx, "t1", "evt_1"))
	res, err := accts.RecordTrade(ctx, "t1", losingTrade())
	require.NoError(t, err)
	require.True(t, res.Breach.Breached)

	require.NoError(t, svc.Confirm(ctx, "t1", "evt_1"))
	acc, err := accts.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusBreached, acc.Status)
	assert.Len(t, acc.Trades, 1)

	require.NoError(t, svc.Confirm(ctx, "t1", "evt_2"))
	acc, err = accts.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusActive, acc.Status)
	assert.Empty(t, acc.Trades)
}

func TestHandleWebhook_BothEventsForOnePaymentActivateOnce(t *testing.T) {
	ctx := context.Background()
	accts := newAccountService(t)
	svc := NewService(Config{WebhookSecret: testSecret}, accts, nil)

	payload, sig := signedEvent(t, "payment_intent.succeeded", map[string]any{
		"id":       "pi_7",
		"object":   "payment_intent",
		"metadata": map[string]string{"trader_id": "t1"},
	})
	_, err := svc.HandleWebhook(ctx, payload, sig)
	require.NoError(t, err)

	res, err := accts.RecordTrade(ctx, "t1", losingTrade())
	require.NoError(t, err)
	require.True(t, res.Breach.Breached)

	payload, sig = signedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_7",
		"object":         "checkout.session",
		"payment_status": "paid",
		"payment_intent": "pi_7",
		"metadata":       map[string]string{"trader_id": "t1"},
	})
	traderID, err := svc.HandleWebhook(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "t1", traderID)

	acc, err := accts.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusBreached, acc.Status)
}
