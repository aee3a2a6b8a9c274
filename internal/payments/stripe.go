// Package payments turns confirmed challenge purchases into active accounts.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"instafund/internal/accounts"
	"instafund/internal/challenge"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

const metadataTraderID = "trader_id"

var (
	ErrNotConfigured   = errors.New("payments are not configured")
	ErrMissingTraderID = errors.New("trader_id not found in payment metadata")
	ErrInvalidEvent    = errors.New("invalid stripe event")
)

// Activator starts a challenge once payment is confirmed.
type Activator interface {
	Activate(ctx context.Context, traderID, paymentRef string) (*challenge.Account, error)
}

type Config struct {
	APIKey        string
	WebhookSecret string
	PriceID       string
	SuccessURL    string
	CancelURL     string
}

type Checkout struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type Service struct {
	cfg        Config
	accounts   Activator
	kyc        accounts.KYCChecker
	newSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewService(cfg Config, activator Activator, kyc accounts.KYCChecker) *Service {
	if cfg.APIKey != "" {
		stripe.Key = cfg.APIKey
	}
	return &Service{cfg: cfg, accounts: activator, kyc: kyc, newSession: session.New}
}

// CreateCheckout opens a Stripe checkout session for one challenge purchase.
// The trader id travels in metadata so the webhook can activate the account.
func (s *Service) CreateCheckout(ctx context.Context, traderID string) (Checkout, error) {
	if s.cfg.APIKey == "" || s.cfg.PriceID == "" {
		return Checkout{}, ErrNotConfigured
	}
	if s.kyc != nil {
		ok, err := s.kyc.IsVerified(ctx, traderID)
		if err != nil {
			return Checkout{}, err
		}
		if !ok {
			return Checkout{}, accounts.ErrKYCRequired
		}
	}

	metadata := map[string]string{metadataTraderID: traderID}
	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(traderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.cfg.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	params.Context = ctx

	sess, err := s.newSession(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("create checkout session: %w", err)
	}
	log.Info().Str("trader_id", traderID).Str("session_id", sess.ID).Msg("checkout session created")
	return Checkout{SessionID: sess.ID, URL: sess.URL}, nil
}

// HandleWebhook verifies a Stripe event and activates the paying trader.
// It returns the trader id it acted on, or "" for events it ignores.
// checkout.session.completed and payment_intent.succeeded for one purchase
// share the payment intent id, which is the payment reference.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	if s.cfg.WebhookSecret == "" {
		return "", ErrNotConfigured
	}
	event, err := webhook.ConstructEvent(payload, signature, s.cfg.WebhookSecret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	var traderID, reference string
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return "", fmt.Errorf("%w: parse checkout session: %v", ErrInvalidEvent, err)
		}
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			log.Info().Str("session_id", sess.ID).Str("payment_status", string(sess.PaymentStatus)).Msg("checkout not paid yet")
			return "", nil
		}
		traderID = sess.Metadata[metadataTraderID]
		reference = sess.ID
		if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
			reference = sess.PaymentIntent.ID
		}
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return "", fmt.Errorf("%w: parse payment intent: %v", ErrInvalidEvent, err)
		}
		traderID = intent.Metadata[metadataTraderID]
		reference = intent.ID
	default:
		log.Debug().Str("event_type", string(event.Type)).Msg("ignoring stripe event")
		return "", nil
	}

	if strings.TrimSpace(traderID) == "" {
		return "", ErrMissingTraderID
	}
	if err := s.Confirm(ctx, traderID, reference); err != nil {
		return "", err
	}
	return traderID, nil
}

// Confirm activates the trader for a payment confirmed outside Stripe, or by
// a Stripe event. Redelivered references and payments for a running challenge
// are acknowledged without touching the account.
func (s *Service) Confirm(ctx context.Context, traderID, reference string) error {
	_, err := s.accounts.Activate(ctx, traderID, reference)
	switch {
	case errors.Is(err, accounts.ErrPaymentApplied):
		log.Info().Str("trader_id", traderID).Str("reference", reference).Msg("payment already applied")
		return nil
	case errors.Is(err, accounts.ErrAlreadyActive):
		log.Info().Str("trader_id", traderID).Str("reference", reference).Msg("challenge already running")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Str("trader_id", traderID).Str("reference", reference).Msg("payment confirmed")
	return nil
}
