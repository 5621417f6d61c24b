// Package stripe opens hosted checkout sessions and verifies checkout
// webhooks with Stripe.
package stripe

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"golang.org/x/text/currency"

	"github.com/xenking/eshop/internal/apperr"
	"github.com/xenking/eshop/internal/domain/order"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

// Config of the Stripe integration.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// Currency is an ISO 4217 code; defaults to USD.
	Currency string
	// Tolerance is the maximum age of a webhook signature.
	Tolerance time.Duration
	// Backends overrides the API endpoints, used by tests.
	Backends *stripe.Backends
}

var _ order.Gateway = (*Client)(nil)

// Client implements order.Gateway and webhook verification.
type Client struct {
	api       *client.API
	secret    string
	currency  string
	tolerance time.Duration
}

func New(cfg Config) (*Client, error) {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	unit, err := currency.ParseISO(cfg.Currency)
	if err != nil {
		return nil, errors.Wrapf(err, "parse currency %q", cfg.Currency)
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = webhook.DefaultTolerance
	}
	return &Client{
		api:       client.New(cfg.SecretKey, cfg.Backends),
		secret:    cfg.WebhookSecret,
		currency:  strings.ToLower(unit.String()),
		tolerance: cfg.Tolerance,
	}, nil
}

// Currency returns the lowercase ISO code sessions are priced in.
func (c *Client) Currency() string {
	return c.currency
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req order.CheckoutRequest) (*order.CheckoutSession, error) {
	params := c.sessionParams(req)
	params.Context = ctx

	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout session")
	}
	return &order.CheckoutSession{ID: s.ID, URL: s.URL, Object: s}, nil
}

func (c *Client) sessionParams(req order.CheckoutRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.ClientReferenceID),
		PaymentMethodTypes: stripe.StringSlice([]string{
			string(stripe.PaymentMethodTypeCard),
		}),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, l := range req.Lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(l.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(c.currency),
				UnitAmount: stripe.Int64(l.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(l.Name),
				},
			},
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

// ErrSignature is returned for payloads that fail verification.
var ErrSignature = errors.New("invalid webhook signature")

// Event is a verified webhook delivery. Checkout is set only for completed
// checkout sessions.
type Event struct {
	ID       string
	Type     string
	Checkout *order.CheckoutCompleted
}

// ParseWebhook verifies the signature header over the raw payload and
// decodes the event.
func (c *Client) ParseWebhook(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, c.secret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Wrap(ErrSignature, err.Error())
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Type != stripe.EventTypeCheckoutSessionCompleted {
		return out, nil
	}
	if ev.Data == nil {
		return nil, apperr.Invalid("checkout event has no data")
	}
	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, errors.Wrap(err, "decode checkout session")
	}
	out.Checkout = completed(&s)
	return out, nil
}

func completed(s *stripe.CheckoutSession) *order.CheckoutCompleted {
	email := s.CustomerEmail
	if email == "" && s.CustomerDetails != nil {
		email = s.CustomerDetails.Email
	}
	return &order.CheckoutCompleted{
		SessionID:     s.ID,
		CartID:        s.ClientReferenceID,
		CustomerEmail: email,
		AmountTotal:   s.AmountTotal,
		Metadata:      s.Metadata,
	}
}
