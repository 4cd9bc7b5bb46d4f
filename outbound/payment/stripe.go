// Package payment talks to Stripe. Every call goes through the retry client; the
// Stripe SDK's own network retries are disabled.
package payment

import (
	"context"
	"net/http"
	"workshop-enrollment/model"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/refund"
)

type Retrier interface {
	Do(ctx context.Context, name string, op func(ctx context.Context) error) error
}

type Config struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	// BackendURL points the client at another API host, e.g. a local mock.
	BackendURL string
	HTTPClient *http.Client
}

type Gateway struct {
	cfg      Config
	sessions *session.Client
	refunds  *refund.Client
	retry    Retrier
}

func NewGateway(cfg Config, retry Retrier) *Gateway {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &Gateway{
		cfg:      cfg,
		sessions: &session.Client{B: backend, Key: cfg.SecretKey},
		refunds:  &refund.Client{B: backend, Key: cfg.SecretKey},
		retry:    retry,
	}
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req model.CheckoutSessionRequest) (model.CheckoutSession, error) {
	var created *stripe.CheckoutSession

	err := g.retry.Do(ctx, "stripe.checkout.session", func(ctx context.Context) error {
		params := g.sessionParams(req)
		params.Context = ctx

		var err error
		created, err = g.sessions.New(params)
		return err
	})
	if err != nil {
		return model.CheckoutSession{}, err
	}

	return model.CheckoutSession{ID: created.ID, URL: created.URL}, nil
}

func (g *Gateway) sessionParams(req model.CheckoutSessionRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(g.cfg.SuccessURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(item.Currency),
				UnitAmount: stripe.Int64(item.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}

	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	// the same key on every attempt keeps retries from opening a second session
	params.SetIdempotencyKey(req.IdempotencyKey)

	return params
}

// CreateRefund refunds the payment intent and returns the refund id.
func (g *Gateway) CreateRefund(ctx context.Context, req model.RefundRequest) (string, error) {
	var created *stripe.Refund

	err := g.retry.Do(ctx, "stripe.refund", func(ctx context.Context) error {
		params := &stripe.RefundParams{
			PaymentIntent: stripe.String(req.PaymentReference),
		}
		if req.Amount > 0 {
			params.Amount = stripe.Int64(req.Amount)
		}
		params.Context = ctx
		params.SetIdempotencyKey(req.IdempotencyKey)

		var err error
		created, err = g.refunds.New(params)
		return err
	})
	if err != nil {
		return "", err
	}

	return created.ID, nil
}
