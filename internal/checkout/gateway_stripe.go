package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	pkgstripe "github.com/angelmondragon/gatepass-backend/pkg/stripe"
)

// sessionCreator is the Stripe call the gateway makes; swapped in tests.
type sessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// StripeGateway opens Stripe Checkout sessions. A nil client leaves the
// gateway unconfigured.
type StripeGateway struct {
	client *pkgstripe.Client
	create sessionCreator
}

func NewStripeGateway(client *pkgstripe.Client) *StripeGateway {
	return &StripeGateway{client: client, create: session.New}
}

func (g *StripeGateway) Configured() bool {
	return g != nil && g.client != nil && g.client.API() != nil
}

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if !g.Configured() {
		return nil, fmt.Errorf("stripe client not configured")
	}
	params := buildSessionParams(req)
	params.Context = ctx

	created, err := g.create(params)
	if err != nil {
		return nil, err
	}
	out := &Session{ID: created.ID, URL: created.URL, ExpiresAt: req.ExpiresAt}
	if created.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(created.ExpiresAt, 0).UTC()
	}
	return out, nil
}

func buildSessionParams(req SessionRequest) *stripe.CheckoutSessionParams {
	currency := strings.ToLower(req.Currency)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID.String()),
		ExpiresAt:         stripe.Int64(req.ExpiresAt.Unix()),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, line := range req.Lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(line.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(line.UnitAmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
		})
	}
	for k, v := range req.Metadata() {
		params.AddMetadata(k, v)
	}
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		Metadata: req.Metadata(),
	}
	return params
}
