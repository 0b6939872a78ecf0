// Package stripe owns the process-wide Stripe configuration: the API key the
// checkout gateway charges with and the signing secret webhooks are verified
// against.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/gatepass-backend/pkg/config"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)

	// ErrInvalidSignature marks a webhook payload whose Stripe-Signature
	// header does not verify against the signing secret.
	ErrInvalidSignature = errors.New("stripe signature invalid")
)

// Client carries the Stripe API handle plus the env it was keyed for.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
	tolerance     time.Duration
}

// NewClient validates that the key matches the configured env and sets the
// package-level key used by the stripe-go resource packages.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client initialized")
	}

	return &Client{
		api:           stripe.NewClient(apiKey),
		environment:   env,
		signingSecret: signingSecret,
		tolerance:     webhook.DefaultTolerance,
	}, nil
}

func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) IsLive() bool {
	return c.Environment() == liveEnv
}

// VerifyEvent checks header against the signing secret and decodes payload.
// Events signed more than the tolerance ago are rejected as replays. API
// version drift between the account and the library is tolerated since only
// checkout session fields are read.
func (c *Client) VerifyEvent(payload []byte, header string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, errSecretRequired
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, c.signingSecret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

// validateAPIKey keeps a live key out of a test deployment and vice versa.
func validateAPIKey(env, key string) error {
	prefixes := map[string][]string{
		testEnv: {"sk_test_", "rk_test_"},
		liveEnv: {"sk_live_", "rk_live_"},
	}[env]
	if prefixes == nil {
		return errInvalidStripeEnv
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return fmt.Errorf("stripe environment %q requires a %s or %s key", env, prefixes[0], prefixes[1])
}
