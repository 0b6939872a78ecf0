package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/gatepass-backend/pkg/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_test", Env: "test"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRejectsMismatchedKey(t *testing.T) {
	cases := map[string]config.StripeConfig{
		"live key in test": {APIKey: "sk_live_123", Secret: "whsec", Env: "test"},
		"test key in live": {APIKey: "sk_test_123", Secret: "whsec", Env: "live"},
		"unknown env":      {APIKey: "sk_test_123", Secret: "whsec", Env: "staging"},
		"missing secret":   {APIKey: "sk_test_123", Env: "test"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewClient(context.Background(), cfg, nil); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNewClientAcceptsRestrictedLiveKey(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "rk_live_abc", Secret: "whsec", Env: "LIVE"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if !client.IsLive() {
		t.Fatalf("expected live client, got %s", client.Environment())
	}
}

func signedPayload(t *testing.T, secret string, at time.Time) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(stripe.Event{
		ID:         "evt_test_1",
		Object:     "event",
		Type:       stripe.EventTypeCheckoutSessionCompleted,
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: json.RawMessage(`{"id":"cs_test_1"}`)},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Payload, signed.Header
}

func TestVerifyEvent(t *testing.T) {
	client := newTestClient(t)

	payload, header := signedPayload(t, "whsec_test", time.Now())
	event, err := client.VerifyEvent(payload, header)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if event.ID != "evt_test_1" {
		t.Fatalf("unexpected event id %s", event.ID)
	}

	payload, header = signedPayload(t, "whsec_other", time.Now())
	if _, err := client.VerifyEvent(payload, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	payload, header = signedPayload(t, "whsec_test", time.Now().Add(-time.Hour))
	if _, err := client.VerifyEvent(payload, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected stale signature rejected, got %v", err)
	}
}
