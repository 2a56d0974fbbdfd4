package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/stripe/stripe-go/v83"

	"github.com/wordsmithlabs/wordsmith/pkg/billing"
)

const (
	testStripeAPIKey        = "sk_test_xxx"
	testStripeWebhookSecret = "whsec_test_secret"
)

// trackingGranter records every credit grant
type trackingGranter struct {
	grants []grant
	err    error
}

type grant struct {
	userID string
	amount int64
	reason string
}

func (g *trackingGranter) Refund(ctx context.Context, userID string, amount int64, reason string) error {
	if g.err != nil {
		return g.err
	}
	g.grants = append(g.grants, grant{userID: userID, amount: amount, reason: reason})
	return nil
}

func newTestProvider(t *testing.T) (*Provider, *trackingGranter) {
	t.Helper()
	granter := &trackingGranter{}
	provider, err := NewProvider(Config{
		Config:              billing.Config{Granter: granter},
		StripeAPIKey:        testStripeAPIKey,
		StripeWebhookSecret: testStripeWebhookSecret,
		CreditMapping: map[string]int64{
			"price_monthly_pro": 1000,
		},
	})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	return provider, granter
}

func checkoutEvent(t *testing.T, id string, metadata map[string]string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":       "cs_test_123",
		"metadata": metadata,
	})
	if err != nil {
		t.Fatalf("Failed to marshal session: %v", err)
	}
	return &stripe.Event{
		ID:   id,
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestNewProvider_Validation(t *testing.T) {
	granter := &trackingGranter{}

	tests := []struct {
		name   string
		config Config
	}{
		{"missing granter", Config{StripeAPIKey: testStripeAPIKey, StripeWebhookSecret: testStripeWebhookSecret}},
		{"missing api key", Config{Config: billing.Config{Granter: granter}, StripeWebhookSecret: testStripeWebhookSecret}},
		{"missing webhook secret", Config{Config: billing.Config{Granter: granter}, StripeAPIKey: testStripeAPIKey}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(tt.config); err != billing.ErrProviderNotConfigured {
				t.Errorf("Expected ErrProviderNotConfigured, got %v", err)
			}
		})
	}
}

func TestProvider_CheckoutGrantsCredits(t *testing.T) {
	provider, granter := newTestProvider(t)
	ctx := context.Background()

	event := checkoutEvent(t, "evt_1", map[string]string{
		"user_id": "user1",
		"credits": "500",
	})
	if err := provider.processWebhookEvent(ctx, event); err != nil {
		t.Fatalf("processWebhookEvent failed: %v", err)
	}

	if len(granter.grants) != 1 {
		t.Fatalf("Expected 1 grant, got %d", len(granter.grants))
	}
	got := granter.grants[0]
	if got.userID != "user1" || got.amount != 500 || got.reason != reasonPurchase {
		t.Errorf("Unexpected grant: %+v", got)
	}
}

func TestProvider_ReplayedEventGrantsOnce(t *testing.T) {
	provider, granter := newTestProvider(t)
	ctx := context.Background()

	event := checkoutEvent(t, "evt_1", map[string]string{
		"user_id": "user1",
		"credits": "500",
	})
	for i := 0; i < 3; i++ {
		if err := provider.processWebhookEvent(ctx, event); err != nil {
			t.Fatalf("processWebhookEvent %d failed: %v", i+1, err)
		}
	}

	if len(granter.grants) != 1 {
		t.Errorf("Replayed event granted %d times", len(granter.grants))
	}
}

func TestProvider_RetryAfterGrantFailureGrants(t *testing.T) {
	provider, granter := newTestProvider(t)
	ctx := context.Background()

	event := checkoutEvent(t, "evt_1", map[string]string{
		"user_id": "user1",
		"credits": "500",
	})

	// First delivery fails at the granter; Stripe will retry it
	granter.err = errors.New("credit system unavailable")
	if err := provider.processWebhookEvent(ctx, event); err == nil {
		t.Fatal("Expected error from failing granter")
	}

	granter.err = nil
	if err := provider.processWebhookEvent(ctx, event); err != nil {
		t.Fatalf("Retried delivery failed: %v", err)
	}
	if len(granter.grants) != 1 {
		t.Fatalf("Expected the retried delivery to grant once, got %d grants", len(granter.grants))
	}

	// A further replay after the successful grant stays deduplicated
	if err := provider.processWebhookEvent(ctx, event); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(granter.grants) != 1 {
		t.Errorf("Replay after success granted again: %d grants", len(granter.grants))
	}
}

func TestProvider_CheckoutRejectsBadMetadata(t *testing.T) {
	provider, granter := newTestProvider(t)
	ctx := context.Background()

	// Missing user_id fails
	event := checkoutEvent(t, "evt_1", map[string]string{"credits": "500"})
	if err := provider.processWebhookEvent(ctx, event); err == nil {
		t.Error("Expected error for missing user_id")
	}

	// Non-numeric credits fails
	event = checkoutEvent(t, "evt_2", map[string]string{"user_id": "user1", "credits": "lots"})
	if err := provider.processWebhookEvent(ctx, event); err == nil {
		t.Error("Expected error for invalid credits")
	}

	// No credits metadata is ignored, not failed
	event = checkoutEvent(t, "evt_3", map[string]string{"user_id": "user1"})
	if err := provider.processWebhookEvent(ctx, event); err != nil {
		t.Errorf("Expected nil for creditless session, got %v", err)
	}

	if len(granter.grants) != 0 {
		t.Errorf("Expected no grants, got %d", len(granter.grants))
	}
}

func TestProvider_UnknownEventIgnored(t *testing.T) {
	provider, granter := newTestProvider(t)

	event := &stripe.Event{
		ID:   "evt_1",
		Type: "customer.created",
		Data: &stripe.EventData{Raw: []byte(`{}`)},
	}
	if err := provider.processWebhookEvent(context.Background(), event); err != nil {
		t.Errorf("Unknown event should be ignored, got %v", err)
	}
	if len(granter.grants) != 0 {
		t.Errorf("Unknown event granted credits")
	}
}

func TestSubscriptionIDFromInvoice(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"id string", `{"subscription": "sub_123"}`, "sub_123"},
		{"expanded object", `{"subscription": {"id": "sub_456"}}`, "sub_456"},
		{"absent", `{"total": 100}`, ""},
		{"malformed", `not json`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := subscriptionIDFromInvoice([]byte(tt.raw)); got != tt.want {
				t.Errorf("subscriptionIDFromInvoice(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMarkSeen_Bounded(t *testing.T) {
	provider, _ := newTestProvider(t)

	if provider.markSeen("evt_first") {
		t.Fatal("Fresh event reported as seen")
	}
	if !provider.markSeen("evt_first") {
		t.Fatal("Repeated event not reported as seen")
	}

	// Flood past the cap; the oldest entry is evicted
	for i := 0; i < seenEventsCap; i++ {
		provider.markSeen("evt_flood_" + strconv.Itoa(i))
	}
	if provider.markSeen("evt_first") {
		t.Error("Evicted event still reported as seen")
	}
	if len(provider.seenIDs) > seenEventsCap {
		t.Errorf("Seen set grew past its cap: %d", len(provider.seenIDs))
	}
}
