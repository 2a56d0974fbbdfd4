// Package billing defines the provider-agnostic surface between external
// payment processors and the credit ledger. A provider translates its
// webhook events into credit grants; the application only ever sees the
// Granter interface.
package billing

import (
	"context"
	"errors"
	"net/http"
)

// ErrProviderNotConfigured is returned when a provider is created without
// its required configuration (granter, API keys, webhook secret).
var ErrProviderNotConfigured = errors.New("billing provider not configured")

// Granter receives credits purchased through a billing provider.
// *wordsmith.Ledger satisfies this interface.
type Granter interface {
	// Refund additively credits the user's account. The reason is
	// recorded on the resulting ledger transaction.
	Refund(ctx context.Context, userID string, amount int64, reason string) error
}

// Provider is the generic interface any billing backend must implement.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time
	// payment events and turns them into credit grants.
	WebhookHandler() http.Handler
}

// Config holds the provider-independent part of a billing setup.
type Config struct {
	// Granter receives the purchased credits (required)
	Granter Granter

	// HTTPClient overrides the client used for provider API calls
	HTTPClient *http.Client
}
