// Package stripe implements the billing.Provider interface for Stripe.
// Checkout and invoice payment events are translated into credit grants
// on the configured Granter.
package stripe

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/wordsmithlabs/wordsmith/pkg/billing"
	"github.com/wordsmithlabs/wordsmith/pkg/billing/internal"
	"github.com/wordsmithlabs/wordsmith/pkg/wordsmith"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	maxWebhookBody           = 256 * 1024
	seenEventsCap            = 1000

	reasonPurchase = "purchase"
	reasonRenewal  = "subscription_renewal"
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Granter, HTTPClient)

	// StripeAPIKey authenticates API calls made while resolving events
	StripeAPIKey string

	// StripeWebhookSecret verifies webhook signatures
	StripeWebhookSecret string

	// CreditMapping maps a Stripe Price ID to the number of credits it
	// grants. Prices missing from the map grant nothing.
	CreditMapping map[string]int64

	// Logger is used for structured logging (default: NoopLogger)
	Logger wordsmith.Logger
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	granter       billing.Granter
	httpClient    *http.Client
	rateLimiter   *internal.RateLimiter
	creditMapping map[string]int64
	webhookSecret []byte
	stripeClient  *stripe.Client
	logger        wordsmith.Logger

	// Grants are additive, so replayed events must be dropped here
	// rather than relying on ledger idempotency.
	seenMu    sync.Mutex
	seenIDs   map[string]struct{}
	seenOrder []string
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Granter == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}
	secret := strings.TrimSpace(config.StripeWebhookSecret)
	if secret == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	creditMapping := make(map[string]int64, len(config.CreditMapping))
	for price, credits := range config.CreditMapping {
		creditMapping[strings.ToLower(strings.TrimSpace(price))] = credits
	}

	logger := config.Logger
	if logger == nil {
		logger = &wordsmith.NoopLogger{}
	}

	return &Provider{
		granter:       config.Granter,
		httpClient:    httpClient,
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		creditMapping: creditMapping,
		webhookSecret: []byte(secret),
		stripeClient:  stripe.NewClient(apiKey),
		logger:        logger,
		seenIDs:       make(map[string]struct{}),
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// CreditsForPrice maps a Stripe Price ID to the credits it grants.
func (p *Provider) CreditsForPrice(priceID string) int64 {
	return p.creditMapping[strings.ToLower(strings.TrimSpace(priceID))]
}

// markSeen records an event ID, reporting whether it was already known.
// The set is bounded: the oldest entries are evicted first.
func (p *Provider) markSeen(eventID string) bool {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()

	if _, ok := p.seenIDs[eventID]; ok {
		return true
	}
	p.seenIDs[eventID] = struct{}{}
	p.seenOrder = append(p.seenOrder, eventID)
	if len(p.seenOrder) > seenEventsCap {
		delete(p.seenIDs, p.seenOrder[0])
		p.seenOrder = p.seenOrder[1:]
	}
	return false
}

// forget releases an event ID after a failed grant so the retried delivery
// is not treated as a replay.
func (p *Provider) forget(eventID string) {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()

	if _, ok := p.seenIDs[eventID]; !ok {
		return
	}
	delete(p.seenIDs, eventID)
	for i, id := range p.seenOrder {
		if id == eventID {
			p.seenOrder = append(p.seenOrder[:i], p.seenOrder[i+1:]...)
			break
		}
	}
}
