package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/stripe/stripe-go/v83"

	"github.com/wordsmithlabs/wordsmith/pkg/billing/internal"
	"github.com/wordsmithlabs/wordsmith/pkg/wordsmith"
)

// handleWebhook processes incoming Stripe webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBody)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		p.logger.Error("webhook processing failed",
			wordsmith.Field{Key: "event_id", Value: event.ID},
			wordsmith.Field{Key: "event_type", Value: string(event.Type)},
			wordsmith.Field{Key: "error", Value: err.Error()},
		)
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// processWebhookEvent dispatches a verified event. Replayed event IDs are
// dropped before any grant happens; a failed grant releases the ID again so
// Stripe's retry of the delivery is processed rather than deduplicated.
func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	if p.markSeen(event.ID) {
		return nil
	}

	var err error
	switch event.Type {
	case "checkout.session.completed":
		err = p.handleCheckoutSessionCompleted(ctx, event)
	case "invoice.payment_succeeded":
		err = p.handleInvoicePaymentSucceeded(ctx, event)
	default:
		// Unknown event type - ignore silently
		return nil
	}
	if err != nil {
		p.forget(event.ID)
		return err
	}
	return nil
}

// handleCheckoutSessionCompleted grants the credits a one-time top-up
// purchased. The checkout session is expected to carry metadata.user_id
// and metadata.credits, set when the session was created.
func (p *Provider) handleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	userID := ""
	if session.Metadata != nil {
		userID = session.Metadata["user_id"]
	}
	if userID == "" {
		return fmt.Errorf("metadata.user_id missing on checkout session %s", session.ID)
	}

	credits, err := creditsFromMetadata(session.Metadata)
	if err != nil {
		return fmt.Errorf("checkout session %s: %w", session.ID, err)
	}
	if credits <= 0 {
		// Not a credit purchase - ignore
		return nil
	}

	if err := p.granter.Refund(ctx, userID, credits, reasonPurchase); err != nil {
		return fmt.Errorf("failed to grant credits: %w", err)
	}

	p.logger.Info("credits granted",
		wordsmith.Field{Key: "user_id", Value: userID},
		wordsmith.Field{Key: "credits", Value: credits},
		wordsmith.Field{Key: "reason", Value: reasonPurchase},
	)
	return nil
}

// handleInvoicePaymentSucceeded grants the monthly credit allowance when a
// subscription renews. The allowance comes from CreditMapping keyed by the
// subscription's price IDs; the user comes from subscription metadata.
func (p *Provider) handleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	subscriptionID := subscriptionIDFromInvoice(event.Data.Raw)
	if subscriptionID == "" {
		// Not a subscription invoice - ignore
		return nil
	}

	sub, err := p.stripeClient.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch subscription: %w", err)
	}

	userID := ""
	if sub.Metadata != nil {
		userID = sub.Metadata["user_id"]
	}
	if userID == "" {
		return fmt.Errorf("metadata.user_id missing on subscription %s", sub.ID)
	}

	var credits int64
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price != nil {
				credits += p.CreditsForPrice(item.Price.ID) * item.Quantity
			}
		}
	}
	if credits <= 0 {
		return nil
	}

	if err := p.granter.Refund(ctx, userID, credits, reasonRenewal); err != nil {
		return fmt.Errorf("failed to grant credits: %w", err)
	}

	p.logger.Info("credits granted",
		wordsmith.Field{Key: "user_id", Value: userID},
		wordsmith.Field{Key: "credits", Value: credits},
		wordsmith.Field{Key: "reason", Value: reasonRenewal},
	)
	return nil
}

// subscriptionIDFromInvoice digs the subscription reference out of the raw
// invoice JSON, which may carry it as an ID string or an expanded object.
func subscriptionIDFromInvoice(raw []byte) string {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return ""
	}
	switch v := data["subscription"].(type) {
	case string:
		return v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id
		}
	}
	return ""
}

func creditsFromMetadata(metadata map[string]string) (int64, error) {
	raw, ok := metadata["credits"]
	if !ok || raw == "" {
		return 0, nil
	}
	credits, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid metadata.credits %q", raw)
	}
	return credits, nil
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
