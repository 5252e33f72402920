package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coinchartfun/coinchart-backend/app/models"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/subscription"
)

// Stripe event types handled by the normalizer. Anything else maps to the
// no-op update and is acked without mutation.
const (
	stripeEventCheckoutCompleted   = "checkout.session.completed"
	stripeEventChargeSucceeded     = "charge.succeeded"
	stripeEventSubscriptionCreated = "customer.subscription.created"
	stripeEventSubscriptionUpdated = "customer.subscription.updated"
	stripeEventSubscriptionDeleted = "customer.subscription.deleted"
)

// checkoutFallbackPeriod is used when a completed checkout carries a
// subscription the API will not hand back: grant 30 days and let the next
// subscription.updated event correct the period.
const checkoutFallbackPeriod = 30 * 24 * time.Hour

// The checkout form collects the wallet under this custom-field key.
const walletCustomFieldKey = "walletaddressforpremiumaccessonthewebsite"

// SubscriptionResolver fetches the full subscription object referenced by a
// checkout session. Injectable so tests run without the Stripe API.
type SubscriptionResolver interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

// StripeNormalizer maps verified Stripe webhook events onto the canonical
// SubscriptionUpdate. Signature verification happens at the transport layer;
// the normalizer only ever sees parsed, trusted payloads.
type StripeNormalizer struct {
	resolver SubscriptionResolver
	now      Clock
}

// NewStripeNormalizer creates the Stripe normalizer. resolver may be nil,
// in which case checkout events fall back to the default 30-day period.
func NewStripeNormalizer(resolver SubscriptionResolver, now Clock) *StripeNormalizer {
	if now == nil {
		now = time.Now
	}
	return &StripeNormalizer{resolver: resolver, now: now}
}

func (n *StripeNormalizer) Provider() string { return models.PaymentProviderStripe }

func (n *StripeNormalizer) Normalize(ctx context.Context, eventType string, payload []byte) (SubscriptionUpdate, error) {
	upd := SubscriptionUpdate{
		Provider:  models.PaymentProviderStripe,
		EventType: eventType,
	}

	// Deliveries arrive as the full event envelope; replayed ones too. The
	// object payload is what the per-type decoding below wants.
	var envelope stripe.Event
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Data != nil && len(envelope.Data.Raw) > 0 {
		payload = envelope.Data.Raw
	}

	switch eventType {
	case stripeEventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(payload, &session); err != nil {
			return upd, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return n.normalizeCheckout(ctx, upd, &session)

	case stripeEventChargeSucceeded:
		var charge stripe.Charge
		if err := json.Unmarshal(payload, &charge); err != nil {
			return upd, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return n.normalizeCharge(upd, &charge)

	case stripeEventSubscriptionCreated, stripeEventSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(payload, &sub); err != nil {
			return upd, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if sub.Customer == nil || sub.Customer.ID == "" {
			return upd, fmt.Errorf("%w: subscription event without customer id", ErrInvalidPayload)
		}
		upd.Op = OpApply
		upd.CreateIfMissing = true
		upd.CustomerID = sub.Customer.ID
		upd.SubscriptionID = sub.ID
		upd.Status = string(sub.Status)
		start := time.Unix(sub.CurrentPeriodStart, 0)
		end := time.Unix(sub.CurrentPeriodEnd, 0)
		upd.PeriodStart = &start
		upd.PeriodEnd = &end
		cancel := sub.CancelAtPeriodEnd
		upd.CancelAtPeriodEnd = &cancel
		return upd, nil

	case stripeEventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(payload, &sub); err != nil {
			return upd, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if sub.Customer == nil || sub.Customer.ID == "" {
			return upd, fmt.Errorf("%w: subscription event without customer id", ErrInvalidPayload)
		}
		upd.Op = OpReset
		upd.CustomerID = sub.Customer.ID
		upd.SubscriptionID = sub.ID
		return upd, nil

	default:
		upd.Op = OpNone
		return upd, nil
	}
}

func (n *StripeNormalizer) normalizeCheckout(ctx context.Context, upd SubscriptionUpdate, session *stripe.CheckoutSession) (SubscriptionUpdate, error) {
	if session.Customer == nil || session.Customer.ID == "" {
		return upd, fmt.Errorf("%w: checkout session without customer id", ErrInvalidPayload)
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		// Unpaid checkouts carry no entitlement signal yet.
		upd.Op = OpNone
		return upd, nil
	}

	upd.Op = OpApply
	upd.CreateIfMissing = true
	upd.CustomerID = session.Customer.ID
	upd.WalletAddress = extractWalletAddress(session)
	if session.CustomerDetails != nil {
		upd.ContactEmail = session.CustomerDetails.Email
		upd.ContactName = session.CustomerDetails.Name
	}

	// Default subscription data: 30 days from now, corrected below when the
	// full subscription object is retrievable.
	now := n.now()
	end := now.Add(checkoutFallbackPeriod)
	upd.PeriodStart = &now
	upd.PeriodEnd = &end
	upd.ForceRenewal = true
	if session.Subscription != nil && session.Subscription.ID != "" {
		upd.SubscriptionID = session.Subscription.ID
		upd.Status = models.SubscriptionStatusPremium
	} else {
		upd.Status = models.SubscriptionStatusFree
	}

	if n.resolver != nil && upd.SubscriptionID != "" {
		sub, err := n.resolver.GetSubscription(ctx, upd.SubscriptionID)
		if err != nil {
			// Keep the defaults; the next subscription.updated delivery
			// carries the authoritative period anyway.
			return upd, nil
		}
		upd.Status = string(sub.Status)
		start := time.Unix(sub.CurrentPeriodStart, 0)
		subEnd := time.Unix(sub.CurrentPeriodEnd, 0)
		upd.PeriodStart = &start
		upd.PeriodEnd = &subEnd
		cancel := sub.CancelAtPeriodEnd
		upd.CancelAtPeriodEnd = &cancel
		upd.ForceRenewal = sub.Status == stripe.SubscriptionStatusActive
	}
	return upd, nil
}

func (n *StripeNormalizer) normalizeCharge(upd SubscriptionUpdate, charge *stripe.Charge) (SubscriptionUpdate, error) {
	if charge.Customer == nil || charge.Customer.ID == "" {
		return upd, fmt.Errorf("%w: charge without customer id", ErrInvalidPayload)
	}
	if charge.Invoice == nil || charge.Invoice.ID == "" {
		// One-off charge, not a subscription payment.
		upd.Op = OpNone
		return upd, nil
	}

	upd.Op = OpApply
	upd.CustomerID = charge.Customer.ID
	upd.Status = models.SubscriptionStatusPremium
	upd.ForceRenewal = true
	return upd, nil
}

// extractWalletAddress digs the wallet out of the checkout session: custom
// fields first (exact key, or a custom label mentioning "wallet address"),
// then session metadata.
func extractWalletAddress(session *stripe.CheckoutSession) string {
	for _, field := range session.CustomFields {
		if field == nil || field.Type != stripe.CheckoutSessionCustomFieldTypeText {
			continue
		}
		matched := field.Key == walletCustomFieldKey
		if !matched && field.Label != nil {
			matched = strings.Contains(strings.ToLower(field.Label.Custom), "wallet address")
		}
		if matched && field.Text != nil && strings.TrimSpace(field.Text.Value) != "" {
			return strings.TrimSpace(field.Text.Value)
		}
	}
	if session.Metadata != nil {
		if v := strings.TrimSpace(session.Metadata["wallet_address"]); v != "" {
			return v
		}
	}
	return ""
}

// apiSubscriptionResolver hits the Stripe API with the globally configured
// key (stripe.Key, set during app startup).
type apiSubscriptionResolver struct{}

// NewAPISubscriptionResolver returns the live resolver.
func NewAPISubscriptionResolver() SubscriptionResolver {
	return apiSubscriptionResolver{}
}

func (apiSubscriptionResolver) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return subscription.Get(id, params)
}
