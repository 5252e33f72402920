package billing

import (
	"context"
	"time"
)

// Op tells the reconciler what a normalized event asks for.
type Op int

const (
	// OpNone marks a recognized-but-ignored event. The caller logs it and
	// acks the delivery without touching any record.
	OpNone Op = iota
	// OpApply merges the update's fields into the customer record.
	OpApply
	// OpReset is the full reset: status back to Free, all period data
	// cleared, auto-renewal off.
	OpReset
)

// SubscriptionUpdate is the provider-agnostic shape both webhook normalizers
// produce. Nil / empty fields mean "do not touch" downstream; only
// subscription-deleted style events reset anything.
type SubscriptionUpdate struct {
	Provider  string
	EventType string
	Op        Op

	// Identity. CustomerID is the provider's customer id; WalletAddress is
	// the wallet-keyed identity BoomFi uses. SubscriptionID doubles as the
	// fallback lookup key.
	CustomerID     string
	WalletAddress  string
	SubscriptionID string

	// Subscription fields. A non-nil PeriodEnd carries authoritative period
	// data and overwrites the whole period triple.
	Status            string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	CancelAtPeriodEnd *bool

	// ForceRenewal is set by freshly-paid checkout/charge events: a
	// successful payment implies active auto-renewal intent, overriding any
	// stale cancel flag.
	ForceRenewal bool

	// CreateIfMissing controls whether an unseen customer gets a minimal
	// record. Lightweight confirmations (charge.succeeded) and resets only
	// ever touch existing records.
	CreateIfMissing bool

	// Contact data, filled best-effort and never cleared once set.
	ContactEmail string
	ContactName  string
	ContactPhone string
}

// CustomerKey is the identifier reconciliation serializes on. It is resolved
// before the engine runs, from the normalized event alone.
func (u SubscriptionUpdate) CustomerKey() string {
	if u.CustomerID != "" {
		return u.CustomerID
	}
	if u.WalletAddress != "" {
		return u.WalletAddress
	}
	return u.SubscriptionID
}

// Normalizer converts one provider's webhook payload into the canonical
// update. New providers are added behind this interface; the reconciler
// never learns provider specifics.
type Normalizer interface {
	Provider() string
	Normalize(ctx context.Context, eventType string, payload []byte) (SubscriptionUpdate, error)
}

// Clock supplies the current time; injectable for tests.
type Clock func() time.Time
