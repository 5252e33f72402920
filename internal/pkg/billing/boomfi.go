package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coinchartfun/coinchart-backend/app/models"
)

// BoomFi event types handled by the normalizer.
const (
	boomfiEventInvoiceUpdated      = "Invoice.Updated"
	boomfiEventSubscriptionUpdated = "Subscription.Updated"
	boomfiEventSubscriptionCancel  = "Subscription.Canceled"
)

const boomfiPaymentSucceeded = "Succeeded"

// boomfiEvent is the webhook shape BoomFi posts: event name and payload
// fields flat in one object, with the payer identified by wallet address.
type boomfiEvent struct {
	Event             string              `json:"event"`
	PaymentStatus     string              `json:"payment_status"`
	CancelAtPeriodEnd *bool               `json:"cancel_at_period_end"`
	Customer          *boomfiCustomer     `json:"customer"`
	InvoiceItems      []boomfiInvoiceItem `json:"invoice_items"`
}

type boomfiCustomer struct {
	ID            string `json:"id"`
	WalletAddress string `json:"wallet_address"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
}

type boomfiInvoiceItem struct {
	PeriodStartAt *time.Time          `json:"period_start_at"`
	PeriodEndAt   *time.Time          `json:"period_end_at"`
	Subscription  *boomfiSubscription `json:"subscription"`
}

type boomfiSubscription struct {
	ID string `json:"id"`
}

// BoomfiNormalizer maps BoomFi webhook events onto the canonical
// SubscriptionUpdate. BoomFi events are keyed by wallet address; the
// provider customer id rides along for backfill when present.
type BoomfiNormalizer struct {
	// invertCancelFlag flips the polarity of cancel_at_period_end on
	// Subscription.Updated events. BoomFi has shipped both meanings; keep it
	// switchable until their payload settles.
	invertCancelFlag bool
}

// NewBoomfiNormalizer creates the BoomFi normalizer.
func NewBoomfiNormalizer(invertCancelFlag bool) *BoomfiNormalizer {
	return &BoomfiNormalizer{invertCancelFlag: invertCancelFlag}
}

func (n *BoomfiNormalizer) Provider() string { return models.PaymentProviderBoomFi }

func (n *BoomfiNormalizer) Normalize(_ context.Context, eventType string, payload []byte) (SubscriptionUpdate, error) {
	upd := SubscriptionUpdate{
		Provider:  models.PaymentProviderBoomFi,
		EventType: eventType,
	}

	var event boomfiEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return upd, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if event.Event != "" {
		// The body names its own event; it wins over the transport header.
		upd.EventType = event.Event
		eventType = event.Event
	}
	if event.Customer == nil || event.Customer.WalletAddress == "" {
		return upd, fmt.Errorf("%w: event %s without wallet address", ErrInvalidPayload, eventType)
	}

	upd.WalletAddress = event.Customer.WalletAddress
	upd.CustomerID = event.Customer.ID
	upd.ContactName = event.Customer.Name
	upd.ContactEmail = event.Customer.Email
	upd.ContactPhone = event.Customer.Phone

	switch eventType {
	case boomfiEventInvoiceUpdated:
		if event.PaymentStatus != boomfiPaymentSucceeded {
			upd.Op = OpNone
			return upd, nil
		}
		if len(event.InvoiceItems) == 0 {
			return upd, fmt.Errorf("%w: succeeded invoice without invoice items", ErrInvalidPayload)
		}
		item := event.InvoiceItems[0]
		upd.Op = OpApply
		upd.CreateIfMissing = true
		upd.Status = models.SubscriptionStatusPremium
		upd.ForceRenewal = true
		upd.PeriodStart = item.PeriodStartAt
		upd.PeriodEnd = item.PeriodEndAt
		if item.Subscription != nil {
			upd.SubscriptionID = item.Subscription.ID
		}
		return upd, nil

	case boomfiEventSubscriptionUpdated:
		upd.Op = OpApply
		if event.CancelAtPeriodEnd != nil {
			cancel := *event.CancelAtPeriodEnd
			if n.invertCancelFlag {
				cancel = !cancel
			}
			upd.CancelAtPeriodEnd = &cancel
		}
		return upd, nil

	case boomfiEventSubscriptionCancel:
		upd.Op = OpReset
		return upd, nil

	default:
		upd.Op = OpNone
		return upd, nil
	}
}
