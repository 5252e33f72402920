package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/coinchartfun/coinchart-backend/app/models"
)

func TestBoomfiNormalize_InvoiceSucceeded(t *testing.T) {
	n := NewBoomfiNormalizer(false)

	payload := []byte(`{
		"event": "Invoice.Updated",
		"payment_status": "Succeeded",
		"customer": {
			"id": "bcus_1",
			"wallet_address": "0xBEEF",
			"name": "Dave",
			"email": "dave@example.com",
			"phone": "+1555"
		},
		"invoice_items": [
			{
				"period_start_at": "2026-06-01T00:00:00Z",
				"period_end_at": "2026-07-01T00:00:00Z",
				"subscription": { "id": "bsub_1" }
			}
		]
	}`)

	upd, err := n.Normalize(context.Background(), "Invoice.Updated", payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if upd.Op != OpApply || !upd.CreateIfMissing || !upd.ForceRenewal {
		t.Fatalf("unexpected update: %+v", upd)
	}
	if upd.WalletAddress != "0xBEEF" || upd.CustomerID != "bcus_1" {
		t.Fatalf("identity = %q/%q", upd.WalletAddress, upd.CustomerID)
	}
	if upd.Status != models.SubscriptionStatusPremium {
		t.Fatalf("status = %q", upd.Status)
	}
	if upd.SubscriptionID != "bsub_1" {
		t.Fatalf("subscription id = %q", upd.SubscriptionID)
	}
	if upd.PeriodStart == nil || upd.PeriodEnd == nil || upd.PeriodEnd.Month() != 7 {
		t.Fatalf("invoice item periods must be carried: %+v", upd)
	}
	if upd.ContactName != "Dave" || upd.ContactEmail != "dave@example.com" || upd.ContactPhone != "+1555" {
		t.Fatalf("contact = %q/%q/%q", upd.ContactName, upd.ContactEmail, upd.ContactPhone)
	}
}

func TestBoomfiNormalize_InvoicePendingIsIgnored(t *testing.T) {
	n := NewBoomfiNormalizer(false)

	payload := []byte(`{
		"event": "Invoice.Updated",
		"payment_status": "Pending",
		"customer": { "wallet_address": "0xBEEF" }
	}`)
	upd, err := n.Normalize(context.Background(), "Invoice.Updated", payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if upd.Op != OpNone {
		t.Fatalf("non-succeeded invoice must be ignored, got op %v", upd.Op)
	}
}

func TestBoomfiNormalize_InvoiceWithoutItemsIsInvalid(t *testing.T) {
	n := NewBoomfiNormalizer(false)

	payload := []byte(`{
		"event": "Invoice.Updated",
		"payment_status": "Succeeded",
		"customer": { "wallet_address": "0xBEEF" }
	}`)
	_, err := n.Normalize(context.Background(), "Invoice.Updated", payload)
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestBoomfiNormalize_SubscriptionUpdatedCancelFlag(t *testing.T) {
	payload := []byte(`{
		"event": "Subscription.Updated",
		"cancel_at_period_end": true,
		"customer": { "wallet_address": "0xBEEF" }
	}`)

	upd, err := NewBoomfiNormalizer(false).Normalize(context.Background(), "Subscription.Updated", payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if upd.Op != OpApply || upd.CreateIfMissing {
		t.Fatalf("unexpected update: %+v", upd)
	}
	if upd.Status != "" || upd.PeriodEnd != nil {
		t.Fatalf("cancel-flag event must only carry the flag: %+v", upd)
	}
	if upd.CancelAtPeriodEnd == nil || !*upd.CancelAtPeriodEnd {
		t.Fatalf("cancel flag = %v", upd.CancelAtPeriodEnd)
	}

	// Inverted polarity for payloads where the flag means the opposite.
	upd, err = NewBoomfiNormalizer(true).Normalize(context.Background(), "Subscription.Updated", payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if upd.CancelAtPeriodEnd == nil || *upd.CancelAtPeriodEnd {
		t.Fatalf("inverted cancel flag = %v", upd.CancelAtPeriodEnd)
	}
}

func TestBoomfiNormalize_SubscriptionUpdatedWithoutFlagIsCarriedEmpty(t *testing.T) {
	payload := []byte(`{
		"event": "Subscription.Updated",
		"customer": { "wallet_address": "0xBEEF" }
	}`)

	upd, err := NewBoomfiNormalizer(false).Normalize(context.Background(), "Subscription.Updated", payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if upd.CancelAtPeriodEnd != nil {
		t.Fatalf("absent flag must stay nil, got %v", *upd.CancelAtPeriodEnd)
	}
}

func TestBoomfiNormalize_SubscriptionCanceled(t *testing.T) {
	payload := []byte(`{
		"event": "Subscription.Canceled",
		"customer": { "wallet_address": "0xBEEF" }
	}`)

	upd, err := NewBoomfiNormalizer(false).Normalize(context.Background(), "Subscription.Canceled", payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if upd.Op != OpReset {
		t.Fatalf("op = %v, want OpReset", upd.Op)
	}
	if upd.WalletAddress != "0xBEEF" {
		t.Fatalf("wallet = %q", upd.WalletAddress)
	}
}

func TestBoomfiNormalize_MissingWallet(t *testing.T) {
	n := NewBoomfiNormalizer(false)

	for _, event := range []string{"Invoice.Updated", "Subscription.Updated", "Subscription.Canceled"} {
		payload := []byte(`{"event": "` + event + `", "payment_status": "Succeeded", "customer": {}}`)
		_, err := n.Normalize(context.Background(), event, payload)
		if !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("%s without wallet: err = %v, want ErrInvalidPayload", event, err)
		}
	}
}

func TestBoomfiNormalize_UnhandledEvent(t *testing.T) {
	payload := []byte(`{"event": "Payment.Created", "customer": { "wallet_address": "0xBEEF" }}`)

	upd, err := NewBoomfiNormalizer(false).Normalize(context.Background(), "Payment.Created", payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if upd.Op != OpNone {
		t.Fatalf("unhandled event must map to OpNone, got %v", upd.Op)
	}
}

func TestBoomfiNormalize_EnvelopeEventWins(t *testing.T) {
	// Transport-level event type can lag the body; the body decides.
	payload := []byte(`{
		"event": "Subscription.Canceled",
		"customer": { "wallet_address": "0xBEEF" }
	}`)

	upd, err := NewBoomfiNormalizer(false).Normalize(context.Background(), "", payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if upd.Op != OpReset || upd.EventType != "Subscription.Canceled" {
		t.Fatalf("body event not honored: %+v", upd)
	}
}
