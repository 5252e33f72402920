package billing

import (
	"testing"
	"time"

	"github.com/coinchartfun/coinchart-backend/app/models"
)

func timePtr(t time.Time) *time.Time { return &t }

func boolPtr(b bool) *bool { return &b }

func TestApplyUpdate_ContactFieldsOnlyGrow(t *testing.T) {
	u := &models.User{WalletAddress: "0xabc", Name: "Alice", Email: "alice@example.com"}

	changed := applyUpdate(u, SubscriptionUpdate{Op: OpApply, ContactName: "", ContactEmail: ""})
	if changed {
		t.Fatalf("empty contact fields must not count as a change")
	}
	if u.Name != "Alice" || u.Email != "alice@example.com" {
		t.Fatalf("empty update cleared contact data: %+v", u)
	}

	changed = applyUpdate(u, SubscriptionUpdate{Op: OpApply, ContactName: "Alice B", ContactEmail: "Alice.B@Example.COM"})
	if !changed {
		t.Fatalf("non-empty contact fields must count as a change")
	}
	if u.Name != "Alice B" {
		t.Fatalf("name = %q, want %q", u.Name, "Alice B")
	}
	if u.Email != "alice.b@example.com" {
		t.Fatalf("email should be lowercased, got %q", u.Email)
	}
}

func TestApplyUpdate_RealWalletIsSticky(t *testing.T) {
	u := &models.User{WalletAddress: "0xreal"}

	applyUpdate(u, SubscriptionUpdate{Op: OpApply, WalletAddress: "0xOTHER"})
	if u.WalletAddress != "0xreal" {
		t.Fatalf("real wallet was overwritten to %q", u.WalletAddress)
	}
}

func TestApplyUpdate_PlaceholderWalletGetsReplaced(t *testing.T) {
	u := &models.User{WalletAddress: models.NewPlaceholderWallet()}

	applyUpdate(u, SubscriptionUpdate{Op: OpApply, WalletAddress: "0xReal"})
	if u.WalletAddress != "0xreal" {
		t.Fatalf("placeholder should be replaced with the lowercased wallet, got %q", u.WalletAddress)
	}

	// Another placeholder never replaces anything.
	applyUpdate(u, SubscriptionUpdate{Op: OpApply, WalletAddress: "no-wallet-1234"})
	if u.WalletAddress != "0xreal" {
		t.Fatalf("placeholder overwrote a real wallet: %q", u.WalletAddress)
	}
}

func TestApplyUpdate_CustomerIDBackfillOnly(t *testing.T) {
	u := &models.User{WalletAddress: "0xabc"}

	applyUpdate(u, SubscriptionUpdate{Op: OpApply, CustomerID: "cus_1"})
	if u.CustomerID == nil || *u.CustomerID != "cus_1" {
		t.Fatalf("customer id was not backfilled: %+v", u.CustomerID)
	}

	applyUpdate(u, SubscriptionUpdate{Op: OpApply, CustomerID: "cus_2"})
	if *u.CustomerID != "cus_1" {
		t.Fatalf("existing customer id was overwritten to %q", *u.CustomerID)
	}
}

func TestApplyUpdate_PeriodTripleMovesAsUnit(t *testing.T) {
	u := &models.User{WalletAddress: "0xabc"}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	applyUpdate(u, SubscriptionUpdate{
		Op:          OpApply,
		Status:      models.SubscriptionStatusPremium,
		PeriodStart: timePtr(start),
		PeriodEnd:   timePtr(end),
	})

	if u.Subscription.PeriodStartAt == nil || !u.Subscription.PeriodStartAt.Equal(start) {
		t.Fatalf("period start = %v, want %v", u.Subscription.PeriodStartAt, start)
	}
	if u.Subscription.PeriodEndAt == nil || !u.Subscription.PeriodEndAt.Equal(end) {
		t.Fatalf("period end = %v, want %v", u.Subscription.PeriodEndAt, end)
	}
	if u.Subscription.ExpiryDate == nil || !u.Subscription.ExpiryDate.Equal(end) {
		t.Fatalf("expiry must mirror period end, got %v", u.Subscription.ExpiryDate)
	}

	// No period data in the update: triple stays untouched.
	applyUpdate(u, SubscriptionUpdate{Op: OpApply, Status: models.SubscriptionStatusPastDue})
	if !u.Subscription.PeriodEndAt.Equal(end) {
		t.Fatalf("update without period data moved the period end to %v", u.Subscription.PeriodEndAt)
	}
}

func TestApplyUpdate_ForceRenewalClearsCancelFlag(t *testing.T) {
	u := &models.User{WalletAddress: "0xabc"}
	u.Subscription.CancelAtPeriodEnd = true

	applyUpdate(u, SubscriptionUpdate{
		Op:           OpApply,
		Status:       models.SubscriptionStatusPremium,
		ForceRenewal: true,
	})
	if u.Subscription.CancelAtPeriodEnd {
		t.Fatalf("paid event must clear the cancel flag")
	}
}

func TestApplyUpdate_Reset(t *testing.T) {
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	u := &models.User{WalletAddress: "0xabc"}
	u.Subscription = models.Subscription{
		Status:         models.SubscriptionStatusPremium,
		SubscriptionID: func() *string { s := "sub_1"; return &s }(),
		PeriodStartAt:  timePtr(end.AddDate(0, -1, 0)),
		PeriodEndAt:    timePtr(end),
		ExpiryDate:     timePtr(end),
	}

	changed := applyUpdate(u, SubscriptionUpdate{Op: OpReset})
	if !changed {
		t.Fatalf("reset of a premium record must report a change")
	}
	if u.Subscription.Status != models.SubscriptionStatusFree {
		t.Fatalf("status after reset = %q", u.Subscription.Status)
	}
	if u.Subscription.SubscriptionID != nil || u.Subscription.PeriodStartAt != nil ||
		u.Subscription.PeriodEndAt != nil || u.Subscription.ExpiryDate != nil {
		t.Fatalf("reset must clear subscription data: %+v", u.Subscription)
	}
	if !u.Subscription.CancelAtPeriodEnd {
		t.Fatalf("reset must leave auto-renewal off")
	}

	// Resetting again changes nothing.
	if applyUpdate(u, SubscriptionUpdate{Op: OpReset}) {
		t.Fatalf("second reset must be a no-op")
	}
}

func TestApplyUpdate_DuplicateDeliveryIsNoOp(t *testing.T) {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	upd := SubscriptionUpdate{
		Op:                OpApply,
		CustomerID:        "cus_9",
		SubscriptionID:    "sub_9",
		Status:            models.SubscriptionStatusPremium,
		PeriodStart:       timePtr(end.AddDate(0, -1, 0)),
		PeriodEnd:         timePtr(end),
		CancelAtPeriodEnd: boolPtr(false),
		ContactEmail:      "bob@example.com",
	}

	u := &models.User{WalletAddress: "0xabc"}
	if !applyUpdate(u, upd) {
		t.Fatalf("first application must change the record")
	}
	if applyUpdate(u, upd) {
		t.Fatalf("reapplying the identical update must be a no-op")
	}
}
