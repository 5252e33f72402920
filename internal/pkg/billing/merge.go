package billing

import (
	"strings"
	"time"

	"github.com/coinchartfun/coinchart-backend/app/models"
)

// applyUpdate merges a normalized update into the record in place and reports
// whether anything actually changed. Duplicate deliveries of the same event
// therefore become internal no-ops instead of redundant writes.
//
// Merge rules:
//   - contact info only ever grows; empty update fields never clear it
//   - a real wallet address is sticky; only a placeholder gets replaced
//   - the period triple is overwritten as a unit, expiry mirrors period end
//   - a freshly-paid event forces auto-renewal back on
func applyUpdate(u *models.User, upd SubscriptionUpdate) bool {
	before := snapshot(u)

	if name := strings.TrimSpace(upd.ContactName); name != "" {
		u.Name = name
	}
	if email := strings.ToLower(strings.TrimSpace(upd.ContactEmail)); email != "" {
		u.Email = email
	}
	if phone := strings.TrimSpace(upd.ContactPhone); phone != "" {
		u.Phone = phone
	}
	if upd.CustomerID != "" && (u.CustomerID == nil || *u.CustomerID == "") {
		// Backfill the provider customer id; a fallback-lookup hit relies on
		// this so a previously mismatched record self-heals.
		id := upd.CustomerID
		u.CustomerID = &id
	}
	if wallet := models.NormalizeWallet(upd.WalletAddress); wallet != "" && !models.IsPlaceholderWallet(wallet) {
		if models.IsPlaceholderWallet(u.WalletAddress) {
			u.WalletAddress = wallet
		}
	}

	switch upd.Op {
	case OpReset:
		u.Subscription.Status = models.SubscriptionStatusFree
		u.Subscription.SubscriptionID = nil
		u.Subscription.PeriodStartAt = nil
		u.Subscription.PeriodEndAt = nil
		u.Subscription.ExpiryDate = nil
		u.Subscription.CancelAtPeriodEnd = true

	case OpApply:
		if upd.Status != "" {
			u.Subscription.Status = upd.Status
		}
		if upd.SubscriptionID != "" {
			id := upd.SubscriptionID
			u.Subscription.SubscriptionID = &id
		}
		if upd.PeriodEnd != nil {
			u.Subscription.PeriodStartAt = copyTime(upd.PeriodStart)
			u.Subscription.PeriodEndAt = copyTime(upd.PeriodEnd)
			u.Subscription.ExpiryDate = copyTime(upd.PeriodEnd)
		}
		if upd.CancelAtPeriodEnd != nil {
			u.Subscription.CancelAtPeriodEnd = *upd.CancelAtPeriodEnd
		}
		if upd.ForceRenewal {
			u.Subscription.CancelAtPeriodEnd = false
		}
	}

	return snapshot(u) != before
}

// recordState is the comparable projection of the fields the reconciler owns.
type recordState struct {
	wallet, name, email, phone string
	customerID                 string
	status                     string
	subscriptionID             string
	periodStart, periodEnd     int64
	expiry                     int64
	cancelAtPeriodEnd          bool
}

func snapshot(u *models.User) recordState {
	return recordState{
		wallet:            u.WalletAddress,
		name:              u.Name,
		email:             u.Email,
		phone:             u.Phone,
		customerID:        strOrEmpty(u.CustomerID),
		status:            u.Subscription.Status,
		subscriptionID:    strOrEmpty(u.Subscription.SubscriptionID),
		periodStart:       unixOrZero(u.Subscription.PeriodStartAt),
		periodEnd:         unixOrZero(u.Subscription.PeriodEndAt),
		expiry:            unixOrZero(u.Subscription.ExpiryDate),
		cancelAtPeriodEnd: u.Subscription.CancelAtPeriodEnd,
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func unixOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
