package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Subscription statuses. Free and Premium are our own coarse states; the
// rest are passed through verbatim from the provider's billing lifecycle.
const (
	SubscriptionStatusFree              = "Free"
	SubscriptionStatusPremium           = "Premium"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusActive            = "active"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusPaused            = "paused"
)

const placeholderWalletPrefix = "no-wallet-"

// Subscription is the billing sub-entity embedded in User. ExpiryDate is kept
// equal to PeriodEndAt whenever both are known.
type Subscription struct {
	Status            string     `gorm:"type:varchar(32);not null;default:'Free'" json:"status"`
	SubscriptionID    *string    `gorm:"type:varchar(191);index" json:"subscriptionId"`
	PeriodStartAt     *time.Time `gorm:"type:timestamp;default:null" json:"periodStartAt"`
	PeriodEndAt       *time.Time `gorm:"type:timestamp;default:null" json:"periodEndAt"`
	ExpiryDate        *time.Time `gorm:"type:timestamp;default:null" json:"expiryDate"`
	CancelAtPeriodEnd bool       `gorm:"not null;default:false" json:"cancelAtPeriodEnd"`
}

// IsActive derives the effective entitlement; it is never stored.
func (s Subscription) IsActive(now time.Time) bool {
	if s.Status != SubscriptionStatusPremium || s.CancelAtPeriodEnd {
		return false
	}
	return s.ExpiryDate == nil || s.ExpiryDate.After(now)
}

// User is one record per paying entity. It is looked up by wallet address,
// by provider customer id, or (as a fallback) by provider subscription id.
// A record is never deleted when a subscription ends; it is downgraded to
// Free instead.
type User struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	WalletAddress string       `gorm:"type:varchar(100);uniqueIndex;not null" json:"walletAddress"`
	Name          string       `gorm:"type:varchar(150);default:''" json:"name" validate:"max=150"`
	Email         string       `gorm:"type:varchar(200);default:''" json:"email" validate:"omitempty,email,max=200"`
	Phone         string       `gorm:"type:varchar(30);default:''" json:"phone" validate:"max=30"`
	CustomerID    *string      `gorm:"type:varchar(191);uniqueIndex" json:"customerId"`
	Subscription  Subscription `gorm:"embedded;embeddedPrefix:subscription_" json:"subscription"`
	Favorites     []string     `gorm:"serializer:json" json:"favorites"`
	ReferralCode  *string      `gorm:"type:varchar(64);uniqueIndex" json:"referralCode,omitempty"`
	LastLoginAt   *time.Time   `gorm:"type:timestamp;default:null" json:"lastLoginAt"`
	Version       uint64       `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NewPlaceholderWallet generates the sentinel wallet value used when no real
// address is known yet. It is unique per record but never authoritative.
func NewPlaceholderWallet() string {
	return placeholderWalletPrefix + uuid.NewString()
}

// IsPlaceholderWallet reports whether addr is a generated sentinel rather
// than a real wallet address. The legacy "missing-wallet" form is still
// recognized for records written by earlier versions.
func IsPlaceholderWallet(addr string) bool {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return true
	}
	return strings.Contains(addr, placeholderWalletPrefix) || strings.Contains(addr, "missing-wallet")
}

// NormalizeWallet canonicalizes a wallet address for storage and lookup.
func NormalizeWallet(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
