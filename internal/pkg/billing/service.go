package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coinchartfun/coinchart-backend/app/models"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/keylock"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/retry"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// Service is the reconciliation engine. Given a normalized update it resolves
// the target customer record, applies the field-level merge rules and
// persists the result through one conditional write. Per-customer
// serialization comes from the injected lock manager; write conflicts are
// retried with linear backoff.
type Service struct {
	store       Store
	locks       *keylock.Manager
	now         Clock
	maxAttempts int
	baseDelay   time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithClock injects the time source used for default expiry math.
func WithClock(now Clock) Option {
	return func(s *Service) { s.now = now }
}

// WithRetryPolicy overrides the conflict-retry bounds.
func WithRetryPolicy(attempts int, baseDelay time.Duration) Option {
	return func(s *Service) {
		s.maxAttempts = attempts
		s.baseDelay = baseDelay
	}
}

// NewService creates the reconciler.
func NewService(store Store, locks *keylock.Manager, opts ...Option) *Service {
	s := &Service{
		store:       store,
		locks:       locks,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply reconciles one normalized update into the customer store. It is safe
// to call concurrently for any mix of customers; updates resolving to the
// same customer key are serialized. Reapplying the same update is a no-op.
func (s *Service) Apply(ctx context.Context, upd SubscriptionUpdate) error {
	if upd.Op == OpNone {
		log.Debugf("[billing] ignoring %s event %s", upd.Provider, upd.EventType)
		return nil
	}

	key := upd.CustomerKey()
	if key == "" {
		return fmt.Errorf("%w: event %s carries no customer key", ErrInvalidPayload, upd.EventType)
	}

	// The lock is taken inside each attempt so a conflicting writer that
	// just released it is recontested fairly among waiters.
	return retry.Do(ctx, s.maxAttempts, s.baseDelay, IsRetryable, func() error {
		return s.locks.WithLock(ctx, key, func() error {
			return s.reconcileOnce(ctx, upd)
		})
	})
}

func (s *Service) reconcileOnce(ctx context.Context, upd SubscriptionUpdate) error {
	user, err := s.resolve(ctx, upd)
	if err != nil {
		return err
	}

	if user == nil {
		if !upd.CreateIfMissing {
			log.Infof("[billing] no record for %s event %s (key %s), nothing to do", upd.Provider, upd.EventType, upd.CustomerKey())
			return nil
		}
		user = newRecord(upd)
		applyUpdate(user, upd)
		return s.store.Create(ctx, user)
	}

	if changed := applyUpdate(user, upd); !changed {
		log.Debugf("[billing] %s event %s left user %d unchanged", upd.Provider, upd.EventType, user.ID)
		return nil
	}
	return s.store.UpdateVersioned(ctx, user)
}

// resolve finds the target record: provider customer id first, then the
// subscription-id fallback, then the wallet address. A nil, nil return means
// no record exists yet.
func (s *Service) resolve(ctx context.Context, upd SubscriptionUpdate) (*models.User, error) {
	if upd.CustomerID != "" {
		user, err := s.store.FindByCustomerID(ctx, upd.CustomerID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if upd.SubscriptionID != "" {
		user, err := s.store.FindBySubscriptionID(ctx, upd.SubscriptionID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if wallet := models.NormalizeWallet(upd.WalletAddress); wallet != "" && !models.IsPlaceholderWallet(wallet) {
		user, err := s.store.FindByWallet(ctx, wallet)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func newRecord(upd SubscriptionUpdate) *models.User {
	wallet := models.NormalizeWallet(upd.WalletAddress)
	if wallet == "" || models.IsPlaceholderWallet(wallet) {
		wallet = models.NewPlaceholderWallet()
	}

	u := &models.User{
		WalletAddress: wallet,
		Subscription: models.Subscription{
			Status: models.SubscriptionStatusFree,
		},
	}
	if upd.CustomerID != "" {
		id := upd.CustomerID
		u.CustomerID = &id
	}
	return u
}

// SubscriptionStatus is the read-model answer for frontend polling.
type SubscriptionStatus struct {
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancelAtPeriodEnd"`
	IsActive          bool   `json:"isActive"`
}

// StatusByWallet reports the coarse subscription state for a wallet. Unknown
// wallets read as Free rather than erroring.
func (s *Service) StatusByWallet(ctx context.Context, wallet string) (SubscriptionStatus, error) {
	user, err := s.store.FindByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SubscriptionStatus{Status: models.SubscriptionStatusFree}, nil
		}
		return SubscriptionStatus{}, err
	}

	active := user.Subscription.IsActive(s.now())
	status := models.SubscriptionStatusFree
	if active {
		status = models.SubscriptionStatusPremium
	}
	return SubscriptionStatus{
		Status:            status,
		CancelAtPeriodEnd: user.Subscription.CancelAtPeriodEnd,
		IsActive:          active,
	}, nil
}

// ValidateSubscription reports whether the wallet currently has an
// entitling subscription.
func (s *Service) ValidateSubscription(ctx context.Context, wallet string) (bool, error) {
	st, err := s.StatusByWallet(ctx, wallet)
	if err != nil {
		return false, err
	}
	return st.IsActive, nil
}

// UserBySubscriptionID looks up the Premium record tied to a provider
// subscription id, together with its derived activity.
func (s *Service) UserBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, bool, error) {
	user, err := s.store.FindBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return nil, false, err
	}
	if user.Subscription.Status != models.SubscriptionStatusPremium {
		return nil, false, gorm.ErrRecordNotFound
	}
	return user, user.Subscription.IsActive(s.now()), nil
}
