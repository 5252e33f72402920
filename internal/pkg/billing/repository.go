package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/coinchartfun/coinchart-backend/app/models"
	"gorm.io/gorm"
)

// Store is the customer-record storage the reconciler runs against. Lookups
// return gorm.ErrRecordNotFound on a miss. UpdateVersioned performs the
// single conditional write the engine persists through: it fails with
// ErrWriteConflict when the record changed since it was read.
type Store interface {
	FindByCustomerID(ctx context.Context, customerID string) (*models.User, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error)
	FindByWallet(ctx context.Context, wallet string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateVersioned(ctx context.Context, user *models.User) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a customer store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) FindByCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&u).Error
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return &u, nil
}

func (s *gormStore) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("subscription_subscription_id = ?", subscriptionID).First(&u).Error
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return &u, nil
}

func (s *gormStore) FindByWallet(ctx context.Context, wallet string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("wallet_address = ?", models.NormalizeWallet(wallet)).First(&u).Error
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return &u, nil
}

func (s *gormStore) Create(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		// Two keys racing onto the same identity surface as a duplicate key;
		// the retry loop re-resolves and finds the winner's record.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %v", ErrWriteConflict, err)
		}
		return wrapStoreErr(err)
	}
	return nil
}

func (s *gormStore) UpdateVersioned(ctx context.Context, user *models.User) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND version = ?", user.ID, user.Version).
		Updates(map[string]interface{}{
			"wallet_address":                    user.WalletAddress,
			"name":                              user.Name,
			"email":                             user.Email,
			"phone":                             user.Phone,
			"customer_id":                       user.CustomerID,
			"subscription_status":               user.Subscription.Status,
			"subscription_subscription_id":      user.Subscription.SubscriptionID,
			"subscription_period_start_at":      user.Subscription.PeriodStartAt,
			"subscription_period_end_at":        user.Subscription.PeriodEndAt,
			"subscription_expiry_date":          user.Subscription.ExpiryDate,
			"subscription_cancel_at_period_end": user.Subscription.CancelAtPeriodEnd,
			"version":                           user.Version + 1,
		})
	if res.Error != nil {
		return wrapStoreErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: user %d at version %d", ErrWriteConflict, user.ID, user.Version)
	}
	user.Version++
	return nil
}

func wrapStoreErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
