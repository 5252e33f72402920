package repository

import (
	"time"

	"github.com/coinchartfun/coinchart-backend/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByWallet(wallet string) (*models.User, error)
	GetByCustomerID(customerID string) (*models.User, error)
	GetBySubscriptionID(subscriptionID string) (*models.User, error)
	Update(user *models.User) error
	UpdateFavorites(id uint, favorites []string) error
	TouchLastLogin(id uint, at time.Time) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	CountPremium() (int64, error)
	Search(query string) ([]models.User, error)
}

// WebhookEventRepository defines the interface for the webhook delivery log.
// Every incoming delivery is recorded before processing; the
// provider+event-id pair is unique so redeliveries are detected at insert.
type WebhookEventRepository interface {
	Record(event *models.WebhookEvent) (created bool, err error)
	MarkProcessed(id uint) error
	MarkFailed(id uint, processingErr string) error
	GetByProviderEventID(provider, eventID string) (*models.WebhookEvent, error)
	ListUnprocessed(limit int) ([]models.WebhookEvent, error)
	CountUnprocessed() (int64, error)
}

// Repositories bundles all repository instances
type Repositories struct {
	User         UserRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}
