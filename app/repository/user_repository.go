package repository

import (
	"strings"
	"time"

	"github.com/coinchartfun/coinchart-backend/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByWallet retrieves a user by their wallet address
func (r *userRepository) GetByWallet(wallet string) (*models.User, error) {
	var user models.User
	err := r.db.Where("wallet_address = ?", models.NormalizeWallet(wallet)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByCustomerID retrieves a user by their payment provider customer id
func (r *userRepository) GetByCustomerID(customerID string) (*models.User, error) {
	var user models.User
	err := r.db.Where("customer_id = ?", customerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetBySubscriptionID retrieves a user by their provider subscription id
func (r *userRepository) GetBySubscriptionID(subscriptionID string) (*models.User, error) {
	var user models.User
	err := r.db.Where("subscription_subscription_id = ?", subscriptionID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// UpdateFavorites replaces the user's favorite symbol list
func (r *userRepository) UpdateFavorites(id uint, favorites []string) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).
		Update("favorites", favorites).Error
}

// TouchLastLogin stamps the user's last login time
func (r *userRepository) TouchLastLogin(id uint, at time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).
		Update("last_login_at", at).Error
}

// List retrieves a paginated list of users
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

// CountPremium returns the number of users with a Premium subscription
func (r *userRepository) CountPremium() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).
		Where("subscription_status = ?", models.SubscriptionStatusPremium).
		Count(&count).Error
	return count, err
}

// Search searches for users by wallet address, name or email
func (r *userRepository) Search(query string) ([]models.User, error) {
	var users []models.User
	searchPattern := "%" + strings.TrimSpace(query) + "%"
	err := r.db.Where("wallet_address LIKE ? OR name LIKE ? OR email LIKE ?",
		searchPattern, searchPattern, searchPattern).Find(&users).Error
	return users, err
}
