package repository

import (
	"errors"
	"time"

	"github.com/coinchartfun/coinchart-backend/app/models"
	"gorm.io/gorm"
)

// webhookEventRepository implements the WebhookEventRepository interface
type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// Record inserts the delivery log entry. It returns created=false when the
// provider already delivered this event id before; the existing row is loaded
// into event in that case.
func (r *webhookEventRepository) Record(event *models.WebhookEvent) (bool, error) {
	err := r.db.Create(event).Error
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, err
	}

	existing, lookupErr := r.GetByProviderEventID(event.Provider, event.ProviderEventID)
	if lookupErr != nil {
		return false, lookupErr
	}
	*event = *existing
	return false, nil
}

// MarkProcessed stamps the event as successfully applied
func (r *webhookEventRepository) MarkProcessed(id uint) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     &now,
			"processing_error": "",
			"attempts":         gorm.Expr("attempts + 1"),
		}).Error
}

// MarkFailed records a processing failure; the event stays eligible for replay
func (r *webhookEventRepository) MarkFailed(id uint, processingErr string) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_error": processingErr,
			"attempts":         gorm.Expr("attempts + 1"),
		}).Error
}

// GetByProviderEventID retrieves one delivery by its provider-scoped event id
func (r *webhookEventRepository) GetByProviderEventID(provider, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.Where("provider = ? AND provider_event_id = ?", provider, eventID).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListUnprocessed returns failed or never-applied deliveries, oldest first
func (r *webhookEventRepository) ListUnprocessed(limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.Where("processed_at IS NULL AND signature_valid = ?", true).
		Order("created_at ASC").Limit(limit).Find(&events).Error
	return events, err
}

// CountUnprocessed returns the number of deliveries still awaiting replay
func (r *webhookEventRepository) CountUnprocessed() (int64, error) {
	var count int64
	err := r.db.Model(&models.WebhookEvent{}).
		Where("processed_at IS NULL AND signature_valid = ?", true).
		Count(&count).Error
	return count, err
}
