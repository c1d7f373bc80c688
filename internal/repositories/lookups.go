package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/models"
)

// RiderRepository provides access to rider data
type RiderRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewRiderRepository creates a new rider repository
func NewRiderRepository(db *gorm.DB, readOnlyDB *gorm.DB) *RiderRepository {
	return &RiderRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetActive gets an active rider by id, scoped to a location
func (r *RiderRepository) GetActive(ctx context.Context, id, locationID uuid.UUID) (*models.Rider, error) {
	var rider models.Rider
	err := r.readOnlyDB.WithContext(ctx).
		Where("id = ? AND location_id = ? AND active = ?", id, locationID, true).
		First(&rider).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get rider")
	}
	return &rider, nil
}

// CourierRepository provides access to courier data
type CourierRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewCourierRepository creates a new courier repository
func NewCourierRepository(db *gorm.DB, readOnlyDB *gorm.DB) *CourierRepository {
	return &CourierRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetActive gets an active courier by id
func (r *CourierRepository) GetActive(ctx context.Context, id uuid.UUID) (*models.Courier, error) {
	var courier models.Courier
	err := r.readOnlyDB.WithContext(ctx).
		Where("id = ? AND active = ?", id, true).
		First(&courier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get courier")
	}
	return &courier, nil
}

// HoldReasonRepository provides access to hold reason lookups
type HoldReasonRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewHoldReasonRepository creates a new hold reason repository
func NewHoldReasonRepository(db *gorm.DB, readOnlyDB *gorm.DB) *HoldReasonRepository {
	return &HoldReasonRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetActive gets an active hold reason by id
func (r *HoldReasonRepository) GetActive(ctx context.Context, id uuid.UUID) (*models.HoldReason, error) {
	var reason models.HoldReason
	err := r.readOnlyDB.WithContext(ctx).
		Where("id = ? AND active = ?", id, true).
		First(&reason).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get hold reason")
	}
	return &reason, nil
}

// FailedWebhookRepository provides access to captured ingestion failures
type FailedWebhookRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewFailedWebhookRepository creates a new failed webhook repository
func NewFailedWebhookRepository(db *gorm.DB, readOnlyDB *gorm.DB) *FailedWebhookRepository {
	return &FailedWebhookRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Record captures a failed event, keyed by (external id, topic) so
// repeated failures of the same event update one row and bump the
// attempt counter instead of piling up.
func (r *FailedWebhookRepository) Record(ctx context.Context, record *models.FailedWebhook) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now()
	record.LastTriedAt = &now
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}, {Name: "topic"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"payload":       record.Payload,
				"error_detail":  record.ErrorDetail,
				"attempts":      gorm.Expr("failed_webhooks.attempts + 1"),
				"last_tried_at": now,
				"updated_at":    now,
			}),
		}).
		Create(record).Error
	if err != nil {
		return errors.Wrap(err, "failed to record failed webhook")
	}
	return nil
}

// GetByID gets a failed webhook record by id
func (r *FailedWebhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FailedWebhook, error) {
	var record models.FailedWebhook
	err := r.readOnlyDB.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get failed webhook")
	}
	return &record, nil
}

// ListOldest returns the oldest captured failures, for the replay job
func (r *FailedWebhookRepository) ListOldest(ctx context.Context, limit int) ([]models.FailedWebhook, error) {
	var records []models.FailedWebhook
	err := r.readOnlyDB.WithContext(ctx).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list failed webhooks")
	}
	return records, nil
}

// Delete consumes a record after a successful replay
func (r *FailedWebhookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return errors.Wrap(
		r.db.WithContext(ctx).Delete(&models.FailedWebhook{}, "id = ?", id).Error,
		"failed to delete failed webhook")
}
