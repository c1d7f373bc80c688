package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/models"
)

// OrderRepository provides access to order data. Writes go through the
// write database; reads prefer the read-only replica.
type OrderRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB, readOnlyDB *gorm.DB) *OrderRepository {
	return &OrderRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// FindByExternalID looks up an order by its external identifier.
// Returns (nil, nil) when no order exists, so ingestion can branch on
// new-versus-update without error sniffing.
func (r *OrderRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find order by external id")
	}
	return &order, nil
}

// FindByDeliveryToken returns the dispatched order carrying a rider
// delivery token, or (nil, nil) when no order matches.
func (r *OrderRepository) FindByDeliveryToken(ctx context.Context, token string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("delivery_token = ?", token).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find order by delivery token")
	}
	return &order, nil
}

// GetByID loads a full order snapshot scoped to a location, including
// line items, sample allocations and remarks.
func (r *OrderRepository) GetByID(ctx context.Context, id, locationID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").
		Preload("Samples").
		Preload("Samples.Product").
		Preload("Remarks").
		Preload("Customer").
		Where("id = ? AND location_id = ?", id, locationID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get order by id")
	}
	return &order, nil
}

// Reload re-reads the mutable fulfillment state of an order from the
// write database. Used between optimistic-guard retries.
func (r *OrderRepository) Reload(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to reload order")
	}
	return &order, nil
}

// Create inserts a new order keyed by its external id. A concurrent
// ingestion of the same external id loses the insert race silently:
// the second writer sees created=false and falls back to the update path.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(order)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to create order")
	}
	return result.RowsAffected > 0, nil
}

// UpdateFields applies an unconditional column update. Ingestion uses
// this: it always computes the full desired state from the external
// event, so it needs no optimistic guard.
func (r *OrderRepository) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update order fields")
	}
	if result.RowsAffected == 0 {
		return errors.New("no order updated")
	}
	return nil
}

// UpdateGuarded applies a column update only if the stored stage and
// hold/ready flags still match what the caller read. Returns false when
// a concurrent transition won the race; the caller decides whether to
// retry.
func (r *OrderRepository) UpdateGuarded(
	ctx context.Context,
	id uuid.UUID,
	expectedStage string,
	expectedOnHold bool,
	expectedReady bool,
	updates map[string]interface{},
) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND fulfillment_stage = ? AND (hold_at IS NOT NULL) = ? AND (ready_at IS NOT NULL) = ?",
			id, expectedStage, expectedOnHold, expectedReady).
		Updates(updates)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to apply guarded order update")
	}
	return result.RowsAffected > 0, nil
}

// ReplaceItems swaps out all line items of an order in one transaction.
// Safe because line items carry no staff-authored state.
func (r *OrderRepository) ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID).Delete(&models.OrderItem{}).Error; err != nil {
			return errors.Wrap(err, "failed to delete existing line items")
		}
		if len(items) == 0 {
			return nil
		}
		for i := range items {
			items[i].OrderID = orderID
			if items[i].ID == uuid.Nil {
				items[i].ID = uuid.New()
			}
		}
		if err := tx.Create(&items).Error; err != nil {
			return errors.Wrap(err, "failed to insert line items")
		}
		return nil
	})
}

// ListByStage returns orders of one location at a given stage, newest first
func (r *OrderRepository) ListByStage(ctx context.Context, locationID uuid.UUID, stage string, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.readOnlyDB.WithContext(ctx).
		Where("location_id = ? AND fulfillment_stage = ?", locationID, stage).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list orders by stage")
	}
	return orders, nil
}

// SampleIssueRepository provides access to sample/free-issue allocations
type SampleIssueRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewSampleIssueRepository creates a new sample allocation repository
func NewSampleIssueRepository(db *gorm.DB, readOnlyDB *gorm.DB) *SampleIssueRepository {
	return &SampleIssueRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Upsert records sample allocations for an order. The (order, product)
// key is unique, so re-submitting a line adjusts the quantity instead of
// duplicating the row.
func (r *SampleIssueRepository) Upsert(ctx context.Context, issues []models.SampleIssue) error {
	if len(issues) == 0 {
		return nil
	}
	for i := range issues {
		if issues[i].ID == uuid.Nil {
			issues[i].ID = uuid.New()
		}
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "issued_by_id", "updated_at"}),
		}).
		Create(&issues).Error
	if err != nil {
		return errors.Wrap(err, "failed to upsert sample allocations")
	}
	return nil
}

// ListForOrder returns the sample allocations of an order
func (r *SampleIssueRepository) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.SampleIssue, error) {
	var issues []models.SampleIssue
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Product").
		Where("order_id = ?", orderID).
		Find(&issues).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sample allocations")
	}
	return issues, nil
}

// RemarkRepository provides access to order remarks
type RemarkRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewRemarkRepository creates a new remark repository
func NewRemarkRepository(db *gorm.DB, readOnlyDB *gorm.DB) *RemarkRepository {
	return &RemarkRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create adds a remark to an order
func (r *RemarkRepository) Create(ctx context.Context, remark *models.Remark) error {
	if remark.ID == uuid.Nil {
		remark.ID = uuid.New()
	}
	return errors.Wrap(r.db.WithContext(ctx).Create(remark).Error, "failed to create remark")
}

// Update rewrites the body and invoice visibility of a remark
func (r *RemarkRepository) Update(ctx context.Context, id uuid.UUID, body string, showOnInvoice bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Remark{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"body":            body,
			"show_on_invoice": showOnInvoice,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update remark")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a remark
func (r *RemarkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.Remark{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete remark")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
