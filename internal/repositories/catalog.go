package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/models"
)

// CatalogRepository resolves vendors, categories and products referenced
// by inbound line items, creating rows on first sight.
type CatalogRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *gorm.DB, readOnlyDB *gorm.DB) *CatalogRepository {
	return &CatalogRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ResolveProduct finds the catalog row for an inbound line item, creating
// product, vendor and category rows as needed. Idempotent: replays hit
// the existing rows.
func (r *CatalogRepository) ResolveProduct(ctx context.Context, line models.OrderEventLine) (*models.Product, error) {
	externalVariantID := line.VariantID.String()

	var product models.Product
	err := r.db.WithContext(ctx).
		Where("external_variant_id = ?", externalVariantID).
		First(&product).Error
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "failed to look up product")
	}

	product = models.Product{
		ID:                uuid.New(),
		ExternalVariantID: externalVariantID,
		Title:             line.Title,
		SKU:               line.SKU,
		Barcode:           line.Barcode,
		Price:             line.Price,
	}

	if line.Vendor != "" {
		vendor := models.Vendor{ID: uuid.New(), Name: line.Vendor}
		if err := r.db.WithContext(ctx).
			Where("name = ?", line.Vendor).
			FirstOrCreate(&vendor).Error; err != nil {
			return nil, errors.Wrap(err, "failed to resolve vendor")
		}
		product.VendorID = &vendor.ID
	}

	if line.ProductType != "" {
		category := models.Category{ID: uuid.New(), Name: line.ProductType}
		if err := r.db.WithContext(ctx).
			Where("name = ?", line.ProductType).
			FirstOrCreate(&category).Error; err != nil {
			return nil, errors.Wrap(err, "failed to resolve category")
		}
		product.CategoryID = &category.ID
	}

	// A replayed event can race its own first attempt here; the unique
	// external variant id makes the insert idempotent.
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_variant_id"}},
			DoNothing: true,
		}).
		Create(&product).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to create product")
	}

	err = r.db.WithContext(ctx).
		Where("external_variant_id = ?", externalVariantID).
		First(&product).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to re-read product after upsert")
	}
	return &product, nil
}

// GetProduct gets a product by id
func (r *CatalogRepository) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.readOnlyDB.WithContext(ctx).First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get product by id")
	}
	return &product, nil
}

// CustomerRepository provides access to customer contact snapshots
type CustomerRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *gorm.DB, readOnlyDB *gorm.DB) *CustomerRepository {
	return &CustomerRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Upsert stores the contact snapshot from an event, keyed by the external
// customer id, refreshing the contact fields on every ingestion.
func (r *CustomerRepository) Upsert(ctx context.Context, customer *models.Customer) (*models.Customer, error) {
	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "phone", "email", "updated_at"}),
		}).
		Create(customer).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert customer")
	}

	var stored models.Customer
	err = r.db.WithContext(ctx).
		Where("external_id = ?", customer.ExternalID).
		First(&stored).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to re-read customer after upsert")
	}
	return &stored, nil
}

// StaffRepository provides access to staff data
type StaffRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewStaffRepository creates a new staff repository
func NewStaffRepository(db *gorm.DB, readOnlyDB *gorm.DB) *StaffRepository {
	return &StaffRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ResolveRep picks the sales rep assigned to an inbound order: the
// event's hint when it matches an active staff member, otherwise the
// location's default rep. Orders without any match stay unassigned.
func (r *StaffRepository) ResolveRep(ctx context.Context, locationID uuid.UUID, hint string) (*models.Staff, error) {
	if hint != "" {
		var rep models.Staff
		err := r.readOnlyDB.WithContext(ctx).
			Where("location_id = ? AND active = ? AND (name = ? OR phone = ? OR email = ?)",
				locationID, true, hint, hint, hint).
			First(&rep).Error
		if err == nil {
			return &rep, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(err, "failed to resolve assigned rep")
		}
	}

	var rep models.Staff
	err := r.readOnlyDB.WithContext(ctx).
		Where("location_id = ? AND active = ? AND is_default_rep = ?", locationID, true, true).
		First(&rep).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to resolve default rep")
	}
	return &rep, nil
}
