package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order channels
const (
	ChannelWeb = "web"
	ChannelPOS = "pos"
)

// Location represents a store or warehouse that fulfills orders
type Location struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Code      string         `gorm:"not null;uniqueIndex" json:"code"`
	Phone     string         `json:"phone"`
	Active    bool           `gorm:"not null;default:true" json:"active"`
}

// Staff represents a back-office user who performs fulfillment actions
type Staff struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	LocationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"location_id"`
	Name       string         `gorm:"not null" json:"name"`
	Phone      string         `gorm:"index" json:"phone"`
	Email      string         `json:"email"`
	Role       string         `gorm:"not null" json:"role"`
	IsDefaultRep bool         `gorm:"not null;default:false" json:"is_default_rep"`
	Active     bool           `gorm:"not null;default:true" json:"active"`
	Location   Location       `gorm:"foreignKey:LocationID" json:"-"`
}

// Customer is the contact snapshot resolved from the external channel
type Customer struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	ExternalID string         `gorm:"not null;uniqueIndex" json:"external_id"`
	FirstName  string         `json:"first_name"`
	LastName   string         `json:"last_name"`
	Phone      string         `gorm:"index" json:"phone"`
	Email      string         `json:"email"`
}

// Rider delivers dispatched orders and confirms delivery via a token link
type Rider struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	LocationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"location_id"`
	Name       string         `gorm:"not null" json:"name"`
	Phone      string         `gorm:"not null" json:"phone"`
	Active     bool           `gorm:"not null;default:true" json:"active"`
}

// Courier is a third-party carrier used instead of a rider
type Courier struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Name        string         `gorm:"not null;uniqueIndex" json:"name"`
	TrackingURL string         `json:"tracking_url"`
	Active      bool           `gorm:"not null;default:true" json:"active"`
}

// HoldReason is a lookup value required when putting an order on hold
type HoldReason struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Label     string         `gorm:"not null;uniqueIndex" json:"label"`
	Active    bool           `gorm:"not null;default:true" json:"active"`
}

// Vendor is a catalog brand/supplier resolved from line items
type Vendor struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null;uniqueIndex" json:"name"`
}

// Category is a catalog product-type grouping resolved from line items
type Category struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null;uniqueIndex" json:"name"`
}

// Product is a catalog row keyed by the external variant identifier.
// Sample/free-issue items are ordinary products flagged IsSample.
type Product struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
	ExternalVariantID string          `gorm:"not null;uniqueIndex" json:"external_variant_id"`
	Title             string          `gorm:"not null" json:"title"`
	SKU               string          `gorm:"index" json:"sku"`
	Barcode           string          `json:"barcode"`
	Price             decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	IsSample          bool            `gorm:"not null;default:false" json:"is_sample"`
	VendorID          *uuid.UUID      `gorm:"type:uuid;index" json:"vendor_id"`
	CategoryID        *uuid.UUID      `gorm:"type:uuid;index" json:"category_id"`
	Vendor            *Vendor         `gorm:"foreignKey:VendorID" json:"-"`
	Category          *Category       `gorm:"foreignKey:CategoryID" json:"-"`
}

// Order is one row per external order identifier. The fulfillment stage
// only moves forward along the stage graph; the hold flag on
// ready_to_dispatch is the single modeled backward edge.
type Order struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ExternalID string    `gorm:"not null;uniqueIndex" json:"external_id"`
	Name       string    `gorm:"not null;index" json:"name"`
	Channel    string    `gorm:"not null;default:web;index" json:"channel"`
	LocationID uuid.UUID `gorm:"type:uuid;not null;index" json:"location_id"`
	PlacedAt   time.Time `json:"placed_at"`

	TotalPrice      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_price"`
	SubtotalPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"subtotal_price"`
	TotalDiscounts  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_discounts"`
	TotalTax        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_tax"`
	ShippingCharge  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"shipping_charge"`
	Currency        string          `gorm:"not null;default:LKR" json:"currency"`
	FinancialStatus string          `gorm:"index" json:"financial_status"`

	CustomerID   *uuid.UUID `gorm:"type:uuid;index" json:"customer_id"`
	ContactName  string     `json:"contact_name"`
	ContactPhone string     `json:"contact_phone"`
	ContactEmail string     `json:"contact_email"`
	// Address blocks are retained verbatim; only contact accessors above
	// are read by this service.
	ShippingAddress []byte `gorm:"type:jsonb" json:"shipping_address"`
	BillingAddress  []byte `gorm:"type:jsonb" json:"billing_address"`
	RawPayload      []byte `gorm:"type:jsonb" json:"-"`

	SalesRepID *uuid.UUID `gorm:"type:uuid;index" json:"sales_rep_id"`

	FulfillmentStage string `gorm:"not null;default:order_received;index" json:"fulfillment_stage"`

	SampleIssuedAt   *time.Time `json:"sample_issued_at"`
	SampleIssuedByID *uuid.UUID `gorm:"type:uuid" json:"sample_issued_by_id"`

	PrintedAt   *time.Time `json:"printed_at"`
	PrintedByID *uuid.UUID `gorm:"type:uuid" json:"printed_by_id"`
	PrintCount  int        `gorm:"not null;default:0" json:"print_count"`

	ReadyAt      *time.Time `json:"ready_at"`
	ReadyByID    *uuid.UUID `gorm:"type:uuid" json:"ready_by_id"`
	HoldAt       *time.Time `json:"hold_at"`
	HeldByID     *uuid.UUID `gorm:"type:uuid" json:"held_by_id"`
	HoldReasonID *uuid.UUID `gorm:"type:uuid" json:"hold_reason_id"`

	DispatchedAt   *time.Time `json:"dispatched_at"`
	DispatchedByID *uuid.UUID `gorm:"type:uuid" json:"dispatched_by_id"`
	RiderID        *uuid.UUID `gorm:"type:uuid;index" json:"rider_id"`
	CourierID      *uuid.UUID `gorm:"type:uuid;index" json:"courier_id"`
	DeliveryToken  string     `gorm:"index" json:"delivery_token,omitempty"`

	DeliveredAt   *time.Time `json:"delivered_at"`
	DeliveredByID *uuid.UUID `gorm:"type:uuid" json:"delivered_by_id"`

	InvoiceCompletedAt   *time.Time `json:"invoice_completed_at"`
	InvoiceCompletedByID *uuid.UUID `gorm:"type:uuid" json:"invoice_completed_by_id"`

	Customer *Customer     `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Items    []OrderItem   `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Samples  []SampleIssue `gorm:"foreignKey:OrderID" json:"samples,omitempty"`
	Remarks  []Remark      `gorm:"foreignKey:OrderID" json:"remarks,omitempty"`
}

// OnHold reports whether the order currently sits in the hold sub-state.
func (o *Order) OnHold() bool {
	return o.HoldAt != nil
}

// Ready reports whether the order has been marked ready for dispatch.
func (o *Order) Ready() bool {
	return o.ReadyAt != nil
}

// OrderItem is a line item owned exclusively by its order. Rows are
// replaced wholesale on every ingestion update and carry no staff state.
type OrderItem struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	OrderID           uuid.UUID        `gorm:"type:uuid;not null;index" json:"order_id"`
	ExternalVariantID string           `gorm:"not null" json:"external_variant_id"`
	ProductID         *uuid.UUID       `gorm:"type:uuid;index" json:"product_id"`
	Title             string           `gorm:"not null" json:"title"`
	SKU               string           `json:"sku"`
	Barcode           string           `json:"barcode"`
	Quantity          int              `gorm:"not null" json:"quantity"`
	UnitPrice         decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0" json:"unit_price"`
	CompareAtPrice    *decimal.Decimal `gorm:"type:decimal(12,2)" json:"compare_at_price"`
	Position          int              `gorm:"not null;default:0" json:"position"`
}

// SampleIssue joins an order to a sample/free-issue product. The
// (order_id, product_id) pair is unique so re-submitting a sample line
// adjusts the quantity instead of duplicating the row.
type SampleIssue struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sample_order_product" json:"order_id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sample_order_product" json:"product_id"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	IssuedByID uuid.UUID `gorm:"type:uuid" json:"issued_by_id"`
	Product   Product   `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// Remark is a free-text staff annotation attached at a specific stage
type Remark struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	OrderID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"order_id"`
	Stage         string         `gorm:"not null" json:"stage"`
	Body          string         `gorm:"type:text;not null" json:"body"`
	ShowOnInvoice bool           `gorm:"not null;default:false" json:"show_on_invoice"`
	AuthorID      uuid.UUID      `gorm:"type:uuid;not null" json:"author_id"`
}

// FailedWebhook captures an external order event that could not be
// reconciled. The raw payload is kept verbatim so an operator (or the
// worker's replay job) can re-run the same ingestion procedure.
type FailedWebhook struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	ExternalID  string     `gorm:"not null;uniqueIndex:idx_failed_webhook_event" json:"external_id"`
	Topic       string     `gorm:"not null;uniqueIndex:idx_failed_webhook_event" json:"topic"`
	LocationID  uuid.UUID  `gorm:"type:uuid;not null" json:"location_id"`
	Payload     []byte     `gorm:"type:jsonb;not null" json:"-"`
	ErrorDetail string     `gorm:"type:text" json:"error_detail"`
	Attempts    int        `gorm:"not null;default:1" json:"attempts"`
	LastTriedAt *time.Time `json:"last_tried_at"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Location{},
		&Staff{},
		&Customer{},
		&Rider{},
		&Courier{},
		&HoldReason{},
		&Vendor{},
		&Category{},
		&Product{},
		&Order{},
		&OrderItem{},
		&SampleIssue{},
		&Remark{},
		&FailedWebhook{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
