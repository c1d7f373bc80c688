package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/models"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/notify"
)

// Storage surfaces consumed by the services. The concrete
// implementations live in the repositories package; the services depend
// on these narrow views so business logic can be tested against mocks.

type orderStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.Order, error)
	FindByDeliveryToken(ctx context.Context, token string) (*models.Order, error)
	GetByID(ctx context.Context, id, locationID uuid.UUID) (*models.Order, error)
	Reload(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Create(ctx context.Context, order *models.Order) (bool, error)
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateGuarded(ctx context.Context, id uuid.UUID, expectedStage string, expectedOnHold, expectedReady bool, updates map[string]interface{}) (bool, error)
	ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error
	ListByStage(ctx context.Context, locationID uuid.UUID, stage string, limit int) ([]models.Order, error)
}

type sampleStore interface {
	Upsert(ctx context.Context, issues []models.SampleIssue) error
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.SampleIssue, error)
}

type remarkStore interface {
	Create(ctx context.Context, remark *models.Remark) error
	Update(ctx context.Context, id uuid.UUID, body string, showOnInvoice bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type customerStore interface {
	Upsert(ctx context.Context, customer *models.Customer) (*models.Customer, error)
}

type catalogStore interface {
	ResolveProduct(ctx context.Context, line models.OrderEventLine) (*models.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type staffStore interface {
	ResolveRep(ctx context.Context, locationID uuid.UUID, hint string) (*models.Staff, error)
}

type riderStore interface {
	GetActive(ctx context.Context, id, locationID uuid.UUID) (*models.Rider, error)
}

type courierStore interface {
	GetActive(ctx context.Context, id uuid.UUID) (*models.Courier, error)
}

type holdReasonStore interface {
	GetActive(ctx context.Context, id uuid.UUID) (*models.HoldReason, error)
}

type failedEventStore interface {
	Record(ctx context.Context, record *models.FailedWebhook) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.FailedWebhook, error)
	ListOldest(ctx context.Context, limit int) ([]models.FailedWebhook, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type onceMarker interface {
	MarkOnce(ctx context.Context, key string, expiration time.Duration) (bool, error)
}

type orderIndexer interface {
	IndexOrder(ctx context.Context, order *models.Order) error
}

type notifier interface {
	Submit(msg notify.Message)
	LinkBaseURL() string
}
