package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/fulfillment"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/metrics"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/models"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/notify"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/tracing"
)

// Mock stores for testing

type MockOrderStore struct {
	mock.Mock
}

func (m *MockOrderStore) FindByExternalID(ctx context.Context, externalID string) (*models.Order, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderStore) FindByDeliveryToken(ctx context.Context, token string) (*models.Order, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderStore) GetByID(ctx context.Context, id, locationID uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderStore) Reload(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderStore) Create(ctx context.Context, order *models.Order) (bool, error) {
	args := m.Called(ctx, order)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderStore) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	args := m.Called(ctx, id, updates)
	return args.Error(0)
}

func (m *MockOrderStore) UpdateGuarded(ctx context.Context, id uuid.UUID, expectedStage string, expectedOnHold, expectedReady bool, updates map[string]interface{}) (bool, error) {
	args := m.Called(ctx, id, expectedStage, expectedOnHold, expectedReady, updates)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderStore) ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *MockOrderStore) ListByStage(ctx context.Context, locationID uuid.UUID, stage string, limit int) ([]models.Order, error) {
	args := m.Called(ctx, locationID, stage, limit)
	return args.Get(0).([]models.Order), args.Error(1)
}

type MockCustomerStore struct {
	mock.Mock
}

func (m *MockCustomerStore) Upsert(ctx context.Context, customer *models.Customer) (*models.Customer, error) {
	args := m.Called(ctx, customer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}

type MockStaffStore struct {
	mock.Mock
}

func (m *MockStaffStore) ResolveRep(ctx context.Context, locationID uuid.UUID, hint string) (*models.Staff, error) {
	args := m.Called(ctx, locationID, hint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Staff), args.Error(1)
}

type MockCatalogStore struct {
	mock.Mock
}

func (m *MockCatalogStore) ResolveProduct(ctx context.Context, line models.OrderEventLine) (*models.Product, error) {
	args := m.Called(ctx, line)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockCatalogStore) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

type MockFailedEventStore struct {
	mock.Mock
}

func (m *MockFailedEventStore) Record(ctx context.Context, record *models.FailedWebhook) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockFailedEventStore) GetByID(ctx context.Context, id uuid.UUID) (*models.FailedWebhook, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FailedWebhook), args.Error(1)
}

func (m *MockFailedEventStore) ListOldest(ctx context.Context, limit int) ([]models.FailedWebhook, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.FailedWebhook), args.Error(1)
}

func (m *MockFailedEventStore) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockOnceMarker struct {
	mock.Mock
}

func (m *MockOnceMarker) MarkOnce(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	args := m.Called(ctx, key, expiration)
	return args.Bool(0), args.Error(1)
}

// notifyRecorder collects submitted notifications synchronously
type notifyRecorder struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (r *notifyRecorder) Submit(msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *notifyRecorder) LinkBaseURL() string {
	return "https://fulfillment.example.com"
}

func (r *notifyRecorder) all() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.messages...)
}

const orderEventJSON = `{
	"id": 450789469,
	"name": "#1001",
	"financial_status": "pending",
	"currency": "LKR",
	"created_at": "2026-05-01T10:00:00Z",
	"total_price": "4500.00",
	"subtotal_price": "4500.00",
	"line_items": [
		{"variant_id": 808950810, "title": "Rose Water Toner 100ml", "quantity": 2, "price": "2250.00", "vendor": "Chami", "product_type": "Toner"}
	],
	"customer": {"id": 115310627, "first_name": "Nadeesha", "last_name": "Perera", "phone": "+94771234567", "email": "nadeesha@example.com"}
}`

func newIngestionFixture() (*IngestionService, *MockOrderStore, *MockCustomerStore, *MockStaffStore, *MockCatalogStore, *MockFailedEventStore, *MockOnceMarker, *notifyRecorder) {
	orders := new(MockOrderStore)
	customers := new(MockCustomerStore)
	staff := new(MockStaffStore)
	catalog := new(MockCatalogStore)
	failed := new(MockFailedEventStore)
	marker := new(MockOnceMarker)
	recorder := &notifyRecorder{}

	svc := &IngestionService{
		orderRepo:    orders,
		customerRepo: customers,
		staffRepo:    staff,
		catalogRepo:  catalog,
		failedRepo:   failed,
		cache:        marker,
		dispatcher:   recorder,
		tracer:       &tracing.NewRelicTracer{},
		metrics:      metrics.NewCollector(),
	}
	return svc, orders, customers, staff, catalog, failed, marker, recorder
}

func TestProcessOrderEventCreatesOrder(t *testing.T) {
	svc, orders, customers, staff, catalog, _, marker, recorder := newIngestionFixture()
	locationID := uuid.New()

	customers.On("Upsert", mock.Anything, mock.AnythingOfType("*models.Customer")).
		Return(&models.Customer{ID: uuid.New(), ExternalID: "115310627"}, nil)
	staff.On("ResolveRep", mock.Anything, locationID, "").Return(nil, nil)
	catalog.On("ResolveProduct", mock.Anything, mock.AnythingOfType("models.OrderEventLine")).
		Return(&models.Product{ID: uuid.New(), ExternalVariantID: "808950810"}, nil)
	orders.On("FindByExternalID", mock.Anything, "450789469").Return(nil, nil)
	orders.On("Create", mock.Anything, mock.AnythingOfType("*models.Order")).Return(true, nil)
	orders.On("ReplaceItems", mock.Anything, mock.AnythingOfType("uuid.UUID"), mock.AnythingOfType("[]models.OrderItem")).Return(nil)
	marker.On("MarkOnce", mock.Anything, "notify:order_received:450789469", mock.Anything).Return(true, nil)

	order, err := svc.ProcessOrderEvent(context.Background(), []byte(orderEventJSON), TopicOrderCreate, locationID)

	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, "450789469", order.ExternalID)
	require.Equal(t, "#1001", order.Name)
	require.Equal(t, models.ChannelWeb, order.Channel)
	require.Equal(t, fulfillment.StageOrderReceived.String(), order.FulfillmentStage)
	require.Equal(t, "Nadeesha Perera", order.ContactName)

	messages := recorder.all()
	require.Len(t, messages, 1)
	require.Equal(t, fulfillment.TriggerOrderReceived, messages[0].Trigger)
	require.Equal(t, "+94771234567", messages[0].To)

	orders.AssertExpectations(t)
}

func TestProcessOrderEventIsIdempotent(t *testing.T) {
	svc, orders, customers, staff, catalog, _, marker, recorder := newIngestionFixture()
	locationID := uuid.New()
	existingID := uuid.New()

	existing := &models.Order{
		ID:               existingID,
		ExternalID:       "450789469",
		Name:             "#1001",
		LocationID:       locationID,
		FulfillmentStage: fulfillment.StageOrderReceived.String(),
		ContactPhone:     "+94771234567",
	}

	customers.On("Upsert", mock.Anything, mock.Anything).
		Return(&models.Customer{ID: uuid.New(), ExternalID: "115310627"}, nil)
	staff.On("ResolveRep", mock.Anything, locationID, "").Return(nil, nil)
	catalog.On("ResolveProduct", mock.Anything, mock.Anything).
		Return(&models.Product{ID: uuid.New()}, nil)
	orders.On("FindByExternalID", mock.Anything, "450789469").Return(existing, nil)
	orders.On("UpdateFields", mock.Anything, existingID, mock.Anything).Return(nil)
	orders.On("ReplaceItems", mock.Anything, existingID, mock.Anything).Return(nil)
	orders.On("Reload", mock.Anything, existingID).Return(existing, nil)

	// Apply the same event three times against the stored order.
	for i := 0; i < 3; i++ {
		order, err := svc.ProcessOrderEvent(context.Background(), []byte(orderEventJSON), TopicOrderUpdate, locationID)
		require.NoError(t, err)
		require.Equal(t, existingID, order.ID)
	}

	// Stage untouched, and the received notification never re-fires for
	// an order that already exists.
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	marker.AssertNotCalled(t, "MarkOnce", mock.Anything, mock.Anything, mock.Anything)
	require.Empty(t, recorder.all())

	for _, call := range orders.Calls {
		if call.Method == "UpdateFields" {
			updates := call.Arguments.Get(2).(map[string]interface{})
			require.NotContains(t, updates, "fulfillment_stage")
			require.NotContains(t, updates, "printed_at")
		}
	}
}

func TestPaidEventFastForwardsStoredOrder(t *testing.T) {
	svc, orders, customers, staff, catalog, _, _, _ := newIngestionFixture()
	locationID := uuid.New()
	existingID := uuid.New()

	existing := &models.Order{
		ID:               existingID,
		ExternalID:       "450789469",
		LocationID:       locationID,
		FulfillmentStage: fulfillment.StagePrint.String(),
	}

	paidEvent := []byte(`{
		"id": 450789469, "name": "#1001", "financial_status": "paid", "currency": "LKR",
		"total_price": "4500.00",
		"line_items": [{"variant_id": 808950810, "title": "Rose Water Toner 100ml", "quantity": 2, "price": "2250.00"}]
	}`)

	customers.On("Upsert", mock.Anything, mock.Anything).Return(&models.Customer{ID: uuid.New()}, nil)
	staff.On("ResolveRep", mock.Anything, locationID, "").Return(nil, nil)
	catalog.On("ResolveProduct", mock.Anything, mock.Anything).Return(&models.Product{ID: uuid.New()}, nil)
	orders.On("FindByExternalID", mock.Anything, "450789469").Return(existing, nil)
	orders.On("UpdateFields", mock.Anything, existingID, mock.MatchedBy(func(updates map[string]interface{}) bool {
		return updates["fulfillment_stage"] == fulfillment.StageInvoiceComplete.String() &&
			updates["invoice_completed_at"] != nil
	})).Return(nil)
	orders.On("ReplaceItems", mock.Anything, existingID, mock.Anything).Return(nil)
	orders.On("Reload", mock.Anything, existingID).Return(existing, nil)

	_, err := svc.ProcessOrderEvent(context.Background(), paidEvent, TopicOrderUpdate, locationID)
	require.NoError(t, err)
	orders.AssertExpectations(t)
}

func TestPaidOrderIsCreatedTerminal(t *testing.T) {
	svc, orders, _, staff, catalog, _, marker, _ := newIngestionFixture()
	locationID := uuid.New()

	paidEvent := []byte(`{
		"id": 990011, "financial_status": "paid", "currency": "LKR", "source_name": "pos",
		"total_price": "1200.00",
		"line_items": [{"variant_id": 555, "title": "Lip Balm", "quantity": 1, "price": "1200.00"}]
	}`)

	staff.On("ResolveRep", mock.Anything, locationID, "").Return(nil, nil)
	catalog.On("ResolveProduct", mock.Anything, mock.Anything).Return(&models.Product{ID: uuid.New()}, nil)
	orders.On("FindByExternalID", mock.Anything, "990011").Return(nil, nil)
	orders.On("Create", mock.Anything, mock.MatchedBy(func(order *models.Order) bool {
		return order.FulfillmentStage == fulfillment.StageInvoiceComplete.String() &&
			order.InvoiceCompletedAt != nil &&
			order.Channel == models.ChannelPOS
	})).Return(true, nil)
	orders.On("ReplaceItems", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	marker.On("MarkOnce", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	order, err := svc.ProcessOrderEvent(context.Background(), paidEvent, TopicOrderCreate, locationID)
	require.NoError(t, err)
	require.Equal(t, "#990011", order.Name)
	orders.AssertExpectations(t)
}

func TestMalformedEventIsCaptured(t *testing.T) {
	svc, _, _, _, _, failed, _, _ := newIngestionFixture()
	locationID := uuid.New()

	raw := []byte(`{"id": 12345, "currency": "LKR", "line_items": []}`)

	failed.On("Record", mock.Anything, mock.MatchedBy(func(record *models.FailedWebhook) bool {
		return record.ExternalID == "12345" && record.Topic == TopicOrderCreate && record.LocationID == locationID
	})).Return(nil)

	_, err := svc.ProcessOrderEvent(context.Background(), raw, TopicOrderCreate, locationID)
	require.Error(t, err)

	var ingestErr *IngestionError
	require.ErrorAs(t, err, &ingestErr)
	require.Equal(t, IngestReasonMalformed, ingestErr.Reason)
	failed.AssertExpectations(t)
}

func TestReplayDeletesRecordOnSuccess(t *testing.T) {
	svc, orders, customers, staff, catalog, failed, marker, _ := newIngestionFixture()
	locationID := uuid.New()
	recordID := uuid.New()

	failed.On("GetByID", mock.Anything, recordID).Return(&models.FailedWebhook{
		ID:         recordID,
		ExternalID: "450789469",
		Topic:      TopicOrderCreate,
		LocationID: locationID,
		Payload:    []byte(orderEventJSON),
		Attempts:   3,
	}, nil)
	customers.On("Upsert", mock.Anything, mock.Anything).Return(&models.Customer{ID: uuid.New()}, nil)
	staff.On("ResolveRep", mock.Anything, locationID, "").Return(nil, nil)
	catalog.On("ResolveProduct", mock.Anything, mock.Anything).Return(&models.Product{ID: uuid.New()}, nil)
	orders.On("FindByExternalID", mock.Anything, "450789469").Return(nil, nil)
	orders.On("Create", mock.Anything, mock.Anything).Return(true, nil)
	orders.On("ReplaceItems", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	// The replay lands after the original already claimed the marker, so
	// the customer is not notified a second time.
	marker.On("MarkOnce", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	failed.On("Delete", mock.Anything, recordID).Return(nil)

	order, err := svc.ReplayFailedWebhook(context.Background(), recordID)
	require.NoError(t, err)
	require.NotNil(t, order)
	failed.AssertExpectations(t)
}

func TestReplayMissingRecord(t *testing.T) {
	svc, _, _, _, _, failed, _, _ := newIngestionFixture()

	id := uuid.New()
	failed.On("GetByID", mock.Anything, id).Return(nil, nil)

	_, err := svc.ReplayFailedWebhook(context.Background(), id)
	require.ErrorIs(t, err, ErrNotFound)
}
