package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/fulfillment"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/metrics"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/models"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/tracing"
)

type MockSampleStore struct {
	mock.Mock
}

func (m *MockSampleStore) Upsert(ctx context.Context, issues []models.SampleIssue) error {
	args := m.Called(ctx, issues)
	return args.Error(0)
}

func (m *MockSampleStore) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.SampleIssue, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]models.SampleIssue), args.Error(1)
}

type MockRiderStore struct {
	mock.Mock
}

func (m *MockRiderStore) GetActive(ctx context.Context, id, locationID uuid.UUID) (*models.Rider, error) {
	args := m.Called(ctx, id, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Rider), args.Error(1)
}

type MockCourierStore struct {
	mock.Mock
}

func (m *MockCourierStore) GetActive(ctx context.Context, id uuid.UUID) (*models.Courier, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Courier), args.Error(1)
}

type MockHoldReasonStore struct {
	mock.Mock
}

func (m *MockHoldReasonStore) GetActive(ctx context.Context, id uuid.UUID) (*models.HoldReason, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HoldReason), args.Error(1)
}

func staffCaller(locationID uuid.UUID) Caller {
	return Caller{
		StaffID:     uuid.New(),
		LocationID:  locationID,
		Permissions: map[string]bool{"*": true},
	}
}

func newFulfillmentFixture() (*FulfillmentService, *MockOrderStore, *MockSampleStore, *MockCatalogStore, *MockRiderStore, *MockCourierStore, *MockHoldReasonStore, *notifyRecorder) {
	orders := new(MockOrderStore)
	samples := new(MockSampleStore)
	catalog := new(MockCatalogStore)
	riders := new(MockRiderStore)
	couriers := new(MockCourierStore)
	reasons := new(MockHoldReasonStore)
	recorder := &notifyRecorder{}

	svc := &FulfillmentService{
		orderRepo:      orders,
		sampleRepo:     samples,
		catalogRepo:    catalog,
		riderRepo:      riders,
		courierRepo:    couriers,
		holdReasonRepo: reasons,
		dispatcher:     recorder,
		tracer:         &tracing.NewRelicTracer{},
		metrics:        metrics.NewCollector(),
	}
	return svc, orders, samples, catalog, riders, couriers, reasons, recorder
}

func readyOrder(locationID uuid.UUID) *models.Order {
	now := time.Now()
	return &models.Order{
		ID:               uuid.New(),
		ExternalID:       "450789469",
		Name:             "#1001",
		Channel:          models.ChannelWeb,
		LocationID:       locationID,
		FulfillmentStage: fulfillment.StageReadyToDispatch.String(),
		ReadyAt:          &now,
		ContactName:      "Nadeesha Perera",
		ContactPhone:     "+94771234567",
	}
}

func TestApplyPermissionDenied(t *testing.T) {
	svc, _, _, _, _, _, _, _ := newFulfillmentFixture()

	caller := Caller{StaffID: uuid.New(), LocationID: uuid.New(), Permissions: map[string]bool{
		fulfillment.ActionMarkReady: true,
	}}

	_, err := svc.Apply(context.Background(), caller, uuid.New(), fulfillment.Dispatch{})
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestApplyOrderNotFound(t *testing.T) {
	svc, orders, _, _, _, _, _, _ := newFulfillmentFixture()
	caller := staffCaller(uuid.New())
	orderID := uuid.New()

	orders.On("GetByID", mock.Anything, orderID, caller.LocationID).Return(nil, nil)

	_, err := svc.Apply(context.Background(), caller, orderID, fulfillment.AdvanceToPrint{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestApplyDispatchWithRider(t *testing.T) {
	svc, orders, _, _, riders, _, _, recorder := newFulfillmentFixture()
	caller := staffCaller(uuid.New())
	order := readyOrder(caller.LocationID)
	riderID := uuid.New()
	rider := &models.Rider{ID: riderID, LocationID: caller.LocationID, Name: "Kasun", Phone: "+94770000001", Active: true}

	orders.On("GetByID", mock.Anything, order.ID, caller.LocationID).Return(order, nil)
	riders.On("GetActive", mock.Anything, riderID, caller.LocationID).Return(rider, nil)

	var token string
	orders.On("UpdateGuarded", mock.Anything, order.ID,
		fulfillment.StageReadyToDispatch.String(), false, true,
		mock.MatchedBy(func(updates map[string]interface{}) bool {
			if updates["fulfillment_stage"] != fulfillment.StageDispatched.String() {
				return false
			}
			tok, ok := updates["delivery_token"].(string)
			if !ok || tok == "" {
				return false
			}
			token = tok
			return true
		})).Return(true, nil)
	orders.On("Reload", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.Apply(context.Background(), caller, order.ID, fulfillment.Dispatch{RiderID: &riderID})
	require.NoError(t, err)

	messages := recorder.all()
	require.Len(t, messages, 2)

	byTrigger := map[string]string{}
	for _, msg := range messages {
		byTrigger[msg.Trigger] = msg.Body
	}
	require.Contains(t, byTrigger, fulfillment.TriggerOrderDispatched)
	require.Contains(t, byTrigger, fulfillment.TriggerRiderDispatched)

	// The rider message carries the delivery confirmation link with the
	// token that was persisted on the order.
	require.True(t, strings.Contains(byTrigger[fulfillment.TriggerRiderDispatched],
		"https://fulfillment.example.com/delivery/confirm/"+token))
}

func TestApplyDispatchUnknownRider(t *testing.T) {
	svc, orders, _, _, riders, _, _, _ := newFulfillmentFixture()
	caller := staffCaller(uuid.New())
	order := readyOrder(caller.LocationID)
	riderID := uuid.New()

	orders.On("GetByID", mock.Anything, order.ID, caller.LocationID).Return(order, nil)
	riders.On("GetActive", mock.Anything, riderID, caller.LocationID).Return(nil, nil)

	_, err := svc.Apply(context.Background(), caller, order.ID, fulfillment.Dispatch{RiderID: &riderID})

	var refErr *ReferenceNotFoundError
	require.ErrorAs(t, err, &refErr)
	require.Equal(t, "rider", refErr.Kind)
	orders.AssertNotCalled(t, "UpdateGuarded", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyConflictAfterRetry(t *testing.T) {
	svc, orders, _, _, _, _, _, _ := newFulfillmentFixture()
	caller := staffCaller(uuid.New())
	order := readyOrder(caller.LocationID)

	orders.On("GetByID", mock.Anything, order.ID, caller.LocationID).Return(order, nil)
	// Another staff member keeps winning the guarded write.
	orders.On("UpdateGuarded", mock.Anything, order.ID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, nil)
	orders.On("Reload", mock.Anything, order.ID).Return(order, nil)

	courierID := uuid.New()
	svc.courierRepo.(*MockCourierStore).
		On("GetActive", mock.Anything, courierID).
		Return(&models.Courier{ID: courierID, Name: "CityPak", Active: true}, nil)

	_, err := svc.Apply(context.Background(), caller, order.ID, fulfillment.Dispatch{CourierID: &courierID})
	require.ErrorIs(t, err, ErrConflict)

	require.Equal(t, int64(2), svc.metrics.Counters()[metrics.CounterTransitionConflict])
}

func TestApplyRetryWinsSecondAttempt(t *testing.T) {
	svc, orders, _, _, _, _, _, _ := newFulfillmentFixture()
	caller := staffCaller(uuid.New())
	order := readyOrder(caller.LocationID)

	orders.On("GetByID", mock.Anything, order.ID, caller.LocationID).Return(order, nil)
	orders.On("UpdateGuarded", mock.Anything, order.ID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, nil).Once()
	orders.On("UpdateGuarded", mock.Anything, order.ID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(true, nil).Once()
	orders.On("Reload", mock.Anything, order.ID).Return(order, nil)

	courierID := uuid.New()
	svc.courierRepo.(*MockCourierStore).
		On("GetActive", mock.Anything, courierID).
		Return(&models.Courier{ID: courierID, Name: "CityPak", Active: true}, nil)

	_, err := svc.Apply(context.Background(), caller, order.ID, fulfillment.Dispatch{CourierID: &courierID})
	require.NoError(t, err)
}

func TestApplyAddSamplesPersistsIssues(t *testing.T) {
	svc, orders, samples, catalog, _, _, _, _ := newFulfillmentFixture()
	caller := staffCaller(uuid.New())
	productID := uuid.New()

	order := &models.Order{
		ID:               uuid.New(),
		Name:             "#1002",
		Channel:          models.ChannelWeb,
		LocationID:       caller.LocationID,
		FulfillmentStage: fulfillment.StageOrderReceived.String(),
	}

	orders.On("GetByID", mock.Anything, order.ID, caller.LocationID).Return(order, nil)
	catalog.On("GetProduct", mock.Anything, productID).
		Return(&models.Product{ID: productID, IsSample: true}, nil)
	orders.On("UpdateGuarded", mock.Anything, order.ID,
		fulfillment.StageOrderReceived.String(), false, false,
		mock.MatchedBy(func(updates map[string]interface{}) bool {
			return updates["fulfillment_stage"] == fulfillment.StageSampleFreeIssue.String()
		})).Return(true, nil)
	samples.On("Upsert", mock.Anything, mock.MatchedBy(func(issues []models.SampleIssue) bool {
		return len(issues) == 1 && issues[0].ProductID == productID && issues[0].Quantity == 2
	})).Return(nil)
	orders.On("Reload", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.Apply(context.Background(), caller, order.ID, fulfillment.AddSamples{
		Lines: []fulfillment.SampleLine{{ProductID: productID, Quantity: 2}},
	})
	require.NoError(t, err)
	samples.AssertExpectations(t)
}

func TestApplyAddSamplesRejectsNonSampleProduct(t *testing.T) {
	svc, orders, _, catalog, _, _, _, _ := newFulfillmentFixture()
	caller := staffCaller(uuid.New())
	productID := uuid.New()

	order := &models.Order{
		ID:               uuid.New(),
		LocationID:       caller.LocationID,
		FulfillmentStage: fulfillment.StageOrderReceived.String(),
	}

	orders.On("GetByID", mock.Anything, order.ID, caller.LocationID).Return(order, nil)
	catalog.On("GetProduct", mock.Anything, productID).
		Return(&models.Product{ID: productID, IsSample: false}, nil)

	_, err := svc.Apply(context.Background(), caller, order.ID, fulfillment.AddSamples{
		Lines: []fulfillment.SampleLine{{ProductID: productID, Quantity: 1}},
	})

	var refErr *ReferenceNotFoundError
	require.ErrorAs(t, err, &refErr)
}

func TestConfirmDeliveryByToken(t *testing.T) {
	svc, orders, _, _, _, _, _, recorder := newFulfillmentFixture()

	dispatcherID := uuid.New()
	now := time.Now()
	order := &models.Order{
		ID:               uuid.New(),
		Name:             "#1003",
		Channel:          models.ChannelWeb,
		LocationID:       uuid.New(),
		FulfillmentStage: fulfillment.StageDispatched.String(),
		ReadyAt:          &now,
		DispatchedAt:     &now,
		DispatchedByID:   &dispatcherID,
		DeliveryToken:    "tok-abc",
		ContactPhone:     "+94771234567",
	}

	orders.On("FindByDeliveryToken", mock.Anything, "tok-abc").Return(order, nil)
	orders.On("UpdateGuarded", mock.Anything, order.ID,
		fulfillment.StageDispatched.String(), false, true,
		mock.MatchedBy(func(updates map[string]interface{}) bool {
			return updates["fulfillment_stage"] == fulfillment.StageDeliveryComplete.String() &&
				updates["delivered_by_id"] == dispatcherID
		})).Return(true, nil)
	orders.On("Reload", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.ConfirmDelivery(context.Background(), "tok-abc")
	require.NoError(t, err)

	messages := recorder.all()
	require.Len(t, messages, 1)
	require.Equal(t, fulfillment.TriggerOrderDelivered, messages[0].Trigger)
}

func TestConfirmDeliveryUnknownToken(t *testing.T) {
	svc, orders, _, _, _, _, _, _ := newFulfillmentFixture()

	orders.On("FindByDeliveryToken", mock.Anything, "nope").Return(nil, nil)

	_, err := svc.ConfirmDelivery(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompletePOSSkipsNotifications(t *testing.T) {
	svc, orders, _, _, _, _, _, recorder := newFulfillmentFixture()
	caller := staffCaller(uuid.New())

	order := &models.Order{
		ID:               uuid.New(),
		Name:             "#POS-17",
		Channel:          models.ChannelPOS,
		LocationID:       caller.LocationID,
		FulfillmentStage: fulfillment.StageOrderReceived.String(),
		ContactPhone:     "+94771234567",
	}

	orders.On("GetByID", mock.Anything, order.ID, caller.LocationID).Return(order, nil)
	orders.On("UpdateGuarded", mock.Anything, order.ID,
		fulfillment.StageOrderReceived.String(), false, false,
		mock.MatchedBy(func(updates map[string]interface{}) bool {
			return updates["fulfillment_stage"] == fulfillment.StageDeliveryComplete.String() &&
				updates["invoice_completed_at"] != nil
		})).Return(true, nil)
	orders.On("Reload", mock.Anything, order.ID).Return(order, nil)

	_, err := svc.Apply(context.Background(), caller, order.ID, fulfillment.CompletePOS{})
	require.NoError(t, err)
	require.Empty(t, recorder.all())
}
