package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/fulfillment"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/metrics"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/models"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/notify"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/repositories"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/tracing"
)

// FulfillmentService applies staff actions to orders. Every transition
// goes through the stage graph's decision and is committed under an
// optimistic guard on (stage, hold, ready); a lost race is re-read and
// retried once before surfacing as a conflict.
type FulfillmentService struct {
	orderRepo      orderStore
	sampleRepo     sampleStore
	remarkRepo     remarkStore
	catalogRepo    catalogStore
	riderRepo      riderStore
	courierRepo    courierStore
	holdReasonRepo holdReasonStore

	dispatcher    notifier
	elasticClient orderIndexer
	tracer        tracing.Tracer
	metrics       *metrics.Collector
}

// NewFulfillmentService wires a fulfillment service onto the shared
// database pair and infrastructure clients.
func NewFulfillmentService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	elasticClient orderIndexer,
	dispatcher notifier,
	tracer tracing.Tracer,
	collector *metrics.Collector,
) *FulfillmentService {
	return &FulfillmentService{
		orderRepo:      repositories.NewOrderRepository(db, readOnlyDB),
		sampleRepo:     repositories.NewSampleIssueRepository(db, readOnlyDB),
		remarkRepo:     repositories.NewRemarkRepository(db, readOnlyDB),
		catalogRepo:    repositories.NewCatalogRepository(db, readOnlyDB),
		riderRepo:      repositories.NewRiderRepository(db, readOnlyDB),
		courierRepo:    repositories.NewCourierRepository(db, readOnlyDB),
		holdReasonRepo: repositories.NewHoldReasonRepository(db, readOnlyDB),
		dispatcher:     dispatcher,
		elasticClient:  elasticClient,
		tracer:         tracer,
		metrics:        collector,
	}
}

// GetOrder returns one order of the caller's location with its items,
// samples and remarks preloaded.
func (s *FulfillmentService) GetOrder(ctx context.Context, caller Caller, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID, caller.LocationID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

// ListOrders returns the caller's location orders sitting at a stage
func (s *FulfillmentService) ListOrders(ctx context.Context, caller Caller, stage fulfillment.Stage, limit int) ([]models.Order, error) {
	if !stage.Valid() {
		return nil, &fulfillment.InvalidStageError{Action: "list", Stage: stage, Detail: "unknown stage"}
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.orderRepo.ListByStage(ctx, caller.LocationID, stage.String(), limit)
}

// Apply runs one staff action against an order. On success it returns a
// fresh snapshot reflecting the committed transition.
func (s *FulfillmentService) Apply(ctx context.Context, caller Caller, orderID uuid.UUID, act fulfillment.Action) (*models.Order, error) {
	txn := s.tracer.StartTransaction("apply-fulfillment-action")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "action", act.Name())

	if !caller.Can(act.Name()) {
		return nil, ErrPermissionDenied
	}

	order, err := s.orderRepo.GetByID(ctx, orderID, caller.LocationID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}

	rider, err := s.checkReferences(ctx, caller, act)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	outcome, err := s.commit(ctx, order, act, caller)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	if len(outcome.Samples) > 0 {
		issues := make([]models.SampleIssue, 0, len(outcome.Samples))
		for _, line := range outcome.Samples {
			issues = append(issues, models.SampleIssue{
				ID:         uuid.New(),
				OrderID:    order.ID,
				ProductID:  line.ProductID,
				Quantity:   line.Quantity,
				IssuedByID: caller.StaffID,
			})
		}
		if err := s.sampleRepo.Upsert(ctx, issues); err != nil {
			return nil, err
		}
	}

	fresh, err := s.orderRepo.Reload(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.Increment(metrics.CounterTransitions)
	s.notify(fresh, outcome, rider)
	s.index(fresh)

	log.Info().
		Str("order", fresh.Name).
		Str("action", act.Name()).
		Str("stage", fresh.FulfillmentStage).
		Str("staff_id", caller.StaffID.String()).
		Msg("fulfillment action applied")
	return fresh, nil
}

// commit decides and writes the transition, re-reading and retrying
// once when the guarded update loses a race.
func (s *FulfillmentService) commit(ctx context.Context, order *models.Order, act fulfillment.Action, caller Caller) (*fulfillment.Outcome, error) {
	for attempt := 0; attempt < 2; attempt++ {
		outcome, err := fulfillment.Decide(order, act, caller.StaffID, time.Now())
		if err != nil {
			return nil, err
		}

		applied, err := s.orderRepo.UpdateGuarded(
			ctx, order.ID,
			order.FulfillmentStage, order.OnHold(), order.Ready(),
			outcome.Updates,
		)
		if err != nil {
			return nil, err
		}
		if applied {
			return outcome, nil
		}

		s.metrics.Increment(metrics.CounterTransitionConflict)
		log.Warn().
			Str("order", order.Name).
			Str("action", act.Name()).
			Int("attempt", attempt+1).
			Msg("guarded transition lost a concurrent race")

		order, err = s.orderRepo.Reload(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, ErrNotFound
		}
	}
	return nil, ErrConflict
}

// checkReferences resolves the lookup rows an action points at before
// any transition is decided. Returns the rider when the action is a
// rider dispatch, so the rider notification can be rendered afterwards.
func (s *FulfillmentService) checkReferences(ctx context.Context, caller Caller, act fulfillment.Action) (*models.Rider, error) {
	switch a := act.(type) {
	case fulfillment.AddSamples:
		for _, line := range a.Lines {
			product, err := s.catalogRepo.GetProduct(ctx, line.ProductID)
			if err != nil {
				return nil, err
			}
			if product == nil || !product.IsSample {
				return nil, &ReferenceNotFoundError{Kind: "sample product", ID: line.ProductID.String()}
			}
		}
	case fulfillment.PutOnHold:
		reason, err := s.holdReasonRepo.GetActive(ctx, a.ReasonID)
		if err != nil {
			return nil, err
		}
		if reason == nil {
			return nil, &ReferenceNotFoundError{Kind: "hold reason", ID: a.ReasonID.String()}
		}
	case fulfillment.Dispatch:
		if a.RiderID != nil {
			rider, err := s.riderRepo.GetActive(ctx, *a.RiderID, caller.LocationID)
			if err != nil {
				return nil, err
			}
			if rider == nil {
				return nil, &ReferenceNotFoundError{Kind: "rider", ID: a.RiderID.String()}
			}
			return rider, nil
		}
		if a.CourierID != nil {
			courier, err := s.courierRepo.GetActive(ctx, *a.CourierID)
			if err != nil {
				return nil, err
			}
			if courier == nil {
				return nil, &ReferenceNotFoundError{Kind: "courier", ID: a.CourierID.String()}
			}
		}
	}
	return nil, nil
}

func (s *FulfillmentService) notify(order *models.Order, outcome *fulfillment.Outcome, rider *models.Rider) {
	for _, trigger := range outcome.Notifications {
		if trigger == fulfillment.TriggerRiderDispatched {
			if msg, ok := notify.ForRider(order, rider, outcome.DeliveryToken, s.dispatcher.LinkBaseURL()); ok {
				s.dispatcher.Submit(msg)
			}
			continue
		}
		if msg, ok := notify.ForCustomer(trigger, order); ok {
			s.dispatcher.Submit(msg)
		}
	}
}

func (s *FulfillmentService) index(order *models.Order) {
	if s.elasticClient == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.elasticClient.IndexOrder(ctx, order); err != nil {
			log.Warn().Err(err).Str("order", order.Name).Msg("failed to index order")
		}
	}()
}

// ConfirmDelivery completes delivery via the rider's token link. The
// token stands in for staff identity, so the delivered_by stamp is the
// dispatching staff member already on the order.
func (s *FulfillmentService) ConfirmDelivery(ctx context.Context, token string) (*models.Order, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	order, err := s.orderRepo.FindByDeliveryToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}

	actorID := uuid.Nil
	if order.DispatchedByID != nil {
		actorID = *order.DispatchedByID
	}

	outcome, err := fulfillment.Decide(order, fulfillment.MarkDelivered{}, actorID, time.Now())
	if err != nil {
		return nil, err
	}
	applied, err := s.orderRepo.UpdateGuarded(ctx, order.ID, order.FulfillmentStage, order.OnHold(), order.Ready(), outcome.Updates)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrConflict
	}

	fresh, err := s.orderRepo.Reload(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.Increment(metrics.CounterTransitions)
	s.notify(fresh, outcome, nil)
	s.index(fresh)
	return fresh, nil
}

// AddRemark attaches a staff note to an order at its current stage
func (s *FulfillmentService) AddRemark(ctx context.Context, caller Caller, orderID uuid.UUID, body string, showOnInvoice bool) (*models.Remark, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID, caller.LocationID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}

	remark := &models.Remark{
		ID:            uuid.New(),
		OrderID:       order.ID,
		Stage:         order.FulfillmentStage,
		Body:          body,
		ShowOnInvoice: showOnInvoice,
		AuthorID:      caller.StaffID,
	}
	if err := s.remarkRepo.Create(ctx, remark); err != nil {
		return nil, err
	}
	return remark, nil
}

// UpdateRemark edits a remark's body and invoice visibility
func (s *FulfillmentService) UpdateRemark(ctx context.Context, caller Caller, orderID, remarkID uuid.UUID, body string, showOnInvoice bool) error {
	order, err := s.orderRepo.GetByID(ctx, orderID, caller.LocationID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrNotFound
	}
	if err := s.remarkRepo.Update(ctx, remarkID, body, showOnInvoice); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// DeleteRemark removes a remark from an order
func (s *FulfillmentService) DeleteRemark(ctx context.Context, caller Caller, orderID, remarkID uuid.UUID) error {
	order, err := s.orderRepo.GetByID(ctx, orderID, caller.LocationID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrNotFound
	}
	if err := s.remarkRepo.Delete(ctx, remarkID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
