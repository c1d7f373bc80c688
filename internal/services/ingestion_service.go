package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/cache"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/fulfillment"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/metrics"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/models"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/notify"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/repositories"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/tracing"
)

// receivedMarkerTTL bounds the once-only marker for the order_received
// notification. Replays of the same external event land well inside it.
const receivedMarkerTTL = 7 * 24 * time.Hour

// TopicOrderCreate and TopicOrderUpdate partition inbound order events.
// The two topics run the same reconciliation procedure; the split only
// matters for the uniqueness of captured failures.
const (
	TopicOrderCreate = "orders/create"
	TopicOrderUpdate = "orders/update"
)

// IngestionService reconciles inbound order events against stored
// orders. The procedure is idempotent: applying the same event any
// number of times converges on the same stored state, and failures are
// captured for replay instead of being dropped.
type IngestionService struct {
	orderRepo    orderStore
	customerRepo customerStore
	staffRepo    staffStore
	catalogRepo  catalogStore
	failedRepo   failedEventStore

	cache         onceMarker
	elasticClient orderIndexer
	dispatcher    notifier
	tracer        tracing.Tracer
	metrics       *metrics.Collector
}

// NewIngestionService wires an ingestion service onto the shared
// database pair and infrastructure clients.
func NewIngestionService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	redisCache *cache.RedisCache,
	elasticClient orderIndexer,
	dispatcher notifier,
	tracer tracing.Tracer,
	collector *metrics.Collector,
) *IngestionService {
	return &IngestionService{
		orderRepo:     repositories.NewOrderRepository(db, readOnlyDB),
		customerRepo:  repositories.NewCustomerRepository(db, readOnlyDB),
		staffRepo:     repositories.NewStaffRepository(db, readOnlyDB),
		catalogRepo:   repositories.NewCatalogRepository(db, readOnlyDB),
		failedRepo:    repositories.NewFailedWebhookRepository(db, readOnlyDB),
		cache:         redisCache,
		elasticClient: elasticClient,
		dispatcher:    dispatcher,
		tracer:        tracer,
		metrics:       collector,
	}
}

// ProcessOrderEvent runs the full reconciliation procedure for one raw
// inbound event. Any failure is captured as a FailedWebhook keyed by
// (external id, topic) before the error is returned, so the event can
// be replayed later.
func (s *IngestionService) ProcessOrderEvent(ctx context.Context, raw []byte, topic string, locationID uuid.UUID) (*models.Order, error) {
	txn := s.tracer.StartTransaction("process-order-event")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "topic", topic)

	order, err := s.reconcile(ctx, raw, topic, locationID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.Increment(metrics.CounterEventsFailed)
		s.capture(ctx, raw, topic, locationID, err)
		return nil, err
	}

	s.metrics.Increment(metrics.CounterEventsIngested)
	return order, nil
}

func (s *IngestionService) reconcile(ctx context.Context, raw []byte, topic string, locationID uuid.UUID) (*models.Order, error) {
	event, err := models.ParseOrderEvent(raw)
	if err != nil {
		return nil, &IngestionError{Reason: IngestReasonMalformed, Err: err}
	}

	customerID, contact, err := s.resolveCustomer(ctx, event)
	if err != nil {
		return nil, &IngestionError{Reason: IngestReasonStorage, Err: err}
	}

	rep, err := s.staffRepo.ResolveRep(ctx, locationID, event.AssignedRep)
	if err != nil {
		return nil, &IngestionError{Reason: IngestReasonStorage, Err: err}
	}
	var repID *uuid.UUID
	if rep != nil {
		repID = &rep.ID
	}

	items, err := s.resolveItems(ctx, event)
	if err != nil {
		return nil, &IngestionError{Reason: IngestReasonReference, Err: err}
	}

	existing, err := s.orderRepo.FindByExternalID(ctx, event.ExternalID.String())
	if err != nil {
		return nil, &IngestionError{Reason: IngestReasonStorage, Err: err}
	}

	now := time.Now()

	if existing == nil {
		order := buildOrder(event, raw, locationID, customerID, contact, repID, now)
		created, err := s.orderRepo.Create(ctx, order)
		if err != nil {
			return nil, &IngestionError{Reason: IngestReasonStorage, Err: err}
		}
		if created {
			if err := s.orderRepo.ReplaceItems(ctx, order.ID, items); err != nil {
				return nil, &IngestionError{Reason: IngestReasonStorage, Err: err}
			}
			s.metrics.Increment(metrics.CounterOrdersCreated)
			s.notifyReceived(ctx, order)
			s.index(order)
			log.Info().
				Str("order", order.Name).
				Str("external_id", order.ExternalID).
				Str("stage", order.FulfillmentStage).
				Msg("order created from event")
			return order, nil
		}

		// Lost a concurrent create on the external id; re-read and
		// fall through to the update path.
		existing, err = s.orderRepo.FindByExternalID(ctx, event.ExternalID.String())
		if err != nil || existing == nil {
			return nil, &IngestionError{Reason: IngestReasonStorage,
				Err: errors.New("order insert was skipped but the row could not be re-read")}
		}
	}

	updates := ingestionUpdates(event, raw, customerID, contact, repID)

	// Paid fast-forward: a fully paid order skips the physical pipeline.
	// Only financial and contact columns are touched here; staff-stamped
	// stage fields stay untouched.
	if event.Paid() && fulfillment.Stage(existing.FulfillmentStage).Before(fulfillment.StageDeliveryComplete) {
		updates["fulfillment_stage"] = fulfillment.StageInvoiceComplete.String()
		updates["invoice_completed_at"] = now
	}

	if err := s.orderRepo.UpdateFields(ctx, existing.ID, updates); err != nil {
		return nil, &IngestionError{Reason: IngestReasonStorage, Err: err}
	}
	if err := s.orderRepo.ReplaceItems(ctx, existing.ID, items); err != nil {
		return nil, &IngestionError{Reason: IngestReasonStorage, Err: err}
	}

	order, err := s.orderRepo.Reload(ctx, existing.ID)
	if err != nil {
		return nil, &IngestionError{Reason: IngestReasonStorage, Err: err}
	}
	s.index(order)

	log.Info().
		Str("order", order.Name).
		Str("external_id", order.ExternalID).
		Str("stage", order.FulfillmentStage).
		Msg("order updated from event")
	return order, nil
}

func (s *IngestionService) resolveCustomer(ctx context.Context, event *models.OrderEvent) (*uuid.UUID, *models.EventCustomer, error) {
	if event.Customer == nil || event.Customer.ExternalID.String() == "" {
		return nil, event.Customer, nil
	}

	customer, err := s.customerRepo.Upsert(ctx, &models.Customer{
		ID:         uuid.New(),
		ExternalID: event.Customer.ExternalID.String(),
		FirstName:  event.Customer.FirstName,
		LastName:   event.Customer.LastName,
		Phone:      event.Customer.Phone,
		Email:      event.Customer.Email,
	})
	if err != nil {
		return nil, nil, err
	}
	return &customer.ID, event.Customer, nil
}

func (s *IngestionService) resolveItems(ctx context.Context, event *models.OrderEvent) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(event.LineItems))
	for i, line := range event.LineItems {
		product, err := s.catalogRepo.ResolveProduct(ctx, line)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve line item variant %s", line.VariantID.String())
		}
		item := models.OrderItem{
			ID:                uuid.New(),
			ExternalVariantID: line.VariantID.String(),
			Title:             line.Title,
			SKU:               line.SKU,
			Barcode:           line.Barcode,
			Quantity:          line.Quantity,
			UnitPrice:         line.Price,
			CompareAtPrice:    line.CompareAtPrice,
			Position:          i,
		}
		if product != nil {
			item.ProductID = &product.ID
		}
		items = append(items, item)
	}
	return items, nil
}

// notifyReceived submits the one-time order_received notification. The
// marker in Redis keeps replayed events from re-notifying; when the
// cache is unavailable the insert outcome alone decides, which is still
// once-only because the insert itself is conflict-guarded.
func (s *IngestionService) notifyReceived(ctx context.Context, order *models.Order) {
	first, err := s.cache.MarkOnce(ctx, cache.ReceivedNotifyKey(order.ExternalID), receivedMarkerTTL)
	if err != nil {
		log.Warn().Err(err).Str("order", order.Name).Msg("received-notification marker unavailable")
		first = true
	}
	if !first {
		return
	}
	if msg, ok := notify.ForCustomer(fulfillment.TriggerOrderReceived, order); ok {
		s.dispatcher.Submit(msg)
	}
}

func (s *IngestionService) index(order *models.Order) {
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

// capture stores the failed event for replay. A repeated failure of the
// same (external id, topic) pair bumps the attempt counter instead of
// inserting a second row.
func (s *IngestionService) capture(ctx context.Context, raw []byte, topic string, locationID uuid.UUID, cause error) {
	externalID := probeExternalID(raw)
	now := time.Now()

	record := &models.FailedWebhook{
		ID:          uuid.New(),
		ExternalID:  externalID,
		Topic:       topic,
		LocationID:  locationID,
		Payload:     raw,
		ErrorDetail: cause.Error(),
		Attempts:    1,
		LastTriedAt: &now,
	}
	if err := s.failedRepo.Record(ctx, record); err != nil {
		log.Error().Err(err).
			Str("external_id", externalID).
			Str("topic", topic).
			Msg("failed to capture ingestion failure")
		return
	}

	log.Warn().
		Str("external_id", externalID).
		Str("topic", topic).
		Str("cause", cause.Error()).
		Msg("ingestion failure captured for replay")
}

// probeExternalID pulls the external order id out of a payload that may
// not parse as a full event, so even malformed captures stay keyed.
func probeExternalID(raw []byte) string {
	var probe struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.ID.String() != "" {
		return probe.ID.String()
	}
	return "unparseable"
}

func buildOrder(
	event *models.OrderEvent,
	raw []byte,
	locationID uuid.UUID,
	customerID *uuid.UUID,
	contact *models.EventCustomer,
	repID *uuid.UUID,
	now time.Time,
) *models.Order {
	order := &models.Order{
		ID:         uuid.New(),
		ExternalID: event.ExternalID.String(),
		Name:       orderName(event),
		Channel:    channelOf(event),
		LocationID: locationID,
		PlacedAt:   event.CreatedAt,

		TotalPrice:      event.TotalPrice,
		SubtotalPrice:   event.SubtotalPrice,
		TotalDiscounts:  event.TotalDiscounts,
		TotalTax:        event.TotalTax,
		ShippingCharge:  shippingCharge(event),
		Currency:        event.Currency,
		FinancialStatus: event.FinancialStatus,

		CustomerID:      customerID,
		ShippingAddress: event.ShippingAddress,
		BillingAddress:  event.BillingAddress,
		RawPayload:      raw,
		SalesRepID:      repID,

		FulfillmentStage: fulfillment.StageOrderReceived.String(),
	}

	if contact != nil {
		order.ContactName = contactName(contact)
		order.ContactPhone = contact.Phone
		order.ContactEmail = contact.Email
	}
	if order.PlacedAt.IsZero() {
		order.PlacedAt = now
	}

	// An order that arrives already paid never enters the physical
	// pipeline; it is seeded at the terminal stage.
	if event.Paid() {
		order.FulfillmentStage = fulfillment.StageInvoiceComplete.String()
		order.InvoiceCompletedAt = &now
	}

	return order
}

// ingestionUpdates builds the column delta an update event may touch.
// Stage timestamps, actor stamps and the hold/ready flags are owned by
// staff actions and never appear here.
func ingestionUpdates(event *models.OrderEvent, raw []byte, customerID *uuid.UUID, contact *models.EventCustomer, repID *uuid.UUID) map[string]interface{} {
	updates := map[string]interface{}{
		"name":             orderName(event),
		"total_price":      event.TotalPrice,
		"subtotal_price":   event.SubtotalPrice,
		"total_discounts":  event.TotalDiscounts,
		"total_tax":        event.TotalTax,
		"shipping_charge":  shippingCharge(event),
		"currency":         event.Currency,
		"financial_status": event.FinancialStatus,
		"raw_payload":      raw,
	}
	if len(event.ShippingAddress) > 0 {
		updates["shipping_address"] = []byte(event.ShippingAddress)
	}
	if len(event.BillingAddress) > 0 {
		updates["billing_address"] = []byte(event.BillingAddress)
	}
	if customerID != nil {
		updates["customer_id"] = *customerID
	}
	if contact != nil {
		updates["contact_name"] = contactName(contact)
		updates["contact_phone"] = contact.Phone
		updates["contact_email"] = contact.Email
	}
	if repID != nil {
		updates["sales_rep_id"] = *repID
	}
	return updates
}

func orderName(event *models.OrderEvent) string {
	if event.Name != "" {
		return event.Name
	}
	return "#" + event.ExternalID.String()
}

func channelOf(event *models.OrderEvent) string {
	if event.SourceName == "pos" {
		return models.ChannelPOS
	}
	return models.ChannelWeb
}

func shippingCharge(event *models.OrderEvent) decimal.Decimal {
	total := decimal.Zero
	for _, line := range event.ShippingLines {
		total = total.Add(line.Price)
	}
	return total
}

func contactName(contact *models.EventCustomer) string {
	name := contact.FirstName
	if contact.LastName != "" {
		if name != "" {
			name += " "
		}
		name += contact.LastName
	}
	return name
}

// ReplayFailedWebhook re-runs the stored reconciliation for one
// captured event and deletes the record on success.
func (s *IngestionService) ReplayFailedWebhook(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	record, err := s.failedRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}

	order, err := s.ProcessOrderEvent(ctx, record.Payload, record.Topic, record.LocationID)
	if err != nil {
		return nil, err
	}

	if err := s.failedRepo.Delete(ctx, id); err != nil {
		log.Error().Err(err).Str("id", id.String()).Msg("failed to clear replayed event record")
	}
	s.metrics.Increment(metrics.CounterEventsReplayed)

	log.Info().
		Str("external_id", record.ExternalID).
		Str("topic", record.Topic).
		Int("attempts", record.Attempts).
		Msg("captured event replayed successfully")
	return order, nil
}

// ReplayOldest replays up to limit of the oldest captured events. Used
// by the worker's periodic replay job; individual failures are logged
// and skipped so one poisoned event cannot stall the batch.
func (s *IngestionService) ReplayOldest(ctx context.Context, limit int) error {
	records, err := s.failedRepo.ListOldest(ctx, limit)
	if err != nil {
		return errors.Wrap(err, "failed to list captured events")
	}
	if len(records) == 0 {
		return nil
	}

	log.Info().Int("count", len(records)).Msg("replaying captured ingestion failures")
	for _, record := range records {
		if _, err := s.ReplayFailedWebhook(ctx, record.ID); err != nil {
			log.Warn().Err(err).
				Str("external_id", record.ExternalID).
				Str("topic", record.Topic).
				Msg("captured event replay failed, will retry next cycle")
		}
	}
	return nil
}

// ListFailedWebhooks exposes the oldest captured events for operators
func (s *IngestionService) ListFailedWebhooks(ctx context.Context, limit int) ([]models.FailedWebhook, error) {
	return s.failedRepo.ListOldest(ctx, limit)
}

// ProcessOrderMessage handles one order event consumed from the Service
// Bus queue. The location is carried as an application property; the
// topic defaults to the update topic when absent.
func (s *IngestionService) ProcessOrderMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	topic := TopicOrderUpdate
	if v, ok := message.ApplicationProperties["topic"].(string); ok && v != "" {
		topic = v
	}

	locationRaw, ok := message.ApplicationProperties["location_id"].(string)
	if !ok || locationRaw == "" {
		return errors.New("order event message is missing a location_id property")
	}
	locationID, err := uuid.Parse(locationRaw)
	if err != nil {
		return errors.Wrap(err, "order event message has an invalid location_id property")
	}

	_, err = s.ProcessOrderEvent(ctx, message.Body, topic, locationID)
	return err
}
