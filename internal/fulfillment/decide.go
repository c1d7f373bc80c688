// Package fulfillment encodes the fixed fulfillment stage graph: which
// staff actions are legal from which stage, and the field delta plus
// side-effect descriptors each legal transition produces. The package is
// pure; persistence and notification dispatch live in the services layer.
package fulfillment

import (
	"time"

	"github.com/google/uuid"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/models"
)

// Notification triggers emitted by transitions
const (
	TriggerOrderReceived   = "order_received"
	TriggerOrderDispatched = "order_dispatched"
	TriggerRiderDispatched = "rider_dispatched"
	TriggerOrderDelivered  = "order_delivered"
)

// Outcome is the accepted result of a transition decision: the target
// stage, the column delta to apply under the optimistic guard, and the
// side effects the engine performs after the write commits.
type Outcome struct {
	Stage         Stage
	Updates       map[string]interface{}
	Samples       []SampleLine
	DeliveryToken string
	Notifications []string
}

// Decide evaluates a staff action against the order's current stage and
// hold/ready flags. It mutates nothing: it either returns the delta to
// apply or a typed rejection.
func Decide(order *models.Order, act Action, actorID uuid.UUID, now time.Time) (*Outcome, error) {
	switch a := act.(type) {
	case AddSamples:
		return decideAddSamples(order, a, actorID, now)
	case AdvanceToPrint:
		return decideAdvanceToPrint(order, actorID, now)
	case PutOnHold:
		return decidePutOnHold(order, a, actorID, now)
	case MarkReady:
		return decideMarkReady(order, actorID, now)
	case RevertHold:
		return decideRevertHold(order, actorID, now)
	case Dispatch:
		return decideDispatch(order, a, actorID, now)
	case MarkDelivered:
		return decideMarkDelivered(order, actorID, now)
	case MarkInvoiceComplete:
		return decideMarkInvoiceComplete(order, actorID, now)
	case CompletePOS:
		return decideCompletePOS(order, actorID, now)
	default:
		return nil, &InvalidStageError{Action: act.Name(), Stage: Stage(order.FulfillmentStage), Detail: "unknown action"}
	}
}

func requireStage(order *models.Order, action string, allowed ...Stage) error {
	current := Stage(order.FulfillmentStage)
	for _, stage := range allowed {
		if current == stage {
			return nil
		}
	}
	return &InvalidStageError{Action: action, Stage: current}
}

func decideAddSamples(order *models.Order, a AddSamples, actorID uuid.UUID, now time.Time) (*Outcome, error) {
	if err := requireStage(order, ActionAddSamples, StageOrderReceived, StageSampleFreeIssue); err != nil {
		return nil, err
	}
	if len(a.Lines) == 0 {
		return nil, &MissingParameterError{Action: ActionAddSamples, Param: "at least one sample line"}
	}
	for _, line := range a.Lines {
		if line.ProductID == uuid.Nil {
			return nil, &MissingParameterError{Action: ActionAddSamples, Param: "a sample product id"}
		}
		if line.Quantity <= 0 {
			return nil, &MissingParameterError{Action: ActionAddSamples, Param: "a positive sample quantity"}
		}
	}

	return &Outcome{
		Stage: StageSampleFreeIssue,
		Updates: map[string]interface{}{
			"fulfillment_stage":   string(StageSampleFreeIssue),
			"sample_issued_at":    now,
			"sample_issued_by_id": actorID,
		},
		Samples: a.Lines,
	}, nil
}

func decideAdvanceToPrint(order *models.Order, actorID uuid.UUID, now time.Time) (*Outcome, error) {
	if err := requireStage(order, ActionAdvanceToPrint, StageOrderReceived, StageSampleFreeIssue); err != nil {
		return nil, err
	}

	return &Outcome{
		Stage: StagePrint,
		Updates: map[string]interface{}{
			"fulfillment_stage": string(StagePrint),
			"printed_at":        now,
			"printed_by_id":     actorID,
			"print_count":       order.PrintCount + 1,
		},
	}, nil
}

func decidePutOnHold(order *models.Order, a PutOnHold, actorID uuid.UUID, now time.Time) (*Outcome, error) {
	if err := requireStage(order, ActionPutOnHold, StagePrint, StageReadyToDispatch); err != nil {
		return nil, err
	}
	if a.ReasonID == uuid.Nil {
		return nil, &MissingParameterError{Action: ActionPutOnHold, Param: "a hold reason"}
	}

	return &Outcome{
		Stage: StageReadyToDispatch,
		Updates: map[string]interface{}{
			"fulfillment_stage": string(StageReadyToDispatch),
			"hold_at":           now,
			"held_by_id":        actorID,
			"hold_reason_id":    a.ReasonID,
			"ready_at":          nil,
			"ready_by_id":       nil,
		},
	}, nil
}

func decideMarkReady(order *models.Order, actorID uuid.UUID, now time.Time) (*Outcome, error) {
	if err := requireStage(order, ActionMarkReady, StagePrint, StageReadyToDispatch); err != nil {
		return nil, err
	}

	return &Outcome{
		Stage: StageReadyToDispatch,
		Updates: map[string]interface{}{
			"fulfillment_stage": string(StageReadyToDispatch),
			"ready_at":          now,
			"ready_by_id":       actorID,
			"hold_at":           nil,
			"held_by_id":        nil,
			"hold_reason_id":    nil,
		},
	}, nil
}

func decideRevertHold(order *models.Order, actorID uuid.UUID, now time.Time) (*Outcome, error) {
	if err := requireStage(order, ActionRevertHold, StagePrint, StageReadyToDispatch); err != nil {
		return nil, err
	}
	if !order.OnHold() {
		return nil, &InvalidStageError{
			Action: ActionRevertHold,
			Stage:  Stage(order.FulfillmentStage),
			Detail: "order is not on hold",
		}
	}

	return &Outcome{
		Stage: StageReadyToDispatch,
		Updates: map[string]interface{}{
			"fulfillment_stage": string(StageReadyToDispatch),
			"hold_at":           nil,
			"held_by_id":        nil,
			"hold_reason_id":    nil,
		},
	}, nil
}

func decideDispatch(order *models.Order, a Dispatch, actorID uuid.UUID, now time.Time) (*Outcome, error) {
	if err := requireStage(order, ActionDispatch, StageReadyToDispatch); err != nil {
		return nil, err
	}
	if order.OnHold() {
		return nil, &InvalidStageError{
			Action: ActionDispatch,
			Stage:  Stage(order.FulfillmentStage),
			Detail: "order is on hold",
		}
	}
	if !order.Ready() {
		return nil, &InvalidStageError{
			Action: ActionDispatch,
			Stage:  Stage(order.FulfillmentStage),
			Detail: "order has not been marked ready",
		}
	}
	if a.RiderID != nil && a.CourierID != nil {
		return nil, &ConflictingParameterError{Action: ActionDispatch, Params: "rider or courier"}
	}
	if a.RiderID == nil && a.CourierID == nil {
		return nil, &MissingParameterError{Action: ActionDispatch, Param: "a rider or a courier"}
	}

	updates := map[string]interface{}{
		"fulfillment_stage": string(StageDispatched),
		"dispatched_at":     now,
		"dispatched_by_id":  actorID,
	}

	outcome := &Outcome{
		Stage:         StageDispatched,
		Updates:       updates,
		Notifications: []string{TriggerOrderDispatched},
	}

	if a.RiderID != nil {
		token := uuid.NewString()
		updates["rider_id"] = *a.RiderID
		updates["delivery_token"] = token
		outcome.DeliveryToken = token
		outcome.Notifications = append(outcome.Notifications, TriggerRiderDispatched)
	} else {
		updates["courier_id"] = *a.CourierID
	}

	return outcome, nil
}

func decideMarkDelivered(order *models.Order, actorID uuid.UUID, now time.Time) (*Outcome, error) {
	if err := requireStage(order, ActionMarkDelivered, StageDispatched); err != nil {
		return nil, err
	}

	return &Outcome{
		Stage: StageDeliveryComplete,
		Updates: map[string]interface{}{
			"fulfillment_stage": string(StageDeliveryComplete),
			"delivered_at":      now,
			"delivered_by_id":   actorID,
		},
		Notifications: []string{TriggerOrderDelivered},
	}, nil
}

func decideMarkInvoiceComplete(order *models.Order, actorID uuid.UUID, now time.Time) (*Outcome, error) {
	if err := requireStage(order, ActionMarkInvoiceComplete, StageDeliveryComplete); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"fulfillment_stage":       string(StageInvoiceComplete),
		"invoice_completed_by_id": actorID,
	}
	// POS completion already stamped the invoice timestamp.
	if order.InvoiceCompletedAt == nil {
		updates["invoice_completed_at"] = now
	}

	return &Outcome{Stage: StageInvoiceComplete, Updates: updates}, nil
}

func decideCompletePOS(order *models.Order, actorID uuid.UUID, now time.Time) (*Outcome, error) {
	if order.Channel != models.ChannelPOS {
		return nil, &InvalidStageError{
			Action: ActionCompletePOS,
			Stage:  Stage(order.FulfillmentStage),
			Detail: "only in-store orders can be completed at the counter",
		}
	}
	current := Stage(order.FulfillmentStage)
	if !current.Before(StageDeliveryComplete) {
		return nil, &InvalidStageError{Action: ActionCompletePOS, Stage: current}
	}

	// Stamps every skipped stage in one step. No notifications: the
	// customer is standing at the counter.
	updates := map[string]interface{}{
		"fulfillment_stage": string(StageDeliveryComplete),
		"print_count":       order.PrintCount + 1,
		"delivered_at":      now,
		"delivered_by_id":   actorID,
		// TODO: unpaid POS completion should probably not stamp the
		// invoice timestamp until payment settles; revisit with finance.
		"invoice_completed_at": now,
	}
	if order.SampleIssuedAt == nil {
		updates["sample_issued_at"] = now
		updates["sample_issued_by_id"] = actorID
	}
	if order.PrintedAt == nil {
		updates["printed_at"] = now
		updates["printed_by_id"] = actorID
	}
	if order.ReadyAt == nil {
		updates["ready_at"] = now
		updates["ready_by_id"] = actorID
	}
	if order.DispatchedAt == nil {
		updates["dispatched_at"] = now
		updates["dispatched_by_id"] = actorID
	}

	return &Outcome{Stage: StageDeliveryComplete, Updates: updates}, nil
}
