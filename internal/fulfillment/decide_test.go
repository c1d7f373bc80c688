package fulfillment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/models"
)

func testOrder(stage Stage) *models.Order {
	return &models.Order{
		ID:               uuid.New(),
		ExternalID:       "5001",
		Name:             "#5001",
		Channel:          models.ChannelWeb,
		FulfillmentStage: string(stage),
	}
}

func TestStageRanks(t *testing.T) {
	assert.True(t, StageOrderReceived.Before(StageInvoiceComplete))
	assert.True(t, StageDispatched.Before(StageDeliveryComplete))
	assert.False(t, StageInvoiceComplete.Before(StageOrderReceived))
	assert.False(t, Stage("bogus").Valid())
	assert.Equal(t, -1, Stage("bogus").Rank())
}

func TestAddSamples(t *testing.T) {
	actor := uuid.New()
	now := time.Now()
	productID := uuid.New()

	t.Run("auto-advances from order_received", func(t *testing.T) {
		order := testOrder(StageOrderReceived)
		outcome, err := Decide(order, AddSamples{Lines: []SampleLine{{ProductID: productID, Quantity: 2}}}, actor, now)
		require.NoError(t, err)
		assert.Equal(t, StageSampleFreeIssue, outcome.Stage)
		assert.Equal(t, string(StageSampleFreeIssue), outcome.Updates["fulfillment_stage"])
		assert.Len(t, outcome.Samples, 1)
		assert.Equal(t, 2, outcome.Samples[0].Quantity)
		assert.Empty(t, outcome.Notifications)
	})

	t.Run("re-submission at sample stage is allowed", func(t *testing.T) {
		order := testOrder(StageSampleFreeIssue)
		outcome, err := Decide(order, AddSamples{Lines: []SampleLine{{ProductID: productID, Quantity: 1}}}, actor, now)
		require.NoError(t, err)
		assert.Equal(t, StageSampleFreeIssue, outcome.Stage)
	})

	t.Run("rejected after print", func(t *testing.T) {
		order := testOrder(StagePrint)
		_, err := Decide(order, AddSamples{Lines: []SampleLine{{ProductID: productID, Quantity: 1}}}, actor, now)
		require.ErrorIs(t, err, ErrInvalidStage)
	})

	t.Run("requires at least one line", func(t *testing.T) {
		order := testOrder(StageOrderReceived)
		_, err := Decide(order, AddSamples{}, actor, now)
		require.ErrorIs(t, err, ErrMissingParameter)
	})

	t.Run("requires positive quantities", func(t *testing.T) {
		order := testOrder(StageOrderReceived)
		_, err := Decide(order, AddSamples{Lines: []SampleLine{{ProductID: productID, Quantity: 0}}}, actor, now)
		require.ErrorIs(t, err, ErrMissingParameter)
	})
}

func TestAdvanceToPrint(t *testing.T) {
	actor := uuid.New()
	now := time.Now()

	t.Run("increments the print counter", func(t *testing.T) {
		order := testOrder(StageSampleFreeIssue)
		order.PrintCount = 2
		outcome, err := Decide(order, AdvanceToPrint{}, actor, now)
		require.NoError(t, err)
		assert.Equal(t, StagePrint, outcome.Stage)
		assert.Equal(t, 3, outcome.Updates["print_count"])
	})

	t.Run("rejected once dispatched", func(t *testing.T) {
		order := testOrder(StageDispatched)
		_, err := Decide(order, AdvanceToPrint{}, actor, now)
		require.ErrorIs(t, err, ErrInvalidStage)

		var stageErr *InvalidStageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageDispatched, stageErr.Stage)
	})
}

func TestHoldAndReady(t *testing.T) {
	actor := uuid.New()
	now := time.Now()
	reason := uuid.New()

	t.Run("put_on_hold requires a reason", func(t *testing.T) {
		order := testOrder(StagePrint)
		_, err := Decide(order, PutOnHold{}, actor, now)
		require.ErrorIs(t, err, ErrMissingParameter)
	})

	t.Run("put_on_hold clears the ready flag", func(t *testing.T) {
		order := testOrder(StageReadyToDispatch)
		ready := now.Add(-time.Hour)
		order.ReadyAt = &ready
		outcome, err := Decide(order, PutOnHold{ReasonID: reason}, actor, now)
		require.NoError(t, err)
		assert.Equal(t, StageReadyToDispatch, outcome.Stage)
		assert.Equal(t, now, outcome.Updates["hold_at"])
		assert.Equal(t, reason, outcome.Updates["hold_reason_id"])
		assert.Nil(t, outcome.Updates["ready_at"])
	})

	t.Run("mark_ready clears the hold", func(t *testing.T) {
		order := testOrder(StageReadyToDispatch)
		held := now.Add(-time.Hour)
		order.HoldAt = &held
		outcome, err := Decide(order, MarkReady{}, actor, now)
		require.NoError(t, err)
		assert.Equal(t, now, outcome.Updates["ready_at"])
		assert.Nil(t, outcome.Updates["hold_at"])
		assert.Nil(t, outcome.Updates["hold_reason_id"])
	})

	t.Run("revert_hold requires an active hold", func(t *testing.T) {
		order := testOrder(StageReadyToDispatch)
		_, err := Decide(order, RevertHold{}, actor, now)
		require.ErrorIs(t, err, ErrInvalidStage)
	})

	t.Run("revert_hold clears hold without marking ready", func(t *testing.T) {
		order := testOrder(StageReadyToDispatch)
		held := now.Add(-time.Hour)
		order.HoldAt = &held
		outcome, err := Decide(order, RevertHold{}, actor, now)
		require.NoError(t, err)
		assert.Nil(t, outcome.Updates["hold_at"])
		_, touchesReady := outcome.Updates["ready_at"]
		assert.False(t, touchesReady)
	})

	t.Run("hold actions are stage transitions nowhere else", func(t *testing.T) {
		for _, stage := range []Stage{StageOrderReceived, StageDispatched, StageInvoiceComplete} {
			_, err := Decide(testOrder(stage), PutOnHold{ReasonID: reason}, actor, now)
			require.ErrorIs(t, err, ErrInvalidStage, "stage %s", stage)
		}
	})
}

func TestDispatch(t *testing.T) {
	actor := uuid.New()
	now := time.Now()
	riderID := uuid.New()
	courierID := uuid.New()

	readyOrder := func() *models.Order {
		order := testOrder(StageReadyToDispatch)
		ready := now.Add(-time.Minute)
		order.ReadyAt = &ready
		return order
	}

	t.Run("rider dispatch generates a delivery token", func(t *testing.T) {
		outcome, err := Decide(readyOrder(), Dispatch{RiderID: &riderID}, actor, now)
		require.NoError(t, err)
		assert.Equal(t, StageDispatched, outcome.Stage)
		assert.NotEmpty(t, outcome.DeliveryToken)
		assert.Equal(t, outcome.DeliveryToken, outcome.Updates["delivery_token"])
		assert.Equal(t, []string{TriggerOrderDispatched, TriggerRiderDispatched}, outcome.Notifications)
	})

	t.Run("courier dispatch notifies only the customer", func(t *testing.T) {
		outcome, err := Decide(readyOrder(), Dispatch{CourierID: &courierID}, actor, now)
		require.NoError(t, err)
		assert.Empty(t, outcome.DeliveryToken)
		assert.Equal(t, []string{TriggerOrderDispatched}, outcome.Notifications)
		assert.Equal(t, courierID, outcome.Updates["courier_id"])
	})

	t.Run("both rider and courier is a conflict", func(t *testing.T) {
		_, err := Decide(readyOrder(), Dispatch{RiderID: &riderID, CourierID: &courierID}, actor, now)
		require.ErrorIs(t, err, ErrConflictingParameter)
	})

	t.Run("neither rider nor courier is missing", func(t *testing.T) {
		_, err := Decide(readyOrder(), Dispatch{}, actor, now)
		require.ErrorIs(t, err, ErrMissingParameter)
	})

	t.Run("rejected while on hold", func(t *testing.T) {
		order := readyOrder()
		held := now.Add(-time.Minute)
		order.HoldAt = &held
		order.ReadyAt = nil
		_, err := Decide(order, Dispatch{RiderID: &riderID}, actor, now)
		require.ErrorIs(t, err, ErrInvalidStage)
	})

	t.Run("rejected before mark_ready", func(t *testing.T) {
		order := testOrder(StageReadyToDispatch)
		_, err := Decide(order, Dispatch{RiderID: &riderID}, actor, now)
		require.ErrorIs(t, err, ErrInvalidStage)
	})

	t.Run("rejected from print", func(t *testing.T) {
		_, err := Decide(testOrder(StagePrint), Dispatch{RiderID: &riderID}, actor, now)
		require.ErrorIs(t, err, ErrInvalidStage)
	})
}

func TestDeliveryAndInvoice(t *testing.T) {
	actor := uuid.New()
	now := time.Now()

	t.Run("mark_delivered notifies the customer", func(t *testing.T) {
		outcome, err := Decide(testOrder(StageDispatched), MarkDelivered{}, actor, now)
		require.NoError(t, err)
		assert.Equal(t, StageDeliveryComplete, outcome.Stage)
		assert.Equal(t, []string{TriggerOrderDelivered}, outcome.Notifications)
	})

	t.Run("invoice requires delivery first", func(t *testing.T) {
		_, err := Decide(testOrder(StageDispatched), MarkInvoiceComplete{}, actor, now)
		require.ErrorIs(t, err, ErrInvalidStage)
	})

	t.Run("invoice keeps an existing POS timestamp", func(t *testing.T) {
		order := testOrder(StageDeliveryComplete)
		stamped := now.Add(-time.Hour)
		order.InvoiceCompletedAt = &stamped
		outcome, err := Decide(order, MarkInvoiceComplete{}, actor, now)
		require.NoError(t, err)
		_, overwritten := outcome.Updates["invoice_completed_at"]
		assert.False(t, overwritten)
	})

	t.Run("invoice stamps timestamp when absent", func(t *testing.T) {
		outcome, err := Decide(testOrder(StageDeliveryComplete), MarkInvoiceComplete{}, actor, now)
		require.NoError(t, err)
		assert.Equal(t, now, outcome.Updates["invoice_completed_at"])
	})
}

func TestCompletePOS(t *testing.T) {
	actor := uuid.New()
	now := time.Now()

	t.Run("short-circuits a pos order at print", func(t *testing.T) {
		order := testOrder(StagePrint)
		order.Channel = models.ChannelPOS
		order.PrintCount = 1
		printed := now.Add(-time.Hour)
		order.PrintedAt = &printed

		outcome, err := Decide(order, CompletePOS{}, actor, now)
		require.NoError(t, err)
		assert.Equal(t, StageDeliveryComplete, outcome.Stage)
		assert.Equal(t, 2, outcome.Updates["print_count"])
		assert.Empty(t, outcome.Notifications)

		// Skipped stages are stamped; the already-printed stage is not.
		assert.Equal(t, now, outcome.Updates["ready_at"])
		assert.Equal(t, now, outcome.Updates["dispatched_at"])
		assert.Equal(t, now, outcome.Updates["delivered_at"])
		assert.Equal(t, now, outcome.Updates["invoice_completed_at"])
		_, reprinted := outcome.Updates["printed_at"]
		assert.False(t, reprinted)
	})

	t.Run("rejected for web orders", func(t *testing.T) {
		order := testOrder(StageOrderReceived)
		_, err := Decide(order, CompletePOS{}, actor, now)
		require.ErrorIs(t, err, ErrInvalidStage)
	})

	t.Run("rejected once past dispatch", func(t *testing.T) {
		order := testOrder(StageDeliveryComplete)
		order.Channel = models.ChannelPOS
		_, err := Decide(order, CompletePOS{}, actor, now)
		require.ErrorIs(t, err, ErrInvalidStage)
	})
}

// Stage transitions must never move backwards on the forward path.
func TestForwardOnly(t *testing.T) {
	actor := uuid.New()
	now := time.Now()
	riderID := uuid.New()
	reasonID := uuid.New()

	actions := []Action{
		AddSamples{Lines: []SampleLine{{ProductID: uuid.New(), Quantity: 1}}},
		AdvanceToPrint{},
		PutOnHold{ReasonID: reasonID},
		MarkReady{},
		RevertHold{},
		Dispatch{RiderID: &riderID},
		MarkDelivered{},
		MarkInvoiceComplete{},
		CompletePOS{},
	}

	for stage := range stageRank {
		for _, act := range actions {
			order := testOrder(stage)
			order.Channel = models.ChannelPOS
			ready := now.Add(-time.Minute)
			order.ReadyAt = &ready
			held := now.Add(-time.Minute)
			if act.Name() == ActionRevertHold {
				order.HoldAt = &held
			}

			outcome, err := Decide(order, act, actor, now)
			if err != nil {
				continue
			}
			require.False(t, outcome.Stage.Before(stage),
				"%s moved %s backwards to %s", act.Name(), stage, outcome.Stage)
		}
	}
}
