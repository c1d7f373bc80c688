package fulfillment

// Stage is a step in the fixed fulfillment lifecycle. Stages only ever
// advance along the forward path below; the hold flag on ready_to_dispatch
// is a sub-state, not a stage.
type Stage string

// Forward path: order_received -> sample_free_issue -> print ->
// ready_to_dispatch -> dispatched -> delivery_complete -> invoice_complete
const (
	StageOrderReceived    Stage = "order_received"
	StageSampleFreeIssue  Stage = "sample_free_issue"
	StagePrint            Stage = "print"
	StageReadyToDispatch  Stage = "ready_to_dispatch"
	StageDispatched       Stage = "dispatched"
	StageDeliveryComplete Stage = "delivery_complete"
	StageInvoiceComplete  Stage = "invoice_complete"
)

var stageRank = map[Stage]int{
	StageOrderReceived:    0,
	StageSampleFreeIssue:  1,
	StagePrint:            2,
	StageReadyToDispatch:  3,
	StageDispatched:       4,
	StageDeliveryComplete: 5,
	StageInvoiceComplete:  6,
}

// Valid reports whether s is one of the known stages
func (s Stage) Valid() bool {
	_, ok := stageRank[s]
	return ok
}

// Rank returns the position of s on the forward path, -1 for unknown stages
func (s Stage) Rank() int {
	if rank, ok := stageRank[s]; ok {
		return rank
	}
	return -1
}

// Before reports whether s comes earlier than other on the forward path
func (s Stage) Before(other Stage) bool {
	return s.Valid() && other.Valid() && s.Rank() < other.Rank()
}

func (s Stage) String() string {
	return string(s)
}
