package flow

// State is a step of the orchestration state machine.
type State int

const (
	// StateAwaitingModel sends the turn sequence plus tool catalog to the model.
	StateAwaitingModel State = iota
	// StateDispatchingTools executes the requested tool calls in order.
	StateDispatchingTools
	// StateAwaitingFinal asks the model once more after the round budget is spent.
	StateAwaitingFinal
	// StateDone is terminal.
	StateDone
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateDispatchingTools:
		return "DISPATCHING_TOOLS"
	case StateAwaitingFinal:
		return "AWAITING_FINAL"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
