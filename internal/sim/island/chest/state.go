package chest

import "skyisland.ai/internal/sim/island/model"

type State int

const (
	StatePlacing State = iota
	StateAwaitingSettle
	StatePopulating
	StateVerifying
	StateDone
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StatePlacing:
		return "PLACING"
	case StateAwaitingSettle:
		return "AWAITING_SETTLE"
	case StatePopulating:
		return "POPULATING"
	case StateVerifying:
		return "VERIFYING"
	case StateDone:
		return "DONE"
	case StateAbandoned:
		return "ABANDONED"
	default:
		return "UNKNOWN"
	}
}

func (s State) Terminal() bool { return s == StateDone || s == StateAbandoned }

// Strategy selects how the starter items are written.
type Strategy int

const (
	// StrategySlots clears the inventory and sets each slot individually.
	StrategySlots Strategy = iota
	// StrategyContents replaces the whole slot array in one call.
	StrategyContents
)

func (s Strategy) String() string {
	if s == StrategyContents {
		return "CONTENTS"
	}
	return "SLOTS"
}

func (s Strategy) other() Strategy {
	if s == StrategySlots {
		return StrategyContents
	}
	return StrategySlots
}

// Attempt is the retry state of one chest population chain. It is never
// persisted; a restart mid-chain leaves the chest as it was.
type Attempt struct {
	ID        uint64
	Target    model.Location
	Attempt   int
	Strategy  Strategy
	State     State
	StartTick uint64
	LastCount int
	LastError string
	// Pinned is set while the chain holds a pin on the target chunk.
	Pinned bool
}
