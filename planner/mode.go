package planner

import "github.com/sarchlab/psplanner"

// StepCounter is the logical variable that keeps the global step consistent
// across all servers.
const StepCounter = "@PS_STEP_COUNTER@"

// A RecvType selects which parameters a communicator receives.
type RecvType int

// RecvType constants
const (
	RecvDense  RecvType = 1
	RecvSparse RecvType = 2
	RecvAll    RecvType = 3
)

// modePolicy captures everything that differs between coordination modes
// when building communication contexts.
type modePolicy struct {
	// deltaOnSend names every sent shard <shard>.delta.
	deltaOnSend bool
	// suffixTrainerGrads names gradient shards <shard>.trainer_<id> when
	// there is more than one trainer.
	suffixTrainerGrads bool
	// sendParams makes communicators push parameters instead of gradients.
	sendParams bool
	// trainerStepCounter adds the step counter to the trainer send contexts.
	trainerStepCounter bool
}

var modePolicies = map[psplanner.Mode]modePolicy{
	psplanner.Sync: {
		suffixTrainerGrads: true,
	},
	psplanner.Async: {
		trainerStepCounter: true,
	},
	psplanner.Geo: {
		deltaOnSend:        true,
		sendParams:         true,
		trainerStepCounter: true,
	},
}
