package planner

import "github.com/pkg/errors"

// Configuration errors. They are never retryable; a plan that hits one of
// them is aborted as a whole.
var (
	ErrVarNotFound           = errors.New("variable not found in program")
	ErrSparseGradOnDensePath = errors.New("sparse gradient on dense path")
	ErrInconsistentBlocks    = errors.New("param and grad blocks do not match")
	ErrShardNotPlaced        = errors.New("shard is not placed on any endpoint")
	ErrInvalidRecvType       = errors.New("recv type can only be 1, 2 or 3")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrInvalidMergedVariable = errors.New("invalid merged variable")
)
