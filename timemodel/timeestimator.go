// Package timemodel provides a performance model for the time trainers spend
// computing a step and servers spend applying a shard.
package timemodel

import (
	"github.com/pkg/errors"
)

// Kinds of work a time estimator can be asked about.
const (
	// KindCompute is the forward and backward pass of one trainer step.
	KindCompute = "compute"
	// KindApply is a server applying one pushed shard.
	KindApply = "apply"
)

// A TimeEstimatorInput represents the input of a time estimator.
type TimeEstimatorInput struct {
	Name              string
	Kind              string
	NumElements       int
	RecordedTimeInSec float64
	TrainerID         int
	Endpoint          string
}

// A TimeEstimatorOutput represents the output of a time estimator.
type TimeEstimatorOutput struct {
	// The estimated execution time in seconds.
	TimeInSec float64
}

// TimeEstimator estimates the execution time of a piece of work.
type TimeEstimator interface {
	// Estimate estimates the execution time of a piece of work.
	Estimate(input TimeEstimatorInput) (TimeEstimatorOutput, error)
}

// A AlwaysOneTimeEstimator always returns 1 as the estimated execution time.
type AlwaysOneTimeEstimator struct{}

// Estimate always returns 1 as the estimated execution time.
func (e *AlwaysOneTimeEstimator) Estimate(
	input TimeEstimatorInput,
) (TimeEstimatorOutput, error) {
	return TimeEstimatorOutput{
		TimeInSec: 1,
	}, nil
}

// A RecordedTimeEstimator returns the time recorded in the input.
type RecordedTimeEstimator struct{}

// Estimate returns the recorded time.
func (e *RecordedTimeEstimator) Estimate(
	input TimeEstimatorInput,
) (TimeEstimatorOutput, error) {
	return TimeEstimatorOutput{
		TimeInSec: input.RecordedTimeInSec,
	}, nil
}

// A ThroughputTimeEstimator uses a fixed step time for trainers and a fixed
// element rate for servers.
type ThroughputTimeEstimator struct {
	ComputeTimeInSec  float64
	ElementsPerSecond float64
}

// Estimate estimates the time of a compute step or a shard update.
func (e *ThroughputTimeEstimator) Estimate(
	input TimeEstimatorInput,
) (TimeEstimatorOutput, error) {
	switch input.Kind {
	case KindCompute:
		return TimeEstimatorOutput{TimeInSec: e.ComputeTimeInSec}, nil
	case KindApply:
		if e.ElementsPerSecond <= 0 {
			return TimeEstimatorOutput{}, errors.Errorf(
				"elements per second must be positive, got %g", e.ElementsPerSecond)
		}

		return TimeEstimatorOutput{
			TimeInSec: float64(input.NumElements) / e.ElementsPerSecond,
		}, nil
	}

	return TimeEstimatorOutput{}, errors.Errorf("unknown kind %q of %s", input.Kind, input.Name)
}
