package planplayer

import (
	"github.com/sarchlab/psplanner"
)

// A TrainerReport summarizes the replay of one trainer.
type TrainerReport struct {
	ID int
	// StepFinishTimes holds the time at which each completed step received
	// its last parameter shard.
	StepFinishTimes []float64
	BytesPushed     uint64
	Finished        bool
}

// A ServerReport summarizes the traffic of one server.
type ServerReport struct {
	Endpoint      string
	ShardsApplied int
	BytesIn       uint64
	BytesOut      uint64
}

// A Report summarizes a replay.
type Report struct {
	Mode           psplanner.Mode
	Steps          int
	TotalTimeInSec float64
	Trainers       []TrainerReport
	Servers        []ServerReport
	// Unfinished lists the trainers that did not complete every step.
	Unfinished []int
}

// Report returns the summary of the replay so far.
func (p *PlanPlayer) Report() Report {
	r := Report{
		Mode:           p.mode,
		Steps:          p.steps,
		TotalTimeInSec: float64(p.CurrentTime()),
	}

	for _, t := range p.trainers {
		tr := TrainerReport{
			ID:          t.id,
			BytesPushed: t.bytesPushed,
			Finished:    !t.failed && len(t.stepFinish) == p.steps,
		}
		for _, finish := range t.stepFinish {
			tr.StepFinishTimes = append(tr.StepFinishTimes, float64(finish))
		}

		if !tr.Finished {
			r.Unfinished = append(r.Unfinished, t.id)
		}
		r.Trainers = append(r.Trainers, tr)
	}

	for _, s := range p.servers {
		r.Servers = append(r.Servers, ServerReport{
			Endpoint:      s.endpoint,
			ShardsApplied: s.applied,
			BytesIn:       s.bytesIn,
			BytesOut:      s.bytesOut,
		})
	}

	return r
}
