package report

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/sarchlab/psplanner/planplayer"
)

// Simulation renders the result of a plan replay: one table for trainers and
// one for servers.
func Simulation(r planplayer.Report) string {
	trainers := newTable("Trainer", "Steps", "Last step (s)", "Avg step (s)", "Pushed")
	for _, t := range r.Trainers {
		last, avg := "-", "-"
		if n := len(t.StepFinishTimes); n > 0 {
			finish := t.StepFinishTimes[n-1]
			last = fmt.Sprintf("%.6f", finish)
			avg = fmt.Sprintf("%.6f", finish/float64(n))
		}

		trainers.Row(fmt.Sprint(t.ID),
			fmt.Sprintf("%d/%d", len(t.StepFinishTimes), r.Steps),
			last, avg, humanize.Bytes(t.BytesPushed))
	}

	servers := newTable("Endpoint", "Applied", "In", "Out")
	for _, s := range r.Servers {
		servers.Row(s.Endpoint, humanize.Comma(int64(s.ShardsApplied)),
			humanize.Bytes(s.BytesIn), humanize.Bytes(s.BytesOut))
	}

	title := fmt.Sprintf("Simulation (%s, %.6fs)", r.Mode, r.TotalTimeInSec)
	out := titled(title, trainers) + titled("Servers", servers)
	if len(r.Unfinished) > 0 {
		out += fmt.Sprintf("unfinished trainers: %v\n", r.Unfinished)
	}

	return out
}
