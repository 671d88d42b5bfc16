package report

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/psplanner"
	"github.com/sarchlab/psplanner/planner"
	"github.com/sarchlab/psplanner/planplayer"
)

var _ = Describe("Report", func() {
	var plan *planner.Plan

	BeforeEach(func() {
		loader := psplanner.ProgramLoader{Dir: "../testdata/ctr"}
		prog, err := loader.Load()
		Expect(err).ToNot(HaveOccurred())

		plan, err = planner.Build(planner.PlanningContext{
			Program: prog,
			Topology: psplanner.Topology{
				WorkerNum: 2,
				Endpoints: []string{"127.0.0.1:6170", "127.0.0.1:6171", "127.0.0.1:6172"},
				Mode:      psplanner.Sync,
			},
			Options: planner.Options{MinBlockSize: planner.DefaultMinBlockSize, SliceDense: true},
		})
		Expect(err).ToNot(HaveOccurred())
	})

	It("should list every shard of the placement", func() {
		out := Placement(plan.Placement())

		Expect(out).To(ContainSubstring("Placement"))
		Expect(out).To(ContainSubstring("fc_1.w_0@GRAD.block2"))
		Expect(out).To(ContainSubstring("emb.block0"))
		Expect(out).To(ContainSubstring("127.0.0.1:6172"))
	})

	It("should render wire names of contexts", func() {
		set, err := plan.CommunicatorSendContext()
		Expect(err).ToNot(HaveOccurred())

		out := Contexts("Send", set)

		Expect(out).To(ContainSubstring("fc_0.w_0@GRAD.trainer_0"))
		Expect(out).To(ContainSubstring(planner.StepCounter))
		Expect(out).To(ContainSubstring("3,334"))
	})

	It("should sort env keys", func() {
		out := Env("Env", map[string]string{"b": "2", "a": "1"})

		Expect(out).To(MatchRegexp(`(?s)a.*1.*b.*2`))
	})

	It("should write one block per line", func() {
		_, grads := plan.Blocks()

		out := Blocks(grads)

		Expect(out).To(HaveSuffix("\n"))
		Expect(len(out)).To(BeNumerically(">", 0))
		Expect(out).To(ContainSubstring("emb@GRAD:0:"))
	})

	It("should summarize a replay", func() {
		out := Simulation(planplayer.Report{
			Mode:           psplanner.Async,
			Steps:          2,
			TotalTimeInSec: 0.5,
			Trainers: []planplayer.TrainerReport{
				{ID: 0, StepFinishTimes: []float64{0.2, 0.5}, BytesPushed: 2000, Finished: true},
				{ID: 1, BytesPushed: 0},
			},
			Servers: []planplayer.ServerReport{
				{Endpoint: "127.0.0.1:6170", ShardsApplied: 1234, BytesIn: 2000, BytesOut: 1000},
			},
			Unfinished: []int{1},
		})

		Expect(out).To(ContainSubstring("async"))
		Expect(out).To(ContainSubstring("2/2"))
		Expect(out).To(ContainSubstring("0/2"))
		Expect(out).To(ContainSubstring("0.250000"))
		Expect(out).To(ContainSubstring("1,234"))
		Expect(out).To(ContainSubstring("2.0 kB"))
		Expect(out).To(ContainSubstring("unfinished trainers: [1]"))
	})
})
