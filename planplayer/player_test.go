package planplayer

import (
	"github.com/golang/mock/gomock"
	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/sarchlab/psplanner"
	"github.com/sarchlab/psplanner/planner"
	"github.com/sarchlab/psplanner/timemodel"
	"gitlab.com/akita/akita/v3/sim"
)

func ctrPlan(mode psplanner.Mode, workerNum int) *planner.Plan {
	loader := psplanner.ProgramLoader{Dir: "../testdata/ctr"}
	prog, err := loader.Load()
	Expect(err).ToNot(HaveOccurred())

	p, err := planner.Build(planner.PlanningContext{
		Program: prog,
		Topology: psplanner.Topology{
			WorkerNum: workerNum,
			Endpoints: []string{"127.0.0.1:6170", "127.0.0.1:6171", "127.0.0.1:6172"},
			Mode:      mode,
		},
		Options: planner.Options{MinBlockSize: planner.DefaultMinBlockSize, SliceDense: true},
	})
	Expect(err).ToNot(HaveOccurred())

	return p
}

var _ = ginkgo.Describe("PlanPlayer", func() {
	var (
		mockCtrl      *gomock.Controller
		timeEstimator *MockTimeEstimator
		engine        *sim.SerialEngine
		computeTime   map[int]float64
		computeErr    map[int]error
	)

	build := func(plan *planner.Plan, steps int) *PlanPlayer {
		player, err := MakeBuilder().
			WithEngine(engine).
			WithTimeEstimator(timeEstimator).
			WithSteps(steps).
			WithServerThreads(2).
			WithLink(1e9, 1e-6).
			Build("Player", plan)
		Expect(err).ToNot(HaveOccurred())

		return player
	}

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		timeEstimator = NewMockTimeEstimator(mockCtrl)
		engine = sim.NewSerialEngine()
		computeTime = map[int]float64{0: 0.001, 1: 0.001}
		computeErr = map[int]error{}

		timeEstimator.EXPECT().Estimate(gomock.Any()).DoAndReturn(
			func(in timemodel.TimeEstimatorInput) (timemodel.TimeEstimatorOutput, error) {
				if in.Kind == timemodel.KindCompute {
					return timemodel.TimeEstimatorOutput{
						TimeInSec: computeTime[in.TrainerID],
					}, computeErr[in.TrainerID]
				}

				return timemodel.TimeEstimatorOutput{
					TimeInSec: float64(in.NumElements) * 1e-9,
				}, nil
			}).AnyTimes()
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	ginkgo.It("should replay every step of a single trainer", func() {
		plan := ctrPlan(psplanner.Sync, 1)
		player := build(plan, 2)

		player.KickStart()
		Expect(engine.Run()).To(Succeed())

		r := player.Report()
		Expect(player.Err()).ToNot(HaveOccurred())
		Expect(r.Unfinished).To(BeEmpty())
		Expect(r.Trainers).To(HaveLen(1))

		finish := r.Trainers[0].StepFinishTimes
		Expect(finish).To(HaveLen(2))
		Expect(finish[0]).To(BeNumerically(">", 0.001))
		Expect(finish[1]).To(BeNumerically(">", finish[0]+0.001))

		sendCtx, err := plan.CommunicatorSendContext()
		Expect(err).ToNot(HaveOccurred())
		applied := 0
		for _, s := range r.Servers {
			applied += s.ShardsApplied
		}
		Expect(applied).To(Equal(2 * sendCtx.NumShards()))

		msgs, _ := player.Network().Delivered()
		recvCtx, err := plan.CommunicatorRecvContext(planner.RecvAll)
		Expect(err).ToNot(HaveOccurred())
		Expect(msgs).To(Equal(uint64(2 * (sendCtx.NumShards() + recvCtx.NumShards()))))
	})

	ginkgo.It("should account for the bytes of every shard", func() {
		plan := ctrPlan(psplanner.Async, 2)
		player := build(plan, 1)

		player.KickStart()
		Expect(engine.Run()).To(Succeed())

		r := player.Report()
		var in, out, pushed uint64
		for _, s := range r.Servers {
			in += s.BytesIn
			out += s.BytesOut
		}
		for _, t := range r.Trainers {
			pushed += t.BytesPushed
		}

		Expect(in).To(Equal(pushed))
		// Params and grads have the same shapes, step counters add 8 bytes
		// per endpoint per trainer.
		Expect(in).To(Equal(out + 2*3*8))
	})

	ginkgo.It("should hold synchronous trainers at the barrier", func() {
		computeTime[1] = 0.01
		player := build(ctrPlan(psplanner.Sync, 2), 1)

		player.KickStart()
		Expect(engine.Run()).To(Succeed())

		r := player.Report()
		Expect(r.Unfinished).To(BeEmpty())
		fast, slow := r.Trainers[0].StepFinishTimes[0], r.Trainers[1].StepFinishTimes[0]
		Expect(fast).To(BeNumerically(">", 0.01))
		Expect(fast).To(BeNumerically("~", slow, 1e-9))
	})

	ginkgo.It("should let asynchronous trainers run ahead", func() {
		computeTime[1] = 0.01
		player := build(ctrPlan(psplanner.Async, 2), 1)

		player.KickStart()
		Expect(engine.Run()).To(Succeed())

		r := player.Report()
		Expect(r.Trainers[0].StepFinishTimes[0]).To(BeNumerically("<", 0.01))
		Expect(r.Trainers[1].StepFinishTimes[0]).To(BeNumerically(">", 0.01))
	})

	ginkgo.It("should replay geo plans", func() {
		player := build(ctrPlan(psplanner.Geo, 2), 3)

		player.KickStart()
		Expect(engine.Run()).To(Succeed())

		r := player.Report()
		Expect(r.Mode).To(Equal(psplanner.Geo))
		Expect(r.Unfinished).To(BeEmpty())
		for _, t := range r.Trainers {
			Expect(t.StepFinishTimes).To(HaveLen(3))
		}
	})

	ginkgo.It("should report trainers that could not finish", func() {
		computeErr[1] = errors.New("no profile")
		player := build(ctrPlan(psplanner.Async, 2), 1)

		player.KickStart()
		Expect(engine.Run()).To(Succeed())

		Expect(player.Err()).To(MatchError(ContainSubstring("no profile")))
		Expect(player.Report().Unfinished).To(Equal([]int{1}))
	})

	ginkgo.It("should fail the trainer whose messages are refused", func() {
		player := build(ctrPlan(psplanner.Async, 2), 1)
		player.trainers[1].port.SetConnection(&refusingConnection{})

		player.KickStart()
		Expect(engine.Run()).To(Succeed())

		Expect(player.Err()).To(MatchError(ContainSubstring("Player.Trainer1Port cannot send")))

		r := player.Report()
		Expect(r.Unfinished).To(Equal([]int{1}))
		Expect(r.Trainers[1].BytesPushed).To(BeZero())
		Expect(r.Trainers[0].Finished).To(BeTrue())
	})

	ginkgo.It("should refuse to build without an engine", func() {
		_, err := MakeBuilder().
			WithTimeEstimator(timeEstimator).
			Build("Player", ctrPlan(psplanner.Sync, 1))

		Expect(err).To(HaveOccurred())
	})
})

type refusingConnection struct {
	sim.HookableBase
}

func (c *refusingConnection) CanSend(src sim.Port) bool {
	return false
}

func (c *refusingConnection) Send(msg sim.Msg) *sim.SendError {
	return sim.NewSendError()
}

func (c *refusingConnection) PlugIn(port sim.Port, sourceSideBufSize int) {}

func (c *refusingConnection) Unplug(port sim.Port) {}

func (c *refusingConnection) NotifyAvailable(now sim.VTimeInSec, port sim.Port) {}
