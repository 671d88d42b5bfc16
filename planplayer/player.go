// Package planplayer replays the communication plan of a parameter-server job
// on a simulated network to estimate the time of each training step.
package planplayer

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	"github.com/sarchlab/psplanner"
	"github.com/sarchlab/psplanner/networkmodel"
	"github.com/sarchlab/psplanner/planner"
	"github.com/sarchlab/psplanner/timemodel"
	"gitlab.com/akita/akita/v3/sim"
	"k8s.io/klog/v2"
)

// stepCounterBytes is the size of the int64 step counter.
const stepCounterBytes = 8

// A computeDoneEvent is triggered when a trainer finishes the forward and
// backward pass of a step.
type computeDoneEvent struct {
	time      sim.VTimeInSec
	handler   *PlanPlayer
	trainerID int
}

// Time returns the time of the event.
func (e computeDoneEvent) Time() sim.VTimeInSec {
	return e.time
}

// Handler returns the handler of the event.
func (e computeDoneEvent) Handler() sim.Handler {
	return e.handler
}

// IsSecondary always returns false.
func (e computeDoneEvent) IsSecondary() bool {
	return false
}

// An applyDoneEvent is triggered when a server finishes applying a pushed
// shard.
type applyDoneEvent struct {
	time    sim.VTimeInSec
	handler *PlanPlayer
	server  *server
	msg     *psplanner.ShardMsg
}

// Time returns the time of the event.
func (e applyDoneEvent) Time() sim.VTimeInSec {
	return e.time
}

// Handler returns the handler of the event.
func (e applyDoneEvent) Handler() sim.Handler {
	return e.handler
}

// IsSecondary always returns false.
func (e applyDoneEvent) IsSecondary() bool {
	return false
}

type trainer struct {
	id   int
	plan *planner.Plan
	port sim.Port

	sendCtx         planner.ContextSet
	expectedReplies int

	step        int
	replies     int
	stepFinish  []sim.VTimeInSec
	failed      bool
	bytesPushed uint64
}

type barrierKey struct {
	paramShard string
	step       int
}

type server struct {
	endpoint string
	port     sim.Port
	threads  int

	busy    int
	queue   []*psplanner.ShardMsg
	arrived map[barrierKey][]int

	applied  int
	bytesIn  uint64
	bytesOut uint64
}

// A PlanPlayer replays the plan of every trainer against every server. Each
// trainer computes, pushes the shards of its communicator send contexts and
// waits for the parameter shards of its receive contexts before starting
// the next step.
type PlanPlayer struct {
	*sim.ComponentBase

	sim.TimeTeller
	sim.EventScheduler
	timeEstimator timemodel.TimeEstimator
	network       *networkmodel.PacketSwitchingNetworkModel

	mode      psplanner.Mode
	workerNum int
	steps     int

	trainers         []*trainer
	servers          []*server
	serverByEndpoint map[string]*server
	trainerByPort    map[sim.Port]*trainer
	serverByPort     map[sim.Port]*server

	err error
}

// Handle function of a PlanPlayer handles events.
func (p *PlanPlayer) Handle(e sim.Event) error {
	switch e := e.(type) {
	case computeDoneEvent:
		p.pushShards(p.trainers[e.trainerID])
	case applyDoneEvent:
		p.completeApply(e)
	default:
		panic("PlanPlayer cannot handle this event type " +
			reflect.TypeOf(e).String())
	}

	return nil
}

// NotifyPortFree function of a PlanPlayer notifies that one port of the
// component is free.
func (p *PlanPlayer) NotifyPortFree(
	now sim.VTimeInSec,
	port sim.Port,
) {
}

// NotifyRecv function notifies that the component has received a message.
func (p *PlanPlayer) NotifyRecv(
	now sim.VTimeInSec,
	port sim.Port,
) {
	msg := port.Retrieve(now)

	switch msg := msg.(type) {
	case *psplanner.ShardMsg:
		if s, ok := p.serverByPort[port]; ok {
			p.recvPush(s, msg)
			return
		}

		if t, ok := p.trainerByPort[port]; ok {
			p.recvPull(t, msg)
			return
		}

		panic(fmt.Sprintf("message received on unknown port %s", port.Name()))
	default:
		panic(fmt.Sprintf("Cannot handle message %T", msg))
	}
}

// KickStart starts the simulation. It schedules the first step of every
// trainer. The main program should still call engine.Run() to run the
// simulation.
func (p *PlanPlayer) KickStart() {
	for _, t := range p.trainers {
		p.startStep(t)
	}
}

func (p *PlanPlayer) fail(err error) {
	if p.err == nil {
		p.err = err
	}

	klog.Errorf("%.9f: %v", p.CurrentTime(), err)
}

func (p *PlanPlayer) startStep(t *trainer) {
	out, err := p.timeEstimator.Estimate(timemodel.TimeEstimatorInput{
		Name:      fmt.Sprintf("trainer_%d.step_%d", t.id, t.step),
		Kind:      timemodel.KindCompute,
		TrainerID: t.id,
	})
	if err != nil {
		t.failed = true
		p.fail(errors.Wrapf(err, "trainer %d step %d", t.id, t.step))
		return
	}

	p.Schedule(computeDoneEvent{
		time:      p.CurrentTime() + sim.VTimeInSec(out.TimeInSec),
		handler:   p,
		trainerID: t.id,
	})
}

func (p *PlanPlayer) pushShards(t *trainer) {
	klog.V(2).Infof("%.9f: trainer %d pushes step %d", p.CurrentTime(), t.id, t.step)

	for _, name := range t.sendCtx.Names() {
		ctx := t.sendCtx[name]
		for i, shard := range ctx.SplitVarNames {
			elements, bytes := p.shardSize(t.plan, shard)
			s := p.serverByEndpoint[ctx.SplitEndpoints[i]]

			msg := &psplanner.ShardMsg{
				MsgMeta: sim.MsgMeta{
					ID:           sim.GetIDGenerator().Generate(),
					Src:          t.port,
					Dst:          s.port,
					SendTime:     p.CurrentTime(),
					TrafficBytes: bytes,
				},
				ShardName:   shard,
				VarName:     ctx.VarName,
				NumElements: elements,
				Purpose:     psplanner.PurposePush,
				TrainerID:   t.id,
				Endpoint:    s.endpoint,
				Step:        t.step,
			}

			if !p.send(t.port, msg) {
				t.failed = true
				continue
			}
			t.bytesPushed += uint64(bytes)
		}
	}

	if t.failed {
		return
	}

	if t.expectedReplies == 0 {
		p.finishStep(t)
	}
}

func (p *PlanPlayer) shardSize(plan *planner.Plan, shard string) (elements, bytes int) {
	if shard == planner.StepCounter {
		return 1, stepCounterBytes
	}

	v, ok := plan.ShardVar(shard)
	if !ok {
		panic("shard " + shard + " is not in the plan")
	}

	return v.Numel(), int(v.Bytes())
}

func (p *PlanPlayer) recvPush(s *server, msg *psplanner.ShardMsg) {
	s.bytesIn += uint64(msg.TrafficBytes)
	s.queue = append(s.queue, msg)
	p.tryApply(s)
}

func (p *PlanPlayer) tryApply(s *server) {
	for s.busy < s.threads && len(s.queue) > 0 {
		msg := s.queue[0]
		s.queue = s.queue[1:]

		out, err := p.timeEstimator.Estimate(timemodel.TimeEstimatorInput{
			Name:        msg.ShardName,
			Kind:        timemodel.KindApply,
			NumElements: msg.NumElements,
			TrainerID:   msg.TrainerID,
			Endpoint:    s.endpoint,
		})
		if err != nil {
			p.fail(errors.Wrapf(err, "server %s applying %s", s.endpoint, msg.ShardName))
			continue
		}

		s.busy++
		p.Schedule(applyDoneEvent{
			time:    p.CurrentTime() + sim.VTimeInSec(out.TimeInSec),
			handler: p,
			server:  s,
			msg:     msg,
		})
	}
}

func (p *PlanPlayer) completeApply(e applyDoneEvent) {
	s, msg := e.server, e.msg
	s.busy--
	s.applied++

	if msg.ShardName != planner.StepCounter {
		p.reply(s, msg)
	}

	p.tryApply(s)
}

// reply sends the updated parameter shard back. Synchronous servers wait
// until every trainer has pushed the shard for the step.
func (p *PlanPlayer) reply(s *server, msg *psplanner.ShardMsg) {
	pusher := p.trainers[msg.TrainerID]
	param, ok := paramShardOf(pusher.plan, msg.ShardName)
	if !ok {
		panic("no parameter shard for " + msg.ShardName)
	}

	if p.mode != psplanner.Sync {
		p.sendParam(s, pusher, param, msg.Step)
		return
	}

	key := barrierKey{paramShard: param.Name, step: msg.Step}
	s.arrived[key] = append(s.arrived[key], msg.TrainerID)
	if len(s.arrived[key]) < p.workerNum {
		return
	}

	for _, id := range s.arrived[key] {
		p.sendParam(s, p.trainers[id], param, msg.Step)
	}
	delete(s.arrived, key)
}

func paramShardOf(plan *planner.Plan, shard string) (psplanner.TensorVar, bool) {
	if v, ok := plan.ParamShardOf(shard); ok {
		return v, true
	}

	return plan.ShardVar(shard)
}

func (p *PlanPlayer) sendParam(
	s *server,
	t *trainer,
	param psplanner.TensorVar,
	step int,
) {
	bytes := int(param.Bytes())
	msg := &psplanner.ShardMsg{
		MsgMeta: sim.MsgMeta{
			ID:           sim.GetIDGenerator().Generate(),
			Src:          s.port,
			Dst:          t.port,
			SendTime:     p.CurrentTime(),
			TrafficBytes: bytes,
		},
		ShardName:   param.Name,
		VarName:     planner.OriginVarName(param.Name),
		NumElements: param.Numel(),
		Purpose:     psplanner.PurposePull,
		TrainerID:   t.id,
		Endpoint:    s.endpoint,
		Step:        step,
	}

	if !p.send(s.port, msg) {
		t.failed = true
		return
	}
	s.bytesOut += uint64(bytes)
}

// send reports a message the connection refuses as a replay error.
func (p *PlanPlayer) send(port sim.Port, msg *psplanner.ShardMsg) bool {
	if err := port.Send(msg); err != nil {
		p.fail(errors.Errorf("%s cannot send %s of step %d to trainer %d",
			port.Name(), msg.ShardName, msg.Step, msg.TrainerID))
		return false
	}

	return true
}

func (p *PlanPlayer) recvPull(t *trainer, msg *psplanner.ShardMsg) {
	if msg.Step != t.step {
		panic(fmt.Sprintf("trainer %d in step %d got a reply of step %d",
			t.id, t.step, msg.Step))
	}

	t.replies++
	if t.replies == t.expectedReplies {
		p.finishStep(t)
	}
}

func (p *PlanPlayer) finishStep(t *trainer) {
	klog.V(2).Infof("%.9f: trainer %d finished step %d", p.CurrentTime(), t.id, t.step)

	t.stepFinish = append(t.stepFinish, p.CurrentTime())
	t.replies = 0
	t.step++

	if t.step < p.steps {
		p.startStep(t)
	}
}

// Network returns the network the player sends messages through.
func (p *PlanPlayer) Network() *networkmodel.PacketSwitchingNetworkModel {
	return p.network
}

// Err returns the first error met while replaying.
func (p *PlanPlayer) Err() error {
	return p.err
}
