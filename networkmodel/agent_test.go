package networkmodel

import (
	"github.com/sarchlab/psplanner"
	"gitlab.com/akita/akita/v3/sim"
)

type sendEvent struct {
	time    sim.VTimeInSec
	handler *agent
	msg     *psplanner.ShardMsg
}

func (e sendEvent) Time() sim.VTimeInSec {
	return e.time
}

func (e sendEvent) Handler() sim.Handler {
	return e.handler
}

func (e sendEvent) IsSecondary() bool {
	return false
}

// agent sends shard messages and records what it receives. A holding agent
// never drains its port.
type agent struct {
	*sim.ComponentBase

	port     sim.Port
	hold     bool
	received []*psplanner.ShardMsg
	recvTime []sim.VTimeInSec
}

func newAgent(name string, bufSize int) *agent {
	a := &agent{ComponentBase: sim.NewComponentBase(name)}
	a.port = sim.NewLimitNumMsgPort(a, bufSize, name+"Port")
	a.AddPort("Port", a.port)

	return a
}

func (a *agent) Handle(e sim.Event) error {
	evt := e.(sendEvent)
	evt.msg.SendTime = evt.time
	a.port.Send(evt.msg)

	return nil
}

func (a *agent) NotifyRecv(now sim.VTimeInSec, port sim.Port) {
	var msg sim.Msg
	if a.hold {
		msg = port.Peek()
	} else {
		msg = port.Retrieve(now)
	}

	a.received = append(a.received, msg.(*psplanner.ShardMsg))
	a.recvTime = append(a.recvTime, now)
}

func (a *agent) NotifyPortFree(now sim.VTimeInSec, port sim.Port) {}

func shardMsg(src, dst *agent, bytes int) *psplanner.ShardMsg {
	return &psplanner.ShardMsg{
		MsgMeta: sim.MsgMeta{
			ID:           sim.GetIDGenerator().Generate(),
			Src:          src.port,
			Dst:          dst.port,
			TrafficBytes: bytes,
		},
		ShardName: "w.block0",
		Purpose:   psplanner.PurposePush,
	}
}
