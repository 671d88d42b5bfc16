package planplayer

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sarchlab/psplanner/networkmodel"
	"github.com/sarchlab/psplanner/planner"
	"github.com/sarchlab/psplanner/timemodel"
	"gitlab.com/akita/akita/v3/monitoring"
	"gitlab.com/akita/akita/v3/sim"
)

// portBufSize is large enough that ports never push back on the network.
const portBufSize = 1 << 16

// A Builder builds a PlanPlayer and the network that connects its trainers
// and servers.
type Builder struct {
	engine        sim.Engine
	timeEstimator timemodel.TimeEstimator
	monitor       *monitoring.Monitor

	steps         int
	serverThreads int
	bytePerSecond float64
	latency       sim.VTimeInSec
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		steps:         1,
		serverThreads: 12,
		bytePerSecond: 10e9,
		latency:       1e-6,
	}
}

// WithEngine sets the engine that runs the simulation.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithTimeEstimator sets the estimator of compute and apply times.
func (b Builder) WithTimeEstimator(e timemodel.TimeEstimator) Builder {
	b.timeEstimator = e
	return b
}

// WithMonitor registers the player with an akita monitor.
func (b Builder) WithMonitor(m *monitoring.Monitor) Builder {
	b.monitor = m
	return b
}

// WithSteps sets the number of steps every trainer runs.
func (b Builder) WithSteps(steps int) Builder {
	b.steps = steps
	return b
}

// WithServerThreads sets how many shards a server applies at the same time.
func (b Builder) WithServerThreads(n int) Builder {
	b.serverThreads = n
	return b
}

// WithLink sets the bandwidth and latency of every trainer-server link.
func (b Builder) WithLink(bytePerSecond float64, latency sim.VTimeInSec) Builder {
	b.bytePerSecond = bytePerSecond
	b.latency = latency

	return b
}

// Build creates the player for all the trainers of the plan's topology. Every
// trainer is linked to every server.
func (b Builder) Build(name string, plan *planner.Plan) (*PlanPlayer, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	topology := plan.Topology()
	p := &PlanPlayer{
		ComponentBase:    sim.NewComponentBase(name),
		TimeTeller:       b.engine,
		EventScheduler:   b.engine,
		timeEstimator:    b.timeEstimator,
		mode:             topology.Mode,
		workerNum:        topology.WorkerNum,
		steps:            b.steps,
		serverByEndpoint: make(map[string]*server),
		trainerByPort:    make(map[sim.Port]*trainer),
		serverByPort:     make(map[sim.Port]*server),
	}
	p.network = networkmodel.NewPacketSwitchingNetworkModel(b.engine, b.engine)

	for i, ep := range topology.Endpoints {
		portName := fmt.Sprintf("Server%d", i)
		s := &server{
			endpoint: ep,
			port:     sim.NewLimitNumMsgPort(p, portBufSize, name+"."+portName+"Port"),
			threads:  b.serverThreads,
			arrived:  make(map[barrierKey][]int),
		}
		p.AddPort(portName, s.port)
		p.network.PlugIn(s.port, portBufSize)

		p.servers = append(p.servers, s)
		p.serverByEndpoint[ep] = s
		p.serverByPort[s.port] = s
	}

	for id := 0; id < topology.WorkerNum; id++ {
		t, err := b.buildTrainer(p, name, plan, id)
		if err != nil {
			return nil, err
		}

		p.trainers = append(p.trainers, t)
		p.trainerByPort[t.port] = t

		for _, s := range p.servers {
			p.network.AddLink(t.port, s.port, b.bytePerSecond, b.latency)
		}
	}

	if b.monitor != nil {
		b.monitor.RegisterComponent(p)
	}

	return p, nil
}

func (b Builder) validate() error {
	switch {
	case b.engine == nil:
		return errors.New("engine is not set")
	case b.timeEstimator == nil:
		return errors.New("time estimator is not set")
	case b.steps < 1:
		return errors.Errorf("steps must be positive, got %d", b.steps)
	case b.serverThreads < 1:
		return errors.Errorf("server threads must be positive, got %d", b.serverThreads)
	case b.bytePerSecond <= 0:
		return errors.Errorf("bandwidth must be positive, got %g", b.bytePerSecond)
	}

	return nil
}

func (b Builder) buildTrainer(
	p *PlanPlayer,
	name string,
	plan *planner.Plan,
	id int,
) (*trainer, error) {
	rolePlan, err := plan.ForRole(id)
	if err != nil {
		return nil, err
	}

	sendCtx, err := rolePlan.CommunicatorSendContext()
	if err != nil {
		return nil, errors.Wrapf(err, "trainer %d", id)
	}

	recvCtx, err := rolePlan.CommunicatorRecvContext(planner.RecvAll)
	if err != nil {
		return nil, errors.Wrapf(err, "trainer %d", id)
	}

	portName := fmt.Sprintf("Trainer%d", id)
	t := &trainer{
		id:              id,
		plan:            rolePlan,
		port:            sim.NewLimitNumMsgPort(p, portBufSize, name+"."+portName+"Port"),
		sendCtx:         sendCtx,
		expectedReplies: recvCtx.NumShards(),
	}
	p.AddPort(portName, t.port)
	p.network.PlugIn(t.port, portBufSize)

	return t, nil
}
