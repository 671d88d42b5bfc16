package networkmodel

import (
	"math"
	"sort"

	"gitlab.com/akita/akita/v3/sim"
	"k8s.io/klog/v2"
)

// A transferUpdateEvent is an event that is scheduled when a transfer is
// likely to be completed.
type transferUpdateEvent struct {
	time    sim.VTimeInSec
	handler sim.Handler
	msg     sim.Msg
}

func (e transferUpdateEvent) Time() sim.VTimeInSec {
	return e.time
}

func (e transferUpdateEvent) Handler() sim.Handler {
	return e.handler
}

func (e transferUpdateEvent) IsSecondary() bool {
	return false
}

type eventKey struct {
	msgID string
	time  sim.VTimeInSec
}

// A Route is the path of one message through the network.
type Route struct {
	src          sim.Port
	dst          sim.Port
	links        []*PSLink
	latency      sim.VTimeInSec
	bw           float64
	msg          sim.Msg
	progress     float64
	updateTime   sim.VTimeInSec
	scheduleTime sim.VTimeInSec
}

func (r *Route) drained() bool {
	return r.progress >= float64(r.msg.Meta().TrafficBytes)
}

// A PSLink is a directed link and the routes that currently use it.
type PSLink struct {
	link   *Link
	routes map[string]*Route
}

func (l *PSLink) activeRoutes() int {
	n := 0
	for _, r := range l.routes {
		if !r.drained() {
			n++
		}
	}

	return n
}

// Graph is an adjacency map with hop weights.
type Graph map[string]map[string]float64

// A PacketSwitchingNetworkModel is a simple network model that can estimate
// the arrival time of transfers. Routes that share a link share its
// bandwidth equally.
type PacketSwitchingNetworkModel struct {
	sim.HookableBase
	sim.EventScheduler
	sim.TimeTeller

	busyNodes       map[string]bool
	pendingDelivery map[string][]sim.Msg
	scheduled       map[eventKey]bool

	nodes  map[string]sim.Port
	links  map[string][]*PSLink
	routes map[string]*Route

	deliveredMsgs  uint64
	deliveredBytes uint64
}

// NewPacketSwitchingNetworkModel creates a new PacketSwitchingNetworkModel.
func NewPacketSwitchingNetworkModel(
	es sim.EventScheduler,
	tt sim.TimeTeller,
) *PacketSwitchingNetworkModel {
	m := &PacketSwitchingNetworkModel{
		EventScheduler:  es,
		TimeTeller:      tt,
		busyNodes:       make(map[string]bool),
		pendingDelivery: make(map[string][]sim.Msg),
		scheduled:       make(map[eventKey]bool),
		nodes:           make(map[string]sim.Port),
		links:           make(map[string][]*PSLink),
		routes:          make(map[string]*Route),
	}

	return m
}

// PlugIn plugs a port into the network.
func (m *PacketSwitchingNetworkModel) PlugIn(port sim.Port, bufSize int) {
	m.nodes[port.Name()] = port
	port.SetConnection(m)
}

// Unplug removes a port from the network.
func (m *PacketSwitchingNetworkModel) Unplug(port sim.Port) {
	delete(m.nodes, port.Name())
}

// NotifyAvailable notifies the network that the port is available to
// receive messages again.
func (m *PacketSwitchingNetworkModel) NotifyAvailable(
	now sim.VTimeInSec,
	port sim.Port,
) {
	pendingDelivery := m.pendingDelivery[port.Name()]

	for len(pendingDelivery) > 0 {
		msg := pendingDelivery[0]
		msg.Meta().RecvTime = now
		err := port.Recv(msg)
		if err != nil {
			break
		}

		m.countDelivered(msg)
		pendingDelivery = pendingDelivery[1:]
	}

	m.pendingDelivery[port.Name()] = pendingDelivery

	if len(pendingDelivery) == 0 {
		delete(m.busyNodes, port.Name())
	}
}

// AddLink adds a link between two ports, one in each direction.
func (m *PacketSwitchingNetworkModel) AddLink(
	left, right sim.Port,
	bytePerSecond float64,
	latency sim.VTimeInSec,
) {
	m.links[left.Name()] = append(m.links[left.Name()], &PSLink{
		link: &Link{
			Left:          left,
			Right:         right,
			BytePerSecond: bytePerSecond,
			Latency:       latency,
		},
		routes: make(map[string]*Route),
	})
	m.links[right.Name()] = append(m.links[right.Name()], &PSLink{
		link: &Link{
			Left:          right,
			Right:         left,
			BytePerSecond: bytePerSecond,
			Latency:       latency,
		},
		routes: make(map[string]*Route),
	})
}

// Handle checks if the transfers are completed.
func (m *PacketSwitchingNetworkModel) Handle(e sim.Event) error {
	switch e := e.(type) {
	case transferUpdateEvent:
		return m.handleTransferUpdateEvent(e)
	default:
		panic("unknown event type")
	}
}

func (m *PacketSwitchingNetworkModel) handleTransferUpdateEvent(
	e transferUpdateEvent,
) error {
	delete(m.scheduled, eventKey{msgID: e.msg.Meta().ID, time: e.time})

	if !m.checkScheduleEvent(e) {
		m.scheduleNextEvent()
		return nil
	}

	msg := e.msg
	route := m.removeRoute(msg)
	m.updateProgress(route)
	m.deliver(msg)
	m.scheduleNextEvent()

	return nil
}

func (m *PacketSwitchingNetworkModel) deliver(msg sim.Msg) {
	dst := msg.Meta().Dst.Name()

	if m.busyNodes[dst] {
		m.pendingDelivery[dst] = append(m.pendingDelivery[dst], msg)
		return
	}

	msg.Meta().RecvTime = m.CurrentTime()
	if err := msg.Meta().Dst.Recv(msg); err != nil {
		m.busyNodes[dst] = true
		m.pendingDelivery[dst] = append(m.pendingDelivery[dst], msg)
		klog.V(4).Infof("%.9f: %s is busy, %d messages pending",
			m.CurrentTime(), dst, len(m.pendingDelivery[dst]))
		return
	}

	m.countDelivered(msg)
}

func (m *PacketSwitchingNetworkModel) countDelivered(msg sim.Msg) {
	m.deliveredMsgs++
	m.deliveredBytes += uint64(msg.Meta().TrafficBytes)
}

// CanSend checks if the network can send a message.
func (m *PacketSwitchingNetworkModel) CanSend(src sim.Port) bool {
	return true
}

// Send starts the transfer of a message.
func (m *PacketSwitchingNetworkModel) Send(msg sim.Msg) *sim.SendError {
	route := m.findRoute(msg)
	m.updateProgress(route)
	m.scheduleNextEvent()

	return nil
}

// Delivered returns the number of messages and bytes delivered so far.
func (m *PacketSwitchingNetworkModel) Delivered() (msgs, bytes uint64) {
	return m.deliveredMsgs, m.deliveredBytes
}

// InFlight returns the number of messages still on the wire.
func (m *PacketSwitchingNetworkModel) InFlight() int {
	return len(m.routes)
}

func (m *PacketSwitchingNetworkModel) checkScheduleEvent(e transferUpdateEvent) bool {
	route, found := m.routes[e.msg.Meta().ID]
	if !found || route == nil {
		return false
	}

	return route.scheduleTime == e.time
}

// updateProgress recomputes the bandwidth and completion time of every
// route that shares a link with the given route.
func (m *PacketSwitchingNetworkModel) updateProgress(route *Route) {
	routesUpdate := make(map[string]*Route)
	for _, psLink := range route.links {
		for key, routeUpdate := range psLink.routes {
			routesUpdate[key] = routeUpdate
		}
	}

	now := m.CurrentTime()
	for _, routeUpdate := range routesUpdate {
		if routeUpdate.drained() {
			continue
		}

		timeSinceUpdate := float64(now - routeUpdate.updateTime)
		progress := routeUpdate.progress + timeSinceUpdate*routeUpdate.bw
		bytes := float64(routeUpdate.msg.Meta().TrafficBytes)
		if progress >= bytes {
			routeUpdate.progress = bytes
			routeUpdate.updateTime = now
			continue
		}

		minBW := math.Inf(1)
		for _, psLink := range routeUpdate.links {
			currentBW := psLink.link.BytePerSecond / float64(max(psLink.activeRoutes(), 1))
			if minBW > currentBW {
				minBW = currentBW
			}
		}

		timeLeft := (bytes - progress) / minBW

		routeUpdate.bw = minBW
		routeUpdate.progress = progress
		routeUpdate.updateTime = now
		routeUpdate.scheduleTime = now + sim.VTimeInSec(timeLeft) + routeUpdate.latency

		klog.V(5).Infof("%.9f: msg %s at %.0f B/s, %.0f bytes left",
			now, routeUpdate.msg.Meta().ID, minBW, bytes-progress)
	}
}

// scheduleNextEvent schedules the completion of the earliest route.
func (m *PacketSwitchingNetworkModel) scheduleNextEvent() {
	var next *Route
	for _, route := range m.routes {
		if next == nil ||
			route.scheduleTime < next.scheduleTime ||
			(route.scheduleTime == next.scheduleTime &&
				route.msg.Meta().ID < next.msg.Meta().ID) {
			next = route
		}
	}

	if next == nil {
		return
	}

	key := eventKey{msgID: next.msg.Meta().ID, time: next.scheduleTime}
	if m.scheduled[key] {
		return
	}
	m.scheduled[key] = true

	m.Schedule(transferUpdateEvent{
		time:    next.scheduleTime,
		handler: m,
		msg:     next.msg,
	})
}

func (m *PacketSwitchingNetworkModel) removeRoute(msg sim.Msg) *Route {
	route := m.routes[msg.Meta().ID]
	delete(m.routes, msg.Meta().ID)

	for _, psLink := range route.links {
		delete(psLink.routes, msg.Meta().ID)
	}

	return route
}

func (m *PacketSwitchingNetworkModel) findLinkFromPorts(src sim.Port, dst sim.Port) *PSLink {
	for _, psLink := range m.links[src.Name()] {
		if psLink.link.Right.Name() == dst.Name() {
			return psLink
		}
	}

	panic("link not found")
}

func (m *PacketSwitchingNetworkModel) findRoute(msg sim.Msg) *Route {
	if route, found := m.routes[msg.Meta().ID]; found {
		return route
	}

	src := msg.Meta().Src.Name()
	dst := msg.Meta().Dst.Name()
	path, ok := m.calculateShortestPath(m.initializeGraph(), src, dst)
	if !ok {
		panic("no path from " + src + " to " + dst)
	}

	psLinks := make([]*PSLink, 0, len(path)-1)
	var latency sim.VTimeInSec
	for i := range path[:len(path)-1] {
		psLink := m.findLinkFromPorts(m.nodes[path[i]], m.nodes[path[i+1]])
		psLinks = append(psLinks, psLink)
		latency += psLink.link.Latency
	}

	newRoute := &Route{
		src:          msg.Meta().Src,
		dst:          msg.Meta().Dst,
		links:        psLinks,
		latency:      latency,
		msg:          msg,
		updateTime:   m.CurrentTime(),
		scheduleTime: m.CurrentTime() + latency,
	}

	for _, psLink := range psLinks {
		psLink.routes[msg.Meta().ID] = newRoute
	}

	m.routes[msg.Meta().ID] = newRoute

	return newRoute
}

// initializeGraph builds the graph of plugged ports. Every link weighs one
// hop.
func (m *PacketSwitchingNetworkModel) initializeGraph() Graph {
	graph := make(Graph)

	for src, psLinks := range m.links {
		if _, ok := graph[src]; !ok {
			graph[src] = make(map[string]float64)
		}

		for _, psLink := range psLinks {
			dst := psLink.link.Right.Name()
			if _, ok := graph[dst]; !ok {
				graph[dst] = make(map[string]float64)
			}

			graph[src][dst] = 1
		}
	}

	return graph
}

func (m *PacketSwitchingNetworkModel) calculateShortestPath(
	graph Graph,
	src, dst string,
) ([]string, bool) {
	if _, ok := graph[src]; !ok {
		return nil, false
	}

	dist := make(map[string]float64, len(graph))
	prev := make(map[string]string)
	for node := range graph {
		dist[node] = math.Inf(1)
	}
	dist[src] = 0

	for len(dist) > 0 {
		minNode := ""
		minDist := math.Inf(1)
		for node, d := range dist {
			if d < minDist || (d == minDist && minNode != "" && node < minNode) {
				minDist = d
				minNode = node
			}
		}

		if minNode == "" || minNode == dst {
			break
		}

		neighbors := make([]string, 0, len(graph[minNode]))
		for neighbor := range graph[minNode] {
			neighbors = append(neighbors, neighbor)
		}
		sort.Strings(neighbors)

		for _, neighbor := range neighbors {
			d, unvisited := dist[neighbor]
			if !unvisited {
				continue
			}

			if alt := minDist + graph[minNode][neighbor]; alt < d {
				dist[neighbor] = alt
				prev[neighbor] = minNode
			}
		}

		delete(dist, minNode)
	}

	if _, reached := prev[dst]; !reached && dst != src {
		return nil, false
	}

	path := []string{}
	for node := dst; node != ""; node = prev[node] {
		path = append([]string{node}, path...)
		if node == src {
			break
		}
	}

	return path, true
}
