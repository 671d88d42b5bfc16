// Package networkmodel provides a performance model for the network that
// connects trainers and parameter servers.
package networkmodel

import (
	"gitlab.com/akita/akita/v3/sim"
)

// A NetworkModel is an akita connection that carries messages over links.
type NetworkModel interface {
	sim.Connection

	// AddLink adds a bidirectional link between two ports.
	AddLink(left, right sim.Port, bytePerSecond float64, latency sim.VTimeInSec)
}

// A Link is a link in the network that connects two ports.
type Link struct {
	BytePerSecond float64
	Latency       sim.VTimeInSec
	Left, Right   sim.Port
}
