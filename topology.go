package psplanner

import (
	"fmt"
	"strings"
)

// A Mode is the coordination mode between trainers and servers.
type Mode int

// Mode constants
const (
	// Sync trainers push gradients in lock-step.
	Sync Mode = iota
	// Async trainers push gradients every step without waiting for others.
	Async
	// Geo trainers accumulate parameter deltas locally and push them
	// periodically.
	Geo
)

func (m Mode) String() string {
	switch m {
	case Sync:
		return "sync"
	case Async:
		return "async"
	case Geo:
		return "geo"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "sync":
		return Sync, nil
	case "async":
		return Async, nil
	case "geo":
		return Geo, nil
	}

	return 0, fmt.Errorf("unknown mode %q, must be sync, async or geo", s)
}

// MarshalText encodes the mode as its name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}

	*m = mode

	return nil
}

// A Topology describes the distributed job as seen by one process.
type Topology struct {
	// RoleID is the id of this trainer.
	RoleID int
	// WorkerNum is the number of trainers.
	WorkerNum int
	// Endpoints lists the server endpoints in order.
	Endpoints []string
	Mode      Mode
}

// Validate checks that the topology can be planned for.
func (t Topology) Validate() error {
	if len(t.Endpoints) == 0 {
		return fmt.Errorf("topology has no server endpoints")
	}

	if t.WorkerNum < 1 {
		return fmt.Errorf("worker number must be positive, got %d", t.WorkerNum)
	}

	if t.RoleID < 0 || t.RoleID >= t.WorkerNum {
		return fmt.Errorf("role id %d out of range [0, %d)", t.RoleID, t.WorkerNum)
	}

	seen := make(map[string]bool, len(t.Endpoints))
	for _, ep := range t.Endpoints {
		if seen[ep] {
			return fmt.Errorf("duplicated endpoint %s", ep)
		}
		seen[ep] = true
	}

	return nil
}

// WithRoleID returns a copy of the topology seen by another trainer.
func (t Topology) WithRoleID(roleID int) Topology {
	t.Endpoints = append([]string(nil), t.Endpoints...)
	t.RoleID = roleID

	return t
}
