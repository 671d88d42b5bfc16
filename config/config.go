// Package config loads the job description consumed by the planner and the
// simulator.
package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sarchlab/psplanner"
	"github.com/sarchlab/psplanner/planner"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"
)

// SimulationConfig tunes the plan replay.
type SimulationConfig struct {
	Steps               int     `json:"steps"`
	BandwidthGBps       float64 `json:"bandwidthGBps"`
	LinkLatencySec      float64 `json:"linkLatencySec"`
	ComputeTimeSec      float64 `json:"computeTimeSec"`
	ApplyElementsPerSec float64 `json:"applyElementsPerSec"`
}

// BandwidthBytesPerSec returns the link bandwidth in bytes per second.
func (c SimulationConfig) BandwidthBytesPerSec() float64 {
	return c.BandwidthGBps * 1e9
}

// A File is the content of a topology file.
type File struct {
	Mode            psplanner.Mode   `json:"mode"`
	RoleID          int              `json:"roleId"`
	WorkerNum       int              `json:"workerNum"`
	ServerEndpoints []string         `json:"serverEndpoints"`
	MinBlockSize    int              `json:"minBlockSize"`
	SliceDense      bool             `json:"sliceDense"`
	ConcatDense     bool             `json:"concatDense"`
	Simulation      SimulationConfig `json:"simulation"`
}

// Default returns a file with every optional field set.
func Default() File {
	return File{
		Mode:         psplanner.Sync,
		WorkerNum:    1,
		MinBlockSize: planner.DefaultMinBlockSize,
		Simulation: SimulationConfig{
			Steps:               1,
			BandwidthGBps:       10,
			LinkLatencySec:      1e-6,
			ComputeTimeSec:      1e-3,
			ApplyElementsPerSec: 1e9,
		},
	}
}

// Load reads and validates a topology file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, errors.Wrapf(err, "read topology %s", path)
	}

	f, err := Parse(data)
	if err != nil {
		return File{}, errors.Wrapf(err, "topology %s", path)
	}

	klog.V(2).Infof("loaded topology %s: %s mode, %d trainers, %d endpoints",
		path, f.Mode, f.WorkerNum, len(f.ServerEndpoints))

	return f, nil
}

// Parse decodes a topology document on top of the defaults. Unknown fields
// are rejected.
func Parse(data []byte) (File, error) {
	f := Default()
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return File{}, errors.Wrap(err, "decode")
	}

	if err := f.Validate(); err != nil {
		return File{}, err
	}

	return f, nil
}

// Validate checks the topology, the options and the simulation section.
func (f File) Validate() error {
	if err := f.Topology().Validate(); err != nil {
		return err
	}

	if f.MinBlockSize != planner.NoSlicing && f.MinBlockSize < 1 {
		return errors.Errorf("minBlockSize must be positive or %d, got %d",
			planner.NoSlicing, f.MinBlockSize)
	}

	s := f.Simulation
	if s.Steps < 1 {
		return errors.Errorf("simulation.steps must be positive, got %d", s.Steps)
	}

	if s.BandwidthGBps <= 0 || s.ApplyElementsPerSec <= 0 {
		return errors.New("simulation bandwidth and apply rate must be positive")
	}

	if s.LinkLatencySec < 0 || s.ComputeTimeSec < 0 {
		return errors.New("simulation latency and compute time may not be negative")
	}

	return nil
}

// Topology returns the topology described by the file.
func (f File) Topology() psplanner.Topology {
	return psplanner.Topology{
		RoleID:    f.RoleID,
		WorkerNum: f.WorkerNum,
		Endpoints: append([]string(nil), f.ServerEndpoints...),
		Mode:      f.Mode,
	}
}

// Options returns the planner options described by the file.
func (f File) Options() planner.Options {
	return planner.Options{
		MinBlockSize: f.MinBlockSize,
		SliceDense:   f.SliceDense,
		ConcatDense:  f.ConcatDense,
	}
}
