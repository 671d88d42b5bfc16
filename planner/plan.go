// Package planner decides how the trainable variables of a program are split
// into shards, which server owns each shard, and which communication
// contexts trainers and servers use to exchange them.
//
// Planning is a pure function of the program, the topology and the options.
// Every trainer and every server runs it independently and arrives at the
// same placement without talking to each other.
package planner

import (
	"github.com/pkg/errors"
	"github.com/sarchlab/psplanner"
	"k8s.io/klog/v2"
)

// Options tunes the slicing policy.
type Options struct {
	// MinBlockSize is the minimum number of elements of a block.
	MinBlockSize int
	// SliceDense splits dense variables by MinBlockSize. Dense variables are
	// kept whole otherwise.
	SliceDense bool
	// ConcatDense plans all dense variables as one flat unit.
	ConcatDense bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{MinBlockSize: DefaultMinBlockSize}
}

// DenseMinBlockSize returns the minimum block size for dense variables.
func (o Options) DenseMinBlockSize() int {
	if o.SliceDense {
		return o.MinBlockSize
	}

	return NoSlicing
}

// A PlanningContext holds the immutable inputs of one planning pass.
type PlanningContext struct {
	Program  *psplanner.Program
	Topology psplanner.Topology
	Options  Options
}

// A Plan is the frozen result of a planning pass.
type Plan struct {
	program  *psplanner.Program
	topology psplanner.Topology
	options  Options
	policy   modePolicy

	inspection Inspection
	merged     Merged

	paramBlocks  []Block
	gradBlocks   []Block
	paramMapping varMapping
	gradMapping  varMapping
	gradToParam  map[string]psplanner.TensorVar
	shards       map[string]psplanner.TensorVar

	placement Placement
	registry  *Registry
}

// Build runs the planning pipeline: inspect, merge, slice, materialize,
// dispatch and register.
func Build(ctx PlanningContext) (*Plan, error) {
	if ctx.Program == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "no program")
	}

	if err := ctx.Topology.Validate(); err != nil {
		return nil, errors.Wrap(ErrInvalidArgument, err.Error())
	}

	policy, ok := modePolicies[ctx.Topology.Mode]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidArgument, "unsupported mode %s", ctx.Topology.Mode)
	}

	inspection, err := Inspect(ctx.Program)
	if err != nil {
		return nil, err
	}

	merged, err := Merge(inspection.SparsePairs, inspection.DensePairs)
	if err != nil {
		return nil, err
	}

	if ctx.Options.ConcatDense {
		merged, err = withConcatDense(merged, inspection.DensePairs)
		if err != nil {
			return nil, err
		}
	}

	p := &Plan{
		program:    ctx.Program,
		topology:   ctx.Topology.WithRoleID(ctx.Topology.RoleID),
		options:    ctx.Options,
		policy:     policy,
		inspection: inspection,
		merged:     merged,
	}

	if err := p.sliceAndDistribute(); err != nil {
		return nil, err
	}

	klog.V(2).Infof("planned %d param blocks and %d grad blocks on %d endpoints (%s mode)",
		len(p.paramBlocks), len(p.gradBlocks), len(p.topology.Endpoints), p.topology.Mode)

	return p, nil
}

func (p *Plan) sliceAndDistribute() error {
	sliceCount := len(p.topology.Endpoints)

	dps, dgs, err := sliceParamGrads(p.merged.DensePairs, sliceCount,
		p.options.DenseMinBlockSize(), false)
	if err != nil {
		return err
	}

	sps, sgs, err := sliceParamGrads(p.merged.SparsePairs, sliceCount,
		p.options.MinBlockSize, true)
	if err != nil {
		return err
	}

	p.paramBlocks = concatBlocks(dps, sps)
	p.gradBlocks = concatBlocks(dgs, sgs)

	uniform := make(map[string]bool)
	sparseGrads := make(map[string]bool)
	for _, pair := range p.merged.SparsePairs {
		uniform[pair.Param.Name()] = true
		uniform[pair.Grad.Name()] = true
		sparseGrads[pair.Grad.Name()] = true
	}

	paramMapping, paramEntries, err := materialize(p.paramBlocks,
		p.merged.VarMap, uniform, VTypeParam)
	if err != nil {
		return err
	}

	gradMapping, gradEntries, err := materialize(p.gradBlocks,
		p.merged.VarMap, uniform, VTypeGrad)
	if err != nil {
		return err
	}

	gradToParam, err := pairShards(p.gradBlocks, p.paramBlocks, gradMapping, paramMapping)
	if err != nil {
		return err
	}

	p.paramMapping = paramMapping
	p.gradMapping = gradMapping
	p.gradToParam = gradToParam
	p.placement = dispatch(p.topology.Endpoints, gradMapping, gradToParam, sparseGrads)
	p.registry = newRegistry(append(paramEntries, gradEntries...), p.placement)

	p.shards = make(map[string]psplanner.TensorVar)
	for _, m := range []varMapping{paramMapping, gradMapping} {
		for _, name := range m.order {
			for _, s := range m.shards[name] {
				p.shards[s.Name] = s
			}
		}
	}

	return nil
}

// sliceParamGrads slices the params and grads of the pairs, each variable
// once.
func sliceParamGrads(
	pairs []MergedPair,
	sliceCount, minBlockSize int,
	uniform bool,
) (paramBlocks, gradBlocks []Block, err error) {
	var params, grads []psplanner.TensorVar
	seen := make(map[string]bool)

	for _, pair := range pairs {
		p, g := pair.Param.Merged, pair.Grad.Merged

		if !seen[p.Name] {
			params = append(params, p)
			seen[p.Name] = true
		}

		if !seen[g.Name] {
			grads = append(grads, g)
			seen[g.Name] = true
		}
	}

	gradBlocks, err = SliceVariables(grads, sliceCount, minBlockSize, uniform)
	if err != nil {
		return nil, nil, err
	}

	paramBlocks, err = SliceVariables(params, sliceCount, minBlockSize, uniform)
	if err != nil {
		return nil, nil, err
	}

	return paramBlocks, gradBlocks, nil
}

func concatBlocks(a, b []Block) []Block {
	out := make([]Block, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)

	return out
}

// ForRole returns the plan as seen by another trainer of the same job. The
// placement is shared, only the contexts change.
func (p *Plan) ForRole(roleID int) (*Plan, error) {
	topology := p.topology.WithRoleID(roleID)
	if err := topology.Validate(); err != nil {
		return nil, errors.Wrap(ErrInvalidArgument, err.Error())
	}

	clone := *p
	clone.topology = topology

	return &clone, nil
}

// Topology returns the topology the plan was built for.
func (p *Plan) Topology() psplanner.Topology {
	return p.topology.WithRoleID(p.topology.RoleID)
}

// Options returns the options the plan was built with.
func (p *Plan) Options() Options {
	return p.options
}

// Inspection returns the result of the graph inspection.
func (p *Plan) Inspection() Inspection {
	return p.inspection
}

// Merged returns the merged variable pairs.
func (p *Plan) Merged() Merged {
	return p.merged
}

// Blocks returns the param and grad blocks in generation order.
func (p *Plan) Blocks() (paramBlocks, gradBlocks []Block) {
	return append([]Block(nil), p.paramBlocks...), append([]Block(nil), p.gradBlocks...)
}

// Placement returns a copy of the endpoint placement.
func (p *Plan) Placement() Placement {
	out := make(Placement, len(p.placement))
	for i, es := range p.placement {
		out[i] = EndpointShards{
			Endpoint: es.Endpoint,
			Params:   append([]psplanner.TensorVar(nil), es.Params...),
			Grads:    append([]psplanner.TensorVar(nil), es.Grads...),
		}
	}

	return out
}

// Registry returns the distribution registry.
func (p *Plan) Registry() *Registry {
	return p.registry
}

// ParamShards returns the shards of a merged parameter.
func (p *Plan) ParamShards(name string) []psplanner.TensorVar {
	s, _ := p.paramMapping.get(name)
	return append([]psplanner.TensorVar(nil), s...)
}

// GradShards returns the shards of a merged gradient.
func (p *Plan) GradShards(name string) []psplanner.TensorVar {
	s, _ := p.gradMapping.get(name)
	return append([]psplanner.TensorVar(nil), s...)
}

// ParamShardOf returns the param shard updated by a grad shard.
func (p *Plan) ParamShardOf(gradShard string) (psplanner.TensorVar, bool) {
	return lookupShard(p.gradToParam, gradShard)
}

// ShardVar resolves a wire-level shard name, with or without trainer and
// delta suffixes, to its shard variable.
func (p *Plan) ShardVar(name string) (psplanner.TensorVar, bool) {
	return lookupShard(p.shards, name)
}

// lookupShard tries the exact name first. Wire suffixes are stripped only
// when it misses.
func lookupShard(m map[string]psplanner.TensorVar, name string) (psplanner.TensorVar, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}

	v, ok := m[BaseShardName(name)]
	return v, ok
}
