package planner

import (
	"sort"

	"github.com/pkg/errors"
)

// A CommContext describes one push or pull group of a logical variable. The
// split names, endpoints and sections are positionally aligned.
type CommContext struct {
	VarName        string
	SplitVarNames  []string
	SplitEndpoints []string
	Sections       []int
	OriginVarNames []string
	TrainerID      int
	Aggregate      bool
	IsSparse       bool
}

// A ContextSet maps logical variable names to their contexts.
type ContextSet map[string]CommContext

// Names returns the sorted variable names of the set.
func (s ContextSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// NumShards returns the total number of shards of all contexts.
func (s ContextSet) NumShards() int {
	n := 0
	for _, ctx := range s {
		n += len(ctx.SplitVarNames)
	}

	return n
}

func (s ContextSet) add(ctx CommContext) {
	s[ctx.VarName] = ctx
}

// wireName names a shard the way the RPC layer sees it.
func (p *Plan) wireName(shard string, isGrad, isSend bool) string {
	switch {
	case p.policy.deltaOnSend:
		if isSend {
			return DeltaShardName(shard)
		}
		return shard
	case isGrad && p.policy.suffixTrainerGrads && p.topology.WorkerNum > 1:
		return TrainerShardName(shard, p.topology.RoleID)
	}

	return shard
}

func (p *Plan) buildCtx(
	v MergedVariable,
	isGrad, isSparse, isSend bool,
) (CommContext, error) {
	mapping := p.paramMapping
	if isGrad {
		mapping = p.gradMapping
	}

	slices, ok := mapping.get(v.Name())
	if !ok {
		return CommContext{}, errors.Wrapf(ErrVarNotFound, "%s has no shards", v.Name())
	}

	ctx := CommContext{
		VarName:        v.Name(),
		SplitVarNames:  make([]string, 0, len(slices)),
		SplitEndpoints: make([]string, 0, len(slices)),
		Sections:       make([]int, 0, len(slices)),
		OriginVarNames: v.OrderedNames(),
		TrainerID:      p.topology.RoleID,
		Aggregate:      true,
		IsSparse:       isSparse,
	}

	for _, slice := range slices {
		ep, ok := p.placement.EndpointOf(slice.Name)
		if !ok {
			return CommContext{}, errors.Wrap(ErrShardNotPlaced, slice.Name)
		}

		ctx.SplitVarNames = append(ctx.SplitVarNames, p.wireName(slice.Name, isGrad, isSend))
		ctx.SplitEndpoints = append(ctx.SplitEndpoints, ep)
		ctx.Sections = append(ctx.Sections, slice.Rows())
	}

	return ctx, nil
}

// StepCounterContext returns the context of the global step counter: one
// single-element shard on every endpoint.
func (p *Plan) StepCounterContext() CommContext {
	eps := p.topology.Endpoints
	ctx := CommContext{
		VarName:        StepCounter,
		SplitVarNames:  make([]string, len(eps)),
		SplitEndpoints: append([]string(nil), eps...),
		Sections:       make([]int, len(eps)),
		OriginVarNames: []string{StepCounter},
		TrainerID:      p.topology.RoleID,
		Aggregate:      true,
		IsSparse:       false,
	}

	for i := range eps {
		ctx.SplitVarNames[i] = StepCounter
		ctx.Sections[i] = 1
	}

	return ctx
}

// TrainerSendContext returns what the trainer program sends. Gradients are
// sent in SYNC and ASYNC modes. In GEO mode the trainer sends the deltas of
// the sparse parameters, keyed by parameter.
func (p *Plan) TrainerSendContext() (ContextSet, error) {
	set := make(ContextSet)

	if !p.policy.sendParams {
		for _, pair := range p.merged.DensePairs {
			ctx, err := p.buildCtx(pair.Grad, true, false, true)
			if err != nil {
				return nil, err
			}
			set.add(ctx)
		}

		for _, pair := range p.merged.SparsePairs {
			ctx, err := p.buildCtx(pair.Grad, true, true, true)
			if err != nil {
				return nil, err
			}
			set.add(ctx)
		}
	} else {
		for _, pair := range p.merged.SparsePairs {
			paramCtx, err := p.buildCtx(pair.Param, false, true, true)
			if err != nil {
				return nil, err
			}

			gradCtx, err := p.buildCtx(pair.Grad, true, true, true)
			if err != nil {
				return nil, err
			}

			paramCtx.OriginVarNames = gradCtx.OriginVarNames
			set.add(paramCtx)
		}
	}

	if p.policy.trainerStepCounter {
		set.add(p.StepCounterContext())
	}

	return set, nil
}

// CommunicatorSendContext returns what the background communicator flushes.
// GEO communicators flush parameter deltas, the others flush gradients.
func (p *Plan) CommunicatorSendContext() (ContextSet, error) {
	set := make(ContextSet)

	for _, pair := range p.merged.DensePairs {
		var (
			ctx CommContext
			err error
		)
		if p.policy.sendParams {
			ctx, err = p.buildCtx(pair.Param, false, false, true)
		} else {
			ctx, err = p.buildCtx(pair.Grad, true, false, true)
		}
		if err != nil {
			return nil, err
		}
		set.add(ctx)
	}

	for _, pair := range p.merged.SparsePairs {
		var (
			ctx CommContext
			err error
		)
		if p.policy.sendParams {
			ctx, err = p.buildCtx(pair.Param, false, true, true)
		} else {
			// The communicator merges sparse gradients itself and sends
			// them as dense sections.
			ctx, err = p.buildCtx(pair.Grad, true, false, true)
		}
		if err != nil {
			return nil, err
		}
		set.add(ctx)
	}

	set.add(p.StepCounterContext())

	return set, nil
}

// CommunicatorRecvContext returns the parameters the communicator pulls,
// dense ones, sparse ones or both.
func (p *Plan) CommunicatorRecvContext(recvType RecvType) (ContextSet, error) {
	if recvType < RecvDense || recvType > RecvAll {
		return nil, errors.Wrapf(ErrInvalidRecvType, "got %d", recvType)
	}

	sparseNames := make(map[string]bool)
	for _, pair := range p.merged.SparsePairs {
		sparseNames[pair.Param.Name()] = true
	}

	set := make(ContextSet)

	if recvType != RecvSparse {
		for _, pair := range p.merged.Pairs {
			if sparseNames[pair.Param.Name()] {
				continue
			}

			ctx, err := p.buildCtx(pair.Param, false, false, false)
			if err != nil {
				return nil, err
			}
			set.add(ctx)
		}
	}

	if recvType != RecvDense {
		for _, pair := range p.merged.SparsePairs {
			ctx, err := p.buildCtx(pair.Param, false, true, false)
			if err != nil {
				return nil, err
			}
			set.add(ctx)
		}
	}

	return set, nil
}
