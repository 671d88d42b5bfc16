package planner

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sarchlab/psplanner"
	"k8s.io/klog/v2"
)

// Kinds of variables recorded in the registry.
const (
	VTypeParam = "Param"
	VTypeGrad  = "Grad"
)

// varMapping maps an original variable to its shard variables, keeping the
// order in which the variables were first seen.
type varMapping struct {
	order  []string
	shards map[string][]psplanner.TensorVar
}

func (m varMapping) get(name string) ([]psplanner.TensorVar, bool) {
	s, ok := m.shards[name]
	return s, ok
}

// ShardName returns the name of block i of a variable that is split.
func ShardName(varName string, blockID int) string {
	return fmt.Sprintf("%s.block%d", varName, blockID)
}

// materialize turns blocks into shard variables. A variable with a single
// block is its own shard. Blocks of variables listed in uniform carry the
// full element count and therefore the full shape.
func materialize(
	blocks []Block,
	varMap map[string]psplanner.TensorVar,
	uniform map[string]bool,
	vtype string,
) (varMapping, []DistributedVar, error) {
	grouped := make(map[string][]Block)
	var order []string

	for _, b := range blocks {
		if _, ok := grouped[b.VarName]; !ok {
			order = append(order, b.VarName)
		}
		grouped[b.VarName] = append(grouped[b.VarName], b)
	}

	mapping := varMapping{
		order:  order,
		shards: make(map[string][]psplanner.TensorVar, len(order)),
	}
	var entries []DistributedVar

	for _, name := range order {
		orig, ok := varMap[name]
		if !ok {
			return varMapping{}, nil, errors.Wrapf(ErrVarNotFound,
				"block of %s has no merged variable", name)
		}

		split := grouped[name]
		if len(split) == 1 {
			mapping.shards[name] = []psplanner.TensorVar{orig}
			entries = append(entries, DistributedVar{
				Origin:  orig,
				Slice:   orig,
				BlockID: 0,
				Offset:  0,
				IsSlice: false,
				VType:   vtype,
			})
			continue
		}

		rowWidth := orig.RowWidth()
		offset := 0
		for i, b := range split {
			shape := []int{b.Size / rowWidth}
			if len(orig.Shape) >= 2 {
				shape = append(shape, orig.Shape[1:]...)
			}

			slice := psplanner.TensorVar{
				Name:        ShardName(name, i),
				Shape:       shape,
				DType:       orig.DType,
				Type:        orig.Type,
				LoDLevel:    orig.LoDLevel,
				Persistable: false,
			}
			mapping.shards[name] = append(mapping.shards[name], slice)

			entry := DistributedVar{
				Origin:  orig,
				Slice:   slice,
				BlockID: i,
				Offset:  offset,
				IsSlice: true,
				VType:   vtype,
			}
			if uniform[name] {
				entry.Offset = -1
			}
			entries = append(entries, entry)
			offset += b.Size

			klog.V(4).Infof("shard %s of %s: shape %v", slice.Name, name, shape)
		}
	}

	return mapping, entries, nil
}

// pairShards zips grad blocks and param blocks positionally and maps every
// grad shard name to its param shard.
func pairShards(
	gradBlocks, paramBlocks []Block,
	grads, params varMapping,
) (map[string]psplanner.TensorVar, error) {
	if len(gradBlocks) != len(paramBlocks) {
		return nil, errors.Wrapf(ErrInconsistentBlocks,
			"%d grad blocks, %d param blocks", len(gradBlocks), len(paramBlocks))
	}

	out := make(map[string]psplanner.TensorVar, len(gradBlocks))
	for i := range gradBlocks {
		g, p := gradBlocks[i], paramBlocks[i]

		gradShards, _ := grads.get(g.VarName)
		paramShards, _ := params.get(p.VarName)
		if g.ID >= len(gradShards) || p.ID >= len(paramShards) {
			return nil, errors.Wrapf(ErrInconsistentBlocks,
				"block %s has no shard for %s", g, p)
		}

		out[gradShards[g.ID].Name] = paramShards[p.ID]
	}

	return out, nil
}
