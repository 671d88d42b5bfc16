package planner

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sarchlab/psplanner"
)

// Names of the unit built by ConcatDense.
const (
	ConcatDenseParamName = "merged.dense_0"
	ConcatDenseGradName  = "merged.dense_0@GRAD"
)

// A MergedVariable is a variable that the planner shards as one unit. It is
// made of one or more ordered variables laid out at flat offsets.
type MergedVariable struct {
	Merged  psplanner.TensorVar
	Ordered []psplanner.TensorVar
	Offsets []int
}

// NewMergedVariable wraps a single variable.
func NewMergedVariable(v psplanner.TensorVar) MergedVariable {
	return MergedVariable{
		Merged:  v,
		Ordered: []psplanner.TensorVar{v},
		Offsets: []int{0},
	}
}

// Name returns the name of the merged variable.
func (m MergedVariable) Name() string {
	return m.Merged.Name
}

// OrderedNames returns the names of the constituent variables.
func (m MergedVariable) OrderedNames() []string {
	names := make([]string, len(m.Ordered))
	for i, v := range m.Ordered {
		names[i] = v.Name
	}

	return names
}

// Validate checks the offset layout.
func (m MergedVariable) Validate() error {
	if len(m.Ordered) == 0 || len(m.Ordered) != len(m.Offsets) {
		return errors.Wrapf(ErrInvalidMergedVariable,
			"%s has %d vars and %d offsets", m.Merged.Name, len(m.Ordered),
			len(m.Offsets))
	}

	if m.Offsets[0] != 0 {
		return errors.Wrapf(ErrInvalidMergedVariable,
			"%s starts at offset %d", m.Merged.Name, m.Offsets[0])
	}

	for i := 1; i < len(m.Offsets); i++ {
		if m.Offsets[i] <= m.Offsets[i-1] {
			return errors.Wrapf(ErrInvalidMergedVariable,
				"%s offsets are not increasing at %d", m.Merged.Name, i)
		}
	}

	last := len(m.Ordered) - 1
	if m.Offsets[last]+m.Ordered[last].Numel() != m.Merged.Numel() {
		return errors.Wrapf(ErrInvalidMergedVariable,
			"%s does not cover %d elements", m.Merged.Name, m.Merged.Numel())
	}

	return nil
}

func (m MergedVariable) String() string {
	return fmt.Sprintf("merged: %s\nordered: %s\n", m.Merged.Name,
		strings.Join(m.OrderedNames(), ","))
}

// A MergedPair is a merged parameter and its merged gradient.
type MergedPair struct {
	Param MergedVariable
	Grad  MergedVariable
}

// Merged is the output of the variable merger.
type Merged struct {
	// Pairs holds the dense pairs followed by the sparse pairs.
	Pairs       []MergedPair
	DensePairs  []MergedPair
	SparsePairs []MergedPair
	// VarMap maps each merged param and grad name to its variable.
	VarMap map[string]psplanner.TensorVar
}

// Merge groups the raw pairs into merged units. Every pair currently
// produces its own unit.
func Merge(sparse, dense []ParamGradPair) (Merged, error) {
	m := Merged{VarMap: make(map[string]psplanner.TensorVar)}

	for _, p := range dense {
		if p.Grad.Type == psplanner.SelectedRows {
			return Merged{}, errors.Wrapf(ErrSparseGradOnDensePath,
				"%s may not be a dense param", p.Param.Name)
		}

		pair := MergedPair{
			Param: NewMergedVariable(p.Param),
			Grad:  NewMergedVariable(p.Grad),
		}
		m.DensePairs = append(m.DensePairs, pair)
	}

	for _, p := range sparse {
		pair := MergedPair{
			Param: NewMergedVariable(p.Param),
			Grad:  NewMergedVariable(p.Grad),
		}
		m.SparsePairs = append(m.SparsePairs, pair)
	}

	m.Pairs = append(m.Pairs, m.DensePairs...)
	m.Pairs = append(m.Pairs, m.SparsePairs...)

	for _, pair := range m.Pairs {
		m.VarMap[pair.Param.Name()] = pair.Param.Merged
		m.VarMap[pair.Grad.Name()] = pair.Grad.Merged
	}

	return m, nil
}

// ConcatDense lays all dense pairs out as one flat parameter and one flat
// gradient.
func ConcatDense(dense []ParamGradPair) (MergedPair, error) {
	if len(dense) == 0 {
		return MergedPair{}, errors.Wrap(ErrInvalidArgument, "no dense pairs to concat")
	}

	var (
		params, grads []psplanner.TensorVar
		offsets       []int
		flatten       int
	)

	for _, p := range dense {
		if p.Grad.Type == psplanner.SelectedRows {
			return MergedPair{}, errors.Wrapf(ErrSparseGradOnDensePath,
				"%s may not be a dense param", p.Param.Name)
		}

		params = append(params, p.Param)
		grads = append(grads, p.Grad)
		offsets = append(offsets, flatten)
		flatten += p.Param.Numel()
	}

	first := dense[0]
	param := MergedVariable{
		Merged: psplanner.TensorVar{
			Name:        ConcatDenseParamName,
			Shape:       []int{flatten},
			DType:       first.Param.DType,
			Type:        first.Param.Type,
			LoDLevel:    first.Param.LoDLevel,
			Persistable: first.Param.Persistable,
		},
		Ordered: params,
		Offsets: offsets,
	}
	grad := MergedVariable{
		Merged: psplanner.TensorVar{
			Name:        ConcatDenseGradName,
			Shape:       []int{flatten},
			DType:       first.Grad.DType,
			Type:        first.Grad.Type,
			LoDLevel:    first.Grad.LoDLevel,
			Persistable: first.Grad.Persistable,
		},
		Ordered: grads,
		Offsets: append([]int(nil), offsets...),
	}

	if err := param.Validate(); err != nil {
		return MergedPair{}, err
	}

	if err := grad.Validate(); err != nil {
		return MergedPair{}, err
	}

	return MergedPair{Param: param, Grad: grad}, nil
}

// withConcatDense replaces the dense pairs with the single concatenated unit.
func withConcatDense(m Merged, dense []ParamGradPair) (Merged, error) {
	if len(dense) == 0 {
		return m, nil
	}

	unit, err := ConcatDense(dense)
	if err != nil {
		return Merged{}, err
	}

	out := Merged{
		DensePairs:  []MergedPair{unit},
		SparsePairs: m.SparsePairs,
		VarMap:      make(map[string]psplanner.TensorVar),
	}
	out.Pairs = append(out.Pairs, out.DensePairs...)
	out.Pairs = append(out.Pairs, out.SparsePairs...)

	for _, pair := range out.Pairs {
		out.VarMap[pair.Param.Name()] = pair.Param.Merged
		out.VarMap[pair.Grad.Name()] = pair.Grad.Merged
	}

	return out, nil
}
