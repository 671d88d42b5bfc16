package planner

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sarchlab/psplanner"
	"k8s.io/klog/v2"
)

// ClipOpNameScope marks operators that belong to gradient clipping. Servers
// must not see them, so they are never classified as optimize operators.
const ClipOpNameScope = "@CLIP"

// A ParamGradPair binds a parameter to the gradient that updates it.
type ParamGradPair struct {
	Param  psplanner.TensorVar
	Grad   psplanner.TensorVar
	Sparse bool
}

// An Inspection is the result of scanning a program once.
type Inspection struct {
	SparsePairs []ParamGradPair
	DensePairs  []ParamGradPair
	// OptimizeOps are the optimize operators that survived clip filtering.
	OptimizeOps []*psplanner.Operator
	// RetaggedClipOps are the indexes of clip operators that are treated as
	// backward operators.
	RetaggedClipOps []int
}

// IsOptimizeOp tells if the operator belongs to the optimizer. Optimize
// combined with Backward also counts.
func IsOptimizeOp(op *psplanner.Operator) bool {
	return op.Role == psplanner.Optimize ||
		op.Role == psplanner.Optimize|psplanner.Backward
}

// IsClipOp tells if the operator lives under a gradient clipping name scope.
func IsClipOp(op *psplanner.Operator) bool {
	return strings.Contains(op.StringAttr(psplanner.AttrOpNameScope), ClipOpNameScope)
}

// IsSparseOp tells if the operator looks up rows of a sparse table.
func IsSparseOp(op *psplanner.Operator) bool {
	switch op.Type {
	case "lookup_table":
		return op.BoolAttr(psplanner.AttrIsSparse) ||
			op.BoolAttr(psplanner.AttrRemotePrefetch)
	case "distributed_lookup_table":
		return true
	}

	return false
}

// SparseTableName returns the table looked up by a sparse operator.
func SparseTableName(op *psplanner.Operator) (string, bool) {
	if !IsSparseOp(op) {
		return "", false
	}

	w := op.Input("W")
	if len(w) == 0 {
		return "", false
	}

	return w[0], true
}

// SparseTableNames lists all the sparse tables of the program, sorted.
func SparseTableNames(prog *psplanner.Program) []string {
	set := make(map[string]bool)
	for _, op := range prog.Ops {
		if name, ok := SparseTableName(op); ok {
			set[name] = true
		}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// OptimizeOps returns the optimize operators, excluding clip operators.
func OptimizeOps(prog *psplanner.Program) []*psplanner.Operator {
	var ops []*psplanner.Operator
	for _, op := range prog.Ops {
		if IsOptimizeOp(op) && !IsClipOp(op) {
			ops = append(ops, op)
		}
	}

	return ops
}

// LRSchedOps returns the learning rate scheduling operators.
func LRSchedOps(prog *psplanner.Program) []*psplanner.Operator {
	var ops []*psplanner.Operator
	for _, op := range prog.Ops {
		if op.Role == psplanner.LRSched ||
			op.Role == psplanner.LRSched|psplanner.Optimize {
			ops = append(ops, op)
		}
	}

	return ops
}

// Inspect classifies the operators of a program and extracts the optimized
// (param, grad) pairs, split into sparse and dense pairs.
func Inspect(prog *psplanner.Program) (Inspection, error) {
	var result Inspection

	sparseTables := make(map[string]bool)
	for _, name := range SparseTableNames(prog) {
		sparseTables[name] = true
	}

	seen := make(map[string]bool)
	for _, op := range prog.Ops {
		if !IsOptimizeOp(op) {
			continue
		}

		if IsClipOp(op) {
			result.RetaggedClipOps = append(result.RetaggedClipOps, op.Index)
			klog.V(4).Infof("op %d (%s) is a clip op, treated as backward",
				op.Index, op.Type)
			continue
		}

		result.OptimizeOps = append(result.OptimizeOps, op)

		roleVar := op.StringsAttr(psplanner.AttrOpRoleVar)
		if len(roleVar) < 2 {
			continue
		}

		paramName, gradName := roleVar[0], roleVar[1]
		if seen[paramName] {
			continue
		}
		seen[paramName] = true

		pair, err := lookupPair(prog, paramName, gradName)
		if err != nil {
			return Inspection{}, errors.Wrapf(err, "op %d (%s)", op.Index, op.Type)
		}

		if sparseTables[paramName] {
			pair.Sparse = true
			result.SparsePairs = append(result.SparsePairs, pair)
		} else {
			result.DensePairs = append(result.DensePairs, pair)
		}
	}

	klog.V(2).Infof("inspected %d ops: %d sparse pairs, %d dense pairs, %d clip ops",
		len(prog.Ops), len(result.SparsePairs), len(result.DensePairs),
		len(result.RetaggedClipOps))

	return result, nil
}

func lookupPair(prog *psplanner.Program, paramName, gradName string) (ParamGradPair, error) {
	param, ok := prog.Var(paramName)
	if !ok {
		return ParamGradPair{}, errors.Wrap(ErrVarNotFound, paramName)
	}

	grad, ok := prog.Var(gradName)
	if !ok {
		return ParamGradPair{}, errors.Wrap(ErrVarNotFound, gradName)
	}

	return ParamGradPair{Param: param, Grad: grad}, nil
}
