// Package psplanner provides the types that describe a trainer program and a
// parameter-server topology, and the planner that shards the program's
// variables across the servers.
package psplanner

import (
	"fmt"
	"sort"
	"strings"
)

// A DType represents the element type of a variable.
type DType int

// DType constants
const (
	Float32 DType = iota
	Float64
	Float16
	Int32
	Int64
	Bool
	Uint8
)

var dtypeNames = map[DType]string{
	Float32: "float32",
	Float64: "float64",
	Float16: "float16",
	Int32:   "int32",
	Int64:   "int64",
	Bool:    "bool",
	Uint8:   "uint8",
}

// Size returns the number of bytes of one element.
func (t DType) Size() int {
	switch t {
	case Float64, Int64:
		return 8
	case Float32, Int32:
		return 4
	case Float16:
		return 2
	default:
		return 1
	}
}

func (t DType) String() string {
	if name, ok := dtypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("dtype(%d)", int(t))
}

// ParseDType converts a dtype name to a DType.
func ParseDType(s string) (DType, error) {
	for t, name := range dtypeNames {
		if name == strings.ToLower(s) {
			return t, nil
		}
	}

	return 0, fmt.Errorf("unknown dtype %q", s)
}

// A VarType is the storage kind of a variable.
type VarType int

// VarType constants
const (
	// LoDTensor is an ordinary dense tensor.
	LoDTensor VarType = iota
	// SelectedRows is a sparse, row-indexed tensor.
	SelectedRows
)

func (t VarType) String() string {
	if t == SelectedRows {
		return "selected_rows"
	}

	return "lod_tensor"
}

// ParseVarType converts a storage kind name to a VarType.
func ParseVarType(s string) (VarType, error) {
	switch strings.ToLower(s) {
	case "lod_tensor", "dense", "":
		return LoDTensor, nil
	case "selected_rows", "sparse":
		return SelectedRows, nil
	}

	return 0, fmt.Errorf("unknown var type %q", s)
}

// A TensorVar describes a variable of the program. We do not carry the data
// since planning only depends on the shape.
type TensorVar struct {
	Name        string
	Shape       []int
	DType       DType
	Type        VarType
	LoDLevel    int
	Persistable bool
}

// Numel returns the total number of elements of the variable.
func (v TensorVar) Numel() int {
	n := 1
	for _, d := range v.Shape {
		n *= d
	}

	return n
}

// RowWidth returns the number of elements in one row, that is, the product
// of all dimensions after the first. It is 1 for 1-D variables.
func (v TensorVar) RowWidth() int {
	w := 1
	for _, d := range v.Shape[min(1, len(v.Shape)):] {
		w *= d
	}

	return w
}

// Rows returns the size of the first dimension. A scalar is one row.
func (v TensorVar) Rows() int {
	if len(v.Shape) == 0 {
		return 1
	}

	return v.Shape[0]
}

// Bytes returns the number of bytes of the variable.
func (v TensorVar) Bytes() uint64 {
	return uint64(v.Numel()) * uint64(v.DType.Size())
}

func (v TensorVar) String() string {
	dims := make([]string, len(v.Shape))
	for i, d := range v.Shape {
		dims[i] = fmt.Sprint(d)
	}

	return fmt.Sprintf("%s : %s.shape(%s).%s.lod(%d).persistable(%t)",
		v.Name, v.Type, strings.Join(dims, ", "), v.DType, v.LoDLevel,
		v.Persistable)
}

// An OpRole tags what part of training an operator belongs to. Roles can be
// combined with bitwise or.
type OpRole int

// OpRole constants
const (
	Forward  OpRole = 0x0000
	Backward OpRole = 0x0001
	Optimize OpRole = 0x0002
	RPC      OpRole = 0x0004
	Dist     OpRole = 0x0008
	LRSched  OpRole = 0x0010
	Loss     OpRole = 0x0100
)

// Attribute names used by the planner.
const (
	AttrOpRole         = "op_role"
	AttrOpRoleVar      = "op_role_var"
	AttrOpNameScope    = "op_namescope"
	AttrIsSparse       = "is_sparse"
	AttrRemotePrefetch = "remote_prefetch"
)

// An Operator is one operation of the program.
type Operator struct {
	Index   int
	Type    string
	Role    OpRole
	Inputs  map[string][]string
	Outputs map[string][]string
	Attrs   map[string]interface{}
}

// Input returns the variable names bound to an input slot.
func (op *Operator) Input(slot string) []string {
	return op.Inputs[slot]
}

// Output returns the variable names bound to an output slot.
func (op *Operator) Output(slot string) []string {
	return op.Outputs[slot]
}

// HasAttr tells if the operator carries the attribute.
func (op *Operator) HasAttr(name string) bool {
	_, ok := op.Attrs[name]
	return ok
}

// BoolAttr returns a boolean attribute, false if absent.
func (op *Operator) BoolAttr(name string) bool {
	v, _ := op.Attrs[name].(bool)
	return v
}

// StringAttr returns a string attribute, empty if absent.
func (op *Operator) StringAttr(name string) string {
	v, _ := op.Attrs[name].(string)
	return v
}

// StringsAttr returns a string list attribute, nil if absent.
func (op *Operator) StringsAttr(name string) []string {
	v, _ := op.Attrs[name].([]string)
	return v
}

// A Program is the global block of a trainer program: the variables and the
// ordered operator list.
type Program struct {
	Vars map[string]TensorVar
	Ops  []*Operator
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{
		Vars: make(map[string]TensorVar),
	}
}

// AddVar adds or replaces a variable.
func (p *Program) AddVar(v TensorVar) {
	p.Vars[v.Name] = v
}

// AddOp appends an operator and assigns its index.
func (p *Program) AddOp(op *Operator) {
	op.Index = len(p.Ops)
	p.Ops = append(p.Ops, op)
}

// Var looks up a variable by name.
func (p *Program) Var(name string) (TensorVar, bool) {
	v, ok := p.Vars[name]
	return v, ok
}

// VarNames returns the sorted variable names.
func (p *Program) VarNames() []string {
	names := make([]string, 0, len(p.Vars))
	for name := range p.Vars {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
