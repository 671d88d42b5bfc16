package psplanner

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// A ProgramLoader loads a program from a set of files.
type ProgramLoader struct {
	// The directory where the program files are located.
	Dir string
}

// Load loads a program from vars.csv and ops.csv.
func (l *ProgramLoader) Load() (*Program, error) {
	prog := NewProgram()

	varRecords, err := l.readRecords("vars.csv")
	if err != nil {
		return nil, err
	}

	for i, record := range varRecords {
		if i == 0 {
			continue
		}

		v, err := l.parseVar(record)
		if err != nil {
			return nil, errors.Wrapf(err, "vars.csv line %d", i+1)
		}
		prog.AddVar(v)
	}

	opRecords, err := l.readRecords("ops.csv")
	if err != nil {
		return nil, err
	}

	for i, record := range opRecords {
		if i == 0 {
			continue
		}

		op, err := l.parseOp(record)
		if err != nil {
			return nil, errors.Wrapf(err, "ops.csv line %d", i+1)
		}
		prog.AddOp(op)
	}

	klog.V(2).Infof("loaded program from %s: %d vars, %d ops",
		l.Dir, len(prog.Vars), len(prog.Ops))

	return prog, nil
}

func (l *ProgramLoader) readRecords(file string) ([][]string, error) {
	path := filepath.Join(l.Dir, file)
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, errors.Wrap(err, "open program file")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ','
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", absPath)
	}

	return records, nil
}

// parseVar parses name,shape,dtype,type,lod_level,persistable.
func (l *ProgramLoader) parseVar(record []string) (TensorVar, error) {
	if len(record) < 6 {
		return TensorVar{}, fmt.Errorf("expected 6 fields, got %d", len(record))
	}

	shape, err := parseIntList(record[1])
	if err != nil {
		return TensorVar{}, err
	}

	for _, d := range shape {
		if d <= 0 {
			return TensorVar{}, fmt.Errorf("var %s has non-positive dimension %d",
				record[0], d)
		}
	}

	dtype, err := ParseDType(record[2])
	if err != nil {
		return TensorVar{}, err
	}

	vtype, err := ParseVarType(record[3])
	if err != nil {
		return TensorVar{}, err
	}

	lodLevel, err := strconv.Atoi(record[4])
	if err != nil {
		return TensorVar{}, err
	}

	persistable, err := strconv.ParseBool(record[5])
	if err != nil {
		return TensorVar{}, err
	}

	return TensorVar{
		Name:        record[0],
		Shape:       shape,
		DType:       dtype,
		Type:        vtype,
		LoDLevel:    lodLevel,
		Persistable: persistable,
	}, nil
}

// parseOp parses index,type,role,inputs,outputs,attrs.
func (l *ProgramLoader) parseOp(record []string) (*Operator, error) {
	if len(record) < 6 {
		return nil, fmt.Errorf("expected 6 fields, got %d", len(record))
	}

	role, err := strconv.Atoi(record[2])
	if err != nil {
		return nil, err
	}

	inputs, err := parseSlotList(record[3])
	if err != nil {
		return nil, err
	}

	outputs, err := parseSlotList(record[4])
	if err != nil {
		return nil, err
	}

	attrs, err := parseAttrList(record[5])
	if err != nil {
		return nil, err
	}
	attrs[AttrOpRole] = role

	return &Operator{
		Type:    record[1],
		Role:    OpRole(role),
		Inputs:  inputs,
		Outputs: outputs,
		Attrs:   attrs,
	}, nil
}

func splitList(str string) []string {
	delimiter := ";"

	str = strings.Trim(str, "[]")
	str = strings.ReplaceAll(str, " ", "")
	tokens := strings.Split(str, delimiter)

	if len(tokens) == 1 && tokens[0] == "" {
		return nil
	}

	return tokens
}

func parseIntList(str string) ([]int, error) {
	tokens := splitList(str)
	list := make([]int, len(tokens))

	for i, token := range tokens {
		item, err := strconv.Atoi(token)
		if err != nil {
			return nil, err
		}
		list[i] = item
	}

	return list, nil
}

func splitKeyValue(token string) (string, string, error) {
	key, value, found := strings.Cut(token, "=")
	if !found || key == "" {
		return "", "", fmt.Errorf("malformed entry %q, expect key=value", token)
	}

	return key, value, nil
}

// parseSlotList parses [Slot=a,b;Slot2=c].
func parseSlotList(str string) (map[string][]string, error) {
	slots := make(map[string][]string)

	for _, token := range splitList(str) {
		slot, value, err := splitKeyValue(token)
		if err != nil {
			return nil, err
		}

		if value == "" {
			slots[slot] = nil
			continue
		}
		slots[slot] = strings.Split(value, ",")
	}

	return slots, nil
}

// parseAttrList parses [key=value;...]. op_role_var is always a list.
func parseAttrList(str string) (map[string]interface{}, error) {
	attrs := make(map[string]interface{})

	for _, token := range splitList(str) {
		key, value, err := splitKeyValue(token)
		if err != nil {
			return nil, err
		}

		attrs[key] = parseAttrValue(key, value)
	}

	return attrs, nil
}

// parseAttrValue types a value: op_role_var is a list, true and false are
// bools, integers are ints and anything else stays a string.
func parseAttrValue(key, value string) interface{} {
	if key == AttrOpRoleVar {
		if value == "" {
			return []string{}
		}
		return strings.Split(value, ",")
	}

	switch value {
	case "true":
		return true
	case "false":
		return false
	}

	if n, err := strconv.Atoi(value); err == nil {
		return n
	}

	return value
}
