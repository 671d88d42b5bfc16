// Package report renders plans and simulation results as terminal tables.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/sarchlab/psplanner"
	"github.com/sarchlab/psplanner/planner"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).
			Padding(0, 1).Align(lipgloss.Center)
	rowStyle = lipgloss.NewStyle().
			PaddingLeft(1).PaddingRight(1)
	faintRowStyle = rowStyle.Faint(true)
	titleStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
)

func newTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return rowStyle
			default:
				return faintRowStyle
			}
		})
}

func titled(title string, t *lgtable.Table) string {
	return titleStyle.Render(title) + "\n" + t.Render() + "\n"
}

func shapeString(v psplanner.TensorVar) string {
	dims := make([]string, len(v.Shape))
	for i, d := range v.Shape {
		dims[i] = fmt.Sprint(d)
	}

	return "[" + strings.Join(dims, ", ") + "]"
}

// Placement renders the shards of every endpoint.
func Placement(placement planner.Placement) string {
	t := newTable("Endpoint", "Param shard", "Grad shard", "Shape", "Size")

	for _, es := range placement {
		for i, g := range es.Grads {
			param := es.Params[i]
			t.Row(es.Endpoint, param.Name, g.Name, shapeString(param),
				humanize.Bytes(param.Bytes()))
		}
	}

	return titled("Placement", t)
}

// Contexts renders a set of communication contexts, one row per shard.
func Contexts(title string, set planner.ContextSet) string {
	t := newTable("Var", "Shard", "Endpoint", "Section", "Origins", "Sparse")

	for _, name := range set.Names() {
		ctx := set[name]
		for i, shard := range ctx.SplitVarNames {
			t.Row(ctx.VarName, shard, ctx.SplitEndpoints[i],
				humanize.Comma(int64(ctx.Sections[i])),
				strings.Join(ctx.OriginVarNames, ","),
				fmt.Sprint(ctx.IsSparse))
		}
	}

	return titled(title, t)
}

// Env renders a key/value map sorted by key.
func Env(title string, env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := newTable("Key", "Value")
	for _, k := range keys {
		t.Row(k, env[k])
	}

	return titled(title, t)
}

// Blocks renders block tokens, one per line.
func Blocks(blocks []planner.Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString(b.String())
		sb.WriteByte('\n')
	}

	return sb.String()
}
