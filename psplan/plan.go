package main

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sarchlab/psplanner"
	"github.com/sarchlab/psplanner/planner"
	"github.com/sarchlab/psplanner/report"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type shardJSON struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	DType string `json:"dtype"`
	Bytes uint64 `json:"bytes"`
}

type endpointJSON struct {
	Endpoint string      `json:"endpoint"`
	Params   []shardJSON `json:"params"`
	Grads    []shardJSON `json:"grads"`
}

type planJSON struct {
	Mode       string         `json:"mode"`
	RoleID     int            `json:"roleId"`
	WorkerNum  int            `json:"workerNum"`
	Placement  []endpointJSON `json:"placement"`
	NumEntries int            `json:"registryEntries"`
}

func toShardJSON(vs []psplanner.TensorVar) []shardJSON {
	out := make([]shardJSON, len(vs))
	for i, v := range vs {
		out[i] = shardJSON{
			Name:  v.Name,
			Shape: v.Shape,
			DType: v.DType.String(),
			Bytes: v.Bytes(),
		}
	}

	return out
}

func planToJSON(plan *planner.Plan) ([]byte, error) {
	t := plan.Topology()
	doc := planJSON{
		Mode:       t.Mode.String(),
		RoleID:     t.RoleID,
		WorkerNum:  t.WorkerNum,
		NumEntries: plan.Registry().Len(),
	}

	for _, es := range plan.Placement() {
		doc.Placement = append(doc.Placement, endpointJSON{
			Endpoint: es.Endpoint,
			Params:   toShardJSON(es.Params),
			Grads:    toShardJSON(es.Grads),
		})
	}

	return json.MarshalIndent(doc, "", "  ")
}

func newPlanCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the shards placed on every endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, _, err := buildPlan()
			if err != nil {
				return err
			}

			switch format {
			case "table":
				printOut(cmd, report.Placement(plan.Placement()))
			case "json":
				data, err := planToJSON(plan)
				if err != nil {
					return errors.Wrap(err, "encode plan")
				}
				printOut(cmd, string(data)+"\n")
			default:
				return errors.Errorf("unknown format %q", format)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format, table or json")

	return cmd
}

func newBlocksCmd() *cobra.Command {
	var grads bool

	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Print the param (or grad) blocks as name:id:size tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, _, err := buildPlan()
			if err != nil {
				return err
			}

			paramBlocks, gradBlocks := plan.Blocks()
			if grads {
				printOut(cmd, report.Blocks(gradBlocks))
			} else {
				printOut(cmd, report.Blocks(paramBlocks))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&grads, "grads", false, "Print the grad blocks")

	return cmd
}
