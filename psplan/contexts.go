package main

import (
	"github.com/pkg/errors"
	"github.com/sarchlab/psplanner/config"
	"github.com/sarchlab/psplanner/planner"
	"github.com/sarchlab/psplanner/report"
	"github.com/spf13/cobra"
)

func newContextsCmd() *cobra.Command {
	var (
		kind     string
		recvType int
	)

	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "Print the communication contexts of the trainer",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, _, err := buildPlan()
			if err != nil {
				return err
			}

			var (
				set   planner.ContextSet
				title string
			)
			switch kind {
			case "trainer-send":
				title = "Trainer send"
				set, err = plan.TrainerSendContext()
			case "send":
				title = "Communicator send"
				set, err = plan.CommunicatorSendContext()
			case "recv":
				title = "Communicator recv"
				set, err = plan.CommunicatorRecvContext(planner.RecvType(recvType))
			default:
				return errors.Errorf("unknown context kind %q", kind)
			}
			if err != nil {
				return err
			}

			printOut(cmd, report.Contexts(title, set))

			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "send",
		"Contexts to print: trainer-send, send or recv")
	cmd.Flags().IntVar(&recvType, "recv-type", int(planner.RecvAll),
		"1: dense, 2: sparse, 3: all")

	return cmd
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the server runtime settings read from the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := config.LoadServerRuntimeConfig()
			if err != nil {
				return err
			}

			printOut(cmd, report.Env("Server runtime", rc.Map()))

			return nil
		},
	}
}
