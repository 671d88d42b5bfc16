package main

import (
	"github.com/sarchlab/psplanner/config"
	"github.com/sarchlab/psplanner/planplayer"
	"github.com/sarchlab/psplanner/report"
	"github.com/sarchlab/psplanner/timemodel"
	"github.com/spf13/cobra"
	"gitlab.com/akita/akita/v3/monitoring"
	"gitlab.com/akita/akita/v3/sim"
	"k8s.io/klog/v2"
)

func newSimulateCmd() *cobra.Command {
	var (
		steps   int
		monitor bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay the plan of every trainer on a simulated network",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, f, err := buildPlan()
			if err != nil {
				return err
			}

			rc, err := config.LoadServerRuntimeConfig()
			if err != nil {
				return err
			}

			s := f.Simulation
			if steps > 0 {
				s.Steps = steps
			}

			engine := sim.NewSerialEngine()
			builder := planplayer.MakeBuilder().
				WithEngine(engine).
				WithTimeEstimator(&timemodel.ThroughputTimeEstimator{
					ComputeTimeInSec:  s.ComputeTimeSec,
					ElementsPerSecond: s.ApplyElementsPerSec,
				}).
				WithSteps(s.Steps).
				WithServerThreads(rc.SendThreadNum).
				WithLink(s.BandwidthBytesPerSec(), sim.VTimeInSec(s.LinkLatencySec))

			var m *monitoring.Monitor
			if monitor {
				m = monitoring.NewMonitor()
				m.RegisterEngine(engine)
				builder = builder.WithMonitor(m)
			}

			player, err := builder.Build("Player", plan)
			if err != nil {
				return err
			}

			if m != nil {
				m.StartServer()
			}

			player.KickStart()
			if err := engine.Run(); err != nil {
				return err
			}

			printOut(cmd, report.Simulation(player.Report()))

			if err := player.Err(); err != nil {
				klog.Warningf("replay incomplete: %v", err)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 0, "Steps per trainer, overrides simulation.steps")
	cmd.Flags().BoolVar(&monitor, "monitor", false, "Start the akita monitor")

	return cmd
}
