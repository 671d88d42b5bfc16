// Command psplan plans the parameter-server placement of a program and
// replays the plan on a simulated network.
package main

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/sarchlab/psplanner"
	"github.com/sarchlab/psplanner/config"
	"github.com/sarchlab/psplanner/planner"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"
	"k8s.io/klog/v2"
)

var (
	programDir   string
	topologyFile string
	roleID       int
)

func main() {
	atexit.Register(klog.Flush)

	rootCmd := &cobra.Command{
		Use:   "psplan",
		Short: "psplan splits trainable variables across parameter servers",
		Long: `psplan reads a program (vars.csv and ops.csv) and a topology file,
slices the parameters and gradients into blocks, places the blocks on the
server endpoints and prints the communication contexts of every trainer.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&programDir, "program", "p", "", "Directory holding vars.csv and ops.csv")
	flags.StringVarP(&topologyFile, "topology", "t", "", "Topology YAML file")
	flags.IntVar(&roleID, "role", -1, "Trainer id to plan for, overrides roleId of the topology")
	_ = rootCmd.MarkPersistentFlagRequired("program")
	_ = rootCmd.MarkPersistentFlagRequired("topology")
	addKlogFlags(flags)

	rootCmd.AddCommand(
		newPlanCmd(),
		newBlocksCmd(),
		newContextsCmd(),
		newEnvCmd(),
		newSimulateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		klog.Error(err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func addKlogFlags(flags *pflag.FlagSet) {
	fs := goflag.NewFlagSet(os.Args[0], goflag.ContinueOnError)
	klog.InitFlags(fs)
	flags.AddGoFlagSet(fs)
}

// loadJob loads the program and the topology file named by the flags.
func loadJob() (*psplanner.Program, config.File, error) {
	loader := &psplanner.ProgramLoader{Dir: programDir}
	prog, err := loader.Load()
	if err != nil {
		return nil, config.File{}, err
	}

	f, err := config.Load(topologyFile)
	if err != nil {
		return nil, config.File{}, err
	}

	if roleID >= 0 {
		f.RoleID = roleID
	}

	return prog, f, nil
}

func buildPlan() (*planner.Plan, config.File, error) {
	prog, f, err := loadJob()
	if err != nil {
		return nil, config.File{}, err
	}

	plan, err := planner.Build(planner.PlanningContext{
		Program:  prog,
		Topology: f.Topology(),
		Options:  f.Options(),
	})
	if err != nil {
		return nil, config.File{}, err
	}

	klog.Infof("planned %s for trainer %d of %d on %d endpoints",
		f.Mode, f.RoleID, f.WorkerNum, len(f.ServerEndpoints))

	return plan, f, nil
}

func printOut(cmd *cobra.Command, s string) {
	fmt.Fprint(cmd.OutOrStdout(), s)
}
