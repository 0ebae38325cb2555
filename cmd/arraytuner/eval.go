package main

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/sarchlab/arraytuner/config"
	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
	"github.com/sarchlab/arraytuner/workload"
)

var evalCmd = cobra.Command{
	Use:   "eval [flags] <design.json>",
	Short: "Evaluates one parameter assignment of a design",
	Args:  cobra.ExactArgs(1),
	RunE:  evalRun,

	DisableFlagsInUseLine: true,
}

const inf = 1e18

var evalFlags = struct {
	workloads string
	name      string
	platform  string
	params    map[string]int
	metric    string
	adjust    bool
	useURAM   bool
}{}

func initEval() {
	rootCmd.AddCommand(&evalCmd)
	flags := evalCmd.Flags()
	flags.StringVarP(&evalFlags.workloads, "workloads", "w", "", "workload file")
	flags.StringVarP(&evalFlags.name, "name", "n", "", "workload to evaluate, the first one if empty")
	flags.StringVarP(&evalFlags.platform, "platform", "p", "", "hardware constraint file")
	flags.StringToIntVar(&evalFlags.params, "params", nil, "tunable parameters, e.g. i_t1=64,j_t1=32")
	flags.StringVar(&evalFlags.metric, "metric", "latency", "objective (latency|energy|off_chip|dsp_num)")
	flags.BoolVar(&evalFlags.adjust, "adjust", false, "snap the parameters to legal values first")
	flags.BoolVar(&evalFlags.useURAM, "use-uram", false, "allow URAM buffers")
	_ = evalCmd.MarkFlagRequired("workloads")
}

func evalRun(cmd *cobra.Command, args []string) error {
	d, err := design.Load(args[0])
	if err != nil {
		return err
	}

	ws, err := workload.Load(evalFlags.workloads)
	if err != nil {
		return err
	}

	w, ok := lo.Find(ws, func(w workload.Workload) bool {
		return evalFlags.name == "" || w.Name == evalFlags.name
	})
	if !ok {
		return fmt.Errorf("no workload %q in %s", evalFlags.name, evalFlags.workloads)
	}

	cst := config.Constraint{DSP: inf, BRAM18K: inf, URAM: inf}
	if evalFlags.platform != "" {
		if cst, err = config.LoadPlatform(evalFlags.platform); err != nil {
			return err
		}
	}

	metric, err := record.ParseMetric(evalFlags.metric)
	if err != nil {
		return err
	}

	t, err := task.SingleTaskBuilder{}.
		WithDesign(d).
		WithWorkload(w).
		WithConstraint(cst).
		WithURAM(evalFlags.useURAM).
		Build()
	if err != nil {
		return err
	}

	p := design.Params(evalFlags.params)
	if evalFlags.adjust {
		p = t.AdjustParams(p)
	}

	reward, res, meta := t.Evaluate(p, metric)
	if reward == 0 {
		return errors.New("infeasible parameters")
	}

	out := cmd.OutOrStdout()
	writeMeta(out, d.Name+" on "+w.Name, reward, d.Seconds(meta.Metrics.Latency), meta)
	fmt.Fprintf(out, "resource: DSP=%g BRAM18K=%g URAM=%g fits=%t\n",
		res.DSP, res.BRAM18K, res.URAM, t.Fits(res))

	return nil
}
