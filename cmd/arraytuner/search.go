package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/sarchlab/arraytuner/config"
	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/explorer"
	"github.com/sarchlab/arraytuner/trace"
	"github.com/sarchlab/arraytuner/workload"
)

var searchCmd = cobra.Command{
	Use:   "search [flags] <design.json>...",
	Short: "Searches the best parameters of each design for the workloads",
	Args:  cobra.MinimumNArgs(1),
	RunE:  searchRun,

	DisableFlagsInUseLine: true,
}

var searchFlags = struct {
	workloads  string
	names      []string
	platform   string
	config     string
	db         string
	output     string
	method     string
	metric     string
	epochs     int
	maxTime    time.Duration
	population int
	workers    int
	seed       int64

	fusion           bool
	partialFusion    bool
	multiAcc         bool
	multiAccStrategy int
	maxArrays        int
	programmable     bool
	useURAM          bool
}{}

func initSearch() {
	rootCmd.AddCommand(&searchCmd)
	flags := searchCmd.Flags()
	flags.StringVarP(&searchFlags.workloads, "workloads", "w", "", "workload file")
	flags.StringSliceVar(&searchFlags.names, "only", nil, "search only the named workloads")
	flags.StringVarP(&searchFlags.platform, "platform", "p", "", "hardware constraint file")
	flags.StringVarP(&searchFlags.config, "config", "c", "", "search config (yaml)")
	flags.StringVar(&searchFlags.db, "db", "", "results database (json)")
	flags.StringVarP(&searchFlags.output, "output", "o", "", "write the records as json")
	flags.StringVarP(&searchFlags.method, "method", "m", "", "core search method (genetic|exhaustive|random|annealing|bayesian)")
	flags.StringVar(&searchFlags.metric, "metric", "", "objective (latency|energy|off_chip|dsp_num)")
	flags.IntVar(&searchFlags.epochs, "epochs", 0, "number of epochs")
	flags.DurationVar(&searchFlags.maxTime, "max-time", 0, "wall-clock budget, exclusive with --epochs")
	flags.IntVar(&searchFlags.population, "population", 0, "population size")
	flags.IntVarP(&searchFlags.workers, "workers", "j", 0, "parallel sub-searches")
	flags.Int64Var(&searchFlags.seed, "seed", 0, "random seed")
	flags.BoolVar(&searchFlags.fusion, "fusion", false, "fuse the workloads on chip")
	flags.BoolVar(&searchFlags.partialFusion, "partial-fusion", false, "choose which workloads to fuse")
	flags.BoolVar(&searchFlags.multiAcc, "multi-acc", false, "split the workloads over several arrays")
	flags.IntVar(&searchFlags.multiAccStrategy, "multi-acc-strategy", 0, "1 for pipelined stages, 2 for balanced groups")
	flags.IntVar(&searchFlags.maxArrays, "max-arrays", 0, "most arrays of a multi-array search")
	flags.BoolVar(&searchFlags.programmable, "programmable", false, "search one array programmed per workload")
	flags.BoolVar(&searchFlags.useURAM, "use-uram", false, "allow URAM buffers")
	_ = searchCmd.MarkFlagRequired("workloads")
	_ = searchCmd.MarkFlagRequired("platform")
}

func searchConfig(cmd *cobra.Command) (config.SearchConfig, error) {
	cfg := config.DefaultSearchConfig()
	if searchFlags.config != "" {
		var err error
		if cfg, err = config.LoadSearchConfig(searchFlags.config); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}

	set("method", func() { cfg.Method = searchFlags.method })
	set("metric", func() { cfg.Metric = searchFlags.metric })
	set("epochs", func() { cfg.Epochs, cfg.MaxTime = searchFlags.epochs, 0 })
	set("max-time", func() {
		cfg.MaxTime = searchFlags.maxTime
		if !flags.Changed("epochs") {
			cfg.Epochs = 0
		}
	})
	set("population", func() { cfg.Population = searchFlags.population })
	set("workers", func() { cfg.Workers = searchFlags.workers })
	set("seed", func() { cfg.Seed = searchFlags.seed })
	set("fusion", func() { cfg.Fusion = searchFlags.fusion })
	set("partial-fusion", func() {
		cfg.PartialFusion = searchFlags.partialFusion
		cfg.Fusion = cfg.Fusion || cfg.PartialFusion
	})
	set("multi-acc", func() { cfg.MultiAcc = searchFlags.multiAcc })
	set("multi-acc-strategy", func() { cfg.MultiAccStrategy = searchFlags.multiAccStrategy })
	set("max-arrays", func() { cfg.MaxArrays = searchFlags.maxArrays })
	set("programmable", func() { cfg.Programmable = searchFlags.programmable })
	set("use-uram", func() { cfg.UseURAM = searchFlags.useURAM })
	set("db", func() { cfg.DB = searchFlags.db })

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func loadWorkloads() ([]workload.Workload, error) {
	ws, err := workload.Load(searchFlags.workloads)
	if err != nil {
		return nil, err
	}

	if len(searchFlags.names) == 0 {
		return ws, nil
	}

	picked := lo.Filter(ws, func(w workload.Workload, _ int) bool {
		return lo.Contains(searchFlags.names, w.Name)
	})

	missing, _ := lo.Difference(searchFlags.names,
		lo.Map(picked, func(w workload.Workload, _ int) string { return w.Name }))
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown workloads %v", missing)
	}

	return picked, nil
}

func searchRun(cmd *cobra.Command, args []string) error {
	cfg, err := searchConfig(cmd)
	if err != nil {
		return err
	}

	descs := make([]*design.Descriptor, 0, len(args))
	for _, path := range args {
		desc, err := design.LoadDescriptor(path)
		if err != nil {
			return err
		}

		descs = append(descs, desc)
	}

	ws, err := loadWorkloads()
	if err != nil {
		return err
	}

	cst, err := config.LoadPlatform(searchFlags.platform)
	if err != nil {
		return err
	}

	b := explorer.ExplorerBuilder{}.
		WithDesigns(descs).
		WithWorkloads(ws).
		WithConstraint(cst).
		WithConfig(cfg).
		WithLogger(slog.Default())

	if cfg.DB != "" {
		db, err := explorer.OpenDB(cfg.DB)
		if err != nil {
			return err
		}

		b = b.WithDB(db)
	}

	e, err := b.Build()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := e.Explore(ctx)
	if err != nil {
		return err
	}

	trace.Trace("exploration finished", "designs", len(results), "strategy", e.Strategy())

	writeResults(cmd.OutOrStdout(), results)

	if searchFlags.output != "" {
		return writeRecords(searchFlags.output, results)
	}

	return nil
}

func writeRecords(path string, results []explorer.Result) error {
	out := map[string]any{}
	for _, res := range results {
		if res.Record != nil {
			out[res.Design] = res.Record
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
