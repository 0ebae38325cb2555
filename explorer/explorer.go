// Package explorer drives the search over a set of designs: it lints and
// compiles each design, picks the search strategy from the configuration,
// and caches results by task signature.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sarchlab/arraytuner/config"
	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
	"github.com/sarchlab/arraytuner/trace"
	"github.com/sarchlab/arraytuner/tuner"
	"github.com/sarchlab/arraytuner/verify"
	"github.com/sarchlab/arraytuner/workload"
)

// Strategies of a search.
const (
	StrategyCore          = "core"
	StrategyMultiWorkload = "multi_workload"
	StrategyAllFuse       = "all_fuse"
	StrategyPartialFuse   = "partial_fuse"
	StrategyMultiAcc      = "multi_acc"
	StrategyProgrammable  = "programmable"
)

// Result is the outcome of exploring one design.
type Result struct {
	Design   string
	Strategy string
	Record   *record.Record
	Issues   []verify.Issue
	// Skipped is set when the design failed lint or registration.
	Skipped bool
	Err     error
	// Cached is set when the record came from the database.
	Cached bool
}

// Explorer searches every design against the same workloads.
type Explorer struct {
	designs    []*design.Descriptor
	workloads  []workload.Workload
	constraint config.Constraint
	cfg        config.SearchConfig
	logger     *slog.Logger
	db         *DB
	factory    Factory
}

// ExplorerBuilder builds explorers.
type ExplorerBuilder struct {
	designs    []*design.Descriptor
	workloads  []workload.Workload
	constraint config.Constraint
	cfg        *config.SearchConfig
	logger     *slog.Logger
	db         *DB
	factory    Factory
}

// WithDesigns sets the design descriptors to explore.
func (b ExplorerBuilder) WithDesigns(ds []*design.Descriptor) ExplorerBuilder {
	b.designs = ds
	return b
}

// WithWorkloads sets the workloads, in execution order.
func (b ExplorerBuilder) WithWorkloads(ws []workload.Workload) ExplorerBuilder {
	b.workloads = ws
	return b
}

// WithConstraint sets the resource ceiling.
func (b ExplorerBuilder) WithConstraint(c config.Constraint) ExplorerBuilder {
	b.constraint = c
	return b
}

// WithConfig sets the search configuration. The default configuration is
// used if it is not set.
func (b ExplorerBuilder) WithConfig(cfg config.SearchConfig) ExplorerBuilder {
	b.cfg = &cfg
	return b
}

// WithLogger sets the logger.
func (b ExplorerBuilder) WithLogger(l *slog.Logger) ExplorerBuilder {
	b.logger = l
	return b
}

// WithDB sets the results database. Without one, results are cached in
// memory for the lifetime of the explorer.
func (b ExplorerBuilder) WithDB(db *DB) ExplorerBuilder {
	b.db = db
	return b
}

// WithFactory replaces the searcher factory.
func (b ExplorerBuilder) WithFactory(f Factory) ExplorerBuilder {
	b.factory = f
	return b
}

// Build creates the explorer.
func (b ExplorerBuilder) Build() (*Explorer, error) {
	cfg := config.DefaultSearchConfig()
	if b.cfg != nil {
		cfg = *b.cfg
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("search config: %w", err)
	}

	if _, err := record.ParseMetric(cfg.Metric); err != nil {
		return nil, err
	}

	if len(b.designs) == 0 {
		return nil, errors.New("explorer needs at least one design")
	}

	if len(b.workloads) == 0 {
		return nil, errors.New("explorer needs at least one workload")
	}

	e := &Explorer{
		designs:    b.designs,
		workloads:  b.workloads,
		constraint: b.constraint,
		cfg:        cfg,
		logger:     trace.Or(b.logger),
		db:         b.db,
		factory:    b.factory,
	}

	if e.factory == nil {
		e.factory = TunerFactory{}
	}

	return e, nil
}

// Strategy returns the strategy the configuration selects.
func (e *Explorer) Strategy() string {
	switch {
	case e.cfg.Programmable:
		return StrategyProgrammable
	case e.cfg.MultiAcc:
		return StrategyMultiAcc
	case e.cfg.Fusion && e.cfg.PartialFusion:
		return StrategyPartialFuse
	case e.cfg.Fusion:
		return StrategyAllFuse
	case len(e.workloads) == 1:
		return StrategyCore
	default:
		return StrategyMultiWorkload
	}
}

func (e *Explorer) options() (tuner.Options, error) {
	o, err := tuner.NewOptions(e.cfg)
	if err != nil {
		return o, err
	}

	o = o.WithLogger(e.logger)
	if e.db != nil {
		o.Store = e.db
	} else {
		o.Store = tuner.NewMemStore()
	}

	return o, nil
}

// Explore searches every design in turn and saves the database once at the
// end. Designs that fail lint with structural issues are skipped.
func (e *Explorer) Explore(ctx context.Context) ([]Result, error) {
	o, err := e.options()
	if err != nil {
		return nil, err
	}

	strategy := e.Strategy()
	results := make([]Result, 0, len(e.designs))

	for _, desc := range e.designs {
		if ctx.Err() != nil {
			break
		}

		res := e.exploreDesign(ctx, desc, strategy, o)
		results = append(results, res)
	}

	if e.db != nil {
		if err := e.db.Save(); err != nil {
			return results, err
		}
	}

	return results, nil
}

func (e *Explorer) exploreDesign(
	ctx context.Context,
	desc *design.Descriptor,
	strategy string,
	o tuner.Options,
) Result {
	res := Result{Design: desc.Name, Strategy: strategy}

	res.Issues = verify.RunLint(desc)
	if verify.HasStruct(res.Issues) {
		e.logger.Warn("skipping design with structural issues",
			"design", desc.Name, "issues", len(res.Issues))
		res.Skipped = true

		return res
	}

	d, err := design.Register(desc)
	if err != nil {
		e.logger.Warn("skipping design", "design", desc.Name, "err", err)
		res.Skipped = true
		res.Err = err

		return res
	}

	searcher, sig, err := e.searcher(d, strategy, o)
	if err != nil {
		res.Err = err
		return res
	}

	key := strategy + "|" + e.cfg.Method + "|" + o.Metric.String() + "|" + sig
	if r, ok := o.Store.Get(key); ok {
		e.logger.Info("cached result", "design", d.Name, "strategy", strategy)
		res.Record = r
		res.Cached = true

		return res
	}

	e.logger.Info("searching", "design", d.Name, "strategy", strategy,
		"method", e.cfg.Method, "workloads", len(e.workloads))

	r := searcher.Search(ctx)
	if r == nil {
		r = record.New(o.Metric)
	}

	if ctx.Err() == nil {
		o.Store.Put(key, r)
	}

	e.logger.Log(ctx, trace.LevelTrace, "search done", "design", d.Name, "best", r.String())
	res.Record = r

	return res
}

// searcher builds the searcher of strategy and the signature of the task it
// searches.
func (e *Explorer) searcher(d *design.Design, strategy string, o tuner.Options) (tuner.Searcher, string, error) {
	if strategy == StrategyCore {
		t, err := task.SingleTaskBuilder{}.
			WithDesign(d).
			WithWorkload(e.workloads[0]).
			WithConstraint(e.constraint).
			WithURAM(e.cfg.UseURAM).
			Build()
		if err != nil {
			return nil, "", err
		}

		return e.factory.Core(e.cfg.Method, t, o), t.Signature(), nil
	}

	fuse := strategy == StrategyAllFuse

	mt, err := task.MultiTaskBuilder{}.
		WithDesign(d).
		WithWorkloads(e.workloads).
		WithConstraint(e.constraint).
		WithURAM(e.cfg.UseURAM).
		WithFuse(fuse).
		Build()
	if err != nil {
		return nil, "", err
	}

	var s tuner.Searcher

	switch strategy {
	case StrategyProgrammable:
		s = e.factory.Programmable(mt, o)
	case StrategyMultiAcc:
		s = e.factory.MultiAcc(e.cfg.MultiAccStrategy, mt, o)
	case StrategyAllFuse:
		s, err = e.factory.AllFuse(mt, o)
	case StrategyPartialFuse:
		s, err = e.factory.PartialFuse(mt, o)
	default:
		s, err = e.factory.MultiWorkload(mt, o)
	}

	if err != nil {
		return nil, "", err
	}

	return s, mt.Signature(), nil
}
