// Package tuner searches the parameter space of a design. Core tuners
// optimize one workload on one array; the multi-task tuners share arrays
// across workloads, fuse workloads, or split them over several arrays.
package tuner

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/sarchlab/arraytuner/config"
	"github.com/sarchlab/arraytuner/executor"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
	"github.com/sarchlab/arraytuner/trace"
)

// Searcher runs one search and returns the best record found. The record
// is invalid if nothing feasible was found.
type Searcher interface {
	Search(ctx context.Context) *record.Record
}

// Store caches the results of sub-searches by task signature.
type Store interface {
	Get(sig string) (*record.Record, bool)
	Put(sig string, r *record.Record)
}

// MemStore is an in-memory Store safe for concurrent use.
type MemStore struct {
	mu sync.Mutex
	m  map[string]*record.Record
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{m: map[string]*record.Record{}}
}

// Get returns a copy of the cached record.
func (s *MemStore) Get(sig string) (*record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.m[sig]
	if !ok {
		return nil, false
	}

	return r.Clone(), true
}

// Put caches a copy of r.
func (s *MemStore) Put(sig string, r *record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[sig] = r.Clone()
}

// Options configure every tuner.
type Options struct {
	config.SearchConfig

	Metric record.Metric
	Logger *slog.Logger
	Store  Store
	Pool   *executor.Pool
}

// NewOptions derives tuner options from a search configuration.
func NewOptions(cfg config.SearchConfig) (Options, error) {
	metric, err := record.ParseMetric(cfg.Metric)
	if err != nil {
		return Options{}, err
	}

	o := Options{
		SearchConfig: cfg,
		Metric:       metric,
		Logger:       slog.Default(),
		Store:        NewMemStore(),
	}
	o.Pool = executor.PoolBuilder{}.
		WithWorkers(cfg.Workers).
		WithTimeout(cfg.BatchTimeout).
		WithLogger(o.Logger).
		Build()

	return o, nil
}

// WithLogger returns o logging to l.
func (o Options) WithLogger(l *slog.Logger) Options {
	o.Logger = l
	return o
}

func (o Options) logger() *slog.Logger {
	return trace.Or(o.Logger)
}

func (o Options) pool() *executor.Pool {
	if o.Pool == nil {
		return executor.PoolBuilder{}.WithWorkers(o.Workers).WithTimeout(o.BatchTimeout).Build()
	}

	return o.Pool
}

// inner returns the options of per-workload searches under a fixed array.
// They are silent and bounded by epochs.
func (o Options) inner() Options {
	in := o
	in.Epochs = max(o.InnerEpochs, 1)
	in.MaxTime = 0
	in.Population = max(o.InnerPopulation, 2)
	in.Logger = slog.New(discardHandler{})

	return in
}

// rng returns a generator seeded from the run seed and a key, so that the
// same sub-search draws the same numbers regardless of scheduling.
func (o Options) rng(key string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))

	return rand.New(rand.NewSource(o.Seed ^ int64(h.Sum64())))
}

// cacheKey names the result of searching sig under o. Results of different
// methods or metrics never share an entry.
func (o Options) cacheKey(sig string) string {
	return o.Method + "|" + o.Metric.String() + "|" + sig
}

type stopper struct {
	start   time.Time
	epochs  int
	maxTime time.Duration
}

func newStopper(o Options) stopper {
	return stopper{start: time.Now(), epochs: o.Epochs, maxTime: o.MaxTime}
}

// done reports whether the search must stop before running epoch.
func (s stopper) done(ctx context.Context, epoch int) bool {
	if ctx.Err() != nil {
		return true
	}

	if s.maxTime > 0 {
		return time.Since(s.start) >= s.maxTime
	}

	return epoch >= s.epochs
}

// NewCore returns the core tuner of a method.
func NewCore(method string, t *task.SingleTask, o Options) Searcher {
	switch method {
	case config.MethodExhaustive:
		return NewExhaustive(t, o)
	case config.MethodRandom:
		return NewRandom(t, o)
	case config.MethodAnnealing:
		return NewAnnealing(t, o)
	case config.MethodBayesian:
		return NewBayesian(t, o)
	default:
		return NewGenetic(t, o)
	}
}

// searchTask runs a core search on t, going through the store.
func searchTask(ctx context.Context, t *task.SingleTask, o Options, seed map[string]int) *record.Record {
	key := o.cacheKey(t.Signature())
	if o.Store != nil {
		if r, ok := o.Store.Get(key); ok {
			return r
		}
	}

	var s Searcher
	if o.Method == config.MethodGenetic || o.Method == "" {
		s = NewGenetic(t, o).WithSeed(seed)
	} else {
		s = NewCore(o.Method, t, o)
	}

	r := s.Search(ctx)
	if o.Store != nil && ctx.Err() == nil {
		o.Store.Put(key, r)
	}

	return r
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
