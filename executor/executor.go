// Package executor runs batches of independent searches in parallel with a
// per-batch deadline.
package executor

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/trace"
)

// DefaultTimeout bounds one batch.
const DefaultTimeout = 30 * time.Minute

// Job is a pure search. It should return promptly once ctx is done.
type Job func(ctx context.Context) *record.Record

// Pool dispatches jobs to a bounded number of goroutines. Jobs with the
// same hash that are in flight at the same time, even from different
// batches, share one execution. A shared execution runs until the last
// batch waiting for it gives up, so one batch's deadline never cuts short
// another batch's result.
type Pool struct {
	workers int
	timeout time.Duration
	logger  *slog.Logger
	flight  singleflight.Group

	mu   sync.Mutex
	live map[string]*flight
}

// flight is the context of a shared execution and the number of waiters
// still interested in it.
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc
	refs   int
}

// PoolBuilder builds pools.
type PoolBuilder struct {
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

// WithWorkers sets the number of concurrent jobs.
func (b PoolBuilder) WithWorkers(n int) PoolBuilder {
	b.workers = n
	return b
}

// WithTimeout sets the batch deadline.
func (b PoolBuilder) WithTimeout(d time.Duration) PoolBuilder {
	b.timeout = d
	return b
}

// WithLogger sets the logger.
func (b PoolBuilder) WithLogger(l *slog.Logger) PoolBuilder {
	b.logger = l
	return b
}

// Build creates the pool.
func (b PoolBuilder) Build() *Pool {
	p := &Pool{
		workers: b.workers,
		timeout: b.timeout,
		logger:  trace.Or(b.logger),
		live:    map[string]*flight{},
	}

	if p.workers <= 0 {
		p.workers = runtime.NumCPU()
	}

	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}

	return p
}

// Workers returns the concurrency of the pool.
func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) join(hash string) *flight {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.live == nil {
		p.live = map[string]*flight{}
	}

	f, ok := p.live[hash]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f = &flight{ctx: ctx, cancel: cancel}
		p.live[hash] = f
	}

	f.refs++

	return f
}

// leave drops one waiter. The last one cancels the execution and forgets
// it, so a later batch starts afresh instead of joining a cancelled run.
func (p *Pool) leave(hash string, f *flight) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f.refs--
	if f.refs > 0 {
		return
	}

	f.cancel()

	if p.live[hash] == f {
		delete(p.live, hash)
		p.flight.Forget(hash)
	}
}

type job struct {
	hash string
	fn   Job
}

// Batch collects jobs that are waited for together.
type Batch struct {
	pool *Pool
	jobs []job
	seen map[string]bool
}

// NewBatch starts an empty batch.
func (p *Pool) NewBatch() *Batch {
	return &Batch{pool: p, seen: map[string]bool{}}
}

// Submit adds a job. A hash already in the batch is ignored and Submit
// returns false.
func (b *Batch) Submit(hash string, fn Job) bool {
	if b.seen[hash] {
		return false
	}

	b.seen[hash] = true
	b.jobs = append(b.jobs, job{hash: hash, fn: fn})

	return true
}

// Len returns the number of distinct jobs.
func (b *Batch) Len() int {
	return len(b.jobs)
}

// Wait runs the batch and returns one record per hash. Jobs that have not
// finished when the deadline passes or ctx is cancelled map to an invalid
// record.
func (b *Batch) Wait(ctx context.Context) map[string]*record.Record {
	p := b.pool

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]*record.Record, len(b.jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, j := range b.jobs {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			f := p.join(j.hash)
			defer p.leave(j.hash, f)

			ch := p.flight.DoChan(j.hash, func() (any, error) {
				return j.fn(f.ctx), nil
			})

			select {
			case res := <-ch:
				// Results delivered after the deadline are dropped.
				if gctx.Err() != nil {
					return nil
				}

				if r, ok := res.Val.(*record.Record); ok && r != nil {
					mu.Lock()
					results[j.hash] = r.Clone()
					mu.Unlock()
				}
			case <-gctx.Done():
			}

			return nil
		})
	}

	_ = g.Wait()

	missing := 0
	for _, j := range b.jobs {
		if _, ok := results[j.hash]; !ok {
			results[j.hash] = record.New(record.MetricLatency)
			missing++
		}
	}

	if missing > 0 {
		p.logger.Warn("batch incomplete",
			"jobs", len(b.jobs), "missing", missing, "err", ctx.Err())
	}

	return results
}
