package tuner

import (
	"context"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
)

type span struct{ from, to int }

// FuseDPTuner picks, on a fixed array, how to cut a workload sequence into
// contiguous segments that are each fused on chip. Every segment is
// searched once; a dynamic program over the prefixes then combines them.
type FuseDPTuner struct {
	mt   *task.MultiTask
	opts Options
	cst  design.ArchCst
	seed design.Params
}

// NewFuseDP creates a fusion planner over the members of mt.
func NewFuseDP(mt *task.MultiTask, o Options) *FuseDPTuner {
	return &FuseDPTuner{mt: mt, opts: o}
}

// WithArch fixes the array the segments run on and seeds their searches.
func (f *FuseDPTuner) WithArch(cst design.ArchCst, seed design.Params) *FuseDPTuner {
	f.cst = cst
	f.seed = seed

	return f
}

func (f *FuseDPTuner) segment(s span) (*task.MultiTask, error) {
	return task.MultiTaskBuilder{}.
		WithDesign(f.mt.Design()).
		WithWorkloads(f.mt.Workloads()[s.from:s.to]).
		WithConstraint(f.mt.Constraint()).
		WithFuse(s.to-s.from > 1).
		WithURAM(f.opts.UseURAM).
		Build()
}

func (f *FuseDPTuner) key(seg *task.MultiTask) string {
	k := "segment|" + f.opts.cacheKey(seg.Signature())
	if f.cst != nil {
		k += "|arch=" + cstKey(f.cst)
	}

	return k
}

// Search submits every segment in one batch, then solves the prefix DP.
func (f *FuseDPTuner) Search(ctx context.Context) *record.Record {
	log := f.opts.logger()
	n := len(f.mt.Tasks)
	keys := map[span]string{}
	batch := f.opts.pool().NewBatch()

	for from := 0; from < n; from++ {
		for to := from + 1; to <= n; to++ {
			s := span{from, to}

			seg, err := f.segment(s)
			if err != nil {
				log.Warn("cannot build segment", "from", from, "to", to, "err", err)
				continue
			}

			key := f.key(seg)
			keys[s] = key
			batch.Submit(key, func(ctx context.Context) *record.Record {
				if f.opts.Store != nil {
					if r, ok := f.opts.Store.Get(key); ok {
						return r
					}
				}

				r := runSequential(ctx, seg, f.cst, f.seed, f.opts)
				if f.opts.Store != nil && ctx.Err() == nil {
					f.opts.Store.Put(key, r)
				}

				return r
			})
		}
	}

	results := batch.Wait(ctx)

	best := make([]*record.Record, n+1)
	cuts := make([]int, n+1)
	best[0] = record.New(f.opts.Metric)
	best[0].Valid = true

	for to := 1; to <= n; to++ {
		for from := 0; from < to; from++ {
			prev := best[from]
			seg, ok := results[keys[span{from, to}]]
			if prev == nil || !ok || !seg.Valid {
				continue
			}

			cand := prev.Clone()
			cand.Append(seg)
			if !cand.Valid {
				continue
			}

			if best[to] == nil || record.Better(cand.Direction, cand.Reward, best[to].Reward) {
				best[to] = cand
				cuts[to] = from
			}
		}
	}

	out := best[n]
	if out == nil || n == 0 {
		log.Warn("no feasible fusion plan", "tasks", n)
		return record.New(f.opts.Metric)
	}

	segments, fused := 0, 0
	for to := n; to > 0; to = cuts[to] {
		segments++
		if to-cuts[to] > 1 {
			fused++
		}
	}

	if out.Meta == nil {
		out.Meta = map[string]float64{}
	}
	out.Meta["segments"] = float64(segments)
	out.Meta["fused_segments"] = float64(fused)

	return out
}
