package tuner

import (
	"context"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
)

// ProgrammableTuner sizes an array that can be reprogrammed between
// workloads. Each workload is first searched alone; the array is then
// provisioned for the largest needs of those solutions and every workload
// is searched again on it.
type ProgrammableTuner struct {
	mt   *task.MultiTask
	opts Options
}

// NewProgrammable creates the tuner for the members of mt.
func NewProgrammable(mt *task.MultiTask, o Options) *ProgrammableTuner {
	return &ProgrammableTuner{mt: mt, opts: o}
}

func (p *ProgrammableTuner) searchAll(ctx context.Context, cst design.ArchCst) []*record.Record {
	batch := p.opts.pool().NewBatch()
	keys := make([]string, len(p.mt.Tasks))

	for i, t := range p.mt.Tasks {
		t = t.Clone()
		if cst != nil {
			t.FixArch(cst)
		}

		keys[i] = t.Signature()
		batch.Submit(keys[i], func(ctx context.Context) *record.Record {
			return searchTask(ctx, t, p.opts, nil)
		})
	}

	results := batch.Wait(ctx)

	out := make([]*record.Record, len(keys))
	for i, k := range keys {
		out[i] = results[k]
	}

	return out
}

// Search runs both rounds and appends the final per-workload records.
func (p *ProgrammableTuner) Search(ctx context.Context) *record.Record {
	log := p.opts.logger()

	first := p.searchAll(ctx, nil)

	sols := make([]design.Params, len(first))
	for i, r := range first {
		if r == nil || !r.Valid {
			log.Warn("workload has no feasible solution",
				"workload", p.mt.Tasks[i].Workload().Name)

			return record.New(p.opts.Metric)
		}

		sols[i] = r.ArchSol
	}

	cst := p.mt.ArchConstraint(sols)
	log.Info("programmable array sized", "arch", []float64(cst))

	total := record.New(p.opts.Metric)
	for _, r := range p.searchAll(ctx, cst) {
		total.Append(r)
	}

	if total.Valid {
		total.ArchSol = nil
		total.Meta = map[string]float64{}
		for i, k := range p.mt.Design().ArchKeys() {
			if i < len(cst) {
				total.Meta["arch_"+k] = cst[i]
			}
		}
	}

	return total
}
