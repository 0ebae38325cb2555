package tuner

import (
	"context"
	"math"
	"math/rand"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
	"github.com/sarchlab/arraytuner/trace"
)

// Cooling schedule of the annealing tuner.
const (
	AnnealTMax  = 1.5
	AnnealTMin  = 0.1
	AnnealAlpha = 0.85
)

// AnnealingTuner runs simulated annealing over chain mutations. Each
// temperature step is one epoch; the schedule restarts from AnnealTMax
// when it cools down before the stop criterion.
type AnnealingTuner struct {
	task *task.SingleTask
	opts Options
	rng  *rand.Rand
	v    *variation
}

// NewAnnealing creates an annealing tuner for t.
func NewAnnealing(t *task.SingleTask, o Options) *AnnealingTuner {
	noResample := o
	noResample.Epsilon = 0

	return &AnnealingTuner{
		task: t,
		opts: o,
		rng:  o.rng("annealing|" + t.Signature()),
		v:    newVariation(t.Design(), noResample),
	}
}

// acceptance is the probability of moving from a state with reward old to
// one with reward cur at temperature t.
func acceptance(old, cur, t float64) float64 {
	if cur >= old {
		return 1
	}

	diff := (cur - old) / old * 200

	return math.Exp(diff / t)
}

func (a *AnnealingTuner) start() individual {
	base := a.task.Full(design.Params{})

	var cur individual
	for range max(a.opts.Population, 1) {
		p := a.task.AdjustParams(a.task.Design().RandomSample(a.rng, base))
		cand := individual{params: p, rec: a.task.Record(p, a.opts.Metric)}
		if cur.rec == nil || cand.fitness() > cur.fitness() {
			cur = cand
		}

		if cur.fitness() > 0 {
			break
		}
	}

	return cur
}

// Search anneals until the stop criterion.
func (a *AnnealingTuner) Search(ctx context.Context) *record.Record {
	log := a.opts.logger()
	stop := newStopper(a.opts)
	best := record.New(a.opts.Metric)

	cur := a.start()
	best.Update(cur.rec)

	t := AnnealTMax
	for epoch := 0; !stop.done(ctx, epoch); epoch++ {
		for range max(a.opts.Population, 1) {
			p := a.task.AdjustParams(a.v.mutate(a.rng, cur.params))
			next := individual{params: p, rec: a.task.Record(p, a.opts.Metric)}
			if next.fitness() == 0 {
				continue
			}

			if cur.fitness() == 0 || a.rng.Float64() < acceptance(cur.fitness(), next.fitness(), t) {
				cur = next
			}

			if best.Update(next.rec) {
				trace.Epoch(log, epoch, best.Reward)
			}
		}

		t *= AnnealAlpha
		if t <= AnnealTMin {
			t = AnnealTMax
		}
	}

	return best
}
