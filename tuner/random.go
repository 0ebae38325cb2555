package tuner

import (
	"context"
	"math/rand"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
	"github.com/sarchlab/arraytuner/trace"
)

// RandomTuner draws a population of independent samples per epoch.
type RandomTuner struct {
	task *task.SingleTask
	opts Options
	rng  *rand.Rand
}

// NewRandom creates a random tuner for t.
func NewRandom(t *task.SingleTask, o Options) *RandomTuner {
	return &RandomTuner{task: t, opts: o, rng: o.rng("random|" + t.Signature())}
}

// Search samples until the stop criterion.
func (r *RandomTuner) Search(ctx context.Context) *record.Record {
	log := r.opts.logger()
	stop := newStopper(r.opts)
	best := record.New(r.opts.Metric)
	base := r.task.Full(design.Params{})

	for epoch := 0; !stop.done(ctx, epoch); epoch++ {
		for range max(r.opts.Population, 1) {
			p := r.task.AdjustParams(r.task.Design().RandomSample(r.rng, base))
			if best.Update(r.task.Record(p, r.opts.Metric)) {
				trace.Epoch(log, epoch, best.Reward)
			}
		}
	}

	return best
}
