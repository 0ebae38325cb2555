package tuner

import (
	"context"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
	"github.com/sarchlab/arraytuner/trace"
)

// DefaultMaxTrials caps the enumeration of the exhaustive tuner.
const DefaultMaxTrials = 1 << 20

// ExhaustiveTuner enumerates every legal assignment of the tunable
// parameters, parents before children.
type ExhaustiveTuner struct {
	task  *task.SingleTask
	opts  Options
	names []string
}

// NewExhaustive creates an exhaustive tuner for t.
func NewExhaustive(t *task.SingleTask, o Options) *ExhaustiveTuner {
	infer := map[string]bool{}
	for _, n := range t.Design().ParamsConfig().Infer {
		infer[n] = true
	}

	var names []string
	for _, n := range t.Design().ParamsConfig().Tunable {
		if !infer[n] {
			names = append(names, n)
		}
	}

	return &ExhaustiveTuner{task: t, opts: o, names: names}
}

// Search enumerates until the space, the trial cap, or the time budget is
// exhausted.
func (e *ExhaustiveTuner) Search(ctx context.Context) *record.Record {
	log := e.opts.logger()
	stop := newStopper(e.opts)
	stop.epochs = 1 << 62
	best := record.New(e.opts.Metric)

	limit := e.opts.MaxTrials
	if limit <= 0 {
		limit = DefaultMaxTrials
	}

	trials := 0

	var enumerate func(i int, p design.Params) bool
	enumerate = func(i int, p design.Params) bool {
		if i == len(e.names) {
			if trials >= limit || stop.done(ctx, 0) {
				return false
			}

			if best.Update(e.task.Record(e.task.AdjustParams(p), e.opts.Metric)) {
				trace.Epoch(log, trials, best.Reward)
			}
			trials++

			return true
		}

		name := e.names[i]
		for _, v := range e.task.Design().Candidates(name, p) {
			p[name] = v
			if !enumerate(i+1, p) {
				return false
			}
		}
		delete(p, name)

		return true
	}

	enumerate(0, e.task.AdjustParams(design.Params{}))

	log.Debug("exhaustive search finished", "task", e.task.Workload().Name, "trials", trials)

	return best
}
