package tuner

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
	"github.com/sarchlab/arraytuner/trace"
)

// maxObservations bounds the kernel matrix of the Bayesian tuner.
const maxObservations = 400

// BayesianTuner fits a Gaussian process to the rewards seen so far and
// evaluates the candidates of highest expected improvement.
type BayesianTuner struct {
	task  *task.SingleTask
	opts  Options
	rng   *rand.Rand
	v     *variation
	names []string
	scale float64
}

// NewBayesian creates a Bayesian tuner for t.
func NewBayesian(t *task.SingleTask, o Options) *BayesianTuner {
	d := t.Design()

	infer := map[string]bool{}
	for _, n := range d.ParamsConfig().Infer {
		infer[n] = true
	}

	var names []string
	for _, n := range d.ParamsConfig().Tunable {
		if !infer[n] {
			names = append(names, n)
		}
	}

	largest := 2
	for _, v := range t.Externals() {
		largest = max(largest, v)
	}

	return &BayesianTuner{
		task:  t,
		opts:  o,
		rng:   o.rng("bayesian|" + t.Signature()),
		v:     newVariation(d, o),
		names: names,
		scale: math.Log2(float64(largest) + 1),
	}
}

func (b *BayesianTuner) features(p design.Params) []float64 {
	x := make([]float64, len(b.names))
	for i, n := range b.names {
		x[i] = math.Log2(float64(p[n])+1) / b.scale
	}

	return x
}

type observation struct {
	x []float64
	y float64
}

// Search runs the Bayesian optimization loop until the stop criterion.
func (b *BayesianTuner) Search(ctx context.Context) *record.Record {
	log := b.opts.logger()
	stop := newStopper(b.opts)
	best := record.New(b.opts.Metric)
	base := b.task.Full(design.Params{})
	seen := map[string]bool{}

	var obs []observation
	var incumbent design.Params

	observe := func(p design.Params, epoch int) {
		seen[p.String()] = true

		r := b.task.Record(p, b.opts.Metric)
		y := 0.0
		if r.Valid {
			y = r.Reward
		}
		obs = append(obs, observation{x: b.features(p), y: y})

		if best.Update(r) {
			incumbent = p
			trace.Epoch(log, epoch, best.Reward)
		}
	}

	pop := max(b.opts.Population, 2)
	for range min(pop, 8) {
		observe(b.task.AdjustParams(b.task.Design().RandomSample(b.rng, base)), 0)
	}

	perEpoch := max(1, pop/20)
	for epoch := 0; !stop.done(ctx, epoch); epoch++ {
		gp, yMax := b.condition(obs)

		pool := b.pool(pop, base, incumbent, seen)
		if len(pool) == 0 {
			continue
		}

		type scored struct {
			p  design.Params
			ei float64
		}

		cands := make([]scored, 0, len(pool))
		for _, p := range pool {
			ei := 1.0
			if gp != nil {
				mu, sigma := gp.predict(b.features(p))
				ei = expectedImprovement(mu, sigma, 1, 0.01)
			}
			cands = append(cands, scored{p: p, ei: ei})
		}

		sort.SliceStable(cands, func(i, j int) bool { return cands[i].ei > cands[j].ei })

		for i := 0; i < perEpoch && i < len(cands); i++ {
			observe(cands[i].p, epoch)
		}

		log.Debug("bayesian step", "epoch", epoch, "observations", len(obs), "y_max", yMax)
	}

	return best
}

// condition fits a GP to the most recent observations with rewards
// normalized by their max. It returns nil if nothing feasible was seen.
func (b *BayesianTuner) condition(obs []observation) (*gaussianProcess, float64) {
	if len(obs) > maxObservations {
		obs = obs[len(obs)-maxObservations:]
	}

	yMax := 0.0
	for _, o := range obs {
		yMax = max(yMax, o.y)
	}

	if yMax <= 0 {
		return nil, 0
	}

	x := make([][]float64, len(obs))
	y := make([]float64, len(obs))
	for i, o := range obs {
		x[i] = o.x
		y[i] = o.y / yMax
	}

	gp := newGaussianProcess()
	if err := gp.fit(x, y); err != nil {
		return nil, yMax
	}

	return gp, yMax
}

// pool draws fresh candidates: half random samples, half mutations of the
// incumbent.
func (b *BayesianTuner) pool(n int, base, incumbent design.Params, seen map[string]bool) []design.Params {
	out := make([]design.Params, 0, n)
	drawn := map[string]bool{}
	for i := range n {
		var p design.Params
		if incumbent != nil && i%2 == 1 {
			p = b.v.mutate(b.rng, incumbent)
		} else {
			p = b.task.Design().RandomSample(b.rng, base)
		}

		p = b.task.AdjustParams(p)
		key := p.String()
		if seen[key] || drawn[key] {
			continue
		}
		drawn[key] = true

		out = append(out, p)
	}

	return out
}
