package tuner

import (
	"context"
	"math/rand"
	"sort"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
	"github.com/sarchlab/arraytuner/trace"
)

type individual struct {
	params design.Params
	rec    *record.Record
}

func (i individual) fitness() float64 {
	if i.rec == nil || !i.rec.Valid {
		return 0
	}

	return i.rec.Reward
}

func sortByFitness(pop []individual) {
	sort.SliceStable(pop, func(a, b int) bool {
		return pop[a].fitness() > pop[b].fitness()
	})
}

func numParents(n int, ratio float64) int {
	k := int(float64(n) * ratio)

	return min(max(k, 2), n)
}

// GeneticTuner searches one task with a genetic algorithm whose operators
// preserve the divisor structure of the split chains.
type GeneticTuner struct {
	task *task.SingleTask
	opts Options
	rng  *rand.Rand
	v    *variation
	seed design.Params
}

// NewGenetic creates a genetic tuner for t.
func NewGenetic(t *task.SingleTask, o Options) *GeneticTuner {
	return &GeneticTuner{
		task: t,
		opts: o,
		rng:  o.rng("genetic|" + t.Signature()),
		v:    newVariation(t.Design(), o),
	}
}

// WithSeed starts the population from p, snapped into the task's lattice.
func (g *GeneticTuner) WithSeed(p map[string]int) *GeneticTuner {
	if len(p) > 0 {
		g.seed = design.Params(p).Clone()
	}

	return g
}

func (g *GeneticTuner) evaluate(p design.Params) individual {
	p = g.task.AdjustParams(p)
	return individual{params: p, rec: g.task.Record(p, g.opts.Metric)}
}

// initial returns n copies of the snapped seed, or n random samples when
// there is no seed. Mutation spreads a seeded population from the first
// epoch on.
func (g *GeneticTuner) initial() []individual {
	n := max(g.opts.Population, 2)
	pop := make([]individual, 0, n)

	if g.seed != nil {
		seed := g.evaluate(g.task.Full(g.seed))
		for len(pop) < n {
			pop = append(pop, individual{params: seed.params.Clone(), rec: seed.rec.Clone()})
		}

		return pop
	}

	base := g.task.Full(design.Params{})
	for len(pop) < n {
		pop = append(pop, g.evaluate(g.task.Design().RandomSample(g.rng, base)))
	}

	return pop
}

// Search runs the genetic algorithm until the stop criterion.
func (g *GeneticTuner) Search(ctx context.Context) *record.Record {
	log := g.opts.logger()
	stop := newStopper(g.opts)
	best := record.New(g.opts.Metric)
	evals := 0

	pop := g.initial()
	evals += len(pop)

	for epoch := 0; ; epoch++ {
		sortByFitness(pop)
		if best.Update(pop[0].rec) {
			trace.Epoch(log, epoch, best.Reward)
		}

		if stop.done(ctx, epoch) {
			break
		}

		parents := pop[:numParents(len(pop), g.opts.ParentsRatio)]
		next := append([]individual(nil), parents...)

		for len(next) < len(pop) {
			a := parents[g.rng.Intn(len(parents))]
			b := parents[g.rng.Intn(len(parents))]

			child := g.v.crossover(g.rng, a.params, b.params)
			if g.rng.Float64() < g.opts.MutationProbability {
				child = g.v.mutate(g.rng, child)
			}

			next = append(next, g.evaluate(child))
			evals++
		}

		pop = next
	}

	log.Debug("genetic search finished",
		"task", g.task.Workload().Name, "evals", evals, "best", best)

	return best
}
