package tuner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/surrogate"
	"github.com/sarchlab/arraytuner/task"
	"github.com/sarchlab/arraytuner/trace"
	"github.com/sarchlab/arraytuner/workload"
)

// archEvaluator scores one array: the workloads run under the fixed
// architecture cst, seeded from the array-level assignment arch.
type archEvaluator func(ctx context.Context, arch design.Params, cst design.ArchCst) *record.Record

type archIndividual struct {
	params    design.Params
	cst       design.ArchCst
	fitness   float64
	predicted bool
	rec       *record.Record
}

// archGenetic evolves array-level assignments shared by several
// workloads. Each individual is scored by running eval through the
// executor; a gradient-boosted surrogate trained on the real scores
// replaces evaluation on model generations and prunes hopeless candidates
// on real ones.
type archGenetic struct {
	name   string
	mt     *task.MultiTask
	opts   Options
	eval   archEvaluator
	sizing *task.SingleTask
	rng    *rand.Rand
	v      *variation
	log    *slog.Logger

	model   *surrogate.Model
	data    surrogate.Dataset
	thres   float64
	archive map[string]*archIndividual
	history []*record.Record
}

func newArchGenetic(name string, mt *task.MultiTask, o Options, eval archEvaluator) (*archGenetic, error) {
	sizing, err := task.SingleTaskBuilder{}.
		WithDesign(mt.Design()).
		WithWorkload(workload.Workload{Name: name, Params: mt.Externals()}).
		WithConstraint(mt.Constraint()).
		Build()
	if err != nil {
		return nil, err
	}

	cfg := surrogate.DefaultConfig()
	cfg.Seed = o.Seed

	return &archGenetic{
		name:    name,
		mt:      mt,
		opts:    o,
		eval:    eval,
		sizing:  sizing,
		rng:     o.rng(name + "|" + mt.Signature()),
		v:       newVariation(mt.Design(), o),
		log:     o.logger(),
		model:   surrogate.New(cfg),
		thres:   o.XGBThres,
		archive: map[string]*archIndividual{},
	}, nil
}

// History returns every valid real evaluation so far.
func (a *archGenetic) History() []*record.Record {
	return a.history
}

func features(cst design.ArchCst) []float64 {
	x := make([]float64, len(cst))
	for i, v := range cst {
		x[i] = math.Log2(v + 1)
	}

	return x
}

// individual snaps p and computes its architecture. The array must fit the
// constraint when provisioned for the largest workload.
func (a *archGenetic) individual(p design.Params) (*archIndividual, bool) {
	p = a.sizing.AdjustParams(p)

	full, ok := a.mt.Design().InferParams(p)
	if !ok {
		return nil, false
	}

	if _, res, _ := a.sizing.Evaluate(full, record.MetricLatency); !a.sizing.Fits(res) {
		return nil, false
	}

	return &archIndividual{params: p, cst: a.mt.Design().ArchConstraint(full)}, true
}

func cstKey(cst design.ArchCst) string {
	return fmt.Sprint([]float64(cst))
}

// jobKey scopes a candidate array to the workloads it is scored on, since
// the executor shares results across batches.
func (a *archGenetic) jobKey(cst design.ArchCst) string {
	return a.name + "|" + a.mt.Signature() + "|" + cstKey(cst)
}

func (a *archGenetic) sample(n int, seen map[string]bool) []*archIndividual {
	base := a.sizing.Full(design.Params{})
	out := make([]*archIndividual, 0, n)

	for tries := 0; len(out) < n && tries < 20*n; tries++ {
		ind, ok := a.individual(a.mt.Design().RandomSample(a.rng, base))
		if !ok || seen[cstKey(ind.cst)] {
			continue
		}

		seen[cstKey(ind.cst)] = true
		out = append(out, ind)
	}

	return out
}

func (a *archGenetic) modelGeneration(gen int) bool {
	if !a.model.Ready() || a.opts.ModelGens <= 0 || gen < a.opts.XGBNTurns {
		return false
	}

	return gen%a.opts.ModelGens != 0
}

// score fills in the fitness of pop, either from the surrogate or by
// dispatching real evaluations.
func (a *archGenetic) score(ctx context.Context, pop []*archIndividual, gen int) {
	if a.modelGeneration(gen) {
		for _, ind := range pop {
			if prior, ok := a.archive[cstKey(ind.cst)]; ok {
				*ind = *prior
				continue
			}

			y, _ := a.model.Predict(features(ind.cst))
			ind.fitness = max(y, 0) * a.data.Max
			ind.predicted = true
		}

		return
	}

	batch := a.opts.pool().NewBatch()
	pruned := 0

	for _, ind := range pop {
		key := cstKey(ind.cst)
		if prior, ok := a.archive[key]; ok {
			*ind = *prior
			continue
		}

		if y, ok := a.model.Predict(features(ind.cst)); ok && a.thres > 0 && y < a.thres {
			ind.fitness = 0
			pruned++

			continue
		}

		arch, cst := ind.params.Clone(), ind.cst
		batch.Submit(a.jobKey(cst), func(ctx context.Context) *record.Record {
			return a.eval(ctx, arch, cst)
		})
	}

	results := batch.Wait(ctx)

	for _, ind := range pop {
		r, ok := results[a.jobKey(ind.cst)]
		if !ok {
			continue
		}

		ind.predicted = false
		ind.rec = r
		ind.fitness = 0
		if r.Valid {
			ind.fitness = r.Reward
			r.ArchSol = ind.params.Clone()
			a.history = append(a.history, r)
		}

		a.data.Add(features(ind.cst), ind.fitness)

		stored := *ind
		a.archive[cstKey(ind.cst)] = &stored
	}

	if gen+1 >= a.opts.XGBNTurns && a.data.Len() > 0 {
		if err := a.data.Fit(a.model); err != nil {
			a.log.Warn("surrogate training failed", "tuner", a.name, "err", err)
		}
	}

	a.log.Debug("arch generation",
		"tuner", a.name, "gen", gen, "dispatched", batch.Len(), "pruned", pruned)
}

// adjustThreshold moves the pruning threshold to a fraction of the
// predicted score of the best real architecture.
func (a *archGenetic) adjustThreshold(best *archIndividual) {
	if best == nil || a.opts.XGBThresAdjust <= 0 {
		return
	}

	if y, ok := a.model.Predict(features(best.cst)); ok {
		a.thres = y * a.opts.XGBThresAdjust
	}
}

func (a *archGenetic) hwParents(n int) []*archIndividual {
	k := int(float64(n) * a.opts.HWParentsRatio)
	if k <= 0 {
		return nil
	}

	evaluated := make([]*archIndividual, 0, len(a.archive))
	for _, ind := range a.archive {
		if ind.fitness > 0 {
			evaluated = append(evaluated, ind)
		}
	}

	sort.Slice(evaluated, func(i, j int) bool {
		if evaluated[i].fitness != evaluated[j].fitness {
			return evaluated[i].fitness > evaluated[j].fitness
		}

		return cstKey(evaluated[i].cst) < cstKey(evaluated[j].cst)
	})

	return evaluated[:min(k, len(evaluated))]
}

// Search runs the array-level genetic algorithm.
func (a *archGenetic) Search(ctx context.Context) *record.Record {
	stop := newStopper(a.opts)
	best := record.New(a.opts.Metric)
	n := max(a.opts.Population, 2)

	seen := map[string]bool{}
	pop := a.sample(n, seen)
	if len(pop) == 0 {
		a.log.Warn("no array configuration fits the constraint", "tuner", a.name)
		return best
	}

	var bestInd *archIndividual
	for gen := 0; ; gen++ {
		a.score(ctx, pop, gen)

		sort.SliceStable(pop, func(i, j int) bool { return pop[i].fitness > pop[j].fitness })
		for _, ind := range pop {
			if ind.predicted || ind.rec == nil {
				continue
			}

			if best.Update(ind.rec) {
				bestInd = ind
				trace.Epoch(a.log, gen, best.Reward)
			}

			break
		}

		a.adjustThreshold(bestInd)

		if stop.done(ctx, gen) {
			break
		}

		parents := append([]*archIndividual(nil), pop[:numParents(len(pop), a.opts.ParentsRatio)]...)
		parents = append(parents, a.hwParents(n)...)

		next := make([]*archIndividual, 0, n)
		seen = map[string]bool{}
		for _, p := range pop[:numParents(len(pop), a.opts.ParentsRatio)] {
			seen[cstKey(p.cst)] = true
			next = append(next, p)
		}

		for tries := 0; len(next) < n && tries < 20*n; tries++ {
			x := parents[a.rng.Intn(len(parents))]
			y := parents[a.rng.Intn(len(parents))]

			child := a.v.crossover(a.rng, x.params, y.params)
			if a.rng.Float64() < a.opts.MutationProbability {
				child = a.v.mutate(a.rng, child)
			}

			ind, ok := a.individual(child)
			if !ok || seen[cstKey(ind.cst)] {
				continue
			}

			seen[cstKey(ind.cst)] = true
			next = append(next, ind)
		}

		if len(next) < n {
			next = append(next, a.sample(n-len(next), seen)...)
		}

		pop = next
	}

	a.log.Info("array search finished",
		"tuner", a.name, "evaluated", len(a.archive), "best", best)

	return best
}

// runSequential searches every member of mt on the same array and appends
// the results in order. A nil cst leaves the members unconstrained.
func runSequential(
	ctx context.Context,
	mt *task.MultiTask,
	cst design.ArchCst,
	seed design.Params,
	o Options,
) *record.Record {
	total := record.New(o.Metric)
	for _, t := range mt.Tasks {
		t = t.Clone()
		if cst != nil {
			t.FixArch(cst)
		}

		r := searchTask(ctx, t, o, seed)
		total.Append(r)

		if !r.Valid {
			break
		}
	}

	return total
}
