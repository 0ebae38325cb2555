package tuner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/samber/lo"

	"github.com/sarchlab/arraytuner/config"
	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
	"github.com/sarchlab/arraytuner/trace"
	"github.com/sarchlab/arraytuner/workload"
)

// States of the resource allocation of a partition.
const (
	// AllocGrow looks for budgets under which every array is feasible.
	AllocGrow = 0.0
	// AllocRefine moves budget from the fastest array to the bottleneck.
	AllocRefine = 0.5
	// AllocDone means no further move helps.
	AllocDone = 1.0
)

// ForcedReduction is the share of its budget the fastest array gives up
// when none of its cached configurations is cheap enough.
const ForcedReduction = 0.2

// MinBRAMCap is the smallest per-array BRAM cap tried before the growth
// phase gives up.
const MinBRAMCap = 1.0

const balancedVariants = 8

// allocation is the per-partition state of the resource search.
type allocation struct {
	state    float64
	bramCap  float64
	budgets  []config.Constraint
	recs     []*record.Record
	history  [][]*record.Record
	decrease []bool
	slow     int
	fast     int
	trials   int
}

func (a *allocation) feasible() bool {
	return lo.EveryBy(a.recs, func(r *record.Record) bool { return r != nil && r.Valid })
}

// used sums the resources of the arrays found so far.
func (a *allocation) used() design.Resource {
	var sum design.Resource
	for _, r := range a.recs {
		if r != nil {
			sum = sum.Add(r.Cst)
		}
	}

	return sum
}

type arraySearch func(
	ctx context.Context,
	group []int,
	budget config.Constraint,
	prev *task.Prev,
) (*record.Record, []*record.Record)

// multiAcc splits the workloads over several arrays. A Bayesian search
// over the candidate partitions picks which one to try next; each tried
// partition runs the allocation state machine.
type multiAcc struct {
	name       string
	mt         *task.MultiTask
	opts       Options
	array      Options
	pipeline   bool
	partitions []partition
	rng        *rand.Rand
	log        *slog.Logger
	search     arraySearch
}

// MultiAccTuner1 cuts the workload sequence into contiguous stages, one
// array per stage. Stages stream into each other, so every stage waits
// for the first tiles of its upstream stage.
type MultiAccTuner1 struct {
	*multiAcc
}

// NewMultiAcc1 creates the pipeline tuner for the members of mt.
func NewMultiAcc1(mt *task.MultiTask, o Options) *MultiAccTuner1 {
	m := newMultiAcc("multi_acc_pipeline", mt, o, true)
	m.partitions = contiguousPartitions(len(mt.Tasks), max(o.MaxArrays, 1))

	return &MultiAccTuner1{multiAcc: m}
}

// MultiAccTuner2 groups workloads by ops into balanced, not necessarily
// contiguous, sets. Each array time-multiplexes its group.
type MultiAccTuner2 struct {
	*multiAcc
}

// NewMultiAcc2 creates the balanced tuner for the members of mt.
func NewMultiAcc2(mt *task.MultiTask, o Options) *MultiAccTuner2 {
	m := newMultiAcc("multi_acc_balanced", mt, o, false)
	m.partitions = balancedPartitions(mt.Workloads(), max(o.MaxArrays, 1), balancedVariants, m.rng)

	return &MultiAccTuner2{multiAcc: m}
}

func newMultiAcc(name string, mt *task.MultiTask, o Options, pipeline bool) *multiAcc {
	m := &multiAcc{
		name:     name,
		mt:       mt,
		opts:     o,
		array:    o.inner(),
		pipeline: pipeline,
		rng:      o.rng(name + "|" + mt.Signature()),
		log:      o.logger(),
	}
	m.search = m.searchArray

	return m
}

// Partitions returns the candidate partitions.
func (m *multiAcc) Partitions() [][][]int {
	return lo.Map(m.partitions, func(p partition, _ int) [][]int { return p })
}

func (m *multiAcc) features(idx int) []float64 {
	n := max(len(m.partitions)-1, 1)
	arrays := float64(len(m.partitions[idx])) / float64(max(m.opts.MaxArrays, 1))

	return []float64{float64(idx) / float64(n), arrays}
}

// next picks the untried partition of highest expected improvement, or a
// random one while nothing feasible has been seen.
func (m *multiAcc) next(obs []observation, tried map[int]bool) (int, bool) {
	var open []int
	for i := range m.partitions {
		if !tried[i] {
			open = append(open, i)
		}
	}

	if len(open) == 0 {
		return 0, false
	}

	yMax := lo.MaxBy(obs, func(a, b observation) bool { return a.y > b.y }).y
	if yMax <= 0 {
		return open[m.rng.Intn(len(open))], true
	}

	x := make([][]float64, len(obs))
	y := make([]float64, len(obs))
	for i, o := range obs {
		x[i] = o.x
		y[i] = o.y / yMax
	}

	gp := newGaussianProcess()
	if err := gp.fit(x, y); err != nil {
		return open[m.rng.Intn(len(open))], true
	}

	bestIdx, bestEI := open[0], math.Inf(-1)
	for _, idx := range open {
		mu, sigma := gp.predict(m.features(idx))
		if ei := expectedImprovement(mu, sigma, 1, 0.01); ei > bestEI {
			bestIdx, bestEI = idx, ei
		}
	}

	return bestIdx, true
}

// Search tries partitions until the stop criterion or until every
// candidate has been tried.
func (m *multiAcc) Search(ctx context.Context) *record.Record {
	stop := newStopper(m.opts)
	best := record.New(m.opts.Metric)
	tried := map[int]bool{}

	var obs []observation
	for epoch := 0; !stop.done(ctx, epoch); epoch++ {
		idx, ok := m.next(obs, tried)
		if !ok {
			break
		}
		tried[idx] = true

		r := m.allocate(ctx, m.partitions[idx])
		y := 0.0
		if r.Valid {
			y = r.Reward
		}
		obs = append(obs, observation{x: m.features(idx), y: y})

		m.log.Debug("partition tried", "tuner", m.name, "partition", m.partitions[idx], "record", r)

		if best.Update(r) {
			trace.Epoch(m.log, epoch, best.Reward)
		}
	}

	return best
}

func (m *multiAcc) groupTask(group []int, budget config.Constraint) (*task.MultiTask, error) {
	ws := m.mt.Workloads()

	return task.MultiTaskBuilder{}.
		WithDesign(m.mt.Design()).
		WithWorkloads(lo.Map(group, func(i int, _ int) workload.Workload { return ws[i] })).
		WithConstraint(budget).
		WithURAM(m.opts.UseURAM).
		Build()
}

// searchArray finds the best shared array for one group under its budget.
// It also returns every feasible array seen on the way.
func (m *multiAcc) searchArray(
	ctx context.Context,
	group []int,
	budget config.Constraint,
	prev *task.Prev,
) (*record.Record, []*record.Record) {
	gm, err := m.groupTask(group, budget)
	if err != nil {
		m.log.Warn("cannot build array task", "tuner", m.name, "err", err)
		return record.New(m.opts.Metric), nil
	}

	if prev != nil {
		gm.Tasks[0].SetPrev(prev)
	}

	g, err := NewMultiWorkloadArrayGenetic(gm, m.array)
	if err != nil {
		m.log.Warn("cannot build array search", "tuner", m.name, "err", err)
		return record.New(m.opts.Metric), nil
	}

	return g.Search(ctx), g.History()
}

// prevOf describes the stage feeding stage i of a pipeline, or nil for
// the first stage or an infeasible upstream.
func (m *multiAcc) prevOf(part partition, a *allocation, i int) *task.Prev {
	if !m.pipeline || i == 0 {
		return nil
	}

	up := a.recs[i-1]
	if up == nil || !up.Valid || len(up.TaskSols) == 0 {
		return nil
	}

	last := up.TaskSols[len(up.TaskSols)-1]
	ws := m.mt.Workloads()

	return &task.Prev{
		Workload: ws[part[i-1][len(part[i-1])-1]],
		Sol:      last.Sol.Clone(),
		Latency:  last.Latency,
	}
}

// searchArrays searches the listed arrays of a partition under their
// budgets. Pipeline stages run in order since each one depends on its
// upstream stage; independent arrays go through the executor together.
func (m *multiAcc) searchArrays(ctx context.Context, part partition, a *allocation, todo []int) {
	if m.pipeline {
		for _, i := range todo {
			a.recs[i], a.history[i] = m.search(ctx, part[i], a.budgets[i], m.prevOf(part, a, i))
		}

		return
	}

	var mu sync.Mutex
	hist := map[int][]*record.Record{}
	keys := map[int]string{}
	batch := m.opts.pool().NewBatch()

	for _, i := range todo {
		group, budget := part[i], a.budgets[i]
		keys[i] = fmt.Sprintf("%s|%v|%s", m.name, group, budget)
		batch.Submit(keys[i], func(ctx context.Context) *record.Record {
			r, h := m.search(ctx, group, budget, nil)

			mu.Lock()
			hist[i] = h
			mu.Unlock()

			return r
		})
	}

	results := batch.Wait(ctx)

	mu.Lock()
	defer mu.Unlock()

	for _, i := range todo {
		a.recs[i] = results[keys[i]]
		a.history[i] = hist[i]
	}
}

func (m *multiAcc) total(a *allocation) *record.Record {
	out := record.New(m.opts.Metric)
	for _, r := range a.recs {
		out.Merge(r)
	}

	if !m.fits(a) {
		out.Valid = false
	}

	out.Meta = map[string]float64{
		"arrays":      float64(len(a.recs)),
		"alloc_state": a.state,
		"trials":      float64(a.trials),
	}

	return out
}

// initialBudgets splits DSPs and URAMs by each group's share of the ops.
// Every array starts with the whole device's BRAM as its cap; the growth
// phase halves it until the arrays fit side by side.
func (m *multiAcc) initialBudgets(part partition) []config.Constraint {
	ws := m.mt.Workloads()
	ops := lo.Map(part, func(g []int, _ int) float64 {
		return lo.SumBy(g, func(i int) float64 { return ws[i].Ops() })
	})

	sum := lo.Sum(ops)
	total := m.mt.Constraint()

	return lo.Map(ops, func(o float64, _ int) config.Constraint {
		share := 1 / float64(len(ops))
		if sum > 0 {
			share = o / sum
		}

		b := total.Scale(share)
		b.BRAM18K = total.BRAM18K

		return b
	})
}

// fits reports whether the arrays found so far fit on the device together.
func (m *multiAcc) fits(a *allocation) bool {
	return m.mt.Constraint().Fits(a.used())
}

func (m *multiAcc) newAllocation(part partition) *allocation {
	k := len(part)

	return &allocation{
		state:    AllocGrow,
		bramCap:  m.mt.Constraint().BRAM18K,
		budgets:  m.initialBudgets(part),
		recs:     make([]*record.Record, k),
		history:  make([][]*record.Record, k),
		decrease: make([]bool, k),
		slow:     -1,
		fast:     -1,
	}
}

// allocate runs the allocation state machine of one partition and returns
// the merged record of its arrays.
func (m *multiAcc) allocate(ctx context.Context, part partition) *record.Record {
	a := m.newAllocation(part)

	m.searchArrays(ctx, part, a, lo.Range(len(part)))
	a.trials++

	for a.state != AllocDone && a.trials < max(m.opts.MaxTrial, 1) && ctx.Err() == nil {
		switch a.state {
		case AllocGrow:
			m.grow(ctx, part, a)
		case AllocRefine:
			m.refine(ctx, part, a)
		}
		a.trials++
	}

	if a.state == AllocGrow {
		a.state = AllocDone
	}

	m.log.Debug("allocation finished",
		"tuner", m.name, "partition", part, "trials", a.trials,
		"bram_cap", a.bramCap, "decrease", a.decrease)

	return m.total(a)
}

// grow halves the BRAM cap of every array and searches again the arrays
// that are infeasible or use more than the new cap. It moves to refinement
// once every array is feasible and the arrays fit together, and gives up
// when the cap falls below MinBRAMCap.
func (m *multiAcc) grow(ctx context.Context, part partition, a *allocation) {
	if a.feasible() && m.fits(a) {
		a.state = AllocRefine
		return
	}

	a.bramCap /= 2
	if a.bramCap < MinBRAMCap {
		a.state = AllocDone
		return
	}

	var todo []int
	for i, r := range a.recs {
		a.budgets[i].BRAM18K = a.bramCap
		if r == nil || !r.Valid || r.Cst.BRAM18K > a.bramCap {
			todo = append(todo, i)
		}
	}

	if m.pipeline && len(todo) > 0 {
		// Stages after a changed stage see a new upstream.
		todo = lo.RangeFrom(todo[0], len(part)-todo[0])
	}

	m.log.Debug("bram cap halved",
		"tuner", m.name, "cap", a.bramCap, "arrays", todo)
	m.searchArrays(ctx, part, a, todo)
}

// cheaper returns the cached configuration of array i that frees the most
// DSPs while staying faster than bound.
func cheaper(a *allocation, i int, bound float64) *record.Record {
	cur := a.recs[i]

	var best *record.Record
	for _, r := range a.history[i] {
		if !r.Valid || r.Latency > bound || r.Cst.DSP >= cur.Cst.DSP {
			continue
		}

		if r.Cst.BRAM18K > a.budgets[i].BRAM18K || r.Cst.URAM > a.budgets[i].URAM {
			continue
		}

		if best == nil || r.Cst.DSP < best.Cst.DSP {
			best = r
		}
	}

	return best
}

// refine moves budget from the fastest array to the bottleneck. It keeps
// the move only if every array ends up faster than the old bottleneck;
// otherwise the state machine ends.
func (m *multiAcc) refine(ctx context.Context, part partition, a *allocation) {
	if len(a.recs) < 2 {
		a.state = AllocDone
		return
	}

	slow := lo.IndexOf(a.recs, lo.MaxBy(a.recs, func(x, y *record.Record) bool { return x.Latency > y.Latency }))
	fast := lo.IndexOf(a.recs, lo.MinBy(a.recs, func(x, y *record.Record) bool { return x.Latency < y.Latency }))
	if slow == fast {
		a.state = AllocDone
		return
	}
	a.slow, a.fast = slow, fast

	saved := &allocation{
		budgets: append([]config.Constraint(nil), a.budgets...),
		recs:    append([]*record.Record(nil), a.recs...),
		history: append([][]*record.Record(nil), a.history...),
	}
	bound := a.recs[slow].Latency

	var freed config.Constraint
	if r := cheaper(a, fast, bound); r != nil {
		freed = a.budgets[fast].Sub(r.Cst)
		a.budgets[fast] = a.budgets[fast].Sub(freed.Resource())
		a.recs[fast] = r.Clone()
	} else {
		freed = a.budgets[fast].Scale(ForcedReduction)
		a.budgets[fast] = a.budgets[fast].Sub(freed.Resource())
		m.searchArrays(ctx, part, a, []int{fast})

		if !a.recs[fast].Valid || a.recs[fast].Latency > bound {
			m.restore(a, saved)
			a.state = AllocDone

			return
		}
	}

	a.budgets[slow] = a.budgets[slow].Add(freed)

	todo := []int{slow}
	if m.pipeline {
		// Stages after the bottleneck see a new upstream.
		todo = lo.RangeFrom(slow, len(part)-slow)
	}
	m.searchArrays(ctx, part, a, todo)

	a.decrease[slow] = a.feasible() && m.fits(a) && lo.EveryBy(a.recs, func(r *record.Record) bool {
		return r.Latency < bound
	})
	if !a.decrease[slow] {
		m.restore(a, saved)
		a.state = AllocDone
	}
}

func (m *multiAcc) restore(a, saved *allocation) {
	a.budgets = saved.budgets
	a.recs = saved.recs
	a.history = saved.history
}
