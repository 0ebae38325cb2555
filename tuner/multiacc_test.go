package tuner

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/arraytuner/config"
	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/task"
)

// fakeArrays answers array searches from a formula instead of running
// the genetic search, and remembers every budget it was asked about.
type fakeArrays struct {
	mu    sync.Mutex
	calls map[int][]config.Constraint
	eval  func(group []int, budget config.Constraint) *record.Record
}

func newFakeArrays(eval func(group []int, budget config.Constraint) *record.Record) *fakeArrays {
	return &fakeArrays{calls: map[int][]config.Constraint{}, eval: eval}
}

func (f *fakeArrays) search(
	_ context.Context,
	group []int,
	budget config.Constraint,
	_ *task.Prev,
) (*record.Record, []*record.Record) {
	f.mu.Lock()
	f.calls[group[0]] = append(f.calls[group[0]], budget)
	f.mu.Unlock()

	r := f.eval(group, budget)

	return r, []*record.Record{r.Clone()}
}

func arrayRecord(lat float64, used design.Resource) *record.Record {
	r := record.New(record.MetricLatency)
	r.Valid = true
	r.Latency = lat
	r.Reward = 1 / lat
	r.Cst = used

	return r
}

var _ = Describe("Resource allocation", func() {
	ctx := context.Background()

	newTuner := func(maxTrial int, f *fakeArrays) *multiAcc {
		o := testOptions(func(c *config.SearchConfig) {
			c.MaxArrays = 2
			c.MaxTrial = maxTrial
		})
		m := NewMultiAcc2(fcTask(3), o).multiAcc
		m.search = f.search

		return m
	}

	// greedy arrays take 80% of whatever BRAM they are offered, so two of
	// them overflow the device until the cap is halved.
	greedy := func(group []int, b config.Constraint) *record.Record {
		return arrayRecord(100, design.Resource{DSP: b.DSP / 2, BRAM18K: 0.8 * b.BRAM18K})
	}

	It("should give DSPs by ops share and start BRAM at the device cap", func() {
		m := newTuner(10, newFakeArrays(greedy))
		a := m.newAllocation(partition{{0}, {2}})

		Expect(a.state).To(Equal(AllocGrow))
		Expect(a.bramCap).To(Equal(u250.BRAM18K))
		Expect(a.budgets[0].DSP).To(BeNumerically("~", 0.8*u250.DSP, 1e-6))
		Expect(a.budgets[1].DSP).To(BeNumerically("~", 0.2*u250.DSP, 1e-6))
		Expect(a.budgets[0].BRAM18K).To(Equal(u250.BRAM18K))
		Expect(a.budgets[1].BRAM18K).To(Equal(u250.BRAM18K))
	})

	It("should halve the BRAM cap until the arrays fit together", func() {
		f := newFakeArrays(greedy)
		m := newTuner(10, f)
		part := partition{{0}, {1}}
		a := m.newAllocation(part)

		m.searchArrays(ctx, part, a, []int{0, 1})
		Expect(a.feasible()).To(BeTrue())
		Expect(m.fits(a)).To(BeFalse())

		m.grow(ctx, part, a)
		Expect(a.state).To(Equal(AllocGrow))
		Expect(a.bramCap).To(Equal(u250.BRAM18K / 2))
		Expect(m.fits(a)).To(BeTrue())
		Expect(f.calls[0]).To(HaveLen(2))
		Expect(f.calls[0][1].BRAM18K).To(Equal(u250.BRAM18K / 2))

		m.grow(ctx, part, a)
		Expect(a.state).To(Equal(AllocRefine))

		// Equal latencies leave no bottleneck to help.
		m.refine(ctx, part, a)
		Expect(a.state).To(Equal(AllocDone))
	})

	It("should return a feasible record once the halved cap fits", func() {
		f := newFakeArrays(greedy)
		m := newTuner(10, f)

		r := m.allocate(ctx, partition{{0}, {1}})

		Expect(r.Valid).To(BeTrue())
		Expect(u250.Fits(r.Cst)).To(BeTrue())
		Expect(r.Meta["alloc_state"]).To(Equal(AllocDone))
		Expect(r.Meta["trials"]).To(Equal(4.0))
	})

	It("should stop at max_trial", func() {
		f := newFakeArrays(func(group []int, b config.Constraint) *record.Record {
			return record.New(record.MetricLatency)
		})
		m := newTuner(3, f)

		r := m.allocate(ctx, partition{{0}, {1}})

		Expect(r.Valid).To(BeFalse())
		Expect(r.Meta["trials"]).To(Equal(3.0))
		Expect(r.Meta["alloc_state"]).To(Equal(AllocDone))
		Expect(f.calls[0]).To(HaveLen(3))
		Expect(f.calls[1]).To(HaveLen(3))
	})

	It("should give up once the cap cannot shrink further", func() {
		f := newFakeArrays(func(group []int, b config.Constraint) *record.Record {
			return record.New(record.MetricLatency)
		})
		m := newTuner(1000, f)

		r := m.allocate(ctx, partition{{0}, {1}})

		Expect(r.Valid).To(BeFalse())
		Expect(r.Meta["alloc_state"]).To(Equal(AllocDone))
		Expect(r.Meta["trials"]).To(BeNumerically("<", 1000))
	})

	Context("when refining", func() {
		part := partition{{0}, {2}}

		start := func(f *fakeArrays) (*multiAcc, *allocation) {
			m := newTuner(10, f)
			a := m.newAllocation(part)
			m.searchArrays(ctx, part, a, []int{0, 1})
			Expect(a.feasible()).To(BeTrue())
			Expect(m.fits(a)).To(BeTrue())
			a.state = AllocRefine

			return m, a
		}

		It("should keep a move that speeds up the bottleneck", func() {
			f := newFakeArrays(func(group []int, b config.Constraint) *record.Record {
				scale := 1e5
				if group[0] == 2 {
					scale = 1e6
				}

				return arrayRecord(scale/b.DSP, design.Resource{DSP: b.DSP / 2, BRAM18K: 10})
			})
			m, a := start(f)
			slowDSP := a.budgets[1].DSP

			m.refine(ctx, part, a)

			Expect(a.state).To(Equal(AllocRefine))
			Expect(a.slow).To(Equal(1))
			Expect(a.fast).To(Equal(0))
			Expect(a.decrease[1]).To(BeTrue())
			Expect(a.budgets[1].DSP).To(BeNumerically(">", slowDSP))
		})

		It("should undo a move that does not speed up the bottleneck", func() {
			f := newFakeArrays(func(group []int, b config.Constraint) *record.Record {
				if group[0] == 2 {
					return arrayRecord(100, design.Resource{DSP: b.DSP / 2, BRAM18K: 10})
				}

				return arrayRecord(1e5/b.DSP, design.Resource{DSP: b.DSP / 2, BRAM18K: 10})
			})
			m, a := start(f)
			budgets := append([]config.Constraint(nil), a.budgets...)
			recs := append([]*record.Record(nil), a.recs...)

			m.refine(ctx, part, a)

			Expect(a.state).To(Equal(AllocDone))
			Expect(a.decrease[1]).To(BeFalse())
			Expect(a.budgets).To(Equal(budgets))
			Expect(a.recs).To(Equal(recs))
			Expect(f.calls[0]).To(HaveLen(2))
			Expect(f.calls[0][1].DSP).To(BeNumerically("~", budgets[0].DSP*(1-ForcedReduction), 1e-6))
		})
	})
})
