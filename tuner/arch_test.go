package tuner

import (
	"context"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/arraytuner/config"
	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/surrogate"
)

var _ = Describe("Array-level genetic search", func() {
	var (
		a     *archGenetic
		evals atomic.Int32
		pair  []*archIndividual
	)

	build := func(mod func(c *config.SearchConfig)) {
		evals.Store(0)

		var err error
		a, err = newArchGenetic("arch", fcTask(2), testOptions(mod),
			func(ctx context.Context, arch design.Params, cst design.ArchCst) *record.Record {
				evals.Add(1)

				r := record.New(record.MetricLatency)
				r.Valid = true
				r.Latency = 1
				r.Reward = 1

				return r
			})
		Expect(err).NotTo(HaveOccurred())

		a.model = surrogate.New(surrogate.Config{
			Trees: 40, MaxDepth: 2, LearningRate: 0.3, Subsample: 1, MinLeaf: 1, Seed: 1,
		})

		pair = a.sample(4, map[string]bool{})
		Expect(len(pair)).To(BeNumerically(">=", 2))
		pair = pair[:2]
	}

	// train teaches the model that pair[0] is good and pair[1] is not.
	train := func() {
		for range 3 {
			a.data.Add(features(pair[0].cst), 1)
			a.data.Add(features(pair[1].cst), 0)
		}
		Expect(a.data.Fit(a.model)).To(Succeed())
	}

	It("should prune a candidate the model scores below the threshold", func() {
		build(func(c *config.SearchConfig) {
			c.ModelGens = 0
			c.XGBThresAdjust = 0.5
		})
		train()

		good, bad := pair[0], pair[1]
		a.adjustThreshold(good)

		predicted, ok := a.model.Predict(features(good.cst))
		Expect(ok).To(BeTrue())
		Expect(a.thres).To(BeNumerically("~", predicted*0.5, 1e-9))

		a.score(context.Background(), []*archIndividual{good, bad}, 1)

		Expect(evals.Load()).To(Equal(int32(1)))
		Expect(good.fitness).To(Equal(1.0))
		Expect(good.rec).NotTo(BeNil())
		Expect(bad.fitness).To(BeZero())
		Expect(bad.rec).To(BeNil())
		Expect(a.archive).To(HaveKey(cstKey(good.cst)))
		Expect(a.archive).NotTo(HaveKey(cstKey(bad.cst)))
	})

	It("should evaluate everything while the threshold is unset", func() {
		build(func(c *config.SearchConfig) { c.ModelGens = 0 })
		train()

		a.score(context.Background(), pair, 1)

		Expect(evals.Load()).To(Equal(int32(2)))
		Expect(a.history).To(HaveLen(2))
	})

	It("should only use the model on model generations", func() {
		build(func(c *config.SearchConfig) {
			c.ModelGens = 3
			c.XGBNTurns = 1
		})

		Expect(a.modelGeneration(1)).To(BeFalse())

		train()

		Expect(a.modelGeneration(0)).To(BeFalse())
		Expect(a.modelGeneration(1)).To(BeTrue())
		Expect(a.modelGeneration(2)).To(BeTrue())
		Expect(a.modelGeneration(3)).To(BeFalse())
		Expect(a.modelGeneration(4)).To(BeTrue())
	})

	It("should score a model generation without evaluating", func() {
		build(func(c *config.SearchConfig) {
			c.ModelGens = 3
			c.XGBNTurns = 1
		})
		train()

		a.score(context.Background(), pair, 1)

		Expect(evals.Load()).To(BeZero())
		Expect(a.archive).To(BeEmpty())
		Expect(pair[0].predicted).To(BeTrue())
		Expect(pair[1].predicted).To(BeTrue())
		Expect(pair[0].fitness).To(BeNumerically(">", pair[1].fitness))
	})

	It("should reuse archived scores on a model generation", func() {
		build(func(c *config.SearchConfig) {
			c.ModelGens = 3
			c.XGBNTurns = 1
		})
		train()

		a.archive[cstKey(pair[0].cst)] = &archIndividual{
			params: pair[0].params, cst: pair[0].cst, fitness: 7,
		}

		a.score(context.Background(), pair, 1)

		Expect(pair[0].fitness).To(Equal(7.0))
		Expect(pair[0].predicted).To(BeFalse())
		Expect(pair[1].predicted).To(BeTrue())
	})

	It("should inject the best evaluated arrays as parents", func() {
		build(func(c *config.SearchConfig) { c.HWParentsRatio = 0.5 })

		for i, f := range []float64{3, 1, 2, 0} {
			cst := design.ArchCst{float64(i)}
			a.archive[cstKey(cst)] = &archIndividual{cst: cst, fitness: f}
		}

		parents := a.hwParents(4)

		Expect(parents).To(HaveLen(2))
		Expect(parents[0].fitness).To(Equal(3.0))
		Expect(parents[1].fitness).To(Equal(2.0))
		Expect(a.hwParents(1)).To(BeEmpty())
	})
})
