package tuner

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/arraytuner/config"
	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
)

var _ = Describe("Core tuners", func() {
	It("should solve a single-point design with one epoch", func() {
		o := testOptions(func(c *config.SearchConfig) { c.Epochs = 1 })
		t := toyTask(1)

		r := NewGenetic(t, o).Search(context.Background())

		Expect(r.Valid).To(BeTrue())
		Expect(r.ArchSol["n_t1"]).To(Equal(1))
		Expect(toy.BoundCheck(r.ArchSol)).To(BeTrue())
		Expect(r.TaskSols).To(HaveLen(1))
	})

	It("should enumerate the whole lattice", func() {
		t := toyTask(12)

		r := NewExhaustive(t, testOptions(nil)).Search(context.Background())

		Expect(r.Valid).To(BeTrue())
		Expect(r.ArchSol["n_t1"]).To(Equal(12))
		Expect(r.Latency).To(BeNumerically("~", 1, 1e-9))
	})

	It("should stop enumerating at the trial cap", func() {
		t := toyTask(12)
		o := testOptions(func(c *config.SearchConfig) { c.MaxTrials = 2 })

		r := NewExhaustive(t, o).Search(context.Background())

		Expect(r.ArchSol["n_t1"]).To(Equal(2))
		Expect(r.Latency).To(BeNumerically("~", 6, 1e-9))
	})

	DescribeTable("should return a feasible record",
		func(method string) {
			t := toyTask(12)
			o := testOptions(func(c *config.SearchConfig) { c.Method = method })

			r := NewCore(method, t, o).Search(context.Background())

			Expect(r.Valid).To(BeTrue())
			Expect(toy.BoundCheck(r.ArchSol)).To(BeTrue())
			Expect(12 % r.ArchSol["n_t1"]).To(BeZero())
			Expect(r.Latency).To(BeNumerically("~", 12/r.ArchSol["n_t1"], 1e-9))
		},
		Entry("genetic", config.MethodGenetic),
		Entry("exhaustive", config.MethodExhaustive),
		Entry("random", config.MethodRandom),
		Entry("annealing", config.MethodAnnealing),
		Entry("bayesian", config.MethodBayesian),
	)

	It("should find a feasible kernel3 configuration", func() {
		t := gemmTask(128, 128, 128)

		r := NewGenetic(t, testOptions(nil)).Search(context.Background())

		Expect(r.Valid).To(BeTrue())
		Expect(u250.Fits(r.Cst)).To(BeTrue())

		again := t.Record(r.ArchSol, record.MetricLatency)
		Expect(again.Valid).To(BeTrue())
		Expect(again.Reward).To(BeNumerically("~", r.Reward, 1e-12))
	})

	It("should never do worse than its seed", func() {
		t := gemmTask(256, 256, 256)
		seed := t.AdjustParams(design.Params{
			"i_t1": 64, "i_t2": 8, "j_t1": 64, "j_t2": 8, "k_t1": 64, "k_t2": 4,
			"p9": 16, "p10": 16,
		})
		base := t.Record(seed, record.MetricLatency)
		Expect(base.Valid).To(BeTrue())

		r := NewGenetic(t, testOptions(nil)).WithSeed(seed).Search(context.Background())

		Expect(r.Reward).To(BeNumerically(">=", base.Reward))
	})

	It("should start every individual from the snapped seed", func() {
		t := gemmTask(256, 256, 256)
		raw := map[string]int{
			"i_t1": 60, "i_t2": 8, "j_t1": 64, "j_t2": 8, "k_t1": 64, "k_t2": 4,
			"p9": 16, "p10": 16,
		}
		snapped := t.AdjustParams(t.Full(design.Params(raw).Clone()))

		pop := NewGenetic(t, testOptions(nil)).WithSeed(raw).initial()

		Expect(pop).To(HaveLen(10))
		for _, ind := range pop {
			Expect(ind.params).To(Equal(snapped))
			Expect(ind.rec.Reward).To(Equal(pop[0].rec.Reward))
		}
		pop[0].params["i_t1"] = 1
		Expect(pop[1].params["i_t1"]).NotTo(Equal(1))
	})

	It("should stop on a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		o := testOptions(func(c *config.SearchConfig) { c.Epochs = 1000 })

		done := make(chan *record.Record)
		go func() { done <- NewGenetic(toyTask(12), o).Search(ctx) }()

		Eventually(done, 5*time.Second).Should(Receive())
	})

	It("should stop on the time budget", func() {
		o := testOptions(func(c *config.SearchConfig) {
			c.Epochs = 0
			c.MaxTime = 50 * time.Millisecond
		})

		start := time.Now()
		r := NewRandom(toyTask(12), o).Search(context.Background())

		Expect(r.Valid).To(BeTrue())
		Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
	})
})

var _ = Describe("MemStore", func() {
	It("should hand out copies", func() {
		s := NewMemStore()
		r := record.New(record.MetricLatency)
		r.Valid = true
		r.Latency = 10
		s.Put("k", r)

		got, ok := s.Get("k")
		Expect(ok).To(BeTrue())
		got.Latency = 20

		again, _ := s.Get("k")
		Expect(again.Latency).To(Equal(10.0))

		_, ok = s.Get("missing")
		Expect(ok).To(BeFalse())
	})

	It("should keep results of different metrics apart", func() {
		s := NewMemStore()
		t := toyTask(12)

		lat := testOptions(func(c *config.SearchConfig) { c.Metric = "latency" })
		lat.Store = s
		energy := testOptions(func(c *config.SearchConfig) { c.Metric = "energy" })
		energy.Store = s

		first := searchTask(context.Background(), t, lat, nil)
		second := searchTask(context.Background(), t, energy, nil)

		Expect(first.Metric).To(Equal(record.MetricLatency))
		Expect(second.Metric).To(Equal(record.MetricEnergy))
		Expect(s.m).To(HaveLen(2))

		cached, ok := s.Get(energy.cacheKey(t.Signature()))
		Expect(ok).To(BeTrue())
		Expect(cached.Metric).To(Equal(record.MetricEnergy))
	})

	It("should key results by method", func() {
		ga := testOptions(nil)
		rnd := testOptions(func(c *config.SearchConfig) { c.Method = config.MethodRandom })

		Expect(ga.cacheKey("sig")).NotTo(Equal(rnd.cacheKey("sig")))
	})
})

var _ = Describe("Annealing acceptance", func() {
	It("should always accept improvements", func() {
		Expect(acceptance(1, 2, AnnealTMin)).To(Equal(1.0))
	})

	It("should accept regressions less often when cold", func() {
		hot := acceptance(1, 0.99, AnnealTMax)
		cold := acceptance(1, 0.99, AnnealTMin)

		Expect(hot).To(BeNumerically("<", 1))
		Expect(cold).To(BeNumerically("<", hot))
	})
})
