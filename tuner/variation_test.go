package tuner

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/arraytuner/design"
)

func product(f []int) int {
	p := 1
	for _, x := range f {
		p *= x
	}

	return p
}

var _ = Describe("Chain factors", func() {
	chain := []string{"i", "i_t1", "i_t2"}

	It("should split a chain into per-level factors", func() {
		f, ok := factors(design.Params{"i": 96, "i_t1": 24, "i_t2": 4}, chain)

		Expect(ok).To(BeTrue())
		Expect(f).To(Equal([]int{4, 6, 4}))
	})

	It("should reject a chain that does not divide", func() {
		_, ok := factors(design.Params{"i": 96, "i_t1": 24, "i_t2": 5}, chain)
		Expect(ok).To(BeFalse())
	})

	It("should write factors back below the root", func() {
		p := design.Params{"i": 96}
		applyFactors(p, chain, []int{2, 3, 16})

		Expect(p).To(Equal(design.Params{"i": 96, "i_t1": 48, "i_t2": 16}))
	})

	DescribeTable("should keep the product of the factors",
		func(op func(*rand.Rand, []int)) {
			rng := rand.New(rand.NewSource(7))
			for range 200 {
				f := []int{12, 6, 4}
				op(rng, f)

				Expect(product(f)).To(Equal(288))
				for _, x := range f {
					Expect(x).To(BeNumerically(">=", 1))
				}
			}
		},
		Entry("redistribute", redistribute),
		Entry("refactorize", refactorize),
		Entry("resample", resample),
	)
})

var _ = Describe("Variation", func() {
	It("should group chains and divisor pairs into families", func() {
		v := newVariation(kernel3, testOptions(nil))

		familyOf := map[string]int{}
		for i, fam := range v.families {
			for _, n := range fam {
				familyOf[n] = i
			}
		}

		Expect(familyOf["i_t1"]).To(Equal(familyOf["i_t2"]))
		Expect(familyOf["j_t1"]).To(Equal(familyOf["j_t2"]))
		Expect(familyOf["i_t1"]).NotTo(Equal(familyOf["j_t1"]))

		for _, pair := range kernel3.DivisorPairs() {
			Expect(familyOf[pair[0]]).To(Equal(familyOf[pair[1]]))
		}
	})

	It("should keep every chain divisible under mutation", func() {
		t := gemmTask(256, 192, 128)
		v := newVariation(kernel3, testOptions(nil))
		rng := rand.New(rand.NewSource(3))
		p := t.AdjustParams(kernel3.RandomSample(rng, t.Full(design.Params{})))

		for range 200 {
			p = v.mutate(rng, p)
			for _, c := range v.chains {
				_, ok := factors(p, c)
				Expect(ok).To(BeTrue(), "chain %v in %s", c, p)
			}
		}
	})

	It("should inherit each family from one parent", func() {
		v := newVariation(kernel3, testOptions(nil))
		rng := rand.New(rand.NewSource(5))
		a := design.Params{"i_t1": 64, "i_t2": 8, "j_t1": 32, "j_t2": 4}
		b := design.Params{"i_t1": 16, "i_t2": 2, "j_t1": 8, "j_t2": 8}

		for range 50 {
			c := v.crossover(rng, a, b)

			fromA := c["i_t1"] == a["i_t1"]
			Expect(c["i_t2"] == a["i_t2"]).To(Equal(fromA))
		}
	})
})
