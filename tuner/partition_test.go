package tuner

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/arraytuner/workload"
)

var _ = Describe("Partitions", func() {
	It("should list contiguous cuts", func() {
		Expect(contiguousPartitions(3, 2)).To(Equal([]partition{
			{{0, 1, 2}},
			{{0}, {1, 2}},
			{{0, 1}, {2}},
		}))
	})

	It("should count the compositions up to k parts", func() {
		Expect(contiguousPartitions(5, 3)).To(HaveLen(1 + 4 + 6))
		Expect(contiguousPartitions(2, 4)).To(HaveLen(2))
	})

	It("should balance groups by ops", func() {
		ws := []workload.Workload{
			{Name: "a", Params: map[string]int{"i": 8, "j": 1, "k": 1}},
			{Name: "b", Params: map[string]int{"i": 4, "j": 1, "k": 1}},
			{Name: "c", Params: map[string]int{"i": 4, "j": 1, "k": 1}},
		}

		parts := balancedPartitions(ws, 2, 4, rand.New(rand.NewSource(1)))

		Expect(parts[0]).To(Equal(partition{{0, 1, 2}}))
		Expect(parts[1]).To(Equal(partition{{0}, {1, 2}}))

		seen := map[string]bool{}
		for _, p := range parts {
			Expect(seen[p.String()]).To(BeFalse())
			seen[p.String()] = true

			count := 0
			for _, g := range p {
				Expect(g).NotTo(BeEmpty())
				count += len(g)
			}
			Expect(count).To(Equal(3))
		}
	})
})
