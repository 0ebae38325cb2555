package task_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/task"
	"github.com/sarchlab/arraytuner/workload"
)

var _ = Describe("MultiTask", func() {
	ws := []workload.Workload{
		{Name: "fc1", Params: map[string]int{"i": 256, "j": 512, "k": 1024}},
		{Name: "fc2", Params: map[string]int{"i": 256, "j": 256, "k": 512}},
		{Name: "fc3", Params: map[string]int{"i": 256, "j": 64, "k": 256}},
	}

	build := func(fuse bool) *task.MultiTask {
		mt, err := task.MultiTaskBuilder{}.
			WithDesign(kernel3).
			WithWorkloads(ws).
			WithConstraint(u250).
			WithFuse(fuse).
			Build()
		Expect(err).NotTo(HaveOccurred())

		return mt
	}

	It("should derive array-level externals as the max over members", func() {
		mt := build(false)

		Expect(mt.Externals()).To(Equal(design.Params{"i": 256, "j": 512, "k": 1024}))
		Expect(mt.Ops()).To(Equal(ws[0].Ops() + ws[1].Ops() + ws[2].Ops()))
	})

	It("should chain buffer modes when fused", func() {
		mt := build(true)

		Expect(mt.Tasks[0].Configs().CinRead).To(Equal(task.CinNormal))
		Expect(mt.Tasks[0].Configs().CoutWrite).To(Equal(task.CoutToOnChip))
		Expect(mt.Tasks[1].Configs().CinRead).To(Equal(task.CinFromBRAM))
		Expect(mt.Tasks[1].Configs().CoutWrite).To(Equal(task.CoutToOnChip))
		Expect(mt.Tasks[2].Configs().CinRead).To(Equal(task.CinFromBRAM))
		Expect(mt.Tasks[2].Configs().CoutWrite).To(Equal(task.CoutNormal))

		Expect(build(false).Tasks[1].Configs()).To(Equal(task.Configs{}))
		Expect(mt.Signature()).NotTo(Equal(build(false).Signature()))
	})

	It("should provision the array for the largest member", func() {
		mt := build(false)
		small := design.Params{
			"i_t1": 16, "i_t2": 4, "j_t1": 64, "j_t2": 16, "k_t1": 32, "k_t2": 4,
			"p9": 4, "p10": 4,
		}
		large := design.Params{
			"i_t1": 64, "i_t2": 8, "j_t1": 32, "j_t2": 8, "k_t1": 64, "k_t2": 8,
			"p9": 8, "p10": 8,
		}

		cst := mt.ArchConstraint([]design.Params{small, large, nil})

		a, _ := kernel3.InferParams(mt.Tasks[0].Full(small))
		b, _ := kernel3.InferParams(mt.Tasks[1].Full(large))
		Expect(cst).To(Equal(kernel3.ArchConstraint(a).Max(kernel3.ArchConstraint(b))))
		Expect(cst[0]).To(Equal(8.0))
		Expect(cst[1]).To(Equal(4.0))
		Expect(cst[2]).To(Equal(8.0))
	})
})
