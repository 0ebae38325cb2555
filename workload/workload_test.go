package workload_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/arraytuner/workload"
)

var _ = Describe("Workload", func() {
	It("should load a workload file", func() {
		ws, err := workload.Load("../testdata/workloads/cnn.json")

		Expect(err).NotTo(HaveOccurred())
		Expect(ws).To(HaveLen(4))
		Expect(ws[2].Name).To(Equal("pool2"))
		Expect(ws[2].PoolStride()).To(Equal(2))
		Expect(ws[2].Kind()).To(Equal(workload.KindConv))
	})

	It("should fail on a missing file", func() {
		_, err := workload.Load("does-not-exist.json")
		Expect(err).To(HaveOccurred())
	})

	It("should reject workloads without params", func() {
		_, err := workload.Parse([]byte(`{"workloads": [{"name": "x"}]}`))
		Expect(err).To(HaveOccurred())
	})

	It("should count operations", func() {
		gemm := workload.Workload{Params: map[string]int{"i": 2, "j": 3, "k": 4}}
		conv := workload.Workload{
			Tags:   []string{"conv"},
			Params: map[string]int{"i": 2, "o": 3, "r": 4, "c": 4, "p": 3, "q": 3},
		}

		Expect(gemm.Kind()).To(Equal(workload.KindGEMM))
		Expect(gemm.Ops()).To(Equal(48.0))
		Expect(conv.Ops()).To(Equal(2.0 * 2 * 3 * 16 * 9))
	})

	It("should lower convolutions onto GEMM externals", func() {
		conv := workload.Workload{
			Name:   "c",
			Tags:   []string{"conv", "maxpool_2"},
			Params: map[string]int{"i": 2, "o": 3, "r": 4, "c": 4, "p": 3, "q": 3},
		}

		vals, err := conv.Bind([]string{"i", "j", "k"})
		Expect(err).NotTo(HaveOccurred())
		Expect(vals).To(Equal(map[string]int{"i": 3, "j": 16, "k": 18}))

		vals, err = conv.Bind([]string{"o", "r"})
		Expect(err).NotTo(HaveOccurred())
		Expect(vals).To(Equal(map[string]int{"o": 3, "r": 4}))

		rows, cols := conv.OutDims()
		Expect(rows).To(Equal(3))
		Expect(cols).To(Equal(4))
	})

	It("should size tensors by role", func() {
		gemm := workload.Workload{Params: map[string]int{"i": 2, "j": 3, "k": 4}}
		conv := workload.Workload{
			Tags:   []string{"conv"},
			Params: map[string]int{"i": 2, "o": 3, "r": 4, "c": 4, "p": 3, "q": 3},
		}

		Expect(gemm.TensorElems(workload.RoleCin)).To(Equal(8.0))
		Expect(gemm.TensorElems(workload.RoleW)).To(Equal(12.0))
		Expect(gemm.TensorElems(workload.RoleCout)).To(Equal(6.0))
		Expect(conv.TensorElems(workload.RoleCin)).To(Equal(2.0 * 6 * 6))
		Expect(conv.TensorElems(workload.RoleCout)).To(Equal(48.0))
	})

	It("should fail to bind unknown externals", func() {
		gemm := workload.Workload{Name: "g", Params: map[string]int{"i": 2, "j": 3, "k": 4}}

		_, err := gemm.Bind([]string{"i", "x"})
		Expect(errors.Is(err, workload.ErrUnmapped)).To(BeTrue())
	})

	It("should take the element-wise max of params", func() {
		ws := []workload.Workload{
			{Params: map[string]int{"i": 2, "j": 8}},
			{Params: map[string]int{"i": 4, "k": 1}},
		}

		Expect(workload.MaxParams(ws)).To(Equal(map[string]int{"i": 4, "j": 8, "k": 1}))
	})

	It("should render a stable string", func() {
		w := workload.Workload{Name: "g", Tags: []string{"gemm"}, Params: map[string]int{"j": 3, "i": 2}}
		Expect(w.String()).To(Equal("g(i=2,j=3)[gemm]"))
	})
})
