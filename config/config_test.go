package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/arraytuner/config"
	"github.com/sarchlab/arraytuner/design"
)

func writeFile(name, content string) string {
	path := filepath.Join(GinkgoT().TempDir(), name)
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

	return path
}

var _ = Describe("Platform", func() {
	It("should load a platform file", func() {
		c, err := config.LoadPlatform("../testdata/platforms/u250.json")

		Expect(err).NotTo(HaveOccurred())
		Expect(c.DSP).To(BeNumerically("~", 12288*0.8, 1e-9))
		Expect(c.BRAM18K).To(BeNumerically("~", 5376*0.8, 1e-9))
		Expect(c.URAM).To(BeNumerically("~", 1280*0.8, 1e-9))
	})

	It("should reject unknown resources", func() {
		path := writeFile("p.json", `{"LUT": {"total": 1, "ratio": 1}}`)

		_, err := config.LoadPlatform(path)
		Expect(err).To(HaveOccurred())
	})

	It("should build a platform", func() {
		c := config.PlatformBuilder{}.
			WithDSP(100).
			WithBRAM(200).
			WithURAM(10).
			WithRatio(0.5).
			Build()

		Expect(c).To(Equal(config.Constraint{DSP: 50, BRAM18K: 100, URAM: 5}))
	})

	It("should check resource fits", func() {
		c := config.Constraint{DSP: 10, BRAM18K: 10, URAM: 0}

		Expect(c.Fits(design.Resource{DSP: 10, BRAM18K: 3})).To(BeTrue())
		Expect(c.Fits(design.Resource{DSP: 10, BRAM18K: 3, URAM: 1})).To(BeFalse())
		Expect(c.Sub(design.Resource{DSP: 4})).To(Equal(config.Constraint{DSP: 6, BRAM18K: 10}))
		Expect(c.Scale(0.5).DSP).To(Equal(5.0))
	})
})

var _ = Describe("SearchConfig", func() {
	It("should fill unset fields with defaults", func() {
		path := writeFile("s.yaml", "method: annealing\npopulation: 8\n")

		cfg, err := config.LoadSearchConfig(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Method).To(Equal(config.MethodAnnealing))
		Expect(cfg.Population).To(Equal(8))
		Expect(cfg.Epochs).To(Equal(config.DefaultSearchConfig().Epochs))
		Expect(cfg.BatchTimeout).To(Equal(30 * time.Minute))
	})

	It("should switch to a time budget", func() {
		path := writeFile("s.yaml", "max_time: 90s\n")

		cfg, err := config.LoadSearchConfig(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Epochs).To(BeZero())
		Expect(cfg.MaxTime).To(Equal(90 * time.Second))
	})

	It("should reject both stop criteria", func() {
		path := writeFile("s.yaml", "epochs: 3\nmax_time: 1m\n")

		_, err := config.LoadSearchConfig(path)
		Expect(err).To(HaveOccurred())
	})

	It("should reject unknown methods", func() {
		cfg := config.DefaultSearchConfig()
		cfg.Method = "hillclimb"

		Expect(cfg.Validate()).NotTo(Succeed())
	})
})
