package design

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	loop10 = `{"type": "for", "bounds": ["0", "9"], "child": {"type": "user"}}`
	loop5  = `{"type": "for", "bounds": ["0", "4"], "child": {"type": "user"}}`
)

var _ = Describe("Latency model", func() {
	p := Params{"n": 16, "n_t1": 4}

	It("should multiply by the loop trip count", func() {
		d := singleModule(loop10, "")
		Expect(mainOf(d, p, "M")).To(BeNumerically("~", 10, 1e-9))
	})

	It("should evaluate loop bounds from parameters", func() {
		d := singleModule(`{"type": "for", "bounds": ["0", "n/n_t1 - 1"],
			"child": {"type": "user", "depth": "3"}}`, "")
		Expect(mainOf(d, p, "M")).To(BeNumerically("~", (4-1)+3, 1e-9))
	})

	It("should short-circuit a block with a single non-empty child", func() {
		alone := singleModule(loop10, "")
		d := singleModule(`{"type": "block", "children": [
			`+loop10+`,
			{"type": "block", "children": []},
			{"type": "mark", "mark": "pipeline"}
		]}`, "")

		Expect(mainOf(d, p, "M")).To(Equal(mainOf(alone, p, "M")))
	})

	It("should take the max over a block of user statements", func() {
		d := singleModule(`{"type": "block", "children": [
			{"type": "user", "depth": "3"},
			{"type": "user", "depth": "7"}
		]}`, "")

		Expect(mainOf(d, p, "M")).To(BeNumerically("~", 7, 1e-9))
	})

	It("should accumulate a block of loops", func() {
		d := singleModule(`{"type": "block", "children": [`+loop10+`, `+loop5+`]}`, "")
		Expect(mainOf(d, p, "M")).To(BeNumerically("~", 15, 1e-9))
	})

	It("should take only the simd branch of a block", func() {
		d := singleModule(`{"type": "block", "children": [
			`+loop10+`,
			{"type": "mark", "mark": "simd", "child": `+loop5+`}
		]}`, "")

		Expect(mainOf(d, p, "M")).To(BeNumerically("~", 1, 1e-9))
	})

	It("should not multiply unrolled loops", func() {
		d := singleModule(`{"type": "for", "bounds": ["0", "3"], "child":
			{"type": "mark", "mark": "simd", "child": `+loop10+`}}`, "")

		Expect(mainOf(d, p, "M")).To(BeNumerically("~", 4, 1e-9))
	})

	It("should cost DRAM accesses with the fixed DRAM latency", func() {
		d := singleModule(`{"type": "for", "bounds": ["0", "99"], "child":
			{"type": "user", "dram": true}}`, "")

		Expect(d.DRAMCycles()).To(Equal(60.0))
		Expect(d.Seconds(300)).To(BeNumerically("~", 1e-6, 1e-15))
		Expect(mainOf(d, p, "M")).To(BeNumerically("~", 100*(60+1), 1e-6))
	})

	It("should amortize coalesced DRAM accesses over the burst", func() {
		d := singleModule(`{"type": "mark", "mark": "coalesce", "burst_len": "10", "child":
			{"type": "for", "bounds": ["0", "99"], "child": {"type": "user", "dram": true}}}`, "")

		Expect(mainOf(d, p, "M")).To(BeNumerically("~", 100.0/10*(60+10+1), 1e-6))
	})

	It("should pipeline serialized statements", func() {
		d := singleModule(`{"type": "mark", "mark": "serialize", "child":
			{"type": "for", "bounds": ["0", "99"], "child":
				{"type": "user", "dram": true, "ii": "2", "depth": "4"}}}`, "")

		Expect(mainOf(d, p, "M")).To(BeNumerically("~", 99*2+4, 1e-6))
	})

	It("should combine if branches with the max", func() {
		d := singleModule(`{"type": "for", "bounds": ["0", "1"], "child": {"type": "if",
			"then": `+loop5+`,
			"else": {"type": "user", "depth": "50"}}}`, "")

		Expect(mainOf(d, p, "M")).To(BeNumerically("~", 2*5, 1e-9))
	})

	Context("transfer modules", func() {
		ast := `{"type": "for", "bounds": ["0", "3"], "child": {"type": "block", "children": [
			{"type": "user", "call": "inter_trans"},
			{"type": "user", "call": "intra_trans"}
		]}}`

		build := func(double bool) *Design {
			db := "false"
			if double {
				db = "true"
			}

			src := `{
				"name": "toy",
				"params": [{"name": "n", "tags": ["external"]}],
				"compute": {"PE": {"num": "1", "unroll_factor": "1", "ele_type": "float"}},
				"memory": {"A_IO_L2_in": {"ele_size": 4, "buf_size": "16", "num": "1", "double_buffer": ` + db + `}},
				"attr": {"A_IO_L2_in": {"in": true}},
				"latency": {"A_IO_L2_in": {"ast": ` + ast + `,
					"inter_trans": ` + loop10 + `,
					"intra_trans": ` + loop5 + `}}
			}`

			desc, err := ParseDescriptor([]byte(src))
			Expect(err).NotTo(HaveOccurred())
			d, err := Register(desc)
			Expect(err).NotTo(HaveOccurred())

			return d
		}

		It("should overlap transfers when double buffered", func() {
			_, meta := build(true).EstLatency(Params{"n": 1}, 0)
			ml, _ := meta.Module("A_IO_L2_in")

			Expect(ml.Main).To(BeNumerically("~", 4*10, 1e-9))
			Expect(ml.Prologue).To(BeNumerically("~", 10, 1e-9))
			Expect(ml.Total()).To(BeNumerically("~", 50, 1e-9))
		})

		It("should serialize transfers without double buffering", func() {
			_, meta := build(false).EstLatency(Params{"n": 1}, 0)
			ml, _ := meta.Module("A_IO_L2_in")

			Expect(ml.Main).To(BeNumerically("~", 4*15, 1e-9))
			Expect(ml.Prologue).To(BeZero())
		})
	})

	It("should add the drain tail divided by the tile count", func() {
		src := `{
			"name": "toy",
			"params": [{"name": "n", "tags": ["external"]}],
			"compute": {"PE": {"num": "1", "unroll_factor": "1", "ele_type": "float"}},
			"latency": {
				"PE": {"ast": {"type": "for", "bounds": ["0", "99"], "child": {"type": "user"}}},
				"C_drain_IO_L1_out": {"ast": {"type": "for", "bounds": ["0", "3"], "child":
					{"type": "array_tile", "child": ` + loop10 + `}}}
			}
		}`
		desc, err := ParseDescriptor([]byte(src))
		Expect(err).NotTo(HaveOccurred())
		d, err := Register(desc)
		Expect(err).NotTo(HaveOccurred())

		lat, meta := d.EstLatency(Params{"n": 1}, 0)

		Expect(meta.Critical).To(Equal("PE"))
		Expect(meta.DrainModule).To(Equal("C_drain_IO_L1_out"))
		Expect(meta.DrainTail).To(BeNumerically("~", 10, 1e-9))
		Expect(lat).To(BeNumerically("~", 110, 1e-9))
	})

	It("should stop early once a module exceeds the baseline", func() {
		d := singleModule(loop10, "")
		lat, meta := d.EstLatency(p, 5)

		Expect(meta.Aborted).To(BeTrue())
		Expect(lat).To(BeNumerically(">", 5))
	})
})

var _ = Describe("Activity model", func() {
	It("should count off-chip and PE statements", func() {
		desc, err := ParseDescriptor([]byte(`{
			"name": "toy",
			"params": [
				{"name": "n", "tags": ["external"]},
				{"name": "n_t1", "tunable": true, "bounds": ["1", "n"], "divisors": ["n"]}
			],
			"compute": {"PE": {"num": "2", "unroll_factor": "1", "ele_type": "float"}},
			"latency": {
				"M": {"ast": {"type": "for", "bounds": ["0", "9"], "child": {"type": "block", "children": [
					{"type": "user", "dram": true},
					{"type": "user"}
				]}}},
				"PE": {"ast": {"type": "for", "bounds": ["0", "n/n_t1 - 1"], "child": {"type": "user"}}}
			}
		}`))
		Expect(err).NotTo(HaveOccurred())

		d, err := Register(desc)
		Expect(err).NotTo(HaveOccurred())

		act := d.EstActivity(Params{"n": 16, "n_t1": 4})
		Expect(act.OffChip).To(BeNumerically("~", 10, 1e-9))
		Expect(act.ModuleOffChip).To(HaveKeyWithValue("M", BeNumerically("~", 10, 1e-9)))
		Expect(act.PECompute).To(BeNumerically("~", 8, 1e-9))
		Expect(act.RegAccess).To(BeNumerically("~", 24, 1e-9))
	})
})
