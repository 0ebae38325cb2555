package task

import (
	"math"

	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/record"
	"github.com/sarchlab/arraytuner/util/divisor"
)

// Energy per event, in pJ.
const (
	EnergyDRAMPerByte = 640.0
	EnergyNoCPerHop   = 5.0
	EnergyBRAMAccess  = 5.0
	EnergyRegAccess   = 0.5
	EnergyMAC         = 3.7
)

// Metrics are the figures derived from one evaluation.
type Metrics struct {
	Ops          float64
	Latency      float64
	OffChipBytes float64
	// CTC is ops per off-chip byte.
	CTC float64
	// BW is the off-chip bandwidth in GB/s.
	BW float64
	// Energy is in pJ.
	Energy float64
	DSPEff float64
}

func (t *SingleTask) metrics(
	p design.Params,
	lat float64,
	res design.Resource,
	act design.Activity,
) Metrics {
	m := Metrics{
		Ops:          t.Ops(),
		Latency:      lat,
		OffChipBytes: act.OffChipBytes,
	}

	if m.OffChipBytes > 0 {
		m.CTC = m.Ops / m.OffChipBytes
	}

	seconds := t.design.Seconds(lat)
	if seconds > 0 {
		m.BW = m.OffChipBytes / seconds / 1e9
	}

	simd := float64(t.design.SIMD(p))
	m.Energy = EnergyDRAMPerByte*act.OffChipBytes +
		EnergyNoCPerHop*act.NoCHops +
		EnergyBRAMAccess*act.MemAccess +
		EnergyRegAccess*act.RegAccess +
		EnergyMAC*act.PECompute*simd

	m.DSPEff = record.DSPEfficiency(m.Ops, lat, res.DSP)

	return m
}

// Metrics evaluates p and returns its derived figures, or false if p is
// infeasible.
func (t *SingleTask) Metrics(p design.Params) (Metrics, bool) {
	reward, _, meta := t.Evaluate(p, record.MetricLatency)
	if reward == 0 {
		return Metrics{}, false
	}

	return meta.Metrics, true
}

// tileOf returns the outer tiling factor of the n-th split chain.
func (t *SingleTask) tileOf(sol design.Params, n int) int {
	chains := t.design.SplitChains()
	if n >= len(chains) || len(chains[n]) < 2 {
		return 0
	}

	return sol[chains[n][1]]
}

// AdjustLatencyMultiAcc returns the setup latency of a task that streams
// its input from an upstream array: the time the upstream array needs to
// produce the first overlap tile. It is 0 without an upstream array.
func (t *SingleTask) AdjustLatencyMultiAcc(sol design.Params) float64 {
	if t.prev == nil || t.prev.Latency <= 0 {
		return 0
	}

	rows, cols := t.prev.Workload.OutDims()
	if rows <= 0 || cols <= 0 {
		return 0
	}

	kernel := 1
	if k := t.workload.Params["p"] * t.workload.Params["q"]; k > 0 {
		kernel = k
	}

	// The consumer reads its input rows along its reduction dimension and
	// its input columns along its column dimension.
	trp := max(t.tileOf(t.prev.Sol, 0), divisor.CeilDiv(t.tileOf(sol, 2), kernel), 1)
	tcp := max(t.tileOf(t.prev.Sol, 1), t.tileOf(sol, 1), 1)
	trp = min(trp, rows)
	tcp = min(tcp, cols)

	steps := math.Ceil(float64(rows)/float64(trp)) * math.Ceil(float64(cols)/float64(tcp))

	return t.prev.Latency / steps
}
