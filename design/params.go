package design

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/sarchlab/arraytuner/util/divisor"
)

// maxSampleAttempts bounds the re-sampling loop of RandomSample.
const maxSampleAttempts = 1000

// Params is a parameter assignment.
type Params map[string]int

// Clone returns a copy of p.
func (p Params) Clone() Params {
	c := make(Params, len(p))
	for k, v := range p {
		c[k] = v
	}

	return c
}

// String formats p with sorted keys, e.g. "i=1024,i_t1=64".
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}

		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(strconv.Itoa(p[k]))
	}

	return sb.String()
}

func (d *Design) env(p Params) env {
	vars := make(env, len(d.names))
	for _, n := range d.names {
		vars[n] = float64(p[n])
	}

	return vars
}

func (d *Design) bounds(pm *paramModel, vars env) (int, int) {
	lb := int(math.Ceil(pm.lb.evalOr(vars, 1)))
	ub := int(math.Floor(pm.ub.evalOr(vars, math.MaxInt32)))

	return lb, ub
}

// InferParams fills in the auto-inferred parameters of p. Each one becomes
// the largest divisor of its parent that does not exceed its upper bound.
// It returns false if some inferred parameter has no legal choice.
func (d *Design) InferParams(p Params) (Params, bool) {
	out := p.Clone()
	for _, pm := range d.params {
		if !pm.autoInfer {
			continue
		}

		parent, ok := out[pm.parent]
		if !ok || parent <= 0 {
			return nil, false
		}

		lb, ub := d.bounds(pm, d.env(out))
		divs := divisor.Divisors(parent)
		if pm.pow2 {
			divs = powersOfTwo(divs)
		}

		v, ok := divisor.LargestWithin(divs, lb, ub)
		if !ok {
			return nil, false
		}

		out[pm.Name] = v
	}

	return out, true
}

// BoundCheck validates the explicit bounds and power-of-two tags of every
// tunable parameter, then the latency-hiding invariant of designs whose PEs
// keep a local buffer.
func (d *Design) BoundCheck(p Params) bool {
	vars := d.env(p)
	for _, pm := range d.params {
		if !pm.Tunable {
			continue
		}

		v, ok := p[pm.Name]
		if !ok {
			return false
		}

		lb, ub := d.bounds(pm, vars)
		if v < lb || v > ub {
			return false
		}

		if pm.pow2 && !divisor.IsPowerOfTwo(v) {
			return false
		}
	}

	return d.latencyHidingOK(vars)
}

func (d *Design) latencyHidingOK(vars env) bool {
	if !d.pe.localBuffer || len(d.pe.latencyHiding) == 0 {
		return true
	}

	prod := 1.0
	for _, e := range d.pe.latencyHiding {
		prod *= e.eval(vars)
	}

	simd := d.pe.unroll.evalOr(vars, 1)

	return prod >= d.latencyHidingFactor*simd
}

// RandomSample draws values for the tunable parameters of p, parents before
// children, and re-samples until the latency-hiding invariant holds. The
// external parameters of p are kept. Inferred parameters are filled in when
// possible.
func (d *Design) RandomSample(rng *rand.Rand, p Params) Params {
	var out Params
	for range maxSampleAttempts {
		out = d.sampleOnce(rng, p)
		if d.latencyHidingOK(d.env(out)) {
			break
		}
	}

	if inferred, ok := d.InferParams(out); ok {
		return inferred
	}

	return out
}

func (d *Design) sampleOnce(rng *rand.Rand, p Params) Params {
	out := p.Clone()
	for _, pm := range d.params {
		if !pm.Tunable || pm.autoInfer {
			continue
		}

		cands := d.Candidates(pm.Name, out)
		if len(cands) == 0 {
			out[pm.Name] = 1
			continue
		}

		out[pm.Name] = cands[rng.Intn(len(cands))]
	}

	return out
}

// Candidates lists the legal values of a tunable parameter given the values
// already chosen for its parents: divisors of the divisor parent, or the
// whole bound range, filtered by bounds and tags.
func (d *Design) Candidates(name string, p Params) []int {
	pm, ok := d.byName[name]
	if !ok {
		return nil
	}

	lb, ub := d.bounds(pm, d.env(p))
	if lb < 1 {
		lb = 1
	}

	var base []int
	if len(pm.Divisors) > 0 {
		base = divisor.Divisors(p[pm.parent])
	} else {
		for v := lb; v <= ub && len(base) < 1<<16; v++ {
			base = append(base, v)
		}
	}

	out := make([]int, 0, len(base))
	for _, v := range base {
		if v < lb || v > ub {
			continue
		}

		if pm.pow2 && !divisor.IsPowerOfTwo(v) {
			continue
		}

		out = append(out, v)
	}

	return out
}

func powersOfTwo(vals []int) []int {
	out := make([]int, 0, len(vals))
	for _, v := range vals {
		if divisor.IsPowerOfTwo(v) {
			out = append(out, v)
		}
	}

	return out
}

// ArchCst is an architecture constraint vector, indexed like ArchKeys.
type ArchCst []float64

// Covers reports whether an array provisioned for c can run a
// configuration needing other: every entry of other is within c.
func (c ArchCst) Covers(other ArchCst) bool {
	if len(c) != len(other) {
		return false
	}

	for i := range c {
		if other[i] > c[i] {
			return false
		}
	}

	return true
}

// Max returns the element-wise maximum of c and other.
func (c ArchCst) Max(other ArchCst) ArchCst {
	if c == nil {
		return append(ArchCst(nil), other...)
	}

	out := append(ArchCst(nil), c...)
	for i := range out {
		if i < len(other) && other[i] > out[i] {
			out[i] = other[i]
		}
	}

	return out
}

// ArchConstraint computes the architecture a parameter assignment needs:
// PE array dims, SIMD width, and the pack factor and unit buffer size of
// every memory module.
func (d *Design) ArchConstraint(p Params) ArchCst {
	vars := d.env(p)
	cst := make(ArchCst, 0, len(d.archKeys))

	for _, e := range d.pe.dims {
		cst = append(cst, math.Ceil(e.eval(vars)))
	}

	cst = append(cst, d.pe.unroll.evalOr(vars, 1))

	for _, m := range d.memory {
		cst = append(cst, m.pack.evalOr(vars, 1), math.Ceil(m.bufSize.eval(vars)))
	}

	return cst
}

// PEDims evaluates the PE array dimensions.
func (d *Design) PEDims(p Params) []int {
	vars := d.env(p)
	dims := make([]int, 0, len(d.pe.dims))
	for _, e := range d.pe.dims {
		dims = append(dims, int(math.Ceil(e.eval(vars))))
	}

	return dims
}

// SIMD evaluates the PE unroll factor.
func (d *Design) SIMD(p Params) int {
	return int(d.pe.unroll.evalOr(d.env(p), 1))
}
