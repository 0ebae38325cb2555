package tuner

import (
	"math/rand"

	"github.com/sarchlab/arraytuner/config"
	"github.com/sarchlab/arraytuner/design"
	"github.com/sarchlab/arraytuner/util/divisor"
)

type chainOp int

const (
	opRedistribute chainOp = iota
	opRefactorize
	opResample
)

// variation holds the mutation and crossover operators over the split
// chains of a design. A chain [e, t1, ..., tn] is viewed as the factors
// e/t1, t1/t2, ..., tn whose product is e; mutations move factors between
// positions so that every member keeps dividing its parent.
type variation struct {
	d        *design.Design
	policy   config.MutationPolicy
	epsilon  float64
	chains   [][]string
	families [][]string
	orphans  []string
}

func newVariation(d *design.Design, o Options) *variation {
	v := &variation{
		d:       d,
		policy:  o.MutationPolicy,
		epsilon: o.Epsilon,
		chains:  d.SplitChains(),
	}

	inChain := map[string]bool{}
	for _, c := range v.chains {
		for _, n := range c[1:] {
			inChain[n] = true
		}
	}

	infer := map[string]bool{}
	for _, n := range d.ParamsConfig().Infer {
		infer[n] = true
	}

	for _, n := range d.ParamsConfig().Tunable {
		if !inChain[n] && !infer[n] {
			v.orphans = append(v.orphans, n)
		}
	}

	v.families = v.buildFamilies()

	return v
}

// buildFamilies groups the tunable parameters that must be inherited from
// the same parent: the members of a chain and every divisor pair.
func (v *variation) buildFamilies() [][]string {
	tunable := v.d.ParamsConfig().Tunable
	parent := map[string]string{}
	for _, n := range tunable {
		parent[n] = n
	}

	var find func(string) string
	find = func(n string) string {
		if parent[n] != n {
			parent[n] = find(parent[n])
		}

		return parent[n]
	}

	union := func(a, b string) {
		_, okA := parent[a]
		_, okB := parent[b]
		if okA && okB {
			parent[find(a)] = find(b)
		}
	}

	for _, c := range v.chains {
		for i := 2; i < len(c); i++ {
			union(c[1], c[i])
		}
	}

	for _, pair := range v.d.DivisorPairs() {
		union(pair[0], pair[1])
	}

	groups := map[string][]string{}
	var roots []string
	for _, n := range tunable {
		r := find(n)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}

		groups[r] = append(groups[r], n)
	}

	out := make([][]string, 0, len(roots))
	for _, r := range roots {
		out = append(out, groups[r])
	}

	return out
}

// crossover builds a child taking each family wholesale from a or b.
func (v *variation) crossover(rng *rand.Rand, a, b design.Params) design.Params {
	child := a.Clone()
	for _, fam := range v.families {
		if rng.Intn(2) == 0 {
			continue
		}

		for _, n := range fam {
			if val, ok := b[n]; ok {
				child[n] = val
			}
		}
	}

	return child
}

func (v *variation) pickOp(rng *rand.Rand) chainOp {
	p := v.policy
	total := p.Redistribute + p.Refactorize + p.Resample
	if total <= 0 {
		return opRedistribute
	}

	x := rng.Float64() * total
	switch {
	case x < p.Redistribute:
		return opRedistribute
	case x < p.Redistribute+p.Refactorize:
		return opRefactorize
	default:
		return opResample
	}
}

// mutate returns a mutated copy of p. With probability epsilon the
// tunable parameters are resampled wholesale.
func (v *variation) mutate(rng *rand.Rand, p design.Params) design.Params {
	if rng.Float64() < v.epsilon {
		return v.d.RandomSample(rng, p)
	}

	out := p.Clone()
	for _, c := range v.chains {
		f, ok := factors(out, c)
		if !ok || len(f) < 2 {
			continue
		}

		switch v.pickOp(rng) {
		case opRedistribute:
			redistribute(rng, f)
		case opRefactorize:
			refactorize(rng, f)
		case opResample:
			resample(rng, f)
		}

		applyFactors(out, c, f)
	}

	for _, n := range v.orphans {
		if rng.Intn(2) != 0 {
			continue
		}

		if cands := v.d.Candidates(n, out); len(cands) > 0 {
			out[n] = cands[rng.Intn(len(cands))]
		}
	}

	return out
}

// factors splits the chain c into per-level factors. It fails if some
// member does not divide its parent.
func factors(p design.Params, c []string) ([]int, bool) {
	f := make([]int, len(c)-1)
	for i := 0; i < len(c)-1; i++ {
		hi, lo := p[c[i]], p[c[i+1]]
		if lo <= 0 || hi%lo != 0 {
			return nil, false
		}

		f[i] = hi / lo
	}

	last := p[c[len(c)-1]]
	if last <= 0 {
		return nil, false
	}

	return append(f, last), true
}

// applyFactors writes the members of c back from f. The root keeps its
// value since the product of f is unchanged.
func applyFactors(p design.Params, c []string, f []int) {
	prod := 1
	for i := len(c) - 1; i >= 1; i-- {
		prod *= f[i]
		p[c[i]] = prod
	}
}

// redistribute moves a divisor of one factor onto another.
func redistribute(rng *rand.Rand, f []int) {
	a, b := rng.Intn(len(f)), rng.Intn(len(f)-1)
	if b >= a {
		b++
	}

	divs := divisor.Divisors(f[a])
	d := divs[rng.Intn(len(divs))]
	f[a] /= d
	f[b] *= d
}

// refactorize moves one prime factor to an adjacent position.
func refactorize(rng *rand.Rand, f []int) {
	var movable []int
	for i, x := range f {
		if x > 1 {
			movable = append(movable, i)
		}
	}

	if len(movable) == 0 {
		return
	}

	a := movable[rng.Intn(len(movable))]
	primes := divisor.Factorize(f[a])
	q := primes[rng.Intn(len(primes))]

	b := a + 1
	if a == len(f)-1 || (a > 0 && rng.Intn(2) == 0) {
		b = a - 1
	}

	f[a] /= q
	f[b] *= q
}

// resample shrinks one tiling factor to a random divisor of itself and
// hands the remainder back to the outermost factor.
func resample(rng *rand.Rand, f []int) {
	a := 1 + rng.Intn(len(f)-1)
	divs := divisor.Divisors(f[a])
	d := divs[rng.Intn(len(divs))]

	f[0] *= f[a] / d
	f[a] = d
}
