package tuner

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/samber/lo"

	"github.com/sarchlab/arraytuner/workload"
)

// maxPartitions caps the candidate list of the multi-array tuners.
const maxPartitions = 4096

// partition assigns workload indices to arrays. Each group keeps the
// original workload order.
type partition [][]int

func (p partition) String() string {
	return fmt.Sprint([][]int(p))
}

// contiguousPartitions lists every cut of n workloads into 1..k
// contiguous groups.
func contiguousPartitions(n, k int) []partition {
	var out []partition

	var cut func(start, left int, acc partition)
	cut = func(start, left int, acc partition) {
		if len(out) >= maxPartitions {
			return
		}

		if left == 1 {
			out = append(out, append(append(partition(nil), acc...), span{start, n}.indices()))
			return
		}

		for end := start + 1; end <= n-left+1; end++ {
			cut(end, left-1, append(acc, span{start, end}.indices()))
		}
	}

	for arrays := 1; arrays <= min(k, n); arrays++ {
		cut(0, arrays, nil)
	}

	return out
}

func (s span) indices() []int {
	return lo.RangeFrom(s.from, s.to-s.from)
}

// balancedPartitions groups workloads by ops with the longest-first greedy
// rule for each array count up to k, then adds random swap variants of
// each grouping.
func balancedPartitions(ws []workload.Workload, k, variants int, rng *rand.Rand) []partition {
	n := len(ws)
	seen := map[string]bool{}
	var out []partition

	add := func(p partition) {
		for _, g := range p {
			if len(g) == 0 {
				return
			}
			sort.Ints(g)
		}

		key := p.String()
		if seen[key] || len(out) >= maxPartitions {
			return
		}

		seen[key] = true
		out = append(out, p)
	}

	order := lo.Range(n)
	sort.SliceStable(order, func(i, j int) bool {
		return ws[order[i]].Ops() > ws[order[j]].Ops()
	})

	for arrays := 1; arrays <= min(k, n); arrays++ {
		groups := make(partition, arrays)
		load := make([]float64, arrays)
		for _, idx := range order {
			g := lo.IndexOf(load, lo.Min(load))
			groups[g] = append(groups[g], idx)
			load[g] += ws[idx].Ops()
		}
		add(groups)

		if arrays == 1 {
			continue
		}

		for range variants {
			v := make(partition, arrays)
			for i, g := range groups {
				v[i] = append([]int(nil), g...)
			}

			a, b := rng.Intn(arrays), rng.Intn(arrays)
			if a == b || len(v[a]) == 0 || len(v[b]) == 0 {
				continue
			}

			i, j := rng.Intn(len(v[a])), rng.Intn(len(v[b]))
			v[a][i], v[b][j] = v[b][j], v[a][i]
			add(v)
		}
	}

	return out
}
