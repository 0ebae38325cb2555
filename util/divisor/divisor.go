// Package divisor provides the integer helpers used when snapping and
// mutating tiling factors.
package divisor

import "sort"

// Divisors returns all divisors of x in ascending order. It returns nil if x
// is not positive.
func Divisors(x int) []int {
	if x <= 0 {
		return nil
	}

	small := make([]int, 0)
	large := make([]int, 0)
	for d := 1; d*d <= x; d++ {
		if x%d != 0 {
			continue
		}

		small = append(small, d)
		if d*d != x {
			large = append(large, x/d)
		}
	}

	for i := len(large) - 1; i >= 0; i-- {
		small = append(small, large[i])
	}

	return small
}

// Factorize returns the prime factors of x in ascending order, repeated by
// multiplicity. Factorize(12) is [2 2 3]. Values below 2 have no factors.
func Factorize(x int) []int {
	factors := make([]int, 0)
	for p := 2; p*p <= x; p++ {
		for x%p == 0 {
			factors = append(factors, p)
			x /= p
		}
	}

	if x > 1 {
		factors = append(factors, x)
	}

	return factors
}

// NumDivisors counts the divisors of x from its prime factorization.
func NumDivisors(x int) int {
	if x <= 0 {
		return 0
	}

	count := 1
	run := 0
	prev := 0
	for _, f := range Factorize(x) {
		if f == prev {
			run++
			continue
		}

		count *= run + 1
		prev = f
		run = 1
	}

	return count * (run + 1)
}

// Nearest snaps v to the closest element of divs, which must be sorted in
// ascending order. Ties go to the smaller element.
func Nearest(divs []int, v int) int {
	if len(divs) == 0 {
		return v
	}

	idx := sort.SearchInts(divs, v)
	if idx == 0 {
		return divs[0]
	}

	if idx == len(divs) {
		return divs[len(divs)-1]
	}

	if divs[idx] == v {
		return v
	}

	lo, hi := divs[idx-1], divs[idx]
	if v-lo <= hi-v {
		return lo
	}

	return hi
}

// LargestWithin returns the largest element of divs that lies in [lb, ub].
// The second return value is false if no such element exists.
func LargestWithin(divs []int, lb, ub int) (int, bool) {
	for i := len(divs) - 1; i >= 0; i-- {
		if divs[i] <= ub && divs[i] >= lb {
			return divs[i], true
		}
	}

	return 0, false
}

// IsPowerOfTwo reports whether x is a positive power of two.
func IsPowerOfTwo(x int) bool {
	return x > 0 && x&(x-1) == 0
}

// CeilDiv returns ceil(a / b) for positive integers.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}
