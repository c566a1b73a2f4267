// Package multicomp chooses the per-component bases a multicomponent
// range index factors a column's cardinality into: component-0
// carries the most traffic, so it keeps the larger base and the
// trailing components are tightened to smaller ones.
package multicomp

import (
	"fmt"
	"math"

	"github.com/ibisdb/bitidx/errs"
)

// ChooseBases factors cardinality c into k per-component bases so that
// the product of all bases is at least c:
//
//  1. start every component at base b = ceil(c^(1/k));
//  2. collapse to a single component when c is too small to usefully
//     subdivide across k components, i.e. when the minimal uniform
//     base b would be smaller than k itself — more components than
//     the base each component carries defeats the point of splitting;
//  3. otherwise tighten trailing components to b-1 while the product
//     stays ≥ c, since component 0 carries the most query traffic and
//     should keep the larger base;
//  4. drop any trailing component left at base 1.
//
// The result never holds a base < 2, except the degenerate k=1 case
// (or a collapse) where the single component's base is c itself.
func ChooseBases(c uint64, k int) ([]uint64, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k=%d", errs.ErrInvalidComponent, k)
	}
	if c < 1 {
		return nil, fmt.Errorf("%w: cardinality=%d", errs.ErrInvalidComponent, c)
	}
	if k == 1 {
		return []uint64{c}, nil
	}

	b := ceilRoot(c, k)
	if b < uint64(k) {
		return []uint64{c}, nil
	}

	bases := make([]uint64, k)
	for i := range bases {
		bases[i] = b
	}

	for i := k - 1; i >= 0 && bases[i] > 2; i-- {
		bases[i]--
		if product(bases) < c {
			bases[i]++

			break
		}
	}

	for len(bases) > 0 && bases[len(bases)-1] == 1 {
		bases = bases[:len(bases)-1]
	}

	return bases, nil
}

// ceilRoot returns ceil(c^(1/k)) for c,k >= 1, computed without
// accumulating floating-point error for the small integers a column
// cardinality and component count realistically take.
func ceilRoot(c uint64, k int) uint64 {
	if c <= 1 {
		return 1
	}
	guess := uint64(math.Ceil(math.Pow(float64(c), 1/float64(k))))
	if guess < 2 {
		guess = 2
	}
	for pow(guess, k) < c {
		guess++
	}
	for guess > 2 && pow(guess-1, k) >= c {
		guess--
	}

	return guess
}

func pow(base uint64, exp int) uint64 {
	r := uint64(1)
	for range exp {
		r *= base
	}

	return r
}

func product(bases []uint64) uint64 {
	p := uint64(1)
	for _, b := range bases {
		p *= b
	}

	return p
}
