// Package binbuild implements the bin-boundary builder for two-level
// binned encodings: it groups a distinct-value histogram into
// approximately equal-weight bins and chooses the per-component radix
// for multicomponent codes.
package binbuild

import (
	"fmt"

	"github.com/ibisdb/bitidx/errs"
)

// Bounds is the result of DivideCounts: K+1 monotonically
// non-decreasing indices into the histogram marking group starts.
// Group g covers histogram[Bounds[g] : Bounds[g+1]).
type Bounds []int

// Groups returns the number of groups (K, or fewer when the distinct
// value count is below K's empty-group exception).
func (b Bounds) Groups() int {
	if len(b) == 0 {
		return 0
	}

	return len(b) - 1
}

// DivideCounts groups histogram (one count per distinct value, in
// ascending value order) into k bins whose total counts are each close
// to total/k.
func DivideCounts(histogram []uint64, k int) (Bounds, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k=%d", errs.ErrInvalidBinCount, k)
	}
	if len(histogram) == 0 {
		return Bounds{0}, nil
	}
	if len(histogram) < k {
		// Empty groups are permitted only when the distinct value
		// count is less than k: one group per value, no merging.
		b := make(Bounds, len(histogram)+1)
		for i := range b {
			b[i] = i
		}

		return b, nil
	}

	var total uint64
	for _, c := range histogram {
		total += c
	}
	if total == 0 {
		b := make(Bounds, k+1)
		for i := range b {
			b[i] = i * len(histogram) / k
		}

		return b, nil
	}

	mean := float64(total) / float64(k)

	bounds := splitHeavySingletons(histogram, mean)
	bounds = subdivide(histogram, bounds, mean)
	bounds = reconcileCount(histogram, bounds, k, mean)
	bounds = smooth(histogram, bounds)

	return bounds, nil
}

// weight sums histogram[lo:hi].
func weight(histogram []uint64, lo, hi int) uint64 {
	var w uint64
	for _, c := range histogram[lo:hi] {
		w += c
	}

	return w
}

// splitHeavySingletons carves out every index whose own count is ≥
// mean into its own group (step 2), leaving the remaining runs as
// candidate groups for subdivide.
func splitHeavySingletons(histogram []uint64, mean float64) Bounds {
	bounds := Bounds{0}
	for i, c := range histogram {
		if float64(c) >= mean {
			if bounds[len(bounds)-1] != i {
				bounds = append(bounds, i)
			}
			bounds = append(bounds, i+1)
		}
	}
	if bounds[len(bounds)-1] != len(histogram) {
		bounds = append(bounds, len(histogram))
	}

	return bounds
}

// subdivide recursively splits every run between heavy singletons so
// each subgroup's weight lands within [0.6*mean, 1.4*mean] when
// possible (step 3).
func subdivide(histogram []uint64, bounds Bounds, mean float64) Bounds {
	var out Bounds
	out = append(out, bounds[0])
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		if weight(histogram, lo, hi) < uint64(mean) || hi-lo <= 1 {
			out = append(out, hi)

			continue
		}
		sub := subdivideRun(histogram, lo, hi, mean)
		out = append(out, sub[1:]...)
	}

	return out
}

// subdivideRun greedily accumulates rows into the current group: once
// adding the next row would push the group's weight above 1.4*mean,
// prefer to close the group (unless the group is still below 0.6*mean,
// in which case it holds and keeps accumulating).
func subdivideRun(histogram []uint64, lo, hi int, mean float64) Bounds {
	low, high := 0.6*mean, 1.4*mean
	out := Bounds{lo}
	var acc uint64
	for i := lo; i < hi; i++ {
		if acc > 0 && float64(acc+histogram[i]) > high && float64(acc) >= low {
			out = append(out, i)
			acc = 0
		}
		acc += histogram[i]
	}
	if out[len(out)-1] != hi {
		out = append(out, hi)
	}

	return out
}

// reconcileCount splits the heaviest group or merges the lightest
// adjacent pair until exactly k groups remain (step 4).
func reconcileCount(histogram []uint64, bounds Bounds, k int, mean float64) Bounds {
	for bounds.Groups() > k {
		bounds = mergeLightestPair(histogram, bounds)
	}
	for bounds.Groups() < k {
		next := splitHeaviestGroup(histogram, bounds)
		if next.Groups() == bounds.Groups() {
			break // no group can be split further (every group is a singleton)
		}
		bounds = next
	}

	return bounds
}

func mergeLightestPair(histogram []uint64, bounds Bounds) Bounds {
	if bounds.Groups() <= 1 {
		return bounds
	}
	bestIdx, bestW := 0, weight(histogram, bounds[0], bounds[2])
	for i := 1; i+2 < len(bounds); i++ {
		w := weight(histogram, bounds[i], bounds[i+2])
		if w < bestW {
			bestIdx, bestW = i, w
		}
	}
	out := make(Bounds, 0, len(bounds)-1)
	out = append(out, bounds[:bestIdx+1]...)
	out = append(out, bounds[bestIdx+2:]...)

	return out
}

func splitHeaviestGroup(histogram []uint64, bounds Bounds) Bounds {
	bestIdx, bestW := -1, uint64(0)
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		if hi-lo <= 1 {
			continue
		}
		w := weight(histogram, lo, hi)
		if w > bestW {
			bestIdx, bestW = i, w
		}
	}
	if bestIdx < 0 {
		return bounds
	}
	lo, hi := bounds[bestIdx], bounds[bestIdx+1]
	mid := lo + (hi-lo)/2
	for m := lo + 1; m < hi; m++ {
		if weight(histogram, lo, m) >= weight(histogram, m, hi) {
			mid = m

			break
		}
	}
	out := make(Bounds, 0, len(bounds)+1)
	out = append(out, bounds[:bestIdx+1]...)
	out = append(out, mid)
	out = append(out, bounds[bestIdx+1:]...)

	return out
}

// smooth is the final gap-smoothing pass (step 5): find the adjacent
// group pair with the largest weight gap and walk one boundary row at
// a time across it while the move keeps shrinking the gap. Ties
// (moves that produce the same resulting gap) prefer the move that
// reduces the weight of whichever side was heavier before the move.
func smooth(histogram []uint64, bounds Bounds) Bounds {
	if bounds.Groups() <= 1 {
		return bounds
	}

	weights := make([]uint64, bounds.Groups())
	for i := range weights {
		weights[i] = weight(histogram, bounds[i], bounds[i+1])
	}

	worst := gapIndex(weights)
	for worst >= 0 {
		moved := smoothOnce(histogram, bounds, weights, worst)
		if !moved {
			break
		}
		worst = gapIndex(weights)
	}

	return bounds
}

// gapIndex returns the index i of the adjacent pair (i, i+1) with the
// largest |weights[i]-weights[i+1]|, or -1 if fewer than two groups.
func gapIndex(weights []uint64) int {
	if len(weights) < 2 {
		return -1
	}
	best, bestGap := 0, absDiff(weights[0], weights[1])
	for i := 1; i+1 < len(weights); i++ {
		g := absDiff(weights[i], weights[i+1])
		if g > bestGap {
			best, bestGap = i, g
		}
	}
	if bestGap == 0 {
		return -1
	}

	return best
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}

	return b - a
}

// smoothOnce tries moving the boundary between group i and i+1 by one
// row in whichever direction shrinks the gap, applying the tie-break
// rule when both directions shrink the gap equally: prefer the move
// that reduces the weight of the side that was heavier beforehand.
func smoothOnce(histogram []uint64, bounds Bounds, weights []uint64, i int) bool {
	gap := absDiff(weights[i], weights[i+1])
	heavierLeft := weights[i] > weights[i+1]

	lo, mid, hi := bounds[i], bounds[i+1], bounds[i+2]

	var leftGrowGap, rightGrowGap uint64 = gap + 1, gap + 1
	if mid+1 <= hi {
		row := histogram[mid]
		leftGrowGap = absDiff(weights[i]+row, weights[i+1]-row)
	}
	if mid-1 >= lo {
		row := histogram[mid-1]
		rightGrowGap = absDiff(weights[i]-row, weights[i+1]+row)
	}

	switch {
	case leftGrowGap < gap && leftGrowGap <= rightGrowGap:
		if leftGrowGap == rightGrowGap && !heavierLeft {
			break
		}
		row := histogram[mid]
		bounds[i+1] = mid + 1
		weights[i] += row
		weights[i+1] -= row

		return true
	case rightGrowGap < gap:
		row := histogram[mid-1]
		bounds[i+1] = mid - 1
		weights[i] -= row
		weights[i+1] += row

		return true
	}

	if leftGrowGap < gap {
		row := histogram[mid]
		bounds[i+1] = mid + 1
		weights[i] += row
		weights[i+1] -= row

		return true
	}

	return false
}
