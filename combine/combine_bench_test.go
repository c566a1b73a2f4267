package combine

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ibisdb/bitidx/bitvector"
)

// randomBitvectors builds count bitvectors of length n, each with a
// scatter of random set bits.
func randomBitvectors(n uint64, count, bitsEach int) []*bitvector.Bitvector {
	r := rand.New(rand.NewSource(1))
	out := make([]*bitvector.Bitvector, count)
	for i := range out {
		bv := bitvector.New(n)
		for range bitsEach {
			bv.SetBit(uint64(r.Int63n(int64(n))))
		}
		out[i] = bv
	}

	return out
}

func BenchmarkOr(b *testing.B) {
	const n = 1 << 20

	cases := []struct {
		name     string
		count    int
		bitsEach int
	}{
		{"fewLarge", 4, 1 << 14},
		{"manySmall", 256, 8},
		{"manyMedium", 64, 1 << 10},
	}

	for _, c := range cases {
		bvs := randomBitvectors(n, c.count, c.bitsEach)

		b.Run(fmt.Sprintf("%s/%d", c.name, c.count), func(b *testing.B) {
			b.ReportAllocs()

			for b.Loop() {
				if _, err := Or(n, bvs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSumBinsIncremental(b *testing.B) {
	const n = 1 << 18
	const m = 512

	all := randomBitvectors(n, m, 64)
	fetch := func(i int) (*bitvector.Bitvector, error) { return all[i], nil }

	prev, err := sumBinsFull(n, fetch, 100, 120)
	if err != nil {
		b.Fatal(err)
	}
	p := &Prev{Ib0: 100, Ie0: 120, BV: prev}

	b.ReportAllocs()
	for b.Loop() {
		if _, err := SumBins(n, fetch, 101, 121, p); err != nil {
			b.Fatal(err)
		}
	}
}
