// Package router contains the settlement core: the path segmenter that
// carves a swap path into taxable sub-swaps, and the engine that executes
// them atomically against the exchange while collecting taxes and fees.
package router

import (
	"github.com/ethereum/go-ethereum/common"
)

// TaxPoint marks one taxable boundary crossing. The withheld amount is
// always denominated in Currency, the token on the other side of the hop.
type TaxPoint struct {
	Token    common.Address
	Currency common.Address
}

// Segment is a contiguous sub-range of the swap path executed as one
// exchange call. Entry taxes fire on the segment input before the call,
// Exit taxes on the output after it.
type Segment struct {
	Path  []common.Address
	Entry *TaxPoint
	Exit  *TaxPoint
}

// PairFunc resolves the pair address traversed by a hop, if the pair exists.
type PairFunc func(a, b common.Address) (common.Address, bool)

// BoundaryFunc reports whether the token is taxable against the currency
// when traversing the given pair (its designated taxable pair).
type BoundaryFunc func(token, currency, pair common.Address) bool

// SplitPath scans the path left to right and cuts it at every taxable
// boundary crossing. For each hop, the entered token's buy tax and the
// exited token's sell tax each fire at most once; contiguous untaxed hops
// merge into a single exchange call. The resulting segments cover the whole
// path in order with no overlap and no gap.
func SplitPath(path []common.Address, pairFor PairFunc, taxable BoundaryFunc) []Segment {
	n := len(path)
	if n < 2 {
		return nil
	}

	segments := make([]Segment, 0, 2)
	start := 0
	for h := 0; h < n-1; h++ {
		pair, ok := pairFor(path[h], path[h+1])
		if !ok {
			continue
		}

		// buy into path[h+1] funded by path[h]; sell out of path[h] into path[h+1]
		entry := taxable(path[h+1], path[h], pair)
		exit := taxable(path[h], path[h+1], pair)
		if !entry && !exit {
			continue
		}

		if start < h {
			segments = append(segments, Segment{Path: path[start : h+1]})
		}
		seg := Segment{Path: path[h : h+2]}
		if entry {
			seg.Entry = &TaxPoint{Token: path[h+1], Currency: path[h]}
		}
		if exit {
			seg.Exit = &TaxPoint{Token: path[h], Currency: path[h+1]}
		}
		segments = append(segments, seg)
		start = h + 1
	}

	if start < n-1 {
		segments = append(segments, Segment{Path: path[start:]})
	}
	return segments
}
