// Package extent implements the pure algebra over cluster
// extents and volume bitmaps that the wipe engine builds on. Nothing here
// touches a file or a volume; it only reasons about ranges of cluster
// numbers and a packed bit-per-cluster allocation map.
package extent

import (
	"math"
	"sort"

	"github.com/boljen/go-bitmap"
)

// LCN is a Logical Cluster Number: a cluster's index on the volume.
type LCN int64

// Extent is an inclusive range of clusters, [Start, End].
type Extent struct {
	Start LCN
	End   LCN
}

// Len returns the number of clusters the extent spans.
func (e Extent) Len() int64 {
	return int64(e.End-e.Start) + 1
}

// List is an ordered sequence of extents. Callers are not required to sort
// before passing a List in; every function here sorts internally where order
// matters.
type List []Extent

// VCNRun is one record from a retrieval-pointers query: the VCN at which the
// *next* run begins, and the LCN this run maps to. An LCN < 0 marks a
// virtual run with no backing clusters (a hole in a sparse or compressed
// file).
type VCNRun struct {
	NextVCN int64
	LCN     LCN
}

// bridgeGapClusters is the largest distance, in clusters, between the
// starting LCNs of two successive real runs of a compressed file that
// LogicalRangesToExtents will still bridge into a single extent.
const bridgeGapClusters = 16

// LogicalRangesToExtents walks retrieval-pointer runs (VCN/LCN pairs as
// returned by a retrieval-pointers query, starting at VCN 0) and yields the
// on-disk extents they describe.
//
// When bridgeCompressed is false, each real run becomes its own extent and
// holes (LCN < 0) are skipped over. When bridgeCompressed is true, a pattern
// of real, hole, real, hole, ... runs is merged into a single extent
// spanning from the first real LCN through the end of the last real run,
// provided each successive real run begins within bridgeGapClusters clusters
// of the one before it.
func LogicalRangesToExtents(runs []VCNRun, bridgeCompressed bool) List {
	if !bridgeCompressed {
		return logicalRangesToExtentsPlain(runs)
	}
	return logicalRangesToExtentsBridged(runs)
}

func logicalRangesToExtentsPlain(runs []VCNRun) List {
	var out List
	var vcnCount int64
	for _, run := range runs {
		if run.LCN < 0 {
			vcnCount = run.NextVCN
			continue
		}
		span := run.NextVCN - vcnCount
		vcnCount = run.NextVCN
		out = append(out, Extent{Start: run.LCN, End: run.LCN + LCN(span) - 1})
	}
	return out
}

func logicalRangesToExtentsBridged(runs []VCNRun) List {
	var out List
	var vcnCount int64
	last := len(runs)
	index := 0

	for index < last {
		run := runs[index]
		if run.LCN < 0 {
			vcnCount = run.NextVCN
			index++
			continue
		}

		// Look for a run of real/hole/real/hole/... records where each
		// successive real run starts within bridgeGapClusters clusters of
		// the previous one.
		mergeIndex := index
		for run.LCN >= 0 &&
			mergeIndex+2 < last &&
			runs[mergeIndex+1].LCN < 0 &&
			runs[mergeIndex+2].LCN >= 0 &&
			runs[mergeIndex+2].LCN-runs[mergeIndex].LCN <= bridgeGapClusters &&
			runs[mergeIndex+2].LCN-runs[mergeIndex].LCN > 0 {
			mergeIndex += 2
		}

		if mergeIndex == index {
			index++
			span := run.NextVCN - vcnCount
			vcnCount = run.NextVCN
			out = append(out, Extent{Start: run.LCN, End: run.LCN + LCN(span) - 1})
			continue
		}

		index = mergeIndex + 1
		lastSpan := runs[mergeIndex].NextVCN - runs[mergeIndex-1].NextVCN
		vcnCount = runs[mergeIndex].NextVCN
		out = append(out, Extent{Start: run.LCN, End: runs[mergeIndex].LCN + LCN(lastSpan) - 1})
	}
	return out
}

// AMinusB returns the clusters present in a but not in b, as a list of
// extents. Both lists are sorted by start before the sweep runs. When b is
// empty, the result covers exactly the same clusters as a.
func AMinusB(a, b List) List {
	aSorted := append(List(nil), a...)
	bSorted := append(List(nil), b...)
	sort.Slice(aSorted, func(i, j int) bool { return aSorted[i].Start < aSorted[j].Start })
	sort.Slice(bSorted, func(i, j int) bool { return bSorted[i].Start < bSorted[j].Start })

	var out List
	for _, av := range aSorted {
		remaining := []Extent{av}
		for _, bv := range bSorted {
			if bv.End < av.Start || bv.Start > av.End {
				continue
			}
			var next []Extent
			for _, seg := range remaining {
				next = append(next, subtract(seg, bv)...)
			}
			remaining = next
			if len(remaining) == 0 {
				break
			}
		}
		out = append(out, remaining...)
	}
	return out
}

// subtract removes the portion of b that overlaps a, returning the zero,
// one, or two pieces of a that remain.
func subtract(a, b Extent) []Extent {
	if b.End < a.Start || b.Start > a.End {
		return []Extent{a}
	}
	var out []Extent
	if b.Start > a.Start {
		out = append(out, Extent{Start: a.Start, End: b.Start - 1})
	}
	if b.End < a.End {
		out = append(out, Extent{Start: b.End + 1, End: a.End})
	}
	return out
}

// splitFactor is the base used by SplitExtent's exponential decomposition.
const splitFactor = 10

// SplitExtent breaks [start, end] into a sequence of sub-extents whose
// lengths are a power of splitFactor, chosen so the sub-extent count stays
// within splitFactor**(exponent+1.3) of the original span. Used by the
// defrag wipe strategy to retry at progressively finer granularity.
func SplitExtent(start, end LCN) List {
	count := int64(end-start) + 1
	exponent := 0
	for float64(count) > math.Pow(splitFactor, float64(exponent)+1.3) {
		exponent++
	}
	extentSize := LCN(math.Pow(splitFactor, float64(exponent)))
	if extentSize < 1 {
		extentSize = 1
	}

	var out List
	for x := start; x <= end; x += extentSize {
		last := x + extentSize - 1
		if last > end {
			last = end
		}
		out = append(out, Extent{Start: x, End: last})
	}
	return out
}

// CheckMappedBit reports whether cluster lcn is allocated according to
// bitmap. The caller is responsible for ensuring lcn is in range.
func CheckMappedBit(bm bitmap.Bitmap, lcn LCN) bool {
	return bm.Get(int(lcn))
}

// CheckExtents tallies how many clusters across extents are free versus
// allocated according to bitmap. If allocated is non-nil, every allocated
// cluster is appended to it as its own singleton extent, so callers can
// subtract them back out with AMinusB.
func CheckExtents(extents List, bm bitmap.Bitmap, allocated *List) (countFree, countAllocated int64) {
	for _, ext := range extents {
		for c := ext.Start; c <= ext.End; c++ {
			if CheckMappedBit(bm, c) {
				countAllocated++
				if allocated != nil {
					*allocated = append(*allocated, Extent{Start: c, End: c})
				}
			} else {
				countFree++
			}
		}
	}
	return countFree, countAllocated
}

// SumLengths returns the total number of clusters covered by a list of
// extents.
func SumLengths(extents List) int64 {
	var total int64
	for _, e := range extents {
		total += e.Len()
	}
	return total
}

// Equal reports whether two extent lists hold the same extents, irrespective
// of input order. Lists that cover the same clusters with differently split
// extents are not equal.
func Equal(a, b List) bool {
	if len(a) != len(b) {
		return false
	}
	aSorted := append(List(nil), a...)
	bSorted := append(List(nil), b...)
	sort.Slice(aSorted, func(i, j int) bool { return aSorted[i].Start < aSorted[j].Start })
	sort.Slice(bSorted, func(i, j int) bool { return bSorted[i].Start < bSorted[j].Start })
	for i := range aSorted {
		if aSorted[i] != bSorted[i] {
			return false
		}
	}
	return true
}
