// Package region buckets the number domain into fixed-width bands and derives
// the historical target distribution that generation steers toward.
//
// A combination belongs to the region containing its post-sort minimum. The
// target ratio of a region is the share of historical draws whose minimum
// fell inside it. With no history the target falls back to uniform.
//
// INVARIANTS:
//   - Region bounds never change after Analyze (the last region may be
//     narrower when N mod W != 0).
//   - Target ratios sum to 1 and are immutable for the session's lifetime.
//   - Analyzing the same dataset twice yields the identical ranking: ties
//     break toward the lower region index.
package region

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/sortition/internal/draw"
)

// DefaultWidth is the default region width.
const DefaultWidth = 3

// Region is one contiguous band of the domain.
type Region struct {
	Index int     `json:"index"`
	Lo    int     `json:"lo"`
	Hi    int     `json:"hi"`
	Count int     `json:"count"` // historical draws with minimum in [Lo,Hi]
	Ratio float64 `json:"ratio"` // Count / total draws (uniform fallback if none)
	Rank  int     `json:"rank"`  // 1 = most frequent
}

// Distribution is the immutable result of analyzing a dataset: region bounds,
// historical ratios and the descending-frequency ranking.
type Distribution struct {
	domainSize int
	width      int
	totalDraws int
	regions    []Region
	ranked     []int // region indexes, best first
}

// Analyze partitions [1,n] into width-w regions and computes the target
// distribution from the draws' post-sort minima.
func Analyze(draws []draw.Draw, n, w int) (*Distribution, error) {
	if n < 1 {
		return nil, fmt.Errorf("domain size must be >= 1, got %d", n)
	}
	if w < 1 {
		return nil, fmt.Errorf("region width must be >= 1, got %d", w)
	}

	numRegions := (n + w - 1) / w
	d := &Distribution{
		domainSize: n,
		width:      w,
		totalDraws: len(draws),
		regions:    make([]Region, numRegions),
	}

	for i := range d.regions {
		lo := i*w + 1
		hi := lo + w - 1
		if hi > n {
			hi = n
		}
		d.regions[i] = Region{Index: i, Lo: lo, Hi: hi}
	}

	for _, dr := range draws {
		d.regions[d.RegionOf(dr.Numbers.Min())].Count++
	}

	if len(draws) > 0 {
		total := float64(len(draws))
		for i := range d.regions {
			d.regions[i].Ratio = float64(d.regions[i].Count) / total
		}
	} else {
		// No history: uniform target across all regions.
		uniform := 1.0 / float64(numRegions)
		for i := range d.regions {
			d.regions[i].Ratio = uniform
		}
	}

	// Rank descending by ratio; equal ratios keep domain order so the
	// ranking is reproducible on an unchanged dataset.
	d.ranked = make([]int, numRegions)
	for i := range d.ranked {
		d.ranked[i] = i
	}
	sort.SliceStable(d.ranked, func(a, b int) bool {
		ra, rb := d.regions[d.ranked[a]], d.regions[d.ranked[b]]
		if ra.Ratio != rb.Ratio {
			return ra.Ratio > rb.Ratio
		}
		return ra.Index < rb.Index
	})
	for rank, idx := range d.ranked {
		d.regions[idx].Rank = rank + 1
	}

	slog.Debug("region analysis complete",
		"domain_size", n,
		"region_width", w,
		"regions", numRegions,
		"draws", len(draws),
	)

	return d, nil
}

// RegionOf returns the index of the region containing number n.
// n must be in [1, domain size].
func (d *Distribution) RegionOf(n int) int {
	idx := (n - 1) / d.width
	if idx >= len(d.regions) {
		idx = len(d.regions) - 1
	}
	return idx
}

// TargetRatio returns the target share for a region index.
func (d *Distribution) TargetRatio(idx int) float64 {
	return d.regions[idx].Ratio
}

// Region returns the region at the given index.
func (d *Distribution) Region(idx int) Region {
	return d.regions[idx]
}

// NumRegions returns the number of regions.
func (d *Distribution) NumRegions() int {
	return len(d.regions)
}

// DomainSize returns the analyzed domain size N.
func (d *Distribution) DomainSize() int {
	return d.domainSize
}

// Width returns the region width W.
func (d *Distribution) Width() int {
	return d.width
}

// TotalDraws returns the number of historical draws analyzed.
func (d *Distribution) TotalDraws() int {
	return d.totalDraws
}

// Ranked returns the regions ordered by descending historical frequency.
func (d *Distribution) Ranked() []Region {
	out := make([]Region, len(d.ranked))
	for i, idx := range d.ranked {
		out[i] = d.regions[idx]
	}
	return out
}

// Regions returns all regions in domain order. The slice is a copy.
func (d *Distribution) Regions() []Region {
	out := make([]Region, len(d.regions))
	copy(out, d.regions)
	return out
}

// Summary is a serializable view of the analysis, used by CLI output and
// golden tests.
type Summary struct {
	DomainSize int      `json:"domain_size"`
	Width      int      `json:"region_width"`
	TotalDraws int      `json:"total_draws"`
	Regions    []Region `json:"regions"`
}

// Summary returns the serializable view of the distribution.
func (d *Distribution) Summary() Summary {
	return Summary{
		DomainSize: d.domainSize,
		Width:      d.width,
		TotalDraws: d.totalDraws,
		Regions:    d.Regions(),
	}
}
