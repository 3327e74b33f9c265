// Package timing provides interval arithmetic for wall-clock ("effective")
// time computation over possibly overlapping span execution windows.
package timing

import "sort"

// Interval is a half-open [Start, End) time window in unix nanoseconds.
type Interval struct {
	Start int64
	End   int64
}

// MergeIntervals merges overlapping intervals and returns the total effective
// duration in nanoseconds. Invalid intervals (non-positive start, end not
// after start) are ignored. Merging is idempotent and order-independent.
//
//	[(0,100), (50,150), (200,300)] -> (0,150)+(200,300) = 250
func MergeIntervals(intervals []Interval) int64 {
	valid := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Start > 0 && iv.End > iv.Start {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return 0
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].Start < valid[j].Start })

	var total int64
	current := valid[0]
	for _, iv := range valid[1:] {
		if iv.Start <= current.End {
			if iv.End > current.End {
				current.End = iv.End
			}
		} else {
			total += current.End - current.Start
			current = iv
		}
	}
	total += current.End - current.Start
	return total
}

// EffectiveMs returns the merged duration of the intervals in milliseconds.
func EffectiveMs(intervals []Interval) float64 {
	return float64(MergeIntervals(intervals)) / 1e6
}

// CumulativeMs returns the naive summed duration of the intervals in
// milliseconds, counting overlap twice.
func CumulativeMs(intervals []Interval) float64 {
	var total int64
	for _, iv := range intervals {
		if iv.Start > 0 && iv.End > iv.Start {
			total += iv.End - iv.Start
		}
	}
	return float64(total) / 1e6
}

// ParallelismFactor is the ratio of cumulative to effective time; values
// above 1 indicate concurrent execution.
func ParallelismFactor(cumulativeMs, effectiveMs float64) float64 {
	if effectiveMs <= 0 {
		return 1.0
	}
	return cumulativeMs / effectiveMs
}

// MaxOverlapping returns the indexes of the largest subset of intervals that
// are simultaneously active at some instant. For intervals, pairwise overlap
// of a set is equivalent to a shared common instant, so this is the maximal
// pairwise-overlapping subset. Returns nil when no two intervals overlap;
// invalid intervals are never selected.
func MaxOverlapping(intervals []Interval) []int {
	type boundary struct {
		at    int64
		delta int
		idx   int
	}
	var bounds []boundary
	for i, iv := range intervals {
		if iv.Start > 0 && iv.End > iv.Start {
			bounds = append(bounds, boundary{at: iv.Start, delta: +1, idx: i})
			bounds = append(bounds, boundary{at: iv.End, delta: -1, idx: i})
		}
	}
	if len(bounds) == 0 {
		return nil
	}
	// Ends sort before starts at the same instant: [a,b) and [b,c) do not
	// overlap.
	sort.Slice(bounds, func(i, j int) bool {
		if bounds[i].at != bounds[j].at {
			return bounds[i].at < bounds[j].at
		}
		return bounds[i].delta < bounds[j].delta
	})

	depth, maxDepth := 0, 0
	var maxAt int64
	for _, b := range bounds {
		depth += b.delta
		if depth > maxDepth {
			maxDepth = depth
			maxAt = b.at
		}
	}
	if maxDepth < 2 {
		return nil
	}

	var selected []int
	for i, iv := range intervals {
		if iv.Start > 0 && iv.End > iv.Start && iv.Start <= maxAt && maxAt < iv.End {
			selected = append(selected, i)
		}
	}
	return selected
}
