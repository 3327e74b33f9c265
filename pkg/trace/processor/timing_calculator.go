package processor

import (
	"github.com/tracescope/tracescope/pkg/trace/model"
	"github.com/tracescope/tracescope/pkg/trace/timing"
)

// parallelismNoiseThreshold filters clock-skew artifacts: factors at or below
// it are normalized to 1.0.
const parallelismNoiseThreshold = 1.05

// TimingCalculator computes self time bottom-up. Self time subtracts the
// children's merged-interval effective time rather than their summed
// durations, which keeps it non-negative when children ran concurrently.
type TimingCalculator struct {
	aggregator *NodeAggregator
}

func NewTimingCalculator(aggregator *NodeAggregator) *TimingCalculator {
	return &TimingCalculator{aggregator: aggregator}
}

// CalculateHierarchyTimings recursively processes children first, aggregates
// the immediate children, and then derives this node's self time.
func (tc *TimingCalculator) CalculateHierarchyTimings(node *model.Node) {
	if node == nil || len(node.Children) == 0 {
		return
	}

	for _, child := range node.Children {
		tc.CalculateHierarchyTimings(child)
	}

	node.Children = tc.aggregator.AggregateSiblings(node.Children)

	applyChildTimings(node)
}

// RecalculateSelfTimes is the idempotent standalone pass, used after
// filtering or lifting has changed child sets.
func RecalculateSelfTimes(node *model.Node) {
	if node == nil {
		return
	}
	for _, child := range node.Children {
		RecalculateSelfTimes(child)
	}
	if len(node.Children) == 0 {
		node.SelfTimeMs = node.TotalTimeMs
		return
	}
	applyChildTimings(node)
}

// applyChildTimings derives self time and the child parallelism diagnostics
// from a node's (already-timed) children.
func applyChildTimings(node *model.Node) {
	var cumulativeMs float64
	intervals := make([]timing.Interval, 0, len(node.Children))
	for _, child := range node.Children {
		cumulativeMs += child.TotalTimeMs
		if start, end, ok := child.Interval(); ok {
			intervals = append(intervals, timing.Interval{Start: start, End: end})
		}
	}

	effectiveMs := timing.EffectiveMs(intervals)
	if effectiveMs == 0 && cumulativeMs > 0 {
		// Children without usable timestamps: fall back to summed durations.
		effectiveMs = cumulativeMs
	}

	node.ChildCumulativeMs = cumulativeMs
	node.ChildEffectiveMs = effectiveMs
	node.ChildParallelism = normalizeFactor(timing.ParallelismFactor(cumulativeMs, effectiveMs))

	selfMs := node.TotalTimeMs - effectiveMs
	if selfMs < 0 {
		selfMs = 0
	}
	node.SelfTimeMs = selfMs
}

func normalizeFactor(factor float64) float64 {
	if factor <= parallelismNoiseThreshold {
		return 1.0
	}
	return factor
}
