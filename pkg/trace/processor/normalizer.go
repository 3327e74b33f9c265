package processor

import (
	"regexp"
	"strings"

	"github.com/tracescope/tracescope/pkg/trace/extractor"
	"github.com/tracescope/tracescope/pkg/trace/filter"
	"github.com/tracescope/tracescope/pkg/trace/model"
	"github.com/tracescope/tracescope/pkg/trace/timing"
)

// siblingParallelismThreshold is the significance bar for tagging sibling
// parallelism; overlap below it is indistinguishable from clock skew.
// Tunable pending product input.
const siblingParallelismThreshold = 1.15

// HierarchyNormalizer turns the raw timed hierarchy into the display tree:
// nodes renamed to their normalized endpoint form, sidecar duplicates lifted,
// same-identity siblings aggregated, parallelism tagged, and timeline
// positions computed.
type HierarchyNormalizer struct {
	config         model.TraceConfig
	pathNormalizer *extractor.PathNormalizer
	meshFilter     *filter.ServiceMeshFilter
}

func NewHierarchyNormalizer(
	config model.TraceConfig,
	pathNormalizer *extractor.PathNormalizer,
	meshFilter *filter.ServiceMeshFilter,
) *HierarchyNormalizer {
	return &HierarchyNormalizer{
		config:         config,
		pathNormalizer: pathNormalizer,
		meshFilter:     meshFilter,
	}
}

// NormalizeAndAggregate processes the root's subtree in place and returns it.
func (n *HierarchyNormalizer) NormalizeAndAggregate(root *model.Node) *model.Node {
	if root == nil {
		return nil
	}

	n.normalizeNode(root)
	root.Children = n.aggregateSiblings(root.Children, root, true)
	root.Aggregated = false
	if root.Count == 0 {
		root.Count = 1
	}

	// Filtering and lifting changed child sets; self times must be rebuilt.
	RecalculateSelfTimes(root)
	computeTimelinePositions(root)

	return root
}

// normalizeNode rewrites an HTTP node's display name to
// "<METHOD> <template>[ (<params>)]" and records the display identity.
// Non-HTTP nodes keep their span name. Idempotent.
func (n *HierarchyNormalizer) normalizeNode(node *model.Node) {
	if node.Span == nil {
		return
	}
	// Aggregates already carry their group's canonical identity; renaming
	// them from the first member's raw attributes would lose it.
	if node.Aggregated && node.DisplayIdentityResolved() {
		return
	}
	httpPath := extractor.ExtractHTTPPath(node.Span)
	if httpPath == "" {
		return
	}

	method := extractor.ExtractHTTPMethod(node.Span)
	if method == "" {
		method = extractor.MethodFromSpanName(node.Span.Name)
	}
	if method == "" {
		method = "POST"
	}

	normalizedPath, params := n.pathNormalizer.Normalize(httpPath, n.config.StripQueryParams)
	paramStr := strings.Join(params, ", ")

	displayName := method + " " + normalizedPath
	if paramStr != "" {
		displayName += " (" + paramStr + ")"
	}

	node.Name = displayName
	node.SetDisplayIdentity(method, normalizedPath, paramStr)
}

// filterAndLift removes sidecar duplicates from a sibling list, re-offering
// their children to the same filter so whole sidecar chains collapse.
// Children are never dropped, only duplicate levels.
func (n *HierarchyNormalizer) filterAndLift(children []*model.Node, parent *model.Node) []*model.Node {
	if len(children) == 0 {
		return nil
	}
	var result []*model.Node
	for _, child := range children {
		n.normalizeNode(child)
		if n.meshFilter.ShouldSkipNode(child, parent) {
			result = append(result, n.filterAndLift(child.Children, parent)...)
		} else {
			result = append(result, child)
		}
	}
	return result
}

// displayGroup is one aggregation bucket keyed by display identity. The
// canonical identity may be upgraded when a fuzzy-matching, more
// parameterized template joins the group.
type displayGroup struct {
	service string
	method  string
	path    string
	param   string
	members []*model.Node
}

func (n *HierarchyNormalizer) aggregateSiblings(children []*model.Node, parent *model.Node, atRoot bool) []*model.Node {
	if len(children) == 0 {
		return nil
	}

	filtered := n.filterAndLift(children, parent)

	var groups []*displayGroup
	for _, child := range filtered {
		n.normalizeNode(child)
		group := n.findGroup(groups, child)
		if group == nil {
			groups = append(groups, &displayGroup{
				service: child.ServiceName,
				method:  child.HTTPMethod,
				path:    child.NormalizedPath,
				param:   child.ParameterValue,
				members: []*model.Node{child},
			})
			continue
		}
		group.members = append(group.members, child)
		// Prefer the more parameterized template as the group identity, so
		// an http.route form wins over a raw-URL form of the same endpoint.
		if group.path != "" && child.NormalizedPath != "" &&
			pickCanonicalPath(group.path, child.NormalizedPath) == child.NormalizedPath &&
			group.path != child.NormalizedPath {
			group.path = child.NormalizedPath
			group.param = child.ParameterValue
		}
	}

	aggregated := make([]*model.Node, 0, len(groups))
	for _, group := range groups {
		if len(group.members) == 1 {
			node := group.members[0]
			node.Children = n.aggregateSiblings(node.Children, node, false)
			if !node.Aggregated {
				node.Count = 1
			}
			aggregated = append(aggregated, node)
			continue
		}
		aggregated = append(aggregated, n.mergeDisplayGroup(group, parent, atRoot))
	}

	n.detectSiblingParallelism(parent, aggregated, atRoot)

	return aggregated
}

// findGroup locates the bucket a child belongs to: exact display identity
// first, then a fuzzy template match within the same service and method.
func (n *HierarchyNormalizer) findGroup(groups []*displayGroup, child *model.Node) *displayGroup {
	for _, group := range groups {
		if group.service == child.ServiceName &&
			group.method == child.HTTPMethod &&
			group.path == child.NormalizedPath &&
			group.param == child.ParameterValue {
			return group
		}
	}
	if child.NormalizedPath == "" {
		// Non-HTTP nodes group by exact span name only.
		for _, group := range groups {
			if group.service == child.ServiceName && group.method == "" && group.path == "" &&
				len(group.members) > 0 && group.members[0].Name == child.Name {
				return group
			}
		}
		return nil
	}
	for _, group := range groups {
		if group.service == child.ServiceName && group.method == child.HTTPMethod &&
			group.path != "" && pathsMatchFuzzy(group.path, child.NormalizedPath) {
			return group
		}
	}
	return nil
}

// mergeDisplayGroup collapses one display group into an aggregate node and
// flags the parent's fan-out when the group represents genuine concurrency.
func (n *HierarchyNormalizer) mergeDisplayGroup(group *displayGroup, parent *model.Node, atRoot bool) *model.Node {
	first := group.members[0]

	var totalMs, selfMs float64
	var count int
	intervals := make([]timing.Interval, 0, len(group.members))
	var grandchildren []*model.Node
	var startNs, endNs int64
	for _, member := range group.members {
		totalMs += member.TotalTimeMs
		selfMs += member.SelfTimeMs
		count += memberCount(member)
		grandchildren = append(grandchildren, member.Children...)
		if start, end, ok := member.Interval(); ok {
			intervals = append(intervals, timing.Interval{Start: start, End: end})
			if startNs == 0 || start < startNs {
				startNs = start
			}
			if end > endNs {
				endNs = end
			}
		}
	}

	effectiveMs := timing.EffectiveMs(intervals)
	factor := normalizeFactor(timing.ParallelismFactor(totalMs, effectiveMs))

	isError, errorCount, errorMessage, httpStatus := mergeErrorDetails(group.members)

	displayName := first.Name
	if group.method != "" || group.path != "" {
		displayName = group.method + " " + group.path
		if group.param != "" {
			displayName += " (" + group.param + ")"
		}
	}

	agg := &model.Node{
		Span:              first.Span,
		Name:              displayName,
		ServiceName:       group.service,
		TotalTimeMs:       totalMs,
		SelfTimeMs:        selfMs,
		StartTimeNs:       startNs,
		EndTimeNs:         endNs,
		IsError:           isError,
		ErrorMessage:      errorMessage,
		HTTPStatusCode:    httpStatus,
		ErrorCount:        errorCount,
		Aggregated:        true,
		Count:             count,
		AvgTimeMs:         totalMs / float64(count),
		EffectiveTimeMs:   effectiveMs,
		ParallelismFactor: factor,
	}
	agg.SetDisplayIdentity(group.method, group.path, group.param)

	agg.Children = n.aggregateSiblings(grandchildren, agg, false)

	// Fan-out check: an aggregate that merely inherited a 1:1 mapping from
	// its parent is not parallel; a group wider than its parent (or sitting
	// at trace-root level) is.
	if factor > 1.0 && (count > parentCount(parent) || atRoot) {
		parent.HasParallelChildren = true
	}

	return agg
}

func parentCount(parent *model.Node) int {
	if parent == nil || parent.Count == 0 {
		return 1
	}
	return parent.Count
}

// detectSiblingParallelism finds the maximal subset of siblings whose
// intervals pairwise overlap and, when their cumulative-to-effective ratio
// clears the significance threshold, tags the parent and each overlapping
// sibling. Siblings outside the subset stay untagged, which avoids false
// positives from aggregates whose bounds span unrelated sequential calls.
func (n *HierarchyNormalizer) detectSiblingParallelism(parent *model.Node, siblings []*model.Node, atRoot bool) {
	if parent == nil || len(siblings) < 2 {
		return
	}

	intervals := make([]timing.Interval, len(siblings))
	for i, sibling := range siblings {
		if start, end, ok := sibling.Interval(); ok {
			intervals[i] = timing.Interval{Start: start, End: end}
		}
	}

	subset := timing.MaxOverlapping(intervals)
	if len(subset) < 2 {
		return
	}

	selected := make([]timing.Interval, len(subset))
	for i, idx := range subset {
		selected[i] = intervals[idx]
	}
	cumulativeMs := timing.CumulativeMs(selected)
	effectiveMs := timing.EffectiveMs(selected)
	factor := timing.ParallelismFactor(cumulativeMs, effectiveMs)
	if factor <= siblingParallelismThreshold {
		return
	}

	parent.SiblingParallelism = true
	parent.SiblingParallelismFactor = factor
	parent.ParallelSiblingCount = len(subset)
	parent.SiblingEffectiveTimeMs = effectiveMs
	parent.SiblingCumulativeTimeMs = cumulativeMs
	for _, idx := range subset {
		siblings[idx].IsParallelSibling = true
	}
}

// computeTimelinePositions records each child's position inside its parent's
// [start,end) window as percentages, clamped to the window.
func computeTimelinePositions(node *model.Node) {
	parentStart, parentEnd, ok := node.Interval()
	if ok {
		window := float64(parentEnd - parentStart)
		for _, child := range node.Children {
			childStart, childEnd, childOK := child.Interval()
			if !childOK {
				continue
			}
			startPct := clampPct(float64(childStart-parentStart) / window * 100)
			endPct := clampPct(float64(childEnd-parentStart) / window * 100)
			child.TimelineStartPct = startPct
			child.TimelineWidthPct = endPct - startPct
		}
	}
	for _, child := range node.Children {
		computeTimelinePositions(child)
	}
}

func clampPct(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

var placeholderPattern = regexp.MustCompile(`\{[^}]+\}`)

// normalizePathForMatching unifies every placeholder to {param} so templates
// produced from http.route and from raw URLs compare structurally.
func normalizePathForMatching(path string) string {
	return placeholderPattern.ReplaceAllString(path, "{param}")
}

// pathsMatchFuzzy reports whether two templates describe the same endpoint:
// equal segment counts where every differing segment pairs a placeholder
// against a concrete value.
func pathsMatchFuzzy(a, b string) bool {
	na, nb := normalizePathForMatching(a), normalizePathForMatching(b)
	segsA := strings.Split(na, "/")
	segsB := strings.Split(nb, "/")
	if len(segsA) != len(segsB) {
		return false
	}
	for i := range segsA {
		if segsA[i] == segsB[i] || segsA[i] == "{param}" || segsB[i] == "{param}" {
			continue
		}
		return false
	}
	return true
}

// pickCanonicalPath prefers the more parameterized template; ties keep the
// first argument.
func pickCanonicalPath(a, b string) string {
	countA := strings.Count(normalizePathForMatching(a), "{param}")
	countB := strings.Count(normalizePathForMatching(b), "{param}")
	if countB > countA {
		return b
	}
	return a
}
