package processor

import (
	"fmt"
	"strings"

	"github.com/tracescope/tracescope/pkg/trace/extractor"
	"github.com/tracescope/tracescope/pkg/trace/model"
	"github.com/tracescope/tracescope/pkg/trace/timing"
)

// NodeAggregator merges sibling nodes that share an identity: (service,
// method, normalized path) for HTTP spans, (service, span name) otherwise.
// It is not recursive; the timing pass drives it bottom-up so children are
// already aggregated when their parents are.
type NodeAggregator struct {
	config         model.TraceConfig
	pathNormalizer *extractor.PathNormalizer
}

func NewNodeAggregator(config model.TraceConfig, pathNormalizer *extractor.PathNormalizer) *NodeAggregator {
	return &NodeAggregator{config: config, pathNormalizer: pathNormalizer}
}

// AggregateSiblings groups siblings by identity. Singleton groups pass
// through with a canonical display name; larger groups collapse into one
// aggregate node.
func (a *NodeAggregator) AggregateSiblings(nodes []*model.Node) []*model.Node {
	if len(nodes) == 0 {
		return nil
	}

	groups := make(map[string][]*model.Node)
	var keyOrder []string
	for _, node := range nodes {
		key := a.identityKey(node)
		if _, ok := groups[key]; !ok {
			keyOrder = append(keyOrder, key)
		}
		groups[key] = append(groups[key], node)
	}

	result := make([]*model.Node, 0, len(keyOrder))
	for _, key := range keyOrder {
		group := groups[key]
		if len(group) == 1 {
			node := group[0]
			if node.DisplayIdentityResolved() {
				displayName := node.HTTPMethod + " " + node.NormalizedPath
				if !strings.HasPrefix(node.Name, node.HTTPMethod) {
					node.Name = displayName
				}
			}
			result = append(result, node)
			continue
		}
		result = append(result, a.mergeGroup(group))
	}
	return result
}

// identityKey computes and memoizes the grouping identity for a node.
func (a *NodeAggregator) identityKey(node *model.Node) string {
	if node.DisplayIdentityResolved() {
		return node.ServiceName + ":" + node.HTTPMethod + ":" + node.NormalizedPath
	}

	if node.Span != nil {
		if httpPath := extractor.ExtractHTTPPath(node.Span); httpPath != "" {
			method := extractor.ExtractHTTPMethod(node.Span)
			if method == "" {
				method = extractor.MethodFromSpanName(node.Span.Name)
			}
			if method == "" {
				method = "POST"
			}
			normalizedPath, _ := a.pathNormalizer.Normalize(httpPath, a.config.StripQueryParams)
			node.SetDisplayIdentity(method, normalizedPath, node.ParameterValue)
			return node.ServiceName + ":" + method + ":" + normalizedPath
		}
	}

	name := "Unknown Span"
	if node.Span != nil {
		name = node.Span.Name
	} else if node.Name != "" {
		name = node.Name
	}
	return node.ServiceName + ":" + name
}

// mergeGroup collapses a same-identity sibling group into one aggregate
// node: times summed, bounds spanned, errors OR-ed, children concatenated.
func (a *NodeAggregator) mergeGroup(group []*model.Node) *model.Node {
	first := group[0]

	var totalMs, selfMs float64
	var count int
	intervals := make([]timing.Interval, 0, len(group))
	var children []*model.Node
	var startNs, endNs int64
	for _, member := range group {
		totalMs += member.TotalTimeMs
		selfMs += member.SelfTimeMs
		count += memberCount(member)
		children = append(children, member.Children...)
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

	isError, errorCount, errorMessage, httpStatus := mergeErrorDetails(group)

	displayName := first.Name
	if first.DisplayIdentityResolved() {
		displayName = first.HTTPMethod + " " + first.NormalizedPath
	}

	agg := &model.Node{
		Span:              first.Span,
		Name:              displayName,
		ServiceName:       first.ServiceName,
		Children:          children,
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
	if first.DisplayIdentityResolved() {
		agg.SetDisplayIdentity(first.HTTPMethod, first.NormalizedPath, first.ParameterValue)
	}
	return agg
}

func memberCount(node *model.Node) int {
	if node.Count > 0 {
		return node.Count
	}
	return 1
}

// mergeErrorDetails ORs the members' error state. A single distinct message
// is kept verbatim; multiple distinct messages collapse to a summary that
// still shows how many members failed.
func mergeErrorDetails(group []*model.Node) (isError bool, errorCount int, message string, httpStatus int) {
	distinct := make(map[string]struct{})
	var firstMessage string
	for _, member := range group {
		if !member.IsError {
			continue
		}
		isError = true
		errorCount += memberErrorCount(member)
		if member.ErrorMessage != "" {
			if _, seen := distinct[member.ErrorMessage]; !seen {
				distinct[member.ErrorMessage] = struct{}{}
				if firstMessage == "" {
					firstMessage = member.ErrorMessage
				}
			}
		}
		if httpStatus == 0 && member.HTTPStatusCode != 0 {
			httpStatus = member.HTTPStatusCode
		}
	}
	if !isError {
		return false, 0, "", 0
	}
	if len(distinct) <= 1 {
		message = firstMessage
	} else {
		message = fmt.Sprintf("Multiple errors (%d/%d)", errorCount, groupCount(group))
	}
	return isError, errorCount, message, httpStatus
}

func memberErrorCount(node *model.Node) int {
	if node.ErrorCount > 0 {
		return node.ErrorCount
	}
	return 1
}

func groupCount(group []*model.Node) int {
	total := 0
	for _, member := range group {
		total += memberCount(member)
	}
	return total
}
