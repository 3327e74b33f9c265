// Package processor implements the per-trace pipeline: hierarchy
// construction, bottom-up timing, sibling aggregation, display
// normalization, and flat metrics population.
package processor

import (
	"github.com/tracescope/tracescope/pkg/trace/extractor"
	"github.com/tracescope/tracescope/pkg/trace/model"
)

// HierarchyBuilder turns a flat span list into a tree, healing broken parent
// links by re-parenting orphans onto their service's entry point.
type HierarchyBuilder struct{}

func NewHierarchyBuilder() *HierarchyBuilder {
	return &HierarchyBuilder{}
}

// Build constructs the raw hierarchy for one trace and returns the root
// together with a flat span-id → node map for the metrics pass. Spans
// without a span id are skipped. Multiple roots are wrapped under a
// synthetic root whose total time is the sum of its roots'.
func (b *HierarchyBuilder) Build(spans []model.Span) (*model.Node, map[string]*model.Node) {
	nodes := make(map[string]*model.Node, len(spans))
	order := make([]string, 0, len(spans))
	serviceEntryPoints := make(map[string]string)

	for i := range spans {
		span := &spans[i]
		if span.SpanID == "" {
			continue
		}

		durationMs := span.DurationMs()
		isError, errorMessage, httpStatus := extractor.ExtractErrorDetails(span)

		node := &model.Node{
			Span:           span,
			Name:           span.Name,
			ServiceName:    span.ServiceName,
			TotalTimeMs:    durationMs,
			SelfTimeMs:     durationMs,
			StartTimeNs:    span.StartTime.UnixNano(),
			EndTimeNs:      span.EndTime.UnixNano(),
			IsError:        isError,
			ErrorMessage:   errorMessage,
			HTTPStatusCode: httpStatus,
			Count:          1,
		}
		nodes[span.SpanID] = node
		order = append(order, span.SpanID)

		// The first SERVER span seen per service is its entry point.
		if span.Kind == model.KindServer {
			if _, ok := serviceEntryPoints[span.ServiceName]; !ok {
				serviceEntryPoints[span.ServiceName] = span.SpanID
			}
		}
	}

	var roots []*model.Node
	for _, spanID := range order {
		node := nodes[spanID]
		parentID := node.Span.ParentSpanID

		if parent, ok := nodes[parentID]; ok && parentID != "" {
			parent.Children = append(parent.Children, node)
			continue
		}
		if entryID, ok := serviceEntryPoints[node.ServiceName]; ok && entryID != spanID {
			// Orphan: its declared parent was never exported. Adopt it onto
			// the service's entry point instead of dropping the subtree.
			nodes[entryID].Children = append(nodes[entryID].Children, node)
			continue
		}
		roots = append(roots, node)
	}

	root := &model.Node{
		Name:        "Trace Root",
		ServiceName: "Trace",
		Children:    roots,
		Count:       1,
	}
	for _, r := range roots {
		root.TotalTimeMs += r.TotalTimeMs
		if root.StartTimeNs == 0 || r.StartTimeNs < root.StartTimeNs {
			root.StartTimeNs = r.StartTimeNs
		}
		if r.EndTimeNs > root.EndTimeNs {
			root.EndTimeNs = r.EndTimeNs
		}
	}

	return root, nodes
}
