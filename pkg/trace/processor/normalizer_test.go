package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracescope/tracescope/pkg/trace/extractor"
	"github.com/tracescope/tracescope/pkg/trace/filter"
	"github.com/tracescope/tracescope/pkg/trace/model"
)

func newTestNormalizer(config model.TraceConfig) *HierarchyNormalizer {
	return NewHierarchyNormalizer(config, extractor.NewPathNormalizer(), filter.NewServiceMeshFilter(config))
}

func processedTree(t *testing.T, spans []model.Span, config model.TraceConfig) *model.Node {
	t.Helper()
	root, _ := NewHierarchyBuilder().Build(spans)
	aggregator := NewNodeAggregator(config, extractor.NewPathNormalizer())
	NewTimingCalculator(aggregator).CalculateHierarchyTimings(root)
	return newTestNormalizer(config).NormalizeAndAggregate(root)
}

func TestHierarchyNormalizer_NormalizeAndAggregate(t *testing.T) {
	config := model.DefaultTraceConfig()

	t.Run("Renames HTTP nodes to their normalized form", func(t *testing.T) {
		spans := []model.Span{
			makeSpan(spanSpec{
				spanID: "a", service: "orders", name: "GET", kind: model.KindServer,
				startMs: 0, endMs: 100,
				attrs: map[string]model.AttributeValue{
					"http.method": model.StringAttribute("GET"),
					"http.url":    model.StringAttribute("https://orders.svc/api/orders/12345"),
				},
			}),
		}
		root := processedTree(t, spans, config)

		assert.Equal(t, "GET /api/orders/{id} (12345)", root.Children[0].Name)
	})

	t.Run("Lifts same-service sidecar duplicates", func(t *testing.T) {
		spans := []model.Span{
			makeSpan(spanSpec{spanID: "a", service: "orders", name: "ingress", kind: model.KindServer, startMs: 0, endMs: 100}),
			makeSpan(spanSpec{spanID: "b", parentID: "a", service: "orders", name: "duplicate", kind: model.KindServer, startMs: 5, endMs: 95}),
			makeSpan(spanSpec{spanID: "c", parentID: "b", service: "payments", name: "real work", kind: model.KindServer, startMs: 10, endMs: 90}),
		}
		root := processedTree(t, spans, config)

		entry := root.Children[0]
		assert.Equal(t, "ingress", entry.Name)
		assert.Len(t, entry.Children, 1)
		assert.Equal(t, "real work", entry.Children[0].Name)
		assert.Equal(t, "payments", entry.Children[0].ServiceName)
	})

	t.Run("Keeps error nodes even when they duplicate the parent service", func(t *testing.T) {
		spans := []model.Span{
			makeSpan(spanSpec{spanID: "a", service: "orders", name: "ingress", kind: model.KindServer, startMs: 0, endMs: 100}),
			makeSpan(spanSpec{
				spanID: "b", parentID: "a", service: "orders", name: "failed hop", kind: model.KindServer,
				startMs: 5, endMs: 95, status: model.SpanStatus{Code: 2, Message: "boom"},
			}),
		}
		root := processedTree(t, spans, config)

		entry := root.Children[0]
		assert.Len(t, entry.Children, 1)
		assert.Equal(t, "failed hop", entry.Children[0].Name)
		assert.True(t, entry.Children[0].IsError)
	})

	t.Run("Mesh inclusion keeps the duplicate level", func(t *testing.T) {
		meshConfig := model.TraceConfig{StripQueryParams: true, IncludeServiceMesh: true}
		spans := []model.Span{
			makeSpan(spanSpec{spanID: "a", service: "orders", name: "ingress", kind: model.KindServer, startMs: 0, endMs: 100}),
			makeSpan(spanSpec{spanID: "b", parentID: "a", service: "orders", name: "duplicate", kind: model.KindServer, startMs: 5, endMs: 95}),
		}
		root := processedTree(t, spans, meshConfig)

		entry := root.Children[0]
		assert.Len(t, entry.Children, 1)
		assert.Equal(t, "duplicate", entry.Children[0].Name)
	})

	t.Run("Recomputes self times after lifting", func(t *testing.T) {
		spans := []model.Span{
			makeSpan(spanSpec{spanID: "a", service: "orders", name: "ingress", kind: model.KindServer, startMs: 0, endMs: 100}),
			makeSpan(spanSpec{spanID: "b", parentID: "a", service: "orders", name: "duplicate", kind: model.KindServer, startMs: 0, endMs: 100}),
			makeSpan(spanSpec{spanID: "c", parentID: "b", service: "payments", name: "real work", kind: model.KindServer, startMs: 20, endMs: 80}),
		}
		root := processedTree(t, spans, config)

		entry := root.Children[0]
		assert.InDelta(t, 40.0, entry.SelfTimeMs, 1e-6)
	})

	t.Run("Computes timeline positions within the parent window", func(t *testing.T) {
		spans := []model.Span{
			makeSpan(spanSpec{spanID: "a", service: "orders", name: "parent", kind: model.KindServer, startMs: 0, endMs: 100}),
			makeSpan(spanSpec{spanID: "b", parentID: "a", service: "payments", name: "child", kind: model.KindServer, startMs: 25, endMs: 75}),
		}
		root := processedTree(t, spans, config)

		child := root.Children[0].Children[0]
		assert.InDelta(t, 25.0, child.TimelineStartPct, 1e-6)
		assert.InDelta(t, 50.0, child.TimelineWidthPct, 1e-6)
	})
}

func TestHierarchyNormalizer_SiblingParallelism(t *testing.T) {
	config := model.DefaultTraceConfig()

	t.Run("Tags overlapping siblings above the threshold", func(t *testing.T) {
		spans := []model.Span{
			makeSpan(spanSpec{spanID: "p", service: "orders", name: "parent", kind: model.KindServer, startMs: 0, endMs: 120}),
			makeSpan(spanSpec{spanID: "c1", parentID: "p", service: "payments", name: "pay", kind: model.KindServer, startMs: 10, endMs: 110}),
			makeSpan(spanSpec{spanID: "c2", parentID: "p", service: "stock", name: "reserve", kind: model.KindServer, startMs: 10, endMs: 110}),
		}
		root := processedTree(t, spans, config)

		parent := root.Children[0]
		assert.True(t, parent.SiblingParallelism)
		assert.Equal(t, 2, parent.ParallelSiblingCount)
		assert.InDelta(t, 2.0, parent.SiblingParallelismFactor, 1e-6)
		for _, child := range parent.Children {
			assert.True(t, child.IsParallelSibling)
		}
	})

	t.Run("Sequential siblings stay untagged", func(t *testing.T) {
		spans := []model.Span{
			makeSpan(spanSpec{spanID: "p", service: "orders", name: "parent", kind: model.KindServer, startMs: 0, endMs: 120}),
			makeSpan(spanSpec{spanID: "c1", parentID: "p", service: "payments", name: "pay", kind: model.KindServer, startMs: 0, endMs: 50}),
			makeSpan(spanSpec{spanID: "c2", parentID: "p", service: "stock", name: "reserve", kind: model.KindServer, startMs: 50, endMs: 100}),
		}
		root := processedTree(t, spans, config)

		parent := root.Children[0]
		assert.False(t, parent.SiblingParallelism)
		for _, child := range parent.Children {
			assert.False(t, child.IsParallelSibling)
		}
	})

	t.Run("Overlap below the threshold stays untagged", func(t *testing.T) {
		spans := []model.Span{
			makeSpan(spanSpec{spanID: "p", service: "orders", name: "parent", kind: model.KindServer, startMs: 0, endMs: 220}),
			makeSpan(spanSpec{spanID: "c1", parentID: "p", service: "payments", name: "pay", kind: model.KindServer, startMs: 0, endMs: 100}),
			makeSpan(spanSpec{spanID: "c2", parentID: "p", service: "stock", name: "reserve", kind: model.KindServer, startMs: 90, endMs: 190}),
		}
		root := processedTree(t, spans, config)

		// 200ms cumulative over 190ms effective is only a 1.05x factor.
		parent := root.Children[0]
		assert.False(t, parent.SiblingParallelism)
	})

	t.Run("A single child is never parallel", func(t *testing.T) {
		spans := []model.Span{
			makeSpan(spanSpec{spanID: "p", service: "orders", name: "parent", kind: model.KindServer, startMs: 0, endMs: 120}),
			makeSpan(spanSpec{spanID: "c1", parentID: "p", service: "payments", name: "pay", kind: model.KindServer, startMs: 10, endMs: 110}),
		}
		root := processedTree(t, spans, config)

		assert.False(t, root.Children[0].SiblingParallelism)
	})
}

func TestPathsMatchFuzzy(t *testing.T) {
	t.Run("Identical templates match", func(t *testing.T) {
		assert.True(t, pathsMatchFuzzy("/api/items/{id}", "/api/items/{id}"))
	})

	t.Run("Different placeholder names unify", func(t *testing.T) {
		assert.True(t, pathsMatchFuzzy("/api/items/{id}", "/api/items/{itemId}"))
	})

	t.Run("A placeholder matches a concrete segment", func(t *testing.T) {
		assert.True(t, pathsMatchFuzzy("/api/items/{id}", "/api/items/abc"))
	})

	t.Run("Differing concrete segments do not match", func(t *testing.T) {
		assert.False(t, pathsMatchFuzzy("/api/items/abc", "/api/items/def"))
	})

	t.Run("Segment counts must agree", func(t *testing.T) {
		assert.False(t, pathsMatchFuzzy("/api/items/{id}", "/api/items/{id}/sub"))
	})
}

func TestPickCanonicalPath(t *testing.T) {
	t.Run("Prefers the more parameterized template", func(t *testing.T) {
		assert.Equal(t, "/api/{a}/{b}", pickCanonicalPath("/api/x/{b}", "/api/{a}/{b}"))
	})

	t.Run("Ties keep the first", func(t *testing.T) {
		assert.Equal(t, "/api/x/{b}", pickCanonicalPath("/api/x/{b}", "/api/y/{b}"))
	})
}
