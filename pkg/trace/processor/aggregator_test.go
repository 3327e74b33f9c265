package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracescope/tracescope/pkg/trace/extractor"
	"github.com/tracescope/tracescope/pkg/trace/model"
)

func newTestAggregator() *NodeAggregator {
	return NewNodeAggregator(model.DefaultTraceConfig(), extractor.NewPathNormalizer())
}

func httpNode(spanID, service, method, url string, startMs, endMs int64) *model.Node {
	span := makeSpan(spanSpec{
		spanID: spanID, service: service, name: method + " " + url, kind: model.KindClient,
		startMs: startMs, endMs: endMs,
		attrs: map[string]model.AttributeValue{
			"http.method": model.StringAttribute(method),
			"http.url":    model.StringAttribute(url),
		},
	})
	return &model.Node{
		Span:        &span,
		Name:        span.Name,
		ServiceName: service,
		TotalTimeMs: float64(endMs - startMs),
		SelfTimeMs:  float64(endMs - startMs),
		StartTimeNs: span.StartTime.UnixNano(),
		EndTimeNs:   span.EndTime.UnixNano(),
		Count:       1,
	}
}

func TestNodeAggregator_AggregateSiblings(t *testing.T) {
	aggregator := newTestAggregator()

	t.Run("Merges siblings sharing a normalized identity", func(t *testing.T) {
		siblings := []*model.Node{
			httpNode("a", "orders", "GET", "https://items.svc/api/items/1", 0, 100),
			httpNode("b", "orders", "GET", "https://items.svc/api/items/2", 100, 250),
		}
		result := aggregator.AggregateSiblings(siblings)

		assert.Len(t, result, 1)
		agg := result[0]
		assert.True(t, agg.Aggregated)
		assert.Equal(t, 2, agg.Count)
		assert.InDelta(t, 250.0, agg.TotalTimeMs, 1e-6)
		assert.InDelta(t, 125.0, agg.AvgTimeMs, 1e-6)
		assert.Equal(t, "GET /api/items/{id}", agg.Name)
	})

	t.Run("Keeps distinct identities apart", func(t *testing.T) {
		siblings := []*model.Node{
			httpNode("a", "orders", "GET", "https://items.svc/api/items", 0, 100),
			httpNode("b", "orders", "POST", "https://items.svc/api/items", 100, 200),
		}
		result := aggregator.AggregateSiblings(siblings)
		assert.Len(t, result, 2)
	})

	t.Run("Groups non-HTTP spans by span name", func(t *testing.T) {
		spanA := makeSpan(spanSpec{spanID: "a", service: "orders", name: "db query", kind: model.KindInternal, startMs: 0, endMs: 10})
		spanB := makeSpan(spanSpec{spanID: "b", service: "orders", name: "db query", kind: model.KindInternal, startMs: 10, endMs: 30})
		siblings := []*model.Node{
			{Span: &spanA, Name: spanA.Name, ServiceName: "orders", TotalTimeMs: 10, Count: 1},
			{Span: &spanB, Name: spanB.Name, ServiceName: "orders", TotalTimeMs: 20, Count: 1},
		}
		result := aggregator.AggregateSiblings(siblings)

		assert.Len(t, result, 1)
		assert.Equal(t, 2, result[0].Count)
		assert.InDelta(t, 30.0, result[0].TotalTimeMs, 1e-6)
	})

	t.Run("Computes group parallelism over member intervals", func(t *testing.T) {
		siblings := []*model.Node{
			httpNode("a", "orders", "GET", "https://items.svc/api/items/1", 0, 100),
			httpNode("b", "orders", "GET", "https://items.svc/api/items/2", 0, 100),
		}
		result := aggregator.AggregateSiblings(siblings)

		agg := result[0]
		assert.InDelta(t, 100.0, agg.EffectiveTimeMs, 1e-6)
		assert.InDelta(t, 2.0, agg.ParallelismFactor, 1e-6)
	})

	t.Run("Spans group bounds across members", func(t *testing.T) {
		siblings := []*model.Node{
			httpNode("a", "orders", "GET", "https://items.svc/api/items/1", 50, 100),
			httpNode("b", "orders", "GET", "https://items.svc/api/items/2", 200, 300),
		}
		result := aggregator.AggregateSiblings(siblings)

		agg := result[0]
		assert.Equal(t, siblings[0].StartTimeNs, agg.StartTimeNs)
		assert.Equal(t, siblings[1].EndTimeNs, agg.EndTimeNs)
	})
}

func TestMergeErrorDetails(t *testing.T) {
	t.Run("A single distinct message is kept verbatim", func(t *testing.T) {
		group := []*model.Node{
			{IsError: true, ErrorMessage: "HTTP 500: Internal Server Error", Count: 1},
			{IsError: true, ErrorMessage: "HTTP 500: Internal Server Error", Count: 1},
			{Count: 1},
		}
		isError, errorCount, message, _ := mergeErrorDetails(group)

		assert.True(t, isError)
		assert.Equal(t, 2, errorCount)
		assert.Equal(t, "HTTP 500: Internal Server Error", message)
	})

	t.Run("Multiple distinct messages collapse to a summary", func(t *testing.T) {
		group := []*model.Node{
			{IsError: true, ErrorMessage: "HTTP 500: Internal Server Error", Count: 1},
			{IsError: true, ErrorMessage: "HTTP 404: Not Found", Count: 1},
			{Count: 1},
		}
		_, _, message, _ := mergeErrorDetails(group)
		assert.Equal(t, "Multiple errors (2/3)", message)
	})

	t.Run("No errors yields a clean result", func(t *testing.T) {
		group := []*model.Node{{Count: 1}, {Count: 1}}
		isError, errorCount, message, httpStatus := mergeErrorDetails(group)

		assert.False(t, isError)
		assert.Equal(t, 0, errorCount)
		assert.Equal(t, "", message)
		assert.Equal(t, 0, httpStatus)
	})

	t.Run("First non-zero HTTP status wins", func(t *testing.T) {
		group := []*model.Node{
			{IsError: true, ErrorMessage: "a", Count: 1},
			{IsError: true, ErrorMessage: "b", HTTPStatusCode: 503, Count: 1},
		}
		_, _, _, httpStatus := mergeErrorDetails(group)
		assert.Equal(t, 503, httpStatus)
	})
}
