package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	resourcev1 "go.opentelemetry.io/proto/otlp/resource/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"

	"github.com/tracescope/tracescope/pkg/trace/model"
)

type recordingCache struct {
	puts map[string][]model.Span
}

func newRecordingCache() *recordingCache {
	return &recordingCache{puts: make(map[string][]model.Span)}
}

func (c *recordingCache) Get(traceID string) ([]model.Span, error) {
	spans, ok := c.puts[traceID]
	if !ok {
		return nil, ErrTraceNotFound
	}
	return spans, nil
}

func (c *recordingCache) Put(traceID string, spans []model.Span) error {
	c.puts[traceID] = append(c.puts[traceID], spans...)
	return nil
}

func (c *recordingCache) Drain() map[string][]model.Span {
	drained := c.puts
	c.puts = make(map[string][]model.Span)
	return drained
}

func stringAttr(key, value string) *commonv1.KeyValue {
	return &commonv1.KeyValue{
		Key:   key,
		Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: value}},
	}
}

func intAttr(key string, value int64) *commonv1.KeyValue {
	return &commonv1.KeyValue{
		Key:   key,
		Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_IntValue{IntValue: value}},
	}
}

func exportRequest(status *v1.Status) *protoTrace.ExportTraceServiceRequest {
	return &protoTrace.ExportTraceServiceRequest{
		ResourceSpans: []*v1.ResourceSpans{
			{
				Resource: &resourcev1.Resource{
					Attributes: []*commonv1.KeyValue{stringAttr("service.name", "orders")},
				},
				ScopeSpans: []*v1.ScopeSpans{
					{
						Spans: []*v1.Span{
							{
								TraceId:           []byte{0x01, 0x02},
								SpanId:            []byte{0x03, 0x04},
								ParentSpanId:      []byte{0x05, 0x06},
								Name:              "GET /api/orders",
								Kind:              v1.Span_SPAN_KIND_SERVER,
								StartTimeUnixNano: 1700000000000000000,
								EndTimeUnixNano:   1700000000100000000,
								Attributes: []*commonv1.KeyValue{
									stringAttr("http.method", "GET"),
									intAttr("http.status_code", 200),
								},
								Status: status,
							},
						},
					},
				},
			},
		},
	}
}

func TestTraceServiceServerImpl_Export(t *testing.T) {
	logger := zap.NewNop()

	t.Run("Buffers spans keyed by trace id", func(t *testing.T) {
		cache := newRecordingCache()
		server := NewTraceServiceServerImpl(logger, cache)

		_, err := server.Export(context.Background(), exportRequest(nil))
		assert.NoError(t, err)

		spans, ok := cache.puts["0102"]
		assert.True(t, ok)
		assert.Len(t, spans, 1)

		span := spans[0]
		assert.Equal(t, "0304", span.SpanID)
		assert.Equal(t, "0506", span.ParentSpanID)
		assert.Equal(t, "orders", span.ServiceName)
		assert.Equal(t, model.KindServer, span.Kind)
		assert.Equal(t, time.Unix(0, 1700000000000000000), span.StartTime)
		assert.Equal(t, model.StringAttribute("GET"), span.Attributes["http.method"])
		assert.Equal(t, model.IntAttribute(200), span.Attributes["http.status_code"])
	})

	t.Run("An OK wire status stays unset", func(t *testing.T) {
		cache := newRecordingCache()
		server := NewTraceServiceServerImpl(logger, cache)

		_, err := server.Export(context.Background(), exportRequest(&v1.Status{
			Code: v1.Status_STATUS_CODE_OK,
		}))
		assert.NoError(t, err)

		span := cache.puts["0102"][0]
		assert.False(t, span.Status.IsError())
	})

	t.Run("An error wire status carries its message", func(t *testing.T) {
		cache := newRecordingCache()
		server := NewTraceServiceServerImpl(logger, cache)

		_, err := server.Export(context.Background(), exportRequest(&v1.Status{
			Code:    v1.Status_STATUS_CODE_ERROR,
			Message: "boom",
		}))
		assert.NoError(t, err)

		span := cache.puts["0102"][0]
		assert.True(t, span.Status.IsError())
		assert.Equal(t, "boom", span.Status.Message)
	})
}
