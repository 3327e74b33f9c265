package otel

import (
	"context"
	"encoding/hex"
	"time"

	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"

	"github.com/tracescope/tracescope/pkg/trace/model"
)

type TraceServiceServerImpl struct {
	protoTrace.UnimplementedTraceServiceServer
	cache  TraceCache
	logger *zap.Logger
}

func NewTraceServiceServerImpl(
	logger *zap.Logger,
	cache TraceCache,
) TraceServiceServerImpl {
	logger.Info("Creating new TraceServiceServerImpl")
	return TraceServiceServerImpl{
		logger: logger,
		cache:  cache,
	}
}

func (tss TraceServiceServerImpl) Export(
	ctx context.Context,
	req *protoTrace.ExportTraceServiceRequest,
) (*protoTrace.ExportTraceServiceResponse, error) {
	for _, resourceSpan := range req.ResourceSpans {
		serviceName := getServiceName(resourceSpan)
		if serviceName == "Never Assigned" {
			tss.logger.Warn("Service name not found in resource span")
		}

		byTrace := getTypedSpans(resourceSpan, serviceName)
		for traceID, spans := range byTrace {
			if err := tss.cache.Put(traceID, spans); err != nil {
				tss.logger.Error("Failed to buffer spans",
					zap.String("trace_id", traceID),
					zap.Error(err),
				)
			}
		}
	}

	return &protoTrace.ExportTraceServiceResponse{}, nil
}

func getServiceName(resourceSpan *v1.ResourceSpans) string {
	var serviceName = "Never Assigned"
	for _, attr := range resourceSpan.Resource.Attributes {
		if attr.Key == "service.name" {
			serviceName = attr.Value.GetStringValue()
		}
	}
	return serviceName
}

func getTypedSpans(resourceSpan *v1.ResourceSpans, serviceName string) map[string][]model.Span {
	byTrace := make(map[string][]model.Span)
	for _, scopeSpan := range resourceSpan.ScopeSpans {
		for _, span := range scopeSpan.Spans {
			typed := getTypedSpan(span, serviceName)
			byTrace[typed.TraceID] = append(byTrace[typed.TraceID], typed)
		}
	}
	return byTrace
}

func getTypedSpan(span *v1.Span, serviceName string) model.Span {
	return model.Span{
		TraceID:      hex.EncodeToString(span.TraceId),
		SpanID:       hex.EncodeToString(span.SpanId),
		ParentSpanID: hex.EncodeToString(span.ParentSpanId),
		ServiceName:  serviceName,
		Name:         span.Name,
		Kind:         model.SpanKind(span.Kind.String()),
		StartTime:    time.Unix(0, int64(span.StartTimeUnixNano)),
		EndTime:      time.Unix(0, int64(span.EndTimeUnixNano)),
		Attributes:   getAttributes(span),
		Status:       getStatus(span),
	}
}

func getAttributes(span *v1.Span) map[string]model.AttributeValue {
	attributes := make(map[string]model.AttributeValue)
	for _, attribute := range span.Attributes {
		attributes[attribute.Key] = getAttributeValue(attribute.Value)
	}
	return attributes
}

func getAttributeValue(value *commonv1.AnyValue) model.AttributeValue {
	if value == nil {
		return model.StringAttribute("")
	}
	if _, ok := value.Value.(*commonv1.AnyValue_IntValue); ok {
		return model.IntAttribute(value.GetIntValue())
	}
	return model.StringAttribute(value.GetStringValue())
}

// getStatus maps the wire status onto the analyzer's convention, where any
// non-zero code marks an error. The wire enum uses 1 for OK, so it collapses
// to unset here.
func getStatus(span *v1.Span) model.SpanStatus {
	if span.Status == nil || span.Status.Code == v1.Status_STATUS_CODE_UNSET ||
		span.Status.Code == v1.Status_STATUS_CODE_OK {
		return model.SpanStatus{}
	}
	return model.SpanStatus{
		Code:    2,
		Message: span.Status.Message,
	}
}
