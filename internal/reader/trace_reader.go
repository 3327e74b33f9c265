// Package reader streams OTLP JSON trace exports from disk without loading
// the whole file into memory.
package reader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tracescope/tracescope/pkg/trace/model"
)

// progressEvery controls how often batch progress is logged.
const progressEvery = 100

// flexInt64 accepts the OTLP JSON convention of encoding 64-bit integers as
// strings while still tolerating plain numbers.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*f = flexInt64(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt64(n)
	return nil
}

type jsonAnyValue struct {
	StringValue *string    `json:"stringValue"`
	IntValue    *flexInt64 `json:"intValue"`
	BoolValue   *bool      `json:"boolValue"`
}

type jsonAttribute struct {
	Key   string       `json:"key"`
	Value jsonAnyValue `json:"value"`
}

type jsonStatus struct {
	Code    flexInt64 `json:"code"`
	Message string    `json:"message"`
}

type jsonSpan struct {
	TraceID           string          `json:"traceId"`
	SpanID            string          `json:"spanId"`
	ParentSpanID      string          `json:"parentSpanId"`
	Name              string          `json:"name"`
	Kind              string          `json:"kind"`
	StartTimeUnixNano flexInt64       `json:"startTimeUnixNano"`
	EndTimeUnixNano   flexInt64       `json:"endTimeUnixNano"`
	Attributes        []jsonAttribute `json:"attributes"`
	Status            jsonStatus      `json:"status"`
}

type jsonScopeSpans struct {
	Spans []jsonSpan `json:"spans"`
}

type jsonResource struct {
	Attributes []jsonAttribute `json:"attributes"`
}

// jsonBatch covers both export vintages: newer files carry scopeSpans, older
// ones instrumentationLibrarySpans.
type jsonBatch struct {
	Resource                    jsonResource     `json:"resource"`
	ScopeSpans                  []jsonScopeSpans `json:"scopeSpans"`
	InstrumentationLibrarySpans []jsonScopeSpans `json:"instrumentationLibrarySpans"`
}

// TraceReader streams span batches from OTLP JSON export files.
type TraceReader struct {
	logger *zap.Logger
}

func NewTraceReader(logger *zap.Logger) *TraceReader {
	return &TraceReader{logger: logger}
}

// ReadFile parses one export file and returns its spans grouped by trace id.
// Spans without a span id are skipped.
func (r *TraceReader) ReadFile(path string) (map[string][]model.Span, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file %s: %w", path, err)
	}
	defer file.Close()

	traces, err := r.Read(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trace file %s: %w", path, err)
	}
	return traces, nil
}

// Read streams batches from the decoder one at a time, so memory scales with
// the largest batch rather than the whole file.
func (r *TraceReader) Read(input io.Reader) (map[string][]model.Span, error) {
	decoder := json.NewDecoder(input)
	traces := make(map[string][]model.Span)

	if err := expectDelim(decoder, '{'); err != nil {
		return nil, err
	}

	batchCount := 0
	spanCount := 0
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyToken)
		}
		if key != "batches" && key != "resourceSpans" {
			var skipped json.RawMessage
			if err := decoder.Decode(&skipped); err != nil {
				return nil, err
			}
			continue
		}

		if err := expectDelim(decoder, '['); err != nil {
			return nil, err
		}
		for decoder.More() {
			var batch jsonBatch
			if err := decoder.Decode(&batch); err != nil {
				return nil, fmt.Errorf("failed to decode batch %d: %w", batchCount, err)
			}
			spanCount += r.appendBatch(traces, &batch)
			batchCount++
			if batchCount%progressEvery == 0 {
				r.logger.Info("Reading trace batches",
					zap.Int("batches", batchCount),
					zap.Int("spans", spanCount),
				)
			}
		}
		if err := expectDelim(decoder, ']'); err != nil {
			return nil, err
		}
	}

	r.logger.Info("Finished reading traces",
		zap.Int("batches", batchCount),
		zap.Int("spans", spanCount),
		zap.Int("traces", len(traces)),
	)
	return traces, nil
}

func (r *TraceReader) appendBatch(traces map[string][]model.Span, batch *jsonBatch) int {
	serviceName := resourceServiceName(batch.Resource)

	scopes := batch.ScopeSpans
	if len(scopes) == 0 {
		scopes = batch.InstrumentationLibrarySpans
	}

	count := 0
	for _, scope := range scopes {
		for i := range scope.Spans {
			span := convertSpan(&scope.Spans[i], serviceName)
			if span.SpanID == "" {
				continue
			}
			traces[span.TraceID] = append(traces[span.TraceID], span)
			count++
		}
	}
	return count
}

func resourceServiceName(resource jsonResource) string {
	for _, attr := range resource.Attributes {
		if attr.Key == "service.name" && attr.Value.StringValue != nil {
			return *attr.Value.StringValue
		}
	}
	return "unknown-service"
}

func convertSpan(js *jsonSpan, serviceName string) model.Span {
	attributes := make(map[string]model.AttributeValue, len(js.Attributes))
	for _, attr := range js.Attributes {
		attributes[attr.Key] = convertAttributeValue(attr.Value)
	}

	return model.Span{
		TraceID:      js.TraceID,
		SpanID:       js.SpanID,
		ParentSpanID: js.ParentSpanID,
		ServiceName:  serviceName,
		Name:         js.Name,
		Kind:         model.SpanKind(js.Kind),
		StartTime:    nanosToTime(int64(js.StartTimeUnixNano)),
		EndTime:      nanosToTime(int64(js.EndTimeUnixNano)),
		Attributes:   attributes,
		Status: model.SpanStatus{
			Code:    int(js.Status.Code),
			Message: js.Status.Message,
		},
	}
}

func convertAttributeValue(value jsonAnyValue) model.AttributeValue {
	switch {
	case value.IntValue != nil:
		return model.IntAttribute(int64(*value.IntValue))
	case value.BoolValue != nil:
		return model.StringAttribute(strconv.FormatBool(*value.BoolValue))
	case value.StringValue != nil:
		return model.StringAttribute(*value.StringValue)
	default:
		return model.StringAttribute("")
	}
}

func nanosToTime(nanos int64) time.Time {
	return time.Unix(0, nanos)
}

func expectDelim(decoder *json.Decoder, want json.Delim) error {
	token, err := decoder.Token()
	if err != nil {
		return err
	}
	delim, ok := token.(json.Delim)
	if !ok || delim != want {
		return fmt.Errorf("expected %q in trace file, got %v", want, token)
	}
	return nil
}
