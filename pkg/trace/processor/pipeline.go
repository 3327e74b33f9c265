package processor

import (
	"github.com/tracescope/tracescope/pkg/trace/extractor"
	"github.com/tracescope/tracescope/pkg/trace/filter"
	"github.com/tracescope/tracescope/pkg/trace/format"
	"github.com/tracescope/tracescope/pkg/trace/model"
)

// Pipeline bundles the per-trace stages. Instances hold only configuration
// and compiled regexes, so one pipeline per worker avoids contention without
// any locking.
type Pipeline struct {
	builder    *HierarchyBuilder
	timing     *TimingCalculator
	populator  *MetricsPopulator
	normalizer *HierarchyNormalizer
}

func NewPipeline(config model.TraceConfig) *Pipeline {
	pathNormalizer := extractor.NewPathNormalizer()
	meshFilter := filter.NewServiceMeshFilter(config)
	aggregator := NewNodeAggregator(config, pathNormalizer)
	return &Pipeline{
		builder:    NewHierarchyBuilder(),
		timing:     NewTimingCalculator(aggregator),
		populator:  NewMetricsPopulator(config, pathNormalizer, meshFilter),
		normalizer: NewHierarchyNormalizer(config, pathNormalizer, meshFilter),
	}
}

// ProcessTrace runs one trace through every stage and returns its result.
// Flat metrics are populated before display normalization so that lifting and
// aggregation cannot distort the tables.
func (p *Pipeline) ProcessTrace(traceID string, spans []model.Span) *model.TraceResult {
	root, nodes := p.builder.Build(spans)

	p.timing.CalculateHierarchyTimings(root)

	endpoints, serviceCalls, kafka, effective := p.populator.Populate(nodes)

	hierarchy := p.normalizer.NormalizeAndAggregate(root)

	return &model.TraceResult{
		TraceID:        traceID,
		Hierarchy:      hierarchy,
		Summary:        summarize(spans),
		Endpoints:      endpoints,
		ServiceCalls:   serviceCalls,
		Kafka:          kafka,
		EffectiveTimes: effective,
	}
}

// summarize computes the trace's wall-clock window from the raw spans.
func summarize(spans []model.Span) model.TraceSummary {
	var startNs, endNs int64
	count := 0
	for i := range spans {
		span := &spans[i]
		if span.SpanID == "" {
			continue
		}
		count++
		s, e := span.StartTime.UnixNano(), span.EndTime.UnixNano()
		if s > 0 && (startNs == 0 || s < startNs) {
			startNs = s
		}
		if e > endNs {
			endNs = e
		}
	}

	durationMs := 0.0
	if endNs > startNs && startNs > 0 {
		durationMs = float64(endNs-startNs) / 1e6
	}
	return model.TraceSummary{
		StartTimeUnixNano:   startNs,
		EndTimeUnixNano:     endNs,
		WallClockDurationMs: durationMs,
		WallClockFormatted:  format.Duration(durationMs),
		SpanCount:           count,
	}
}
