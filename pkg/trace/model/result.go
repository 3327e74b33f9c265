package model

// TraceSummary describes one trace's overall time window.
type TraceSummary struct {
	StartTimeUnixNano   int64   `json:"start_time_unix_nano"`
	EndTimeUnixNano     int64   `json:"end_time_unix_nano"`
	WallClockDurationMs float64 `json:"wall_clock_duration_ms"`
	WallClockFormatted  string  `json:"wall_clock_duration_formatted"`
	SpanCount           int     `json:"span_count"`
}

// TraceResult is the output of analyzing a single trace. Results are
// immutable once produced; the orchestrator folds them into AnalysisResult.
type TraceResult struct {
	TraceID        string
	Hierarchy      *Node
	Summary        TraceSummary
	Endpoints      map[EndpointKey]*EndpointStats
	ServiceCalls   map[ServiceCallKey]*EndpointStats
	Kafka          map[KafkaKey]*KafkaStats
	EffectiveTimes *EffectiveTimes
}

// AnalysisResult is the accumulated output over all traces in a run.
type AnalysisResult struct {
	Endpoints        map[EndpointKey]*EndpointStats    `json:"endpoints"`
	ServiceCalls     map[ServiceCallKey]*EndpointStats `json:"service_calls"`
	Kafka            map[KafkaKey]*KafkaStats          `json:"kafka"`
	EffectiveTimes   *EffectiveTimes                   `json:"effective_times"`
	TraceHierarchies map[string]*Node                  `json:"trace_hierarchies"`
	TraceSummaries   map[string]TraceSummary           `json:"trace_summaries"`
}

func NewAnalysisResult() *AnalysisResult {
	return &AnalysisResult{
		Endpoints:        make(map[EndpointKey]*EndpointStats),
		ServiceCalls:     make(map[ServiceCallKey]*EndpointStats),
		Kafka:            make(map[KafkaKey]*KafkaStats),
		EffectiveTimes:   NewEffectiveTimes(),
		TraceHierarchies: make(map[string]*Node),
		TraceSummaries:   make(map[string]TraceSummary),
	}
}

// Fold merges one trace's results into the running totals. Addition of
// counts and times and set-union of error messages are commutative, so the
// final totals do not depend on completion order.
func (r *AnalysisResult) Fold(tr *TraceResult) {
	for key, stats := range tr.Endpoints {
		existing, ok := r.Endpoints[key]
		if !ok {
			existing = NewEndpointStats()
			r.Endpoints[key] = existing
		}
		existing.Merge(stats)
	}
	for key, stats := range tr.ServiceCalls {
		existing, ok := r.ServiceCalls[key]
		if !ok {
			existing = NewEndpointStats()
			r.ServiceCalls[key] = existing
		}
		existing.Merge(stats)
	}
	for key, stats := range tr.Kafka {
		existing, ok := r.Kafka[key]
		if !ok {
			existing = NewKafkaStats()
			r.Kafka[key] = existing
		}
		existing.Merge(stats)
	}
	if tr.EffectiveTimes != nil {
		r.EffectiveTimes.Merge(tr.EffectiveTimes)
	}
	r.TraceHierarchies[tr.TraceID] = tr.Hierarchy
	r.TraceSummaries[tr.TraceID] = tr.Summary
}
