package model

// Node is one element of a trace hierarchy. It wraps a single span or, when
// Aggregated is set, stands in for a group of siblings that share an
// identity. Nodes are mutated in place by the timing, aggregation, and
// normalization passes and discarded once the per-trace results have been
// folded into the analysis totals.
type Node struct {
	Span        *Span  `json:"-"`
	Name        string `json:"name"`
	ServiceName string `json:"service_name"`

	Children []*Node `json:"children,omitempty"`

	TotalTimeMs float64 `json:"total_time_ms"`
	SelfTimeMs  float64 `json:"self_time_ms"`
	StartTimeNs int64   `json:"start_time_ns,omitempty"`
	EndTimeNs   int64   `json:"end_time_ns,omitempty"`

	IsError        bool   `json:"is_error"`
	ErrorMessage   string `json:"error_message,omitempty"`
	HTTPStatusCode int    `json:"http_status_code,omitempty"`
	ErrorCount     int    `json:"error_count,omitempty"`

	// Display identity, filled in lazily by the aggregation passes.
	HTTPMethod      string `json:"http_method,omitempty"`
	NormalizedPath  string `json:"normalized_path,omitempty"`
	ParameterValue  string `json:"parameter_value,omitempty"`
	displayResolved bool

	// Aggregate-only fields.
	Aggregated        bool    `json:"aggregated"`
	Count             int     `json:"count"`
	AvgTimeMs         float64 `json:"avg_time_ms,omitempty"`
	EffectiveTimeMs   float64 `json:"effective_time_ms,omitempty"`
	ParallelismFactor float64 `json:"parallelism_factor,omitempty"`

	// Child timing diagnostics recorded by the timing pass.
	ChildCumulativeMs float64 `json:"child_cumulative_ms,omitempty"`
	ChildEffectiveMs  float64 `json:"child_effective_ms,omitempty"`
	ChildParallelism  float64 `json:"child_parallelism,omitempty"`

	// Fan-out and sibling parallelism markers set during normalization.
	HasParallelChildren      bool    `json:"has_parallel_children,omitempty"`
	SiblingParallelism       bool    `json:"sibling_parallelism,omitempty"`
	SiblingParallelismFactor float64 `json:"sibling_parallelism_factor,omitempty"`
	ParallelSiblingCount     int     `json:"parallel_sibling_count,omitempty"`
	SiblingEffectiveTimeMs   float64 `json:"sibling_effective_time_ms,omitempty"`
	SiblingCumulativeTimeMs  float64 `json:"sibling_cumulative_time_ms,omitempty"`
	IsParallelSibling        bool    `json:"is_parallel_sibling,omitempty"`

	// Position inside the parent's time window, for rendering.
	TimelineStartPct float64 `json:"timeline_start_pct,omitempty"`
	TimelineWidthPct float64 `json:"timeline_width_pct,omitempty"`
}

// Interval returns the node's [start,end) time bounds in nanoseconds and
// whether they are usable for interval arithmetic.
func (n *Node) Interval() (start, end int64, ok bool) {
	if n.StartTimeNs > 0 && n.EndTimeNs > n.StartTimeNs {
		return n.StartTimeNs, n.EndTimeNs, true
	}
	return 0, 0, false
}

// SetDisplayIdentity memoizes the HTTP display identity so later passes do
// not recompute normalization for the same node.
func (n *Node) SetDisplayIdentity(method, path, param string) {
	n.HTTPMethod = method
	n.NormalizedPath = path
	n.ParameterValue = param
	n.displayResolved = true
}

func (n *Node) DisplayIdentityResolved() bool {
	return n.displayResolved
}
