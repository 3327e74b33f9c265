package model

// TraceConfig holds the three analysis toggles. It is read-only for the
// duration of one analysis run and safe to share across workers.
type TraceConfig struct {
	// StripQueryParams removes query strings from URLs before normalization.
	StripQueryParams bool
	// IncludeGatewayServices counts services observed only via CLIENT spans
	// (pure proxies) as endpoint rows.
	IncludeGatewayServices bool
	// IncludeServiceMesh keeps sidecar duplicate spans in both the flat
	// tables and the display hierarchy.
	IncludeServiceMesh bool
}

// DefaultTraceConfig returns the recommended settings: strip query strings,
// hide pure gateways, filter sidecar duplicates.
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		StripQueryParams:       true,
		IncludeGatewayServices: false,
		IncludeServiceMesh:     false,
	}
}
