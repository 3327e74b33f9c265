// Package filter decides which spans represent real application work and
// which are service-mesh sidecar duplicates of it.
package filter

import "github.com/tracescope/tracescope/pkg/trace/model"

// ServiceMeshFilter is a pure policy parameterized by the trace
// configuration. The same instance serves both the flat-metrics pass and the
// display-tree normalization pass.
type ServiceMeshFilter struct {
	config model.TraceConfig
}

func NewServiceMeshFilter(config model.TraceConfig) *ServiceMeshFilter {
	return &ServiceMeshFilter{config: config}
}

// IncludeServerSpan reports whether a SERVER span counts as an endpoint.
// With mesh inclusion off, a SERVER whose parent is also SERVER is a sidecar
// ingress duplicate; without gateway inclusion, only parent-is-CLIENT or
// root spans remain.
func (f *ServiceMeshFilter) IncludeServerSpan(kind model.SpanKind, parentKind model.SpanKind) bool {
	if kind != model.KindServer {
		return false
	}
	if f.config.IncludeServiceMesh {
		return true
	}
	include := parentKind != model.KindServer
	if !f.config.IncludeGatewayServices {
		include = parentKind == model.KindClient || parentKind == ""
	}
	return include
}

// IncludeClientSpan reports whether a CLIENT span counts as an outgoing
// service call. With mesh inclusion off, a CLIENT under a CLIENT is the
// app-to-sidecar egress duplicate.
func (f *ServiceMeshFilter) IncludeClientSpan(kind model.SpanKind, parentKind model.SpanKind) bool {
	if kind != model.KindClient {
		return false
	}
	if f.config.IncludeServiceMesh {
		return true
	}
	return parentKind != model.KindClient
}

// ShouldSkipNode reports whether a display-tree node is a liftable sidecar
// duplicate: same service as its parent and not an error. Error nodes are
// never skipped so failure visibility survives aggregation; the caller
// reattaches a skipped node's children to the grandparent.
func (f *ServiceMeshFilter) ShouldSkipNode(node, parent *model.Node) bool {
	if f.config.IncludeServiceMesh {
		return false
	}
	if node.IsError {
		return false
	}
	if parent == nil {
		return false
	}
	return node.ServiceName != "" && parent.ServiceName != "" &&
		node.ServiceName == parent.ServiceName
}
