package processor

import (
	"github.com/tracescope/tracescope/pkg/trace/extractor"
	"github.com/tracescope/tracescope/pkg/trace/filter"
	"github.com/tracescope/tracescope/pkg/trace/model"
	"github.com/tracescope/tracescope/pkg/trace/timing"
)

// MetricsPopulator builds the flat statistical tables from the per-span node
// map. It reads raw spans, not the display tree, so display aggregation can
// never distort the counts.
type MetricsPopulator struct {
	config         model.TraceConfig
	pathNormalizer *extractor.PathNormalizer
	meshFilter     *filter.ServiceMeshFilter
}

func NewMetricsPopulator(
	config model.TraceConfig,
	pathNormalizer *extractor.PathNormalizer,
	meshFilter *filter.ServiceMeshFilter,
) *MetricsPopulator {
	return &MetricsPopulator{
		config:         config,
		pathNormalizer: pathNormalizer,
		meshFilter:     meshFilter,
	}
}

// Populate walks the flat node map once and returns the endpoint, service
// call, and messaging tables plus the per-key effective times for this trace.
// Effective times are the merged-interval wall clock per key, so a fan-out of
// concurrent identical calls contributes its overlap only once.
func (p *MetricsPopulator) Populate(nodes map[string]*model.Node) (
	map[model.EndpointKey]*model.EndpointStats,
	map[model.ServiceCallKey]*model.EndpointStats,
	map[model.KafkaKey]*model.KafkaStats,
	*model.EffectiveTimes,
) {
	endpoints := make(map[model.EndpointKey]*model.EndpointStats)
	serviceCalls := make(map[model.ServiceCallKey]*model.EndpointStats)
	kafka := make(map[model.KafkaKey]*model.KafkaStats)

	endpointIntervals := make(map[model.EndpointKey][]timing.Interval)
	callIntervals := make(map[model.ServiceCallKey][]timing.Interval)
	kafkaIntervals := make(map[model.KafkaKey][]timing.Interval)
	serviceIntervals := make(map[string][]timing.Interval)

	gatewayServices := p.gatewayServices(nodes)

	for _, node := range nodes {
		span := node.Span
		if span == nil {
			continue
		}
		parentKind := p.parentKind(nodes, span)

		start, end, hasInterval := node.Interval()
		addInterval := func(record func(timing.Interval)) {
			if hasInterval {
				record(timing.Interval{Start: start, End: end})
			}
		}

		if span.Kind == model.KindServer {
			if p.meshFilter.IncludeServerSpan(span.Kind, parentKind) {
				key, ok := p.endpointKey(span, span.ServiceName)
				if !ok {
					continue
				}
				stats := endpoints[key]
				if stats == nil {
					stats = model.NewEndpointStats()
					endpoints[key] = stats
				}
				stats.Add(node.TotalTimeMs, node.SelfTimeMs, node.IsError, node.ErrorMessage)
				addInterval(func(iv timing.Interval) {
					endpointIntervals[key] = append(endpointIntervals[key], iv)
					serviceIntervals[span.ServiceName] = append(serviceIntervals[span.ServiceName], iv)
				})
			}
		} else if span.Kind == model.KindClient {
			// A CLIENT span of a pure-proxy service doubles as that service's
			// endpoint row when gateways are included. This is independent of
			// the egress duplicate filter, which gates only the service-call
			// table.
			if p.config.IncludeGatewayServices && gatewayServices[span.ServiceName] {
				epKey, ok := p.endpointKey(span, span.ServiceName)
				if ok {
					epStats := endpoints[epKey]
					if epStats == nil {
						epStats = model.NewEndpointStats()
						endpoints[epKey] = epStats
					}
					epStats.Add(node.TotalTimeMs, node.SelfTimeMs, node.IsError, node.ErrorMessage)
					addInterval(func(iv timing.Interval) {
						endpointIntervals[epKey] = append(endpointIntervals[epKey], iv)
					})
				}
			}

			if p.meshFilter.IncludeClientSpan(span.Kind, parentKind) {
				httpPath := extractor.ExtractHTTPPath(span)
				if httpPath == "" {
					continue
				}
				callee := extractor.ExtractTargetServiceFromURL(httpPath)
				method, path, param := p.normalizedIdentity(span, httpPath)
				key := model.ServiceCallKey{
					Caller:    span.ServiceName,
					Callee:    callee,
					Method:    method,
					Path:      path,
					Parameter: param,
				}
				stats := serviceCalls[key]
				if stats == nil {
					stats = model.NewEndpointStats()
					serviceCalls[key] = stats
				}
				stats.Add(node.TotalTimeMs, node.SelfTimeMs, node.IsError, node.ErrorMessage)
				addInterval(func(iv timing.Interval) {
					callIntervals[key] = append(callIntervals[key], iv)
					serviceIntervals[span.ServiceName] = append(serviceIntervals[span.ServiceName], iv)
				})
			}
		} else if span.Kind == model.KindProducer || span.Kind == model.KindConsumer {
			if extractor.ExtractHTTPPath(span) != "" {
				continue
			}
			operation, name, details := extractor.ExtractKafkaInfo(span)
			key := model.KafkaKey{
				Service:   span.ServiceName,
				Operation: operation,
				Name:      name,
				Details:   details,
			}
			stats := kafka[key]
			if stats == nil {
				stats = model.NewKafkaStats()
				kafka[key] = stats
			}
			stats.Add(node.TotalTimeMs, node.IsError, node.ErrorMessage)
			addInterval(func(iv timing.Interval) {
				kafkaIntervals[key] = append(kafkaIntervals[key], iv)
				serviceIntervals[span.ServiceName] = append(serviceIntervals[span.ServiceName], iv)
			})
		}
	}

	effective := model.NewEffectiveTimes()
	for key, intervals := range endpointIntervals {
		effective.Endpoints[key] = timing.EffectiveMs(intervals)
	}
	for key, intervals := range callIntervals {
		effective.ServiceCalls[key] = timing.EffectiveMs(intervals)
	}
	for key, intervals := range kafkaIntervals {
		effective.Kafka[key] = timing.EffectiveMs(intervals)
	}
	for service, intervals := range serviceIntervals {
		effective.Services[service] = timing.EffectiveMs(intervals)
	}

	return endpoints, serviceCalls, kafka, effective
}

// gatewayServices pre-computes the services observed only via CLIENT spans.
func (p *MetricsPopulator) gatewayServices(nodes map[string]*model.Node) map[string]bool {
	if !p.config.IncludeGatewayServices {
		return nil
	}
	hasServer := make(map[string]bool)
	hasClient := make(map[string]bool)
	for _, node := range nodes {
		if node.Span == nil {
			continue
		}
		switch node.Span.Kind {
		case model.KindServer:
			hasServer[node.Span.ServiceName] = true
		case model.KindClient:
			hasClient[node.Span.ServiceName] = true
		}
	}
	gateways := make(map[string]bool)
	for service := range hasClient {
		if !hasServer[service] {
			gateways[service] = true
		}
	}
	return gateways
}

func (p *MetricsPopulator) parentKind(nodes map[string]*model.Node, span *model.Span) model.SpanKind {
	if span.ParentSpanID == "" {
		return ""
	}
	parent, ok := nodes[span.ParentSpanID]
	if !ok || parent.Span == nil {
		return ""
	}
	return parent.Span.Kind
}

// endpointKey builds the endpoint identity for an HTTP span. The flat tables
// keep an explicit UNKNOWN method rather than guessing one.
func (p *MetricsPopulator) endpointKey(span *model.Span, service string) (model.EndpointKey, bool) {
	httpPath := extractor.ExtractHTTPPath(span)
	if httpPath == "" {
		return model.EndpointKey{}, false
	}
	method, path, param := p.normalizedIdentity(span, httpPath)
	return model.EndpointKey{
		Service:   service,
		Method:    method,
		Path:      path,
		Parameter: param,
	}, true
}

func (p *MetricsPopulator) normalizedIdentity(span *model.Span, httpPath string) (method, path, param string) {
	method = extractor.ExtractHTTPMethod(span)
	if method == "" {
		method = extractor.MethodFromSpanName(span.Name)
	}
	if method == "" {
		method = "UNKNOWN"
	}

	// Flat tables key on the first extracted parameter only; later parameters
	// vary per call and would fragment the aggregation.
	path, params := p.pathNormalizer.Normalize(httpPath, p.config.StripQueryParams)
	param = model.NoParams
	if len(params) > 0 {
		param = params[0]
	}
	return method, path, param
}
