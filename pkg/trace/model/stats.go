package model

// EndpointKey identifies one normalized incoming-request shape. The first
// extracted parameter (or the no-params sentinel) is part of the identity so
// that calls differing only in literal parameter values still group together
// while the parameter stays visible.
type EndpointKey struct {
	Service   string `json:"service"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Parameter string `json:"parameter"`
}

// ServiceCallKey identifies one normalized outgoing call shape.
type ServiceCallKey struct {
	Caller    string `json:"caller"`
	Callee    string `json:"callee"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Parameter string `json:"parameter"`
}

// KafkaKey identifies one messaging operation shape.
type KafkaKey struct {
	Service   string `json:"service"`
	Operation string `json:"operation"`
	Name      string `json:"name"`
	Details   string `json:"details"`
}

// NoParams is the sentinel used when a normalized path extracted no
// parameter values.
const NoParams = "[no-params]"

// NoDetails is the sentinel used when a messaging span carried none of the
// recognized detail attributes.
const NoDetails = "[no-details]"

type EndpointStats struct {
	Count           int            `json:"count"`
	TotalTimeMs     float64        `json:"total_time_ms"`
	TotalSelfTimeMs float64        `json:"total_self_time_ms"`
	ErrorCount      int            `json:"error_count"`
	ErrorMessages   map[string]int `json:"error_messages"`
}

func NewEndpointStats() *EndpointStats {
	return &EndpointStats{ErrorMessages: make(map[string]int)}
}

func (s *EndpointStats) Add(totalMs, selfMs float64, isError bool, errorMessage string) {
	s.Count++
	s.TotalTimeMs += totalMs
	s.TotalSelfTimeMs += selfMs
	if isError && errorMessage != "" {
		s.ErrorCount++
		s.ErrorMessages[errorMessage]++
	}
}

func (s *EndpointStats) Merge(other *EndpointStats) {
	s.Count += other.Count
	s.TotalTimeMs += other.TotalTimeMs
	s.TotalSelfTimeMs += other.TotalSelfTimeMs
	s.ErrorCount += other.ErrorCount
	for msg, count := range other.ErrorMessages {
		s.ErrorMessages[msg] += count
	}
}

type KafkaStats struct {
	Count         int            `json:"count"`
	TotalTimeMs   float64        `json:"total_time_ms"`
	ErrorCount    int            `json:"error_count"`
	ErrorMessages map[string]int `json:"error_messages"`
}

func NewKafkaStats() *KafkaStats {
	return &KafkaStats{ErrorMessages: make(map[string]int)}
}

func (s *KafkaStats) Add(totalMs float64, isError bool, errorMessage string) {
	s.Count++
	s.TotalTimeMs += totalMs
	if isError && errorMessage != "" {
		s.ErrorCount++
		s.ErrorMessages[errorMessage]++
	}
}

func (s *KafkaStats) Merge(other *KafkaStats) {
	s.Count += other.Count
	s.TotalTimeMs += other.TotalTimeMs
	s.ErrorCount += other.ErrorCount
	for msg, count := range other.ErrorMessages {
		s.ErrorMessages[msg] += count
	}
}

// EffectiveTimes carries per-key wall-clock times, produced by merging the
// contributing spans' intervals within each trace and summing across traces.
type EffectiveTimes struct {
	Endpoints    map[EndpointKey]float64    `json:"endpoints"`
	ServiceCalls map[ServiceCallKey]float64 `json:"service_calls"`
	Kafka        map[KafkaKey]float64       `json:"kafka"`
	Services     map[string]float64         `json:"services"`
}

func NewEffectiveTimes() *EffectiveTimes {
	return &EffectiveTimes{
		Endpoints:    make(map[EndpointKey]float64),
		ServiceCalls: make(map[ServiceCallKey]float64),
		Kafka:        make(map[KafkaKey]float64),
		Services:     make(map[string]float64),
	}
}

func (e *EffectiveTimes) Merge(other *EffectiveTimes) {
	for k, v := range other.Endpoints {
		e.Endpoints[k] += v
	}
	for k, v := range other.ServiceCalls {
		e.ServiceCalls[k] += v
	}
	for k, v := range other.Kafka {
		e.Kafka[k] += v
	}
	for k, v := range other.Services {
		e.Services[k] += v
	}
}
