// Package result shapes an analysis into the structure the web views and
// shares render.
package result

import (
	"fmt"
	"sort"

	"github.com/tracescope/tracescope/pkg/trace/format"
	"github.com/tracescope/tracescope/pkg/trace/model"
)

// displayParallelismThreshold is the bar for highlighting a row as parallel in
// the rendered tables.
const displayParallelismThreshold = 1.15

type ErrorMessageCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type EndpointRow struct {
	HTTPMethod             string              `json:"http_method"`
	Endpoint               string              `json:"endpoint"`
	Parameter              string              `json:"parameter"`
	Count                  int                 `json:"count"`
	TotalTimeMs            float64             `json:"total_time_ms"`
	TotalTimeFormatted     string              `json:"total_time_formatted"`
	EffectiveTimeMs        float64             `json:"effective_time_ms"`
	EffectiveTimeFormatted string              `json:"effective_time_formatted"`
	ParallelismFactor      float64             `json:"parallelism_factor"`
	HasParallelism         bool                `json:"has_parallelism"`
	TotalSelfTimeMs        float64             `json:"total_self_time_ms"`
	TotalSelfTimeFormatted string              `json:"total_self_time_formatted"`
	ErrorCount             int                 `json:"error_count"`
	ErrorMessages          []ErrorMessageCount `json:"error_messages"`
}

type ServiceSummary struct {
	Name                   string  `json:"name"`
	RequestCount           int     `json:"request_count"`
	TotalTimeMs            float64 `json:"total_time_ms"`
	TotalTimeFormatted     string  `json:"total_time_formatted"`
	EffectiveTimeMs        float64 `json:"effective_time_ms"`
	EffectiveTimeFormatted string  `json:"effective_time_formatted"`
	ParallelismFactor      float64 `json:"parallelism_factor"`
	HasParallelism         bool    `json:"has_parallelism"`
	TotalSelfTimeMs        float64 `json:"total_self_time_ms"`
	TotalSelfTimeFormatted string  `json:"total_self_time_formatted"`
	UniqueCombinations     int     `json:"unique_combinations"`
}

type ServiceCallGroup struct {
	Caller                 string        `json:"caller"`
	Callee                 string        `json:"callee"`
	TotalCalls             int           `json:"total_calls"`
	TotalTimeMs            float64       `json:"total_time_ms"`
	TotalTimeFormatted     string        `json:"total_time_formatted"`
	EffectiveTimeMs        float64       `json:"effective_time_ms"`
	EffectiveTimeFormatted string        `json:"effective_time_formatted"`
	ParallelismFactor      float64       `json:"parallelism_factor"`
	HasParallelism         bool          `json:"has_parallelism"`
	TotalSelfTimeMs        float64       `json:"total_self_time_ms"`
	TotalSelfTimeFormatted string        `json:"total_self_time_formatted"`
	Calls                  []EndpointRow `json:"calls"`
}

type KafkaRow struct {
	Operation              string              `json:"operation"`
	MessageType            string              `json:"message_type"`
	Details                string              `json:"details"`
	Count                  int                 `json:"count"`
	TotalTimeMs            float64             `json:"total_time_ms"`
	TotalTimeFormatted     string              `json:"total_time_formatted"`
	EffectiveTimeMs        float64             `json:"effective_time_ms"`
	EffectiveTimeFormatted string              `json:"effective_time_formatted"`
	ParallelismFactor      float64             `json:"parallelism_factor"`
	HasParallelism         bool                `json:"has_parallelism"`
	ErrorCount             int                 `json:"error_count"`
	ErrorMessages          []ErrorMessageCount `json:"error_messages"`
}

type KafkaServiceGroup struct {
	Service                string     `json:"service"`
	TotalOperations        int        `json:"total_operations"`
	TotalTimeMs            float64    `json:"total_time_ms"`
	TotalTimeFormatted     string     `json:"total_time_formatted"`
	EffectiveTimeMs        float64    `json:"effective_time_ms"`
	EffectiveTimeFormatted string     `json:"effective_time_formatted"`
	ParallelismFactor      float64    `json:"parallelism_factor"`
	HasParallelism         bool       `json:"has_parallelism"`
	Operations             []KafkaRow `json:"operations"`
}

type ErrorEntry struct {
	Type        string              `json:"type"`
	HTTPMethod  string              `json:"http_method"`
	Endpoint    string              `json:"endpoint"`
	Parameter   string              `json:"parameter"`
	ErrorCount  int                 `json:"error_count"`
	TopMessages []ErrorMessageCount `json:"top_messages"`
}

type Summary struct {
	TotalRequests           int     `json:"total_requests"`
	TotalTimeMs             float64 `json:"total_time_ms"`
	TotalTimeFormatted      string  `json:"total_time_formatted"`
	UniqueServices          int     `json:"unique_services"`
	UniqueEndpoints         int     `json:"unique_endpoints"`
	UniqueCombinations      int     `json:"unique_combinations"`
	TotalKafkaOperations    int     `json:"total_kafka_operations"`
	TotalKafkaTimeMs        float64 `json:"total_kafka_time_ms"`
	TotalKafkaTimeFormatted string  `json:"total_kafka_time_formatted"`
	TotalTraces             int     `json:"total_traces"`
	TotalErrors             int     `json:"total_errors"`
}

type Results struct {
	Summary          Summary                       `json:"summary"`
	ServicesSummary  []ServiceSummary              `json:"services_summary"`
	ServiceDetails   map[string][]EndpointRow      `json:"services"`
	ServiceCalls     []ServiceCallGroup            `json:"service_calls"`
	KafkaOperations  []KafkaServiceGroup           `json:"kafka_operations"`
	ErrorAnalysis    map[string][]ErrorEntry       `json:"error_analysis"`
	TraceHierarchies map[string]*model.Node        `json:"trace_hierarchies"`
	TraceSummaries   map[string]model.TraceSummary `json:"trace_summary"`
}

// Build converts the folded analysis into the view structure. All slices come
// out sorted by descending cumulative time so renders are deterministic.
func Build(analysis *model.AnalysisResult) *Results {
	serviceDetails := buildServiceDetails(analysis)
	servicesSummary := buildServicesSummary(serviceDetails, analysis)
	serviceCalls := buildServiceCalls(analysis)
	kafkaOperations := buildKafkaOperations(analysis)
	errorAnalysis := buildErrorAnalysis(serviceDetails, serviceCalls, kafkaOperations)

	return &Results{
		Summary:          buildSummary(analysis, serviceDetails, errorAnalysis),
		ServicesSummary:  servicesSummary,
		ServiceDetails:   serviceDetails,
		ServiceCalls:     serviceCalls,
		KafkaOperations:  kafkaOperations,
		ErrorAnalysis:    errorAnalysis,
		TraceHierarchies: analysis.TraceHierarchies,
		TraceSummaries:   analysis.TraceSummaries,
	}
}

func buildServiceDetails(analysis *model.AnalysisResult) map[string][]EndpointRow {
	details := make(map[string][]EndpointRow)
	for key, stats := range analysis.Endpoints {
		effTime, ok := analysis.EffectiveTimes.Endpoints[key]
		if !ok {
			effTime = stats.TotalTimeMs
		}
		parallelism := parallelismFactor(stats.TotalTimeMs, effTime)

		details[key.Service] = append(details[key.Service], EndpointRow{
			HTTPMethod:             key.Method,
			Endpoint:               key.Path,
			Parameter:              key.Parameter,
			Count:                  stats.Count,
			TotalTimeMs:            stats.TotalTimeMs,
			TotalTimeFormatted:     format.Duration(stats.TotalTimeMs),
			EffectiveTimeMs:        effTime,
			EffectiveTimeFormatted: format.Duration(effTime),
			ParallelismFactor:      parallelism,
			HasParallelism:         parallelism > displayParallelismThreshold && stats.Count > 1,
			TotalSelfTimeMs:        stats.TotalSelfTimeMs,
			TotalSelfTimeFormatted: format.Duration(stats.TotalSelfTimeMs),
			ErrorCount:             stats.ErrorCount,
			ErrorMessages:          sortedErrorMessages(stats.ErrorMessages),
		})
	}
	for service := range details {
		sortRowsByTime(details[service])
	}
	return details
}

func buildServicesSummary(details map[string][]EndpointRow, analysis *model.AnalysisResult) []ServiceSummary {
	summary := make([]ServiceSummary, 0, len(details))
	for service, endpoints := range details {
		var totalCount int
		var totalTime, totalSelfTime float64
		for _, e := range endpoints {
			totalCount += e.Count
			totalTime += e.TotalTimeMs
			totalSelfTime += e.TotalSelfTimeMs
		}

		effTime, ok := analysis.EffectiveTimes.Services[service]
		if !ok {
			effTime = totalTime
		}
		parallelism := parallelismFactor(totalTime, effTime)

		summary = append(summary, ServiceSummary{
			Name:                   service,
			RequestCount:           totalCount,
			TotalTimeMs:            totalTime,
			TotalTimeFormatted:     format.Duration(totalTime),
			EffectiveTimeMs:        effTime,
			EffectiveTimeFormatted: format.Duration(effTime),
			ParallelismFactor:      parallelism,
			HasParallelism:         parallelism > displayParallelismThreshold && totalCount > 1,
			TotalSelfTimeMs:        totalSelfTime,
			TotalSelfTimeFormatted: format.Duration(totalSelfTime),
			UniqueCombinations:     len(endpoints),
		})
	}
	sort.SliceStable(summary, func(i, j int) bool {
		if summary[i].TotalTimeMs != summary[j].TotalTimeMs {
			return summary[i].TotalTimeMs > summary[j].TotalTimeMs
		}
		return summary[i].Name < summary[j].Name
	})
	return summary
}

func buildServiceCalls(analysis *model.AnalysisResult) []ServiceCallGroup {
	type pair struct{ caller, callee string }
	grouped := make(map[pair][]EndpointRow)
	for key, stats := range analysis.ServiceCalls {
		effTime, ok := analysis.EffectiveTimes.ServiceCalls[key]
		if !ok {
			effTime = stats.TotalTimeMs
		}
		parallelism := parallelismFactor(stats.TotalTimeMs, effTime)

		p := pair{caller: key.Caller, callee: key.Callee}
		grouped[p] = append(grouped[p], EndpointRow{
			HTTPMethod:             key.Method,
			Endpoint:               key.Path,
			Parameter:              key.Parameter,
			Count:                  stats.Count,
			TotalTimeMs:            stats.TotalTimeMs,
			TotalTimeFormatted:     format.Duration(stats.TotalTimeMs),
			EffectiveTimeMs:        effTime,
			EffectiveTimeFormatted: format.Duration(effTime),
			ParallelismFactor:      parallelism,
			HasParallelism:         parallelism > displayParallelismThreshold && stats.Count > 1,
			TotalSelfTimeMs:        stats.TotalSelfTimeMs,
			TotalSelfTimeFormatted: format.Duration(stats.TotalSelfTimeMs),
			ErrorCount:             stats.ErrorCount,
			ErrorMessages:          sortedErrorMessages(stats.ErrorMessages),
		})
	}

	groups := make([]ServiceCallGroup, 0, len(grouped))
	for p, calls := range grouped {
		sortRowsByTime(calls)
		var totalCount int
		var totalTime, totalSelfTime, effTime float64
		for _, c := range calls {
			totalCount += c.Count
			totalTime += c.TotalTimeMs
			totalSelfTime += c.TotalSelfTimeMs
			effTime += c.EffectiveTimeMs
		}
		parallelism := parallelismFactor(totalTime, effTime)

		groups = append(groups, ServiceCallGroup{
			Caller:                 p.caller,
			Callee:                 p.callee,
			TotalCalls:             totalCount,
			TotalTimeMs:            totalTime,
			TotalTimeFormatted:     format.Duration(totalTime),
			EffectiveTimeMs:        effTime,
			EffectiveTimeFormatted: format.Duration(effTime),
			ParallelismFactor:      parallelism,
			HasParallelism:         parallelism > displayParallelismThreshold && totalCount > 1,
			TotalSelfTimeMs:        totalSelfTime,
			TotalSelfTimeFormatted: format.Duration(totalSelfTime),
			Calls:                  calls,
		})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].TotalTimeMs != groups[j].TotalTimeMs {
			return groups[i].TotalTimeMs > groups[j].TotalTimeMs
		}
		if groups[i].Caller != groups[j].Caller {
			return groups[i].Caller < groups[j].Caller
		}
		return groups[i].Callee < groups[j].Callee
	})
	return groups
}

func buildKafkaOperations(analysis *model.AnalysisResult) []KafkaServiceGroup {
	grouped := make(map[string][]KafkaRow)
	for key, stats := range analysis.Kafka {
		effTime, ok := analysis.EffectiveTimes.Kafka[key]
		if !ok {
			effTime = stats.TotalTimeMs
		}
		parallelism := parallelismFactor(stats.TotalTimeMs, effTime)

		grouped[key.Service] = append(grouped[key.Service], KafkaRow{
			Operation:              key.Operation,
			MessageType:            key.Name,
			Details:                key.Details,
			Count:                  stats.Count,
			TotalTimeMs:            stats.TotalTimeMs,
			TotalTimeFormatted:     format.Duration(stats.TotalTimeMs),
			EffectiveTimeMs:        effTime,
			EffectiveTimeFormatted: format.Duration(effTime),
			ParallelismFactor:      parallelism,
			HasParallelism:         parallelism > displayParallelismThreshold && stats.Count > 1,
			ErrorCount:             stats.ErrorCount,
			ErrorMessages:          sortedErrorMessages(stats.ErrorMessages),
		})
	}

	groups := make([]KafkaServiceGroup, 0, len(grouped))
	for service, operations := range grouped {
		sort.SliceStable(operations, func(i, j int) bool {
			if operations[i].TotalTimeMs != operations[j].TotalTimeMs {
				return operations[i].TotalTimeMs > operations[j].TotalTimeMs
			}
			return operations[i].MessageType < operations[j].MessageType
		})
		var totalCount int
		var totalTime, effTime float64
		for _, op := range operations {
			totalCount += op.Count
			totalTime += op.TotalTimeMs
			effTime += op.EffectiveTimeMs
		}
		parallelism := parallelismFactor(totalTime, effTime)

		groups = append(groups, KafkaServiceGroup{
			Service:                service,
			TotalOperations:        totalCount,
			TotalTimeMs:            totalTime,
			TotalTimeFormatted:     format.Duration(totalTime),
			EffectiveTimeMs:        effTime,
			EffectiveTimeFormatted: format.Duration(effTime),
			ParallelismFactor:      parallelism,
			HasParallelism:         parallelism > displayParallelismThreshold && totalCount > 1,
			Operations:             operations,
		})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].TotalTimeMs != groups[j].TotalTimeMs {
			return groups[i].TotalTimeMs > groups[j].TotalTimeMs
		}
		return groups[i].Service < groups[j].Service
	})
	return groups
}

func buildErrorAnalysis(
	details map[string][]EndpointRow,
	serviceCalls []ServiceCallGroup,
	kafkaOperations []KafkaServiceGroup,
) map[string][]ErrorEntry {
	errors := make(map[string][]ErrorEntry)

	for service, endpoints := range details {
		for _, endpoint := range endpoints {
			if endpoint.ErrorCount == 0 {
				continue
			}
			errors[service] = append(errors[service], ErrorEntry{
				Type:        "Incoming Request",
				HTTPMethod:  endpoint.HTTPMethod,
				Endpoint:    endpoint.Endpoint,
				Parameter:   endpoint.Parameter,
				ErrorCount:  endpoint.ErrorCount,
				TopMessages: endpoint.ErrorMessages,
			})
		}
	}

	for _, call := range serviceCalls {
		for _, endpoint := range call.Calls {
			if endpoint.ErrorCount == 0 {
				continue
			}
			errors[call.Caller] = append(errors[call.Caller], ErrorEntry{
				Type:        fmt.Sprintf("Outgoing Call to %s", call.Callee),
				HTTPMethod:  endpoint.HTTPMethod,
				Endpoint:    endpoint.Endpoint,
				Parameter:   endpoint.Parameter,
				ErrorCount:  endpoint.ErrorCount,
				TopMessages: endpoint.ErrorMessages,
			})
		}
	}

	for _, group := range kafkaOperations {
		for _, op := range group.Operations {
			if op.ErrorCount == 0 {
				continue
			}
			errors[group.Service] = append(errors[group.Service], ErrorEntry{
				Type:        fmt.Sprintf("Kafka %s", op.Operation),
				HTTPMethod:  op.MessageType,
				Endpoint:    op.Details,
				ErrorCount:  op.ErrorCount,
				TopMessages: op.ErrorMessages,
			})
		}
	}

	for service := range errors {
		entries := errors[service]
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].ErrorCount > entries[j].ErrorCount
		})
	}
	return errors
}

func buildSummary(
	analysis *model.AnalysisResult,
	details map[string][]EndpointRow,
	errorAnalysis map[string][]ErrorEntry,
) Summary {
	var totalRequests int
	for _, stats := range analysis.Endpoints {
		totalRequests += stats.Count
	}

	var totalWallClockMs float64
	for _, summary := range analysis.TraceSummaries {
		totalWallClockMs += summary.WallClockDurationMs
	}

	var totalKafkaOps int
	var totalKafkaTime float64
	for _, stats := range analysis.Kafka {
		totalKafkaOps += stats.Count
		totalKafkaTime += stats.TotalTimeMs
	}

	uniqueEndpoints := make(map[string]struct{})
	for key := range analysis.Endpoints {
		uniqueEndpoints[key.Service+":"+key.Method] = struct{}{}
	}

	totalErrors := 0
	for _, entries := range errorAnalysis {
		for _, entry := range entries {
			totalErrors += entry.ErrorCount
		}
	}

	return Summary{
		TotalRequests:           totalRequests,
		TotalTimeMs:             totalWallClockMs,
		TotalTimeFormatted:      format.Duration(totalWallClockMs),
		UniqueServices:          len(details),
		UniqueEndpoints:         len(uniqueEndpoints),
		UniqueCombinations:      len(analysis.Endpoints),
		TotalKafkaOperations:    totalKafkaOps,
		TotalKafkaTimeMs:        totalKafkaTime,
		TotalKafkaTimeFormatted: format.Duration(totalKafkaTime),
		TotalTraces:             len(analysis.TraceSummaries),
		TotalErrors:             totalErrors,
	}
}

func parallelismFactor(cumulativeMs, effectiveMs float64) float64 {
	if effectiveMs <= 0 {
		return 1.0
	}
	return cumulativeMs / effectiveMs
}

func sortedErrorMessages(messages map[string]int) []ErrorMessageCount {
	result := make([]ErrorMessageCount, 0, len(messages))
	for message, count := range messages {
		result = append(result, ErrorMessageCount{Message: message, Count: count})
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Message < result[j].Message
	})
	return result
}

func sortRowsByTime(rows []EndpointRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalTimeMs != rows[j].TotalTimeMs {
			return rows[i].TotalTimeMs > rows[j].TotalTimeMs
		}
		return rows[i].Endpoint < rows[j].Endpoint
	})
}
