// Package report renders an analysis as a markdown document.
package report

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tracescope/tracescope/internal/web/result"
	"github.com/tracescope/tracescope/pkg/trace/format"
	"github.com/tracescope/tracescope/pkg/trace/model"
)

// maxParamDisplay truncates long parameter values in table cells.
const maxParamDisplay = 50

// WriteMarkdown renders the analysis to the given file.
func WriteMarkdown(analysis *model.AnalysisResult, outputPath string) error {
	results := result.Build(analysis)

	var b strings.Builder
	writeHeader(&b, results)
	writeServiceTables(&b, results)
	writeServiceCallTables(&b, results)
	writeKafkaTables(&b, results)
	writeErrorAnalysis(&b, results)

	if err := os.WriteFile(outputPath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", outputPath, err)
	}
	return nil
}

func writeHeader(b *strings.Builder, results *result.Results) {
	b.WriteString("# Trace Endpoint Analysis Report\n\n")
	fmt.Fprintf(b, "**Total Incoming Requests:** %d  \n", results.Summary.TotalRequests)
	fmt.Fprintf(b, "**Total Time (Wall Clock):** %s  \n", results.Summary.TotalTimeFormatted)
	fmt.Fprintf(b, "**Unique Services:** %d  \n", results.Summary.UniqueServices)
	fmt.Fprintf(b, "**Unique Normalized Endpoints:** %d  \n", results.Summary.UniqueEndpoints)
	fmt.Fprintf(b, "**Unique Endpoint-Parameter Combinations:** %d  \n", results.Summary.UniqueCombinations)
	fmt.Fprintf(b, "**Total Traces:** %d  \n", results.Summary.TotalTraces)
	fmt.Fprintf(b, "**Total Errors:** %d  \n\n", results.Summary.TotalErrors)
	b.WriteString("---\n\n")

	b.WriteString("## Table of Contents - Incoming Requests by Service\n\n")
	for _, svc := range results.ServicesSummary {
		anchor := strings.ToLower(strings.ReplaceAll(svc.Name, ".", ""))
		anchor = strings.ReplaceAll(anchor, " ", "-")
		fmt.Fprintf(b, "- [%s](#%s) (%d requests, %s)\n",
			svc.Name, anchor, svc.RequestCount, svc.TotalTimeFormatted)
	}
	b.WriteString("\n---\n\n")
}

func writeServiceTables(b *strings.Builder, results *result.Results) {
	b.WriteString("# Incoming Requests by Service\n\n")
	b.WriteString("*This section shows endpoints that each service receives (incoming HTTP requests).*  \n")
	b.WriteString("*Tables are sorted by Total Time (descending).*\n\n")

	for _, svc := range results.ServicesSummary {
		endpoints := results.ServiceDetails[svc.Name]

		fmt.Fprintf(b, "## %s\n\n", svc.Name)
		fmt.Fprintf(b, "**Service Requests:** %d  \n", svc.RequestCount)
		fmt.Fprintf(b, "**Total Time:** %s  \n", svc.TotalTimeFormatted)
		fmt.Fprintf(b, "**Effective Time:** %s  \n", svc.EffectiveTimeFormatted)
		if svc.HasParallelism {
			fmt.Fprintf(b, "**Parallelism Factor:** %.2fx  \n", svc.ParallelismFactor)
		}
		fmt.Fprintf(b, "**Unique Combinations:** %d  \n\n", svc.UniqueCombinations)

		b.WriteString("| Method | Normalized Endpoint | Parameter Value | Count | Total Time | Self Time | Errors |\n")
		b.WriteString("|--------|---------------------|-----------------|-------|------------|-----------|--------|\n")
		for _, e := range endpoints {
			fmt.Fprintf(b, "| %s | %s | %s | %d | %s | %s | %d |\n",
				e.HTTPMethod, e.Endpoint, truncateParam(e.Parameter),
				e.Count, e.TotalTimeFormatted, e.TotalSelfTimeFormatted, e.ErrorCount)
		}
		b.WriteString("\n")
	}
}

func writeServiceCallTables(b *strings.Builder, results *result.Results) {
	if len(results.ServiceCalls) == 0 {
		return
	}

	b.WriteString("---\n\n")
	b.WriteString("# Service-to-Service Calls (Outgoing)\n\n")
	b.WriteString("*This section shows outgoing HTTP calls from one service to another.*  \n")
	b.WriteString("*Tables are sorted by Total Time (descending).*\n\n")

	pairs := make([]result.ServiceCallGroup, len(results.ServiceCalls))
	copy(pairs, results.ServiceCalls)
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Caller != pairs[j].Caller {
			return pairs[i].Caller < pairs[j].Caller
		}
		return pairs[i].Callee < pairs[j].Callee
	})

	for _, pair := range pairs {
		fmt.Fprintf(b, "## %s → %s\n\n", pair.Caller, pair.Callee)
		fmt.Fprintf(b, "**Total Calls:** %d  \n", pair.TotalCalls)
		fmt.Fprintf(b, "**Total Time:** %s  \n", pair.TotalTimeFormatted)
		fmt.Fprintf(b, "**Effective Time:** %s  \n", pair.EffectiveTimeFormatted)
		fmt.Fprintf(b, "**Unique Combinations:** %d  \n\n", len(pair.Calls))

		b.WriteString("| Method | Normalized Endpoint | Parameter Value | Count | Total Time | Errors |\n")
		b.WriteString("|--------|---------------------|-----------------|-------|------------|--------|\n")
		for _, c := range pair.Calls {
			fmt.Fprintf(b, "| %s | %s | %s | %d | %s | %d |\n",
				c.HTTPMethod, c.Endpoint, truncateParam(c.Parameter),
				c.Count, c.TotalTimeFormatted, c.ErrorCount)
		}
		b.WriteString("\n")
	}
}

func writeKafkaTables(b *strings.Builder, results *result.Results) {
	if len(results.KafkaOperations) == 0 {
		return
	}

	b.WriteString("---\n\n")
	b.WriteString("# Messaging Operations\n\n")
	b.WriteString("*Producer and consumer spans grouped by service.*\n\n")

	for _, group := range results.KafkaOperations {
		fmt.Fprintf(b, "## %s\n\n", group.Service)
		fmt.Fprintf(b, "**Total Operations:** %d  \n", group.TotalOperations)
		fmt.Fprintf(b, "**Total Time:** %s  \n\n", group.TotalTimeFormatted)

		b.WriteString("| Operation | Message Type | Details | Count | Total Time | Errors |\n")
		b.WriteString("|-----------|--------------|---------|-------|------------|--------|\n")
		for _, op := range group.Operations {
			fmt.Fprintf(b, "| %s | %s | %s | %d | %s | %d |\n",
				op.Operation, op.MessageType, truncateParam(op.Details),
				op.Count, op.TotalTimeFormatted, op.ErrorCount)
		}
		b.WriteString("\n")
	}
}

func writeErrorAnalysis(b *strings.Builder, results *result.Results) {
	if len(results.ErrorAnalysis) == 0 {
		return
	}

	b.WriteString("---\n\n")
	b.WriteString("# Error Analysis\n\n")

	services := make([]string, 0, len(results.ErrorAnalysis))
	for service := range results.ErrorAnalysis {
		services = append(services, service)
	}
	sort.Strings(services)

	for _, service := range services {
		fmt.Fprintf(b, "## %s\n\n", service)
		b.WriteString("| Type | Method | Endpoint | Errors | Top Message |\n")
		b.WriteString("|------|--------|----------|--------|-------------|\n")
		for _, entry := range results.ErrorAnalysis[service] {
			topMessage := ""
			if len(entry.TopMessages) > 0 {
				topMessage = entry.TopMessages[0].Message
			}
			fmt.Fprintf(b, "| %s | %s | %s | %d | %s |\n",
				entry.Type, entry.HTTPMethod, entry.Endpoint,
				entry.ErrorCount, truncateParam(topMessage))
		}
		b.WriteString("\n")
	}
}

func truncateParam(param string) string {
	if len(param) <= maxParamDisplay {
		return param
	}
	return param[:maxParamDisplay-3] + "..."
}

// PrintSummary writes the closing statistics to stdout the way the CLI shows
// them after a run.
func PrintSummary(results *result.Results) {
	fmt.Println("\n=== Summary Statistics ===")
	fmt.Printf("Total incoming requests: %d\n", results.Summary.TotalRequests)
	fmt.Printf("Total time (wall clock): %s\n", results.Summary.TotalTimeFormatted)
	fmt.Printf("Unique services: %d\n", results.Summary.UniqueServices)
	fmt.Printf("Unique endpoint-parameter combinations: %d\n", results.Summary.UniqueCombinations)

	fmt.Println("\n=== Incoming Requests per Service ===")
	for _, svc := range results.ServicesSummary {
		fmt.Printf("%6d requests (%12s)  %s\n", svc.RequestCount, svc.TotalTimeFormatted, svc.Name)
	}

	type slowRow struct {
		service string
		row     result.EndpointRow
	}
	var rows []slowRow
	for service, endpoints := range results.ServiceDetails {
		for _, e := range endpoints {
			rows = append(rows, slowRow{service: service, row: e})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].row.TotalTimeMs != rows[j].row.TotalTimeMs {
			return rows[i].row.TotalTimeMs > rows[j].row.TotalTimeMs
		}
		if rows[i].service != rows[j].service {
			return rows[i].service < rows[j].service
		}
		return rows[i].row.Endpoint < rows[j].row.Endpoint
	})
	if len(rows) > 0 {
		fmt.Println("\n=== Top Slowest Endpoints (by total time) ===")
		limit := len(rows)
		if limit > 10 {
			limit = 10
		}
		for _, r := range rows[:limit] {
			fmt.Printf("%12s (%4d calls)  %s %s %s\n",
				r.row.TotalTimeFormatted, r.row.Count, r.service, r.row.HTTPMethod, r.row.Endpoint)
		}
	}

	if len(results.ServiceCalls) > 0 {
		fmt.Println("\n=== Top Service Pair Connections (by total time) ===")
		limit := len(results.ServiceCalls)
		if limit > 10 {
			limit = 10
		}
		for _, pair := range results.ServiceCalls[:limit] {
			fmt.Printf("%12s (%4d calls)  %s → %s\n",
				format.Duration(pair.TotalTimeMs), pair.TotalCalls, pair.Caller, pair.Callee)
		}
	}
}
