package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tracescope/tracescope/internal/reader"
	"github.com/tracescope/tracescope/internal/report"
	"github.com/tracescope/tracescope/internal/web/result"
	"github.com/tracescope/tracescope/pkg/trace/model"
	"github.com/tracescope/tracescope/pkg/trace/service"
)

func main() {
	output := flag.String("o", "trace_analysis.md", "output markdown file")
	keepQueryParams := flag.Bool("keep-query-params", false, "keep query parameters in URLs")
	includeGateways := flag.Bool("include-gateways", false, "include gateway-only services as endpoints")
	includeServiceMesh := flag.Bool("include-service-mesh", false, "include service mesh sidecar spans")
	workers := flag.Int("workers", 0, "number of analysis workers (0 = all cores)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <trace file>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	inputFile := flag.Arg(0)

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	config := model.TraceConfig{
		StripQueryParams:       !*keepQueryParams,
		IncludeGatewayServices: *includeGateways,
		IncludeServiceMesh:     *includeServiceMesh,
	}

	traceReader := reader.NewTraceReader(logger)
	traces, err := traceReader.ReadFile(inputFile)
	if err != nil {
		logger.Fatal("Failed to read trace file", zap.Error(err))
	}

	analyzer := service.NewAnalyzerService(config, *workers, logger)
	analysis := analyzer.Analyze(traces)

	if err := report.WriteMarkdown(analysis, *output); err != nil {
		logger.Fatal("Failed to write report", zap.Error(err))
	}

	report.PrintSummary(result.Build(analysis))
	fmt.Printf("\nAnalysis complete! Report saved to: %s\n", *output)
}
