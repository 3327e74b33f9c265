// Package service orchestrates trace analysis across a worker pool.
package service

import (
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tracescope/tracescope/pkg/trace/model"
	"github.com/tracescope/tracescope/pkg/trace/processor"
)

// AnalyzerService fans traces out to a bounded worker pool and folds the
// per-trace results into one AnalysisResult. Every aggregate operation in the
// fold is commutative, so the totals are identical regardless of worker
// scheduling.
type AnalyzerService struct {
	config  model.TraceConfig
	workers int
	logger  *zap.Logger
}

func NewAnalyzerService(config model.TraceConfig, workers int, logger *zap.Logger) *AnalyzerService {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &AnalyzerService{config: config, workers: workers, logger: logger}
}

// Analyze processes every trace in the map and returns the folded result.
func (s *AnalyzerService) Analyze(traces map[string][]model.Span) *model.AnalysisResult {
	result := model.NewAnalysisResult()
	if len(traces) == 0 {
		return result
	}

	traceIDs := make([]string, 0, len(traces))
	for traceID := range traces {
		traceIDs = append(traceIDs, traceID)
	}
	sort.Strings(traceIDs)

	s.logger.Info("Starting trace analysis",
		zap.Int("trace_count", len(traceIDs)),
		zap.Int("workers", s.workers),
	)

	if s.workers == 1 || len(traceIDs) == 1 {
		pipeline := processor.NewPipeline(s.config)
		for _, traceID := range traceIDs {
			result.Fold(pipeline.ProcessTrace(traceID, traces[traceID]))
		}
	} else {
		s.analyzeParallel(traceIDs, traces, result)
	}

	s.logger.Info("Trace analysis complete",
		zap.Int("trace_count", len(traceIDs)),
		zap.Int("endpoint_count", len(result.Endpoints)),
		zap.Int("service_call_count", len(result.ServiceCalls)),
	)

	return result
}

func (s *AnalyzerService) analyzeParallel(
	traceIDs []string,
	traces map[string][]model.Span,
	result *model.AnalysisResult,
) {
	jobs := make(chan string)
	results := make(chan *model.TraceResult)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pipeline := processor.NewPipeline(s.config)
			for traceID := range jobs {
				results <- pipeline.ProcessTrace(traceID, traces[traceID])
			}
		}()
	}

	go func() {
		for _, traceID := range traceIDs {
			jobs <- traceID
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for tr := range results {
		result.Fold(tr)
	}
}
