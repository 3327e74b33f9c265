package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/asaskevich/EventBus"
	"github.com/dgraph-io/ristretto"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"

	"github.com/tracescope/tracescope/internal/config"
	"github.com/tracescope/tracescope/internal/otel"
	"github.com/tracescope/tracescope/internal/report"
	"github.com/tracescope/tracescope/internal/web/result"
	"github.com/tracescope/tracescope/pkg/trace/model"
	"github.com/tracescope/tracescope/pkg/trace/service"
)

func main() {
	configPath := flag.String("config", "tracescope.yaml", "path to the config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.Collector.CacheMaxSpans * 10,
		MaxCost:     cfg.Collector.CacheMaxSpans,
		BufferItems: 64,
	})
	if err != nil {
		logger.Fatal("Failed to create trace cache", zap.Error(err))
	}

	traceCache := otel.NewTraceCacheImpl(cache)
	eventBus := EventBus.New()

	traceConfig := model.TraceConfig{
		StripQueryParams:       cfg.Analysis.StripQueryParams,
		IncludeGatewayServices: cfg.Analysis.IncludeGatewayServices,
		IncludeServiceMesh:     cfg.Analysis.IncludeServiceMesh,
	}
	analyzer := service.NewAnalyzerService(traceConfig, cfg.Analysis.Workers, logger)

	err = otel.SubscribeFlushes(eventBus, func(traces map[string][]model.Span) {
		analysis := analyzer.Analyze(traces)
		report.PrintSummary(result.Build(analysis))
	})
	if err != nil {
		logger.Fatal("Failed to subscribe to flush events", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flusher := otel.NewTraceFlusher(traceCache, eventBus, cfg.Collector.FlushInterval, logger)
	go flusher.Run(ctx)

	listener, err := net.Listen("tcp", cfg.Collector.Address)
	if err != nil {
		logger.Fatal("Failed to listen: %v", zap.Error(err))
	}

	srv := grpc.NewServer()
	traceServiceServer := otel.NewTraceServiceServerImpl(logger, traceCache)
	protoTrace.RegisterTraceServiceServer(srv, traceServiceServer)

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	logger.Info("gRPC service started, listening for OpenTelemetry traces...",
		zap.String("address", cfg.Collector.Address),
	)
	if err := srv.Serve(listener); err != nil {
		logger.Fatal("Failed to serve: %v", zap.Error(err))
	}
}
