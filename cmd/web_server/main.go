package main

import (
	"flag"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tracescope/tracescope/internal/config"
	"github.com/tracescope/tracescope/internal/reader"
	"github.com/tracescope/tracescope/internal/storage"
	"github.com/tracescope/tracescope/internal/web/router"
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

	traceReader := reader.NewTraceReader(logger)
	shareStore, err := storage.NewShareStore(cfg.Shares.Dir, cfg.Shares.DefaultTTL, logger)
	if err != nil {
		logger.Fatal("Failed to open share store", zap.Error(err))
	}

	go func() {
		ticker := time.NewTicker(cfg.Shares.CleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			shareStore.CleanupExpired()
		}
	}()

	r := router.CreateRouter(traceReader, shareStore, cfg.Analysis.Workers, logger)
	logger.Info("Starting web server", zap.String("address", cfg.Web.Address))
	if err := http.ListenAndServe(cfg.Web.Address, r); err != nil {
		logger.Fatal("Failed to serve: %v", zap.Error(err))
	}
}
