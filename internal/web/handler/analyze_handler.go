// Package handler exposes the analysis and share APIs over HTTP.
package handler

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tracescope/tracescope/internal/reader"
	"github.com/tracescope/tracescope/internal/web/result"
	"github.com/tracescope/tracescope/pkg/trace/model"
	"github.com/tracescope/tracescope/pkg/trace/service"
)

// maxUploadBytes caps trace file uploads at 500 MiB.
const maxUploadBytes = 500 << 20

// AnalyzeHandler creates a handler that analyzes an uploaded trace export.
// The form carries the file and the three analysis toggles.
func AnalyzeHandler(
	traceReader *reader.TraceReader,
	workers int,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Info("Received Analyze Handler",
			zap.String("URL Path", r.URL.Path),
			zap.String("Method", r.Method),
		)

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			logger.Error("Error encountered when reading uploaded file", zap.Error(err))
			HttpError(w, "No file provided", http.StatusBadRequest, logger)
			return
		}
		defer func() {
			if err := file.Close(); err != nil {
				logger.Error("Error encountered when closing uploaded file", zap.Error(err))
			}
		}()

		if !strings.HasSuffix(strings.ToLower(header.Filename), ".json") {
			HttpError(w, "Invalid file type. Only JSON files are allowed.", http.StatusBadRequest, logger)
			return
		}

		config := model.TraceConfig{
			StripQueryParams:       formBool(r, "strip_query_params", true),
			IncludeGatewayServices: formBool(r, "include_gateway_services", false),
			IncludeServiceMesh:     formBool(r, "include_service_mesh", false),
		}

		traces, err := traceReader.Read(file)
		if err != nil {
			logger.Error("Error encountered when parsing trace file",
				zap.String("filename", header.Filename),
				zap.Error(err),
			)
			HttpError(w, "Failed to parse trace file", http.StatusBadRequest, logger)
			return
		}

		analyzer := service.NewAnalyzerService(config, workers, logger)
		analysis := analyzer.Analyze(traces)

		writeJSON(w, result.Build(analysis), logger)
	}
}

// formBool reads a form toggle, accepting the usual checkbox spellings.
func formBool(r *http.Request, key string, fallback bool) bool {
	value := r.FormValue(key)
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "true", "on", "1", "yes":
		return true
	default:
		return false
	}
}
