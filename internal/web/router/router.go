package router

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/tracescope/tracescope/internal/reader"
	"github.com/tracescope/tracescope/internal/storage"
	"github.com/tracescope/tracescope/internal/web/handler"
)

import "github.com/gorilla/mux"

func CreateRouter(
	traceReader *reader.TraceReader,
	shareStore *storage.ShareStore,
	workers int,
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()

	r.Handle(
		"/api/analyze", handler.AnalyzeHandler(
			traceReader,
			workers,
			logger,
		),
	).Methods("POST")

	r.Handle(
		"/api/share", handler.CreateShareHandler(
			shareStore,
			logger,
		),
	).Methods("POST")

	r.Handle(
		"/api/share/{id}", handler.GetShareHandler(
			shareStore,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/api/shares", handler.ListSharesHandler(
			shareStore,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/api/share/{id}", handler.DeleteShareHandler(
			shareStore,
			logger,
		),
	).Methods("DELETE")

	r.Handle(
		"/api/health", handler.HealthCheckHandler(
			logger,
		),
	).Methods("GET")

	return r
}
