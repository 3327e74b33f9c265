package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tracescope/tracescope/internal/storage"
)

type CreateShareRequestDTO struct {
	Results  json.RawMessage `json:"results"`
	Filename string          `json:"filename"`
	TTL      string          `json:"ttl"`
}

type CreateShareResponseDTO struct {
	ShareID   string    `json:"share_id"`
	ShareURL  string    `json:"share_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ShareSummaryDTO struct {
	ShareID   string    `json:"share_id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateShareHandler stores an analysis snapshot and returns its short link.
func CreateShareHandler(store *storage.ShareStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateShareRequestDTO
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			logger.Error("Error encountered when decoding request body", zap.Error(err))
			HttpError(w, "Invalid request payload", http.StatusBadRequest, logger)
			return
		}

		defer func(Body io.ReadCloser) {
			err := Body.Close()
			if err != nil {
				logger.Error("Error encountered when closing request body", zap.Error(err))
			}
		}(r.Body)

		if len(req.Results) == 0 {
			HttpError(w, "No results provided", http.StatusBadRequest, logger)
			return
		}

		share, err := store.Create(req.Filename, req.Results, req.TTL)
		if err != nil {
			logger.Error("Error encountered when creating share", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}

		writeJSON(w, CreateShareResponseDTO{
			ShareID:   share.ID,
			ShareURL:  "/share/" + share.ID,
			ExpiresAt: share.ExpiresAt,
		}, logger)
	}
}

// GetShareHandler returns one stored snapshot.
func GetShareHandler(store *storage.ShareStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shareID := mux.Vars(r)["id"]

		share, err := store.Get(shareID)
		if err != nil {
			if errors.Is(err, storage.ErrShareExpired) {
				HttpError(w, "Share has expired", http.StatusGone, logger)
				return
			}
			HttpError(w, "Share not found", http.StatusNotFound, logger)
			return
		}

		writeJSON(w, share, logger)
	}
}

// ListSharesHandler returns summaries of the live shares.
func ListSharesHandler(store *storage.ShareStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shares := store.List()
		summaries := make([]ShareSummaryDTO, 0, len(shares))
		for _, share := range shares {
			summaries = append(summaries, ShareSummaryDTO{
				ShareID:   share.ID,
				Filename:  share.Filename,
				CreatedAt: share.CreatedAt,
				ExpiresAt: share.ExpiresAt,
			})
		}
		writeJSON(w, summaries, logger)
	}
}

// DeleteShareHandler removes one share.
func DeleteShareHandler(store *storage.ShareStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shareID := mux.Vars(r)["id"]

		if err := store.Delete(shareID); err != nil {
			HttpError(w, "Share not found", http.StatusNotFound, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
