package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/tracescope/tracescope/internal/storage"
)

func newTestShareStore(t *testing.T) *storage.ShareStore {
	t.Helper()
	store, err := storage.NewShareStore(t.TempDir(), "24h", zap.NewNop())
	assert.NoError(t, err)
	return store
}

func expireShare(t *testing.T, dir string, share *storage.SharedAnalysis) {
	t.Helper()
	share.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	data, err := json.Marshal(share)
	assert.NoError(t, err)
	assert.NoError(t, os.WriteFile(filepath.Join(dir, share.ID+".json"), data, 0o644))
}

func shareTestRouter(store *storage.ShareStore) *mux.Router {
	logger := zap.NewNop()
	r := mux.NewRouter()
	r.Handle("/api/share", CreateShareHandler(store, logger)).Methods("POST")
	r.Handle("/api/share/{id}", GetShareHandler(store, logger)).Methods("GET")
	r.Handle("/api/shares", ListSharesHandler(store, logger)).Methods("GET")
	r.Handle("/api/share/{id}", DeleteShareHandler(store, logger)).Methods("DELETE")
	return r
}

func postShare(t *testing.T, router *mux.Router, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/share", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateShareHandler(t *testing.T) {
	t.Run("Creates a share and returns its link", func(t *testing.T) {
		router := shareTestRouter(newTestShareStore(t))
		rec := postShare(t, router, `{"results":{"summary":{}},"filename":"trace.json","ttl":"24h"}`)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp CreateShareResponseDTO
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.ShareID, 8)
		assert.Equal(t, "/share/"+resp.ShareID, resp.ShareURL)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), resp.ExpiresAt, time.Minute)
	})

	t.Run("Rejects a payload without results", func(t *testing.T) {
		router := shareTestRouter(newTestShareStore(t))
		rec := postShare(t, router, `{"filename":"trace.json","ttl":"24h"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Rejects malformed JSON", func(t *testing.T) {
		router := shareTestRouter(newTestShareStore(t))
		rec := postShare(t, router, `{"results":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetShareHandler(t *testing.T) {
	t.Run("Returns a stored share", func(t *testing.T) {
		store := newTestShareStore(t)
		share, err := store.Create("trace.json", json.RawMessage(`{"summary":{}}`), "24h")
		assert.NoError(t, err)
		router := shareTestRouter(store)

		req := httptest.NewRequest("GET", "/api/share/"+share.ID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var got storage.SharedAnalysis
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, share.ID, got.ID)
		assert.Equal(t, "trace.json", got.Filename)
	})

	t.Run("Unknown ids return not found", func(t *testing.T) {
		router := shareTestRouter(newTestShareStore(t))

		req := httptest.NewRequest("GET", "/api/share/missing1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Expired shares return gone", func(t *testing.T) {
		dir := t.TempDir()
		store, err := storage.NewShareStore(dir, "24h", zap.NewNop())
		assert.NoError(t, err)
		share, err := store.Create("trace.json", json.RawMessage(`{}`), "24h")
		assert.NoError(t, err)
		expireShare(t, dir, share)
		router := shareTestRouter(store)

		req := httptest.NewRequest("GET", "/api/share/"+share.ID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusGone, rec.Code)
	})
}

func TestListSharesHandler(t *testing.T) {
	t.Run("Lists live share summaries", func(t *testing.T) {
		store := newTestShareStore(t)
		_, err := store.Create("a.json", json.RawMessage(`{}`), "24h")
		assert.NoError(t, err)
		_, err = store.Create("b.json", json.RawMessage(`{}`), "7d")
		assert.NoError(t, err)
		router := shareTestRouter(store)

		req := httptest.NewRequest("GET", "/api/shares", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var summaries []ShareSummaryDTO
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
		assert.Len(t, summaries, 2)
	})
}

func TestDeleteShareHandler(t *testing.T) {
	t.Run("Deletes a share", func(t *testing.T) {
		store := newTestShareStore(t)
		share, err := store.Create("trace.json", json.RawMessage(`{}`), "24h")
		assert.NoError(t, err)
		router := shareTestRouter(store)

		req := httptest.NewRequest("DELETE", "/api/share/"+share.ID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 0, store.Count())
	})

	t.Run("Unknown ids return not found", func(t *testing.T) {
		router := shareTestRouter(newTestShareStore(t))

		req := httptest.NewRequest("DELETE", "/api/share/missing1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthCheckHandler(t *testing.T) {
	t.Run("Reports ok", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HealthCheckHandler(zap.NewNop()).ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})
}
