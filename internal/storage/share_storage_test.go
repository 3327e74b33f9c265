package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var testResults = json.RawMessage(`{"summary":{"total_traces":1}}`)

func newTestStore(t *testing.T) *ShareStore {
	t.Helper()
	store, err := NewShareStore(t.TempDir(), "24h", zap.NewNop())
	assert.NoError(t, err)
	return store
}

func expireShare(t *testing.T, store *ShareStore, share *SharedAnalysis) {
	t.Helper()
	share.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	data, err := json.Marshal(share)
	assert.NoError(t, err)
	assert.NoError(t, os.WriteFile(filepath.Join(store.dir, share.ID+".json"), data, 0o644))
}

func TestShareStore_Create(t *testing.T) {
	t.Run("Stores a snapshot under a fresh id", func(t *testing.T) {
		store := newTestStore(t)
		share, err := store.Create("trace.json", testResults, "24h")

		assert.NoError(t, err)
		assert.Len(t, share.ID, shareIDLength)
		assert.Equal(t, "trace.json", share.Filename)
		assert.JSONEq(t, string(testResults), string(share.Results))
		assert.WithinDuration(t, share.CreatedAt.Add(24*time.Hour), share.ExpiresAt, time.Second)
		assert.FileExists(t, filepath.Join(store.dir, share.ID+".json"))
	})

	t.Run("Ids only use the unambiguous alphabet", func(t *testing.T) {
		store := newTestStore(t)
		for i := 0; i < 20; i++ {
			share, err := store.Create("trace.json", testResults, "24h")
			assert.NoError(t, err)
			for _, c := range share.ID {
				assert.True(t, strings.ContainsRune(shareIDAlphabet, c))
			}
		}
	})

	t.Run("Unknown TTL labels fall back to the default", func(t *testing.T) {
		store := newTestStore(t)
		share, err := store.Create("trace.json", testResults, "forever")

		assert.NoError(t, err)
		assert.WithinDuration(t, share.CreatedAt.Add(24*time.Hour), share.ExpiresAt, time.Second)
	})

	t.Run("An empty TTL uses the configured default", func(t *testing.T) {
		store, err := NewShareStore(t.TempDir(), "7d", zap.NewNop())
		assert.NoError(t, err)

		share, err := store.Create("trace.json", testResults, "")
		assert.NoError(t, err)
		assert.WithinDuration(t, share.CreatedAt.Add(7*24*time.Hour), share.ExpiresAt, time.Second)
	})

	t.Run("Longer retention labels are honored", func(t *testing.T) {
		store := newTestStore(t)
		share, err := store.Create("trace.json", testResults, "1m")

		assert.NoError(t, err)
		assert.WithinDuration(t, share.CreatedAt.Add(30*24*time.Hour), share.ExpiresAt, time.Second)
	})
}

func TestShareStore_Get(t *testing.T) {
	t.Run("Returns a live share", func(t *testing.T) {
		store := newTestStore(t)
		created, err := store.Create("trace.json", testResults, "24h")
		assert.NoError(t, err)

		share, err := store.Get(created.ID)
		assert.NoError(t, err)
		assert.Equal(t, created.ID, share.ID)
		assert.Equal(t, "trace.json", share.Filename)
		assert.JSONEq(t, string(testResults), string(share.Results))
	})

	t.Run("Returns not found for an unknown id", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.Get("missing1")
		assert.ErrorIs(t, err, ErrShareNotFound)
	})

	t.Run("Deletes an expired share on access", func(t *testing.T) {
		store := newTestStore(t)
		created, err := store.Create("trace.json", testResults, "24h")
		assert.NoError(t, err)
		expireShare(t, store, created)

		_, err = store.Get(created.ID)
		assert.ErrorIs(t, err, ErrShareExpired)
		assert.Equal(t, 0, store.Count())
	})

	t.Run("Deletes a corrupted share file instead of failing", func(t *testing.T) {
		store := newTestStore(t)
		assert.NoError(t, os.WriteFile(filepath.Join(store.dir, "broken12.json"), []byte("{not json"), 0o644))

		_, err := store.Get("broken12")
		assert.ErrorIs(t, err, ErrShareNotFound)
		assert.NoFileExists(t, filepath.Join(store.dir, "broken12.json"))
	})
}

func TestShareStore_Delete(t *testing.T) {
	t.Run("Removes the share", func(t *testing.T) {
		store := newTestStore(t)
		created, err := store.Create("trace.json", testResults, "24h")
		assert.NoError(t, err)

		assert.NoError(t, store.Delete(created.ID))
		_, err = store.Get(created.ID)
		assert.ErrorIs(t, err, ErrShareNotFound)
	})

	t.Run("Returns not found for an unknown id", func(t *testing.T) {
		store := newTestStore(t)
		assert.ErrorIs(t, store.Delete("missing1"), ErrShareNotFound)
	})
}

func TestShareStore_List(t *testing.T) {
	t.Run("Skips expired and corrupted shares", func(t *testing.T) {
		store := newTestStore(t)
		live, err := store.Create("live.json", testResults, "24h")
		assert.NoError(t, err)
		stale, err := store.Create("stale.json", testResults, "24h")
		assert.NoError(t, err)
		expireShare(t, store, stale)
		assert.NoError(t, os.WriteFile(filepath.Join(store.dir, "broken12.json"), []byte("garbage"), 0o644))

		shares := store.List()

		assert.Len(t, shares, 1)
		assert.Equal(t, live.ID, shares[0].ID)
	})
}

func TestShareStore_CleanupExpired(t *testing.T) {
	t.Run("Removes only the expired shares", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.Create("live.json", testResults, "24h")
		assert.NoError(t, err)
		stale, err := store.Create("stale.json", testResults, "24h")
		assert.NoError(t, err)
		expireShare(t, store, stale)

		removed := store.CleanupExpired()

		assert.Equal(t, 1, removed)
		assert.Equal(t, 1, store.Count())
	})
}

func TestShareStore_SurvivesRestart(t *testing.T) {
	t.Run("A new store over the same directory sees existing shares", func(t *testing.T) {
		dir := t.TempDir()
		first, err := NewShareStore(dir, "24h", zap.NewNop())
		assert.NoError(t, err)
		created, err := first.Create("trace.json", testResults, "24h")
		assert.NoError(t, err)

		second, err := NewShareStore(dir, "24h", zap.NewNop())
		assert.NoError(t, err)

		share, err := second.Get(created.ID)
		assert.NoError(t, err)
		assert.Equal(t, created.ID, share.ID)
	})
}
