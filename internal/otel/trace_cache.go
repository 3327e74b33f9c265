// Package otel receives OTLP trace exports over gRPC and buffers them until
// the analyzer flushes complete traces.
package otel

import (
	"errors"
	"sync"

	"github.com/dgraph-io/ristretto"

	"github.com/tracescope/tracescope/pkg/trace/model"
)

var ErrTraceNotFound = errors.New("trace not found within the cache")

// TraceCache is a write-behind buffer for incoming spans, keyed by trace id.
// Reads serve the web layer's live view; Drain hands everything accumulated
// since the last flush to the analyzer.
type TraceCache interface {
	Get(traceID string) ([]model.Span, error)
	Put(traceID string, spans []model.Span) error
	Drain() map[string][]model.Span
}

type TraceCacheImpl struct {
	mu         sync.Mutex
	cache      *ristretto.Cache
	writeQueue map[string][]model.Span
}

func NewTraceCacheImpl(cache *ristretto.Cache) *TraceCacheImpl {
	return &TraceCacheImpl{
		cache:      cache,
		writeQueue: make(map[string][]model.Span),
	}
}

func (tc *TraceCacheImpl) Get(traceID string) ([]model.Span, error) {
	value, found := tc.cache.Get(traceID)
	if !found {
		return nil, ErrTraceNotFound
	}
	typedValue, ok := value.([]model.Span)
	if !ok {
		return nil, errors.New("value not of type []model.Span returned from cache when getting")
	}
	return typedValue, nil
}

func (tc *TraceCacheImpl) Put(traceID string, spans []model.Span) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.writeQueue[traceID] = append(tc.writeQueue[traceID], spans...)

	oldValue, found := tc.cache.Get(traceID)
	if found {
		typedOldValue, ok := oldValue.([]model.Span)
		if !ok {
			return errors.New("value not of type []model.Span returned from cache when putting")
		}
		totalValue := append(typedOldValue, spans...)
		tc.cache.Set(traceID, totalValue, int64(len(totalValue)))
	} else {
		tc.cache.Set(traceID, spans, int64(len(spans)))
	}
	return nil
}

// Drain swaps out the pending write queue and returns it.
func (tc *TraceCacheImpl) Drain() map[string][]model.Span {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	drained := tc.writeQueue
	tc.writeQueue = make(map[string][]model.Span)
	return drained
}
