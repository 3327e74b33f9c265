package otel

import (
	"context"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/tracescope/tracescope/pkg/trace/model"
)

// FlushTopic is the event bus topic carrying drained trace batches to the
// analyzer subscriber.
const FlushTopic = "traces:flush"

// TraceFlusher periodically drains the trace cache and publishes the batch.
// Traces are published whole per drain; a trace whose spans straddle two
// drains is analyzed incrementally on each flush.
type TraceFlusher struct {
	cache    TraceCache
	bus      EventBus.Bus
	interval time.Duration
	logger   *zap.Logger
}

func NewTraceFlusher(
	cache TraceCache,
	bus EventBus.Bus,
	interval time.Duration,
	logger *zap.Logger,
) *TraceFlusher {
	return &TraceFlusher{
		cache:    cache,
		bus:      bus,
		interval: interval,
		logger:   logger,
	}
}

// Run flushes on every tick until the context is cancelled, then performs one
// final flush so buffered spans are not lost on shutdown.
func (f *TraceFlusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.flush()
			return
		case <-ticker.C:
			f.flush()
		}
	}
}

func (f *TraceFlusher) flush() {
	traces := f.cache.Drain()
	if len(traces) == 0 {
		return
	}

	spanCount := 0
	for _, spans := range traces {
		spanCount += len(spans)
	}
	f.logger.Info("Flushing buffered traces",
		zap.Int("trace_count", len(traces)),
		zap.Int("span_count", spanCount),
	)

	f.bus.Publish(FlushTopic, traces)
}

// SubscribeFlushes registers a handler for flushed trace batches.
func SubscribeFlushes(bus EventBus.Bus, handler func(map[string][]model.Span)) error {
	return bus.Subscribe(FlushTopic, handler)
}
