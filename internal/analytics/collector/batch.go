// Package collector batches copy events before they reach Kafka. A copy is
// the hottest write path in the API, so events are grouped and published
// with one broker round trip per batch.
package collector

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/kafka"
)

// BatchCollector publishes events when batchSize are pending or every
// flushInterval. One goroutine owns the pending batch; Track only hands
// events to it over a channel.
type BatchCollector struct {
	producer      kafka.Publisher
	in            chan kafka.Event
	batchSize     int
	flushInterval time.Duration
	// maxPending bounds how many unpublished events survive failed flushes.
	maxPending int

	pending  []kafka.Event
	buffered atomic.Int64
	dropped  atomic.Int64
	started  atomic.Bool
	done     chan struct{}
	logger   *slog.Logger
}

func NewBatchCollector(producer kafka.Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		producer:      producer,
		in:            make(chan kafka.Event, batchSize*2),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		maxPending:    batchSize * 3,
		pending:       make([]kafka.Event, 0, batchSize),
		done:          make(chan struct{}),
		logger:        slog.Default().With("component", "copy-batcher"),
	}
}

// Start runs the batching loop until ctx ends, then publishes whatever is
// still pending.
func (bc *BatchCollector) Start(ctx context.Context) {
	if !bc.started.CompareAndSwap(false, true) {
		return
	}
	go bc.run(ctx)
	bc.logger.Info("copy batcher started", "batch_size", bc.batchSize, "flush_interval", bc.flushInterval)
}

func (bc *BatchCollector) run(ctx context.Context) {
	defer close(bc.done)
	ticker := time.NewTicker(bc.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case ev := <-bc.in:
			bc.add(ev)
			if len(bc.pending) >= bc.batchSize {
				bc.flush(ctx)
			}
		case <-ticker.C:
			bc.flush(ctx)
		case <-ctx.Done():
			bc.drain()
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			bc.flush(flushCtx)
			cancel()
			if n := len(bc.pending); n > 0 {
				bc.logger.Warn("copy events lost on shutdown", "events", n)
			}
			return
		}
	}
}

// Track queues a copy event keyed by prompt id. It never blocks; when the
// hand-off channel is full the event is counted as dropped.
func (bc *BatchCollector) Track(key string, value any) {
	select {
	case bc.in <- kafka.Event{Key: key, Value: value}:
	default:
		if bc.dropped.Add(1)%100 == 1 {
			bc.logger.Warn("copy events dropped", "total_dropped", bc.dropped.Load())
		}
	}
}

// Close waits for the loop to finish its final flush. Cancel the context
// given to Start first.
func (bc *BatchCollector) Close() {
	if bc.started.Load() {
		<-bc.done
	}
}

// BufferLen reports events waiting to be published.
func (bc *BatchCollector) BufferLen() int {
	return int(bc.buffered.Load()) + len(bc.in)
}

// Dropped reports events discarded because the collector could not keep up.
func (bc *BatchCollector) Dropped() int64 {
	return bc.dropped.Load()
}

func (bc *BatchCollector) add(ev kafka.Event) {
	bc.pending = append(bc.pending, ev)
	bc.buffered.Store(int64(len(bc.pending)))
}

func (bc *BatchCollector) drain() {
	for {
		select {
		case ev := <-bc.in:
			bc.add(ev)
		default:
			return
		}
	}
}

// flush publishes the pending batch. On failure the batch is kept, oldest
// events first to go once maxPending is exceeded.
func (bc *BatchCollector) flush(ctx context.Context) {
	if len(bc.pending) == 0 {
		return
	}
	err := bc.producer.PublishBatch(ctx, bc.pending)
	if err == nil {
		bc.logger.Debug("copy batch published", "events", len(bc.pending))
		bc.pending = make([]kafka.Event, 0, bc.batchSize)
		bc.buffered.Store(0)
		return
	}
	bc.logger.Error("copy batch publish failed", "events", len(bc.pending), "error", err)
	if over := len(bc.pending) - bc.maxPending; over > 0 {
		bc.pending = append([]kafka.Event(nil), bc.pending[over:]...)
		bc.dropped.Add(int64(over))
		bc.logger.Warn("pending copy events trimmed", "dropped", over)
	}
	bc.buffered.Store(int64(len(bc.pending)))
}
