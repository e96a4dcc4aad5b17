package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/kafka"
)

const (
	maxShipBatch = 64
	drainTimeout = 5 * time.Second
)

// Collector ships events to Kafka from a bounded queue so request handlers
// never wait on the broker. Events queued together are published as one
// batch. When the queue is full new events are dropped and counted.
type Collector struct {
	producer kafka.Publisher
	queue    chan any
	quit     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	closed   atomic.Bool
	dropped  atomic.Int64
	logger   *slog.Logger
}

func NewCollector(producer kafka.Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		queue:    make(chan any, bufferSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   slog.Default().With("component", "analytics-collector"),
	}
}

// Start launches the publish loop and returns immediately. The loop stops
// when ctx is cancelled or Close is called, publishing what is still
// queued first.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.logger.Info("analytics collector started", "buffer_size", cap(c.queue))
	go c.loop(ctx)
}

// Track queues an event. It never blocks.
func (c *Collector) Track(event any) {
	if c.closed.Load() {
		return
	}
	select {
	case c.queue <- event:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("analytics queue full, dropping events", "dropped_total", n)
		}
	}
}

// Dropped is the number of events refused because the queue was full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for the queue to be published.
func (c *Collector) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.quit)
	}
	if c.started.Load() {
		<-c.done
	}
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case event := <-c.queue:
			c.ship(ctx, c.gather(event))
		case <-ctx.Done():
			c.drain(ctx)
			return
		case <-c.quit:
			c.drain(ctx)
			return
		}
	}
}

// gather collects first and whatever else is already queued, up to
// maxShipBatch events.
func (c *Collector) gather(first any) []kafka.Event {
	batch := []kafka.Event{toKafka(first)}
	for len(batch) < maxShipBatch {
		select {
		case event := <-c.queue:
			batch = append(batch, toKafka(event))
		default:
			return batch
		}
	}
	return batch
}

// drain publishes the rest of the queue with a fresh deadline, since ctx may
// already be cancelled.
func (c *Collector) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-c.queue:
			c.ship(ctx, c.gather(event))
		default:
			return
		}
	}
}

func (c *Collector) ship(ctx context.Context, batch []kafka.Event) {
	if err := c.producer.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish analytics events", "events", len(batch), "error", err)
	}
}

func toKafka(event any) kafka.Event {
	return kafka.Event{Key: eventKey(event), Value: event}
}

// eventKey partitions prompt events by prompt so per-prompt ordering holds.
func eventKey(event any) string {
	switch e := event.(type) {
	case PromptEvent:
		return e.PromptID
	case *PromptEvent:
		return e.PromptID
	default:
		return "analytics"
	}
}
