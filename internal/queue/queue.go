// Package queue is the in-process hand-off between the ingest loop and the
// alert-dispatch loop. Items survive normal operation but not a crash;
// that is acceptable, the target is at-most-once notification.
package queue

import (
	"sync"

	"github.com/rs/zerolog"

	"fuelwatch/internal/storage"
)

// Queue is a bounded multi-producer FIFO of changed daily-minima records.
// On overflow the oldest item is evicted so sustained back-pressure cannot
// grow the queue without bound.
type Queue struct {
	mu       sync.Mutex
	items    []storage.PriceRecord
	capacity int
	evicted  uint64
	logger   zerolog.Logger
}

// New constructs a queue with the given capacity.
func New(capacity int, logger zerolog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{
		capacity: capacity,
		logger:   logger.With().Str("component", "change_queue").Logger(),
	}
}

// Enqueue appends the record, evicting the oldest entry when full.
func (q *Queue) Enqueue(rec storage.PriceRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		dropped := q.items[0]
		q.items = q.items[1:]
		q.evicted++
		q.logger.Warn().
			Str("fuel_type", dropped.FuelType).
			Uint64("evicted_total", q.evicted).
			Msg("change queue full, evicting oldest record")
	}
	q.items = append(q.items, rec)
}

// Drain removes and returns every queued record in FIFO order.
func (q *Queue) Drain() []storage.PriceRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len reports the current depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
