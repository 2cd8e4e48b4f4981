package redis

import (
	"context"
	"log"
	"sync"

	"nordpool-dataplane/internal/model"
)

// pendingBatch is a tick batch held back while the circuit is open.
type pendingBatch struct {
	area  string
	ticks []model.Tick
}

// BufferedCache wraps the tick cache with a circuit breaker. While the
// circuit is open, batches are buffered in memory and replayed once the
// probe succeeds, so a Redis outage delays the live feed instead of
// dropping it.
type BufferedCache struct {
	cache *Cache
	cb    *CircuitBreaker
	ctx   context.Context

	mu     sync.Mutex
	buffer []pendingBatch
	maxBuf int

	OnBuffer func()          // metrics hook, fired per buffered batch
	OnFlush  func(count int) // metrics hook, fired after a replay
}

// NewBufferedCache wires the breaker's close transition to a flush.
func NewBufferedCache(ctx context.Context, c *Cache, cb *CircuitBreaker, maxBatches int) *BufferedCache {
	if maxBatches <= 0 {
		maxBatches = 1000
	}
	bc := &BufferedCache{
		cache:  c,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingBatch, 0, 64),
		maxBuf: maxBatches,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		log.Printf("[redis] circuit %s -> %s", from, to)
		if to == StateClosed {
			go bc.flush()
		}
	}
	return bc
}

// PublishTicks publishes through the breaker, buffering when it is open.
func (bc *BufferedCache) PublishTicks(area string, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	err := bc.cb.Execute(func() error {
		return bc.cache.PublishTicks(bc.ctx, area, ticks)
	})
	if err == ErrCircuitOpen {
		bc.bufferBatch(area, ticks)
		return nil
	}
	return err
}

func (bc *BufferedCache) bufferBatch(area string, ticks []model.Tick) {
	cp := make([]model.Tick, len(ticks))
	copy(cp, ticks)

	bc.mu.Lock()
	defer bc.mu.Unlock()
	if len(bc.buffer) >= bc.maxBuf {
		bc.buffer = bc.buffer[1:] // drop oldest batch
	}
	bc.buffer = append(bc.buffer, pendingBatch{area: area, ticks: cp})
	if bc.OnBuffer != nil {
		bc.OnBuffer()
	}
}

func (bc *BufferedCache) flush() {
	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	toFlush := bc.buffer
	bc.buffer = make([]pendingBatch, 0, 64)
	bc.mu.Unlock()

	flushed := 0
	for _, b := range toFlush {
		if err := bc.cache.PublishTicks(bc.ctx, b.area, b.ticks); err != nil {
			continue
		}
		flushed += len(b.ticks)
	}
	log.Printf("[redis] flushed %d buffered ticks after circuit close", flushed)
	if bc.OnFlush != nil {
		bc.OnFlush(flushed)
	}
}

// PendingBatches reports how many batches wait for a flush.
func (bc *BufferedCache) PendingBatches() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Underlying exposes the wrapped cache for reads.
func (bc *BufferedCache) Underlying() *Cache { return bc.cache }
