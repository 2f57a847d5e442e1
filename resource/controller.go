package resource

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for managed memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// SearchWorkers caps the number of shards probed concurrently during a
	// fan-out search. If 0, defaults to GOMAXPROCS.
	SearchWorkers int64

	// PersistWorkers is the maximum number of concurrent persistence jobs
	// (finalization, migration, artifact writes). If 0, defaults to 1.
	PersistWorkers int64

	// IOLimitBytesPerSec is the maximum IO throughput for persistence tasks.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages global resources (memory, concurrency, IO throughput).
// Search fan-out and background persistence draw from separate pools so a
// slow disk cannot starve queries.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	searchSem  *semaphore.Weighted
	persistSem *semaphore.Weighted

	// IO
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.SearchWorkers <= 0 {
		cfg.SearchWorkers = int64(runtime.GOMAXPROCS(0))
	}
	if cfg.PersistWorkers <= 0 {
		cfg.PersistWorkers = 1
	}

	c := &Controller{
		cfg:        cfg,
		searchSem:  semaphore.NewWeighted(cfg.SearchWorkers),
		persistSem: semaphore.NewWeighted(cfg.PersistWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// TryAcquireMemory attempts to reserve memory without blocking.
// Returns true if acquired, false if the limit would be exceeded.
// Callers under pressure free memory (evict, drop caches) and retry
// rather than wait; a request larger than the whole budget would
// otherwise block forever.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil {
		return true
	}
	if bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	return c.memUsed.Load()
}

// RunSearch executes fn inside a search worker slot, blocking while the
// fan-out pool is saturated.
func (c *Controller) RunSearch(ctx context.Context, fn func() error) error {
	if err := c.searchSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.searchSem.Release(1)

	return fn()
}

// RunPersist executes fn inside a persistence worker slot. Persistence jobs
// share a bounded pool so finalizing many shards at once cannot exhaust file
// handles or saturate the disk.
func (c *Controller) RunPersist(ctx context.Context, fn func() error) error {
	if err := c.persistSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.persistSem.Release(1)

	return fn()
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
// Requests larger than the limiter's burst are consumed in burst-sized steps.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}

	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
