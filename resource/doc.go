// Package resource implements the Controller for global limits and governance.
//
// The Controller provides centralized management of three resource types:
//
//   - Memory: Track and limit memory usage across the store
//   - Concurrency: Separate worker pools for search fan-out and persistence
//   - IO: Rate-limit persistence IO to avoid starving foreground queries
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for hard limits and an atomic
// counter for usage tracking:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB limit
//	})
//
//	if !rc.TryAcquireMemory(1024 * 1024) {
//	    // evict something, then retry or degrade
//	}
//	defer rc.ReleaseMemory(1024 * 1024)
//
// Shard residency is charged here: the shard manager reserves a loaded
// shard's artifact bytes and releases them when the shard is evicted,
// removed, or migrated to cold.
//
// # Worker Pools
//
// Search and persistence draw from independent semaphores. Shard probes run
// under RunSearch; finalization and migration artifact writes run under
// RunPersist. A saturated persistence pool therefore never delays a query.
//
// # IO Rate Limiting
//
// When IOLimitBytesPerSec is set, persistence writes pass through a token
// bucket (golang.org/x/time/rate); large artifact flushes are paced in
// burst-sized chunks via AcquireIO.
package resource
