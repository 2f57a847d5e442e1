// Package persistence moves shard artifacts between memory and a blob store.
//
// Every shard persists as three artifacts under its tier directory: the
// serialized ANN index (index.bin), the metadata table (metadata.bin), and a
// human-readable summaries projection (summaries.json). Index and metadata
// are wrapped in a self-describing compression envelope (LZ4 for the hot
// tier, ZSTD for warm and cold); the summaries projection is written as
// plain JSON so it stays readable without the engine.
//
// All writes run inside the resource controller's bounded persistence pool
// and are retried once on failure.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hupe1980/tiervec/blobstore"
	"github.com/hupe1980/tiervec/model"
	"github.com/hupe1980/tiervec/resource"
)

// ErrManagerClosed is returned when operations are attempted on a closed manager.
var ErrManagerClosed = errors.New("persistence: manager is closed")

// Artifacts holds the serialized state of one shard.
type Artifacts struct {
	// Index is the serialized ANN index (index.bin).
	Index []byte
	// Metadata is the serialized metadata table (metadata.bin).
	Metadata []byte
	// Summaries is the JSON summaries projection (summaries.json).
	Summaries []byte
}

// Manager reads and writes shard artifacts through a blob store.
//
// The Manager is thread-safe and can be used concurrently.
type Manager struct {
	store  blobstore.BlobStore
	rc     *resource.Controller
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewManager creates a new persistence manager. rc and logger may be nil.
func NewManager(store blobstore.BlobStore, rc *resource.Controller, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if rc == nil {
		rc = resource.NewController(resource.Config{})
	}
	return &Manager{
		store:  store,
		rc:     rc,
		logger: logger,
	}
}

// WriteShard persists all artifacts of a shard to its tier directory.
// Individual artifact writes are retried once before the error surfaces.
func (m *Manager) WriteShard(ctx context.Context, tier model.Tier, shardID string, art Artifacts) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	comp := ForTier(tier)

	return m.rc.RunPersist(ctx, func() error {
		files := []struct {
			name     string
			data     []byte
			envelope bool
		}{
			{FileIndex, art.Index, true},
			{FileMetadata, art.Metadata, true},
			// summaries.json stays uncompressed plain JSON.
			{FileSummaries, art.Summaries, false},
		}

		for _, f := range files {
			data := f.data
			if f.envelope {
				enveloped, err := Compress(f.data, comp)
				if err != nil {
					return fmt.Errorf("compress %s for shard %s: %w", f.name, shardID, err)
				}
				data = enveloped
			}
			name := ArtifactName(tier, shardID, f.name)
			if err := m.putWithRetry(ctx, name, data); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
		}

		m.logger.Debug("shard artifacts written",
			"shard", shardID,
			"tier", tier,
			"compression", comp.String(),
		)
		return nil
	})
}

// ReadShard loads and decompresses all artifacts of a shard.
func (m *Manager) ReadShard(ctx context.Context, tier model.Tier, shardID string) (Artifacts, error) {
	if err := m.checkOpen(); err != nil {
		return Artifacts{}, err
	}

	var art Artifacts
	for _, f := range []struct {
		name     string
		dst      *[]byte
		envelope bool
	}{
		{FileIndex, &art.Index, true},
		{FileMetadata, &art.Metadata, true},
		{FileSummaries, &art.Summaries, false},
	} {
		name := ArtifactName(tier, shardID, f.name)
		data, err := m.readArtifact(ctx, name, f.envelope)
		if err != nil {
			return Artifacts{}, fmt.Errorf("read %s: %w", name, err)
		}
		*f.dst = data
	}

	return art, nil
}

func (m *Manager) readArtifact(ctx context.Context, name string, envelope bool) ([]byte, error) {
	blob, err := m.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	raw, err := blobstore.ReadAll(ctx, blob)
	if err != nil {
		return nil, err
	}
	if !envelope {
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}
	return Decompress(raw)
}

// DeleteShard removes all artifacts of a shard from its tier directory.
// Missing artifacts are ignored.
func (m *Manager) DeleteShard(ctx context.Context, tier model.Tier, shardID string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	for _, f := range shardFiles {
		name := ArtifactName(tier, shardID, f)
		if err := m.store.Delete(ctx, name); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	return nil
}

// MoveShard rewrites a shard's artifacts under the target tier (with the
// target tier's compression) and then removes the source copies. The new
// copy is durable before the old one disappears; if the process dies in
// between, the manifest decides which copy is authoritative.
func (m *Manager) MoveShard(ctx context.Context, shardID string, from, to model.Tier) error {
	art, err := m.ReadShard(ctx, from, shardID)
	if err != nil {
		return err
	}
	if err := m.WriteShard(ctx, to, shardID, art); err != nil {
		return err
	}
	if err := m.DeleteShard(ctx, from, shardID); err != nil {
		// The shard now exists in both tiers. Not fatal: the manifest
		// points at the target tier.
		m.logger.Warn("failed to remove source artifacts after move",
			"shard", shardID,
			"from", from,
			"to", to,
			"error", err,
		)
	}

	m.logger.Info("shard artifacts moved",
		"shard", shardID,
		"from", from,
		"to", to,
	)
	return nil
}

// ShardSize returns the total on-store size of a shard's artifacts in bytes.
func (m *Manager) ShardSize(ctx context.Context, tier model.Tier, shardID string) (int64, error) {
	if err := m.checkOpen(); err != nil {
		return 0, err
	}

	var total int64
	for _, f := range shardFiles {
		blob, err := m.store.Open(ctx, ArtifactName(tier, shardID, f))
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				continue
			}
			return 0, err
		}
		total += blob.Size()
		_ = blob.Close()
	}
	return total, nil
}

// Store exposes the underlying blob store (the manifest is written through it).
func (m *Manager) Store() blobstore.BlobStore {
	return m.store
}

// Controller exposes the resource controller persistence work runs under, so
// callers can charge shard memory against the same budget.
func (m *Manager) Controller() *resource.Controller {
	return m.rc
}

// Close marks the manager closed. In-flight operations complete normally.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func (m *Manager) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrManagerClosed
	}
	return nil
}

func (m *Manager) putWithRetry(ctx context.Context, name string, data []byte) error {
	if err := m.rc.AcquireIO(ctx, len(data)); err != nil {
		return err
	}
	err := m.store.Put(ctx, name, data)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	m.logger.Warn("artifact write failed, retrying", "name", name, "error", err)

	if rerr := m.rc.AcquireIO(ctx, len(data)); rerr != nil {
		return rerr
	}
	return m.store.Put(ctx, name, data)
}
