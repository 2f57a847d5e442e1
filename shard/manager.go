package shard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/tiervec/blobstore"
	"github.com/hupe1980/tiervec/index"
	"github.com/hupe1980/tiervec/index/flat"
	"github.com/hupe1980/tiervec/index/sq"
	"github.com/hupe1980/tiervec/manifest"
	"github.com/hupe1980/tiervec/model"
	"github.com/hupe1980/tiervec/persistence"
	"github.com/hupe1980/tiervec/resource"
)

// DefaultMaxDocsPerShard bounds a building shard before rotation.
const DefaultMaxDocsPerShard = 10_000

// Config holds shard manager settings.
type Config struct {
	// MaxDocsPerShard is the capacity of a building shard.
	// If 0, DefaultMaxDocsPerShard is used.
	MaxDocsPerShard int

	// RawDimension is the embedding dimension callers supply.
	RawDimension int

	// Dimension is the compressed dimension the indexes operate on.
	Dimension int

	// Distance selects the scoring function.
	Distance index.DistanceType

	// Kind selects the index implementation for new shards.
	// Defaults to the scalar-quantized index.
	Kind index.Kind
}

// Manager owns the shard topology: it rotates the single building shard,
// loads finalized shards on demand, migrates them between tiers, and keeps
// the manifest in sync after every topology event.
type Manager struct {
	cfg    Config
	pm     *persistence.Manager
	rc     *resource.Controller
	ms     *manifest.Store
	logger *slog.Logger

	mu       sync.Mutex
	man      *manifest.Manifest
	resident map[string]*Shard
	active   *Shard
}

// NewManager creates a shard manager. Call Open before use. Resident shard
// memory is charged against the memory budget of the persistence manager's
// resource controller.
func NewManager(cfg Config, pm *persistence.Manager, ms *manifest.Store, logger *slog.Logger) *Manager {
	if cfg.MaxDocsPerShard <= 0 {
		cfg.MaxDocsPerShard = DefaultMaxDocsPerShard
	}
	if cfg.Kind == 0 {
		cfg.Kind = index.KindScalarQuantized
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		pm:       pm,
		rc:       pm.Controller(),
		ms:       ms,
		logger:   logger,
		resident: make(map[string]*Shard),
	}
}

// Open loads the manifest and restores the hot tier. Warm shards are loaded
// lazily on first access; cold shards only when explicitly requested.
//
// A damaged shard is skipped with a warning and dropped from the manifest;
// only an unreadable manifest aborts the open.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	man, err := m.ms.Load(ctx)
	if err != nil {
		return err
	}
	if man == nil {
		man = manifest.New(m.cfg.RawDimension, m.cfg.Dimension, m.cfg.Distance.String())
		m.man = man
		return m.ms.Save(ctx, man)
	}

	if man.Dimension != m.cfg.RawDimension || man.CompressedDimension != m.cfg.Dimension {
		return fmt.Errorf("%w: store built for %d->%d dimensions, configured %d->%d",
			manifest.ErrCorrupt,
			man.Dimension, man.CompressedDimension,
			m.cfg.RawDimension, m.cfg.Dimension,
		)
	}
	m.man = man

	dropped := false
	for _, info := range man.ByTier(model.TierHot) {
		sh, err := m.loadShard(ctx, info)
		if err != nil {
			if info.State == model.StateBuilding && errors.Is(err, blobstore.ErrNotFound) {
				// The building shard was never flushed. Resume with an
				// empty shard under the same ID; unflushed documents
				// are gone.
				sh, err = m.emptyShard(info)
				if err != nil {
					return err
				}
				m.logger.Warn("building shard had no artifacts, restarting empty", "shard", info.ID)
			} else {
				m.logger.Warn("skipping damaged shard", "shard", info.ID, "error", err)
				man.Remove(info.ID)
				dropped = true
				continue
			}
		}

		if err := m.reserveMemoryLocked(sh.memBytes); err != nil {
			if info.State == model.StateBuilding {
				return fmt.Errorf("shard %s: %w", info.ID, err)
			}
			// Stays in the manifest; a later search loads it lazily
			// once the budget allows.
			m.logger.Warn("memory budget exhausted, hot shard left non-resident", "shard", info.ID)
			continue
		}

		m.resident[sh.ID()] = sh
		if man.ActiveShard == info.ID {
			m.active = sh
		}
	}

	if dropped {
		return m.ms.Save(ctx, man)
	}
	return nil
}

func (m *Manager) emptyShard(info manifest.ShardInfo) (*Shard, error) {
	idx, err := m.newIndex()
	if err != nil {
		return nil, err
	}
	sh := New(info.ID, info.Tier, idx, m.cfg.MaxDocsPerShard)
	sh.createdAt = info.CreatedAt
	return sh, nil
}

// loadShard reads and restores a shard without touching the manager lock or
// the memory budget; callers reserve sh.memBytes before publishing it.
func (m *Manager) loadShard(ctx context.Context, info manifest.ShardInfo) (*Shard, error) {
	art, err := m.pm.ReadShard(ctx, info.Tier, info.ID)
	if err != nil {
		return nil, err
	}
	sh, err := Restore(info.ID, info.Tier, info.State, info.CreatedAt, art)
	if err != nil {
		return nil, err
	}
	sh.limit = m.cfg.MaxDocsPerShard
	sh.memBytes = int64(len(art.Index) + len(art.Metadata) + len(art.Summaries))
	return sh, nil
}

// reserveMemoryLocked charges bytes against the memory budget, evicting idle
// shards under pressure. Requires m.mu.
func (m *Manager) reserveMemoryLocked(bytes int64) error {
	if m.rc.TryAcquireMemory(bytes) {
		return nil
	}
	m.evictIdleLocked(time.Now())
	if m.rc.TryAcquireMemory(bytes) {
		return nil
	}
	return fmt.Errorf("shard: memory budget exhausted (%d bytes requested)", bytes)
}

// Current returns the building shard, rotating first if the previous one is
// at capacity. Rotation finalizes the old shard, flushes its artifacts, and
// records the topology change in the manifest before the new shard accepts
// any document.
func (m *Manager) Current(ctx context.Context) (*Shard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The state check covers a finalize that persisted the shard but failed
	// to save the manifest: the shard is sealed, so rotate past it instead
	// of handing it out again.
	if m.active != nil && m.active.State() == model.StateBuilding && m.active.Len() < m.cfg.MaxDocsPerShard {
		return m.active, nil
	}

	if m.active != nil {
		if err := m.finalizeActiveLocked(ctx); err != nil {
			return nil, err
		}
	}

	return m.createActiveLocked(ctx)
}

func (m *Manager) createActiveLocked(ctx context.Context) (*Shard, error) {
	idx, err := m.newIndex()
	if err != nil {
		return nil, err
	}

	id := m.nextIDLocked()
	sh := New(id, model.TierHot, idx, m.cfg.MaxDocsPerShard)

	m.man.Upsert(manifest.ShardInfo{
		ID:        id,
		Tier:      model.TierHot,
		State:     model.StateBuilding,
		CreatedAt: sh.CreatedAt(),
		UpdatedAt: sh.CreatedAt(),
	})
	m.man.ActiveShard = id

	if err := m.ms.Save(ctx, m.man); err != nil {
		m.man.Remove(id)
		return nil, err
	}

	m.resident[id] = sh
	m.active = sh

	m.logger.Info("building shard opened", "shard", id)
	return sh, nil
}

// finalizeActiveLocked persists the active shard, marks it finalized, and
// flushes the manifest. On persistence failure the shard stays writable and
// the error surfaces to the caller.
func (m *Manager) finalizeActiveLocked(ctx context.Context) error {
	sh := m.active

	art, err := sh.Serialize()
	if err != nil {
		return err
	}
	if err := m.pm.WriteShard(ctx, model.TierHot, sh.ID(), art); err != nil {
		return err
	}

	sh.Finalize()

	size, err := m.pm.ShardSize(ctx, model.TierHot, sh.ID())
	if err != nil {
		size = 0
	}

	info, _ := m.man.Find(sh.ID())
	info.State = model.StateFinalized
	info.DocCount = sh.Len()
	info.SizeBytes = size
	info.UpdatedAt = time.Now().UTC()
	m.man.Upsert(info)
	m.man.ActiveShard = ""

	if err := m.ms.Save(ctx, m.man); err != nil {
		return err
	}

	m.active = nil
	m.logger.Info("shard finalized", "shard", sh.ID(), "docs", sh.Len(), "bytes", size)
	return nil
}

// FinalizeActive force-rotates regardless of fill level. No-op without an
// active shard.
func (m *Manager) FinalizeActive(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil
	}
	return m.finalizeActiveLocked(ctx)
}

// Flush persists the active shard's artifacts and document count without
// finalizing it, so a restart resumes filling the same shard.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil
	}

	art, err := m.active.Serialize()
	if err != nil {
		return err
	}
	if err := m.pm.WriteShard(ctx, model.TierHot, m.active.ID(), art); err != nil {
		return err
	}

	info, _ := m.man.Find(m.active.ID())
	info.DocCount = m.active.Len()
	info.UpdatedAt = time.Now().UTC()
	m.man.Upsert(info)

	return m.ms.Save(ctx, m.man)
}

// Get returns a shard by ID, loading it from its tier directory if it is
// not resident. The manager lock is released for the artifact read, so
// concurrent probes of other shards are not serialized behind the I/O;
// when two callers race on the same shard, the loser's copy is discarded.
func (m *Manager) Get(ctx context.Context, id string) (*Shard, error) {
	m.mu.Lock()
	if sh, ok := m.resident[id]; ok {
		m.mu.Unlock()
		return sh, nil
	}
	info, ok := m.man.Find(id)
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("shard: unknown shard %q", id)
	}

	sh, err := m.loadShard(ctx, info)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.resident[id]; ok {
		return existing, nil
	}
	if _, ok := m.man.Find(id); !ok {
		// Removed while we were reading.
		return nil, fmt.Errorf("shard: unknown shard %q", id)
	}
	if err := m.reserveMemoryLocked(sh.memBytes); err != nil {
		return nil, fmt.Errorf("shard %s: %w", id, err)
	}
	m.resident[id] = sh

	m.logger.Debug("shard loaded", "shard", id, "tier", info.Tier)
	return sh, nil
}

// Migrate moves a finalized shard to another tier. The shard keeps its ID;
// artifacts are rewritten with the target tier's compression and the
// manifest records the move. Migrating to the current tier is a no-op.
func (m *Manager) Migrate(ctx context.Context, id string, to model.Tier) error {
	if !to.Valid() {
		return fmt.Errorf("shard: invalid tier %q", to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.man.Find(id)
	if !ok {
		return fmt.Errorf("shard: unknown shard %q", id)
	}
	if info.State != model.StateFinalized {
		return fmt.Errorf("shard: %q is still building", id)
	}
	if info.Tier == to {
		return nil
	}

	if err := m.pm.MoveShard(ctx, id, info.Tier, to); err != nil {
		return err
	}

	from := info.Tier
	info.Tier = to
	info.UpdatedAt = time.Now().UTC()
	m.man.Upsert(info)

	if err := m.ms.Save(ctx, m.man); err != nil {
		return err
	}

	if sh, ok := m.resident[id]; ok {
		sh.SetTier(to)
		if to == model.TierCold {
			delete(m.resident, id)
			m.rc.ReleaseMemory(sh.memBytes)
		}
	}

	m.logger.Info("shard migrated", "shard", id, "from", from, "to", to)
	return nil
}

// Remove deletes a shard and its artifacts. The active shard cannot be
// removed.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.ID() == id {
		return fmt.Errorf("shard: %q is the active shard", id)
	}

	info, ok := m.man.Find(id)
	if !ok {
		return fmt.Errorf("shard: unknown shard %q", id)
	}

	if err := m.pm.DeleteShard(ctx, info.Tier, id); err != nil {
		return err
	}

	m.man.Remove(id)
	if err := m.ms.Save(ctx, m.man); err != nil {
		return err
	}

	if sh, ok := m.resident[id]; ok {
		delete(m.resident, id)
		m.rc.ReleaseMemory(sh.memBytes)
	}

	m.logger.Info("shard removed", "shard", id, "tier", info.Tier)
	return nil
}

// EvictIdle drops resident finalized shards that have not been touched for
// maxIdle. Their artifacts stay on the store; the next search reloads them.
// Returns the number of shards evicted.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictIdleLocked(time.Now().Add(-maxIdle))
}

// evictIdleLocked drops resident shards last accessed before cutoff and
// returns their memory to the budget. Requires m.mu.
func (m *Manager) evictIdleLocked(cutoff time.Time) int {
	evicted := 0
	for id, sh := range m.resident {
		if m.active != nil && id == m.active.ID() {
			continue
		}
		if sh.LastAccess().Before(cutoff) {
			delete(m.resident, id)
			m.rc.ReleaseMemory(sh.memBytes)
			evicted++
			m.logger.Debug("idle shard evicted", "shard", id)
		}
	}
	return evicted
}

// Shards returns a snapshot of all shard records.
func (m *Manager) Shards() []manifest.ShardInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]manifest.ShardInfo, len(m.man.Shards))
	copy(out, m.man.Shards)
	return out
}

// Eligible returns the IDs of shards in the given tiers, newest first per
// tier. The active shard is included when the hot tier is requested.
func (m *Manager) Eligible(tiers []model.Tier) []manifest.ShardInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []manifest.ShardInfo
	for _, tier := range tiers {
		out = append(out, m.man.ByTier(tier)...)
	}
	return out
}

// ActiveLen returns the live document count of the building shard.
func (m *Manager) ActiveLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return 0
	}
	return m.active.Len()
}

// TotalDocs returns the document count across all shards, using the live
// count for the building shard.
func (m *Manager) TotalDocs() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, info := range m.man.Shards {
		if m.active != nil && info.ID == m.active.ID() {
			total += m.active.Len()
			continue
		}
		total += info.DocCount
	}
	return total
}

// StorageBytes returns the summed artifact sizes recorded in the manifest.
func (m *Manager) StorageBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for _, info := range m.man.Shards {
		total += info.SizeBytes
	}
	return total
}

// CountByTier returns shard counts per tier.
func (m *Manager) CountByTier() map[model.Tier]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.man.CountByTier()
}

// Close flushes the active shard.
func (m *Manager) Close(ctx context.Context) error {
	return m.Flush(ctx)
}

func (m *Manager) newIndex() (index.Index, error) {
	switch m.cfg.Kind {
	case index.KindFlat:
		return flat.New(func(o *flat.Options) {
			o.Dimension = m.cfg.Dimension
			o.DistanceType = m.cfg.Distance
		})
	case index.KindScalarQuantized:
		return sq.New(func(o *sq.Options) {
			o.Dimension = m.cfg.Dimension
			o.DistanceType = m.cfg.Distance
		})
	default:
		return nil, fmt.Errorf("shard: unknown index kind %d", m.cfg.Kind)
	}
}

// nextIDLocked generates the next shard ID for the current quarter, e.g.
// "hot_2025_Q1_003". The sequence continues from the highest existing one.
func (m *Manager) nextIDLocked() string {
	now := time.Now().UTC()
	quarter := int(now.Month()-1)/3 + 1
	prefix := fmt.Sprintf("hot_%d_Q%d_", now.Year(), quarter)

	maxSeq := 0
	for _, info := range m.man.Shards {
		rest, ok := strings.CutPrefix(info.ID, prefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n > maxSeq {
			maxSeq = n
		}
	}

	return fmt.Sprintf("%s%03d", prefix, maxSeq+1)
}
