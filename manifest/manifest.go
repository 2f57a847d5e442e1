// Package manifest maintains shard_metadata.json, the authoritative record
// of every shard's identity, tier, and lifecycle state.
//
// The manifest is rewritten after every topology event (shard creation,
// finalization, migration, removal). A missing manifest means a fresh store;
// an unreadable one is fatal, since guessing at topology risks serving a
// partial corpus silently.
package manifest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/tiervec/model"
)

// CurrentVersion is the version of the manifest format.
const CurrentVersion = 1

// ErrCorrupt is returned when the manifest exists but cannot be decoded.
// Unlike per-shard damage, this is not recoverable by skipping.
var ErrCorrupt = errors.New("manifest: corrupt")

// ShardInfo describes a single shard.
type ShardInfo struct {
	ID        string           `json:"id"`
	Tier      model.Tier       `json:"tier"`
	State     model.ShardState `json:"state"`
	DocCount  int              `json:"doc_count"`
	SizeBytes int64            `json:"size_bytes"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Manifest describes the store topology at a specific point in time.
type Manifest struct {
	Version             int         `json:"version"`
	Revision            uint64      `json:"revision"`
	UpdatedAt           time.Time   `json:"updated_at"`
	Dimension           int         `json:"dimension"`
	CompressedDimension int         `json:"compressed_dimension"`
	Distance            string      `json:"distance"`
	ActiveShard         string      `json:"active_shard,omitempty"`
	Shards              []ShardInfo `json:"shards"`
}

// New creates a new empty manifest.
func New(dimension, compressedDimension int, distance string) *Manifest {
	return &Manifest{
		Version:             CurrentVersion,
		UpdatedAt:           time.Now().UTC(),
		Dimension:           dimension,
		CompressedDimension: compressedDimension,
		Distance:            distance,
	}
}

// Find returns the shard record with the given ID.
func (m *Manifest) Find(id string) (ShardInfo, bool) {
	for _, s := range m.Shards {
		if s.ID == id {
			return s, true
		}
	}
	return ShardInfo{}, false
}

// Upsert inserts or replaces a shard record.
func (m *Manifest) Upsert(info ShardInfo) {
	for i, s := range m.Shards {
		if s.ID == info.ID {
			m.Shards[i] = info
			return
		}
	}
	m.Shards = append(m.Shards, info)
}

// Remove deletes a shard record. Returns false if the shard is unknown.
func (m *Manifest) Remove(id string) bool {
	for i, s := range m.Shards {
		if s.ID == id {
			m.Shards = append(m.Shards[:i], m.Shards[i+1:]...)
			if m.ActiveShard == id {
				m.ActiveShard = ""
			}
			return true
		}
	}
	return false
}

// ByTier returns the shard records of one tier, newest first.
func (m *Manifest) ByTier(tier model.Tier) []ShardInfo {
	var out []ShardInfo
	for _, s := range m.Shards {
		if s.Tier == tier {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// CountByTier returns the number of shards per tier.
func (m *Manifest) CountByTier() map[model.Tier]int {
	counts := make(map[model.Tier]int, 3)
	for _, s := range m.Shards {
		counts[s.Tier]++
	}
	return counts
}

// TotalDocs returns the total number of documents across all shards.
func (m *Manifest) TotalDocs() int {
	total := 0
	for _, s := range m.Shards {
		total += s.DocCount
	}
	return total
}

// Validate checks internal consistency.
func (m *Manifest) Validate() error {
	if m.Version != CurrentVersion {
		return fmt.Errorf("%w: unsupported version %d (expected %d)", ErrCorrupt, m.Version, CurrentVersion)
	}

	seen := make(map[string]struct{}, len(m.Shards))
	building := 0
	for _, s := range m.Shards {
		if s.ID == "" {
			return fmt.Errorf("%w: shard record with empty id", ErrCorrupt)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate shard id %q", ErrCorrupt, s.ID)
		}
		seen[s.ID] = struct{}{}

		if !s.Tier.Valid() {
			return fmt.Errorf("%w: shard %q has unknown tier %q", ErrCorrupt, s.ID, s.Tier)
		}
		if s.State == model.StateBuilding {
			building++
			if s.Tier != model.TierHot {
				return fmt.Errorf("%w: building shard %q outside hot tier", ErrCorrupt, s.ID)
			}
		}
	}

	if building > 1 {
		return fmt.Errorf("%w: %d building shards (at most one allowed)", ErrCorrupt, building)
	}
	if m.ActiveShard != "" {
		info, ok := m.Find(m.ActiveShard)
		if !ok {
			return fmt.Errorf("%w: active shard %q not in shard list", ErrCorrupt, m.ActiveShard)
		}
		if info.State != model.StateBuilding {
			return fmt.Errorf("%w: active shard %q is not building", ErrCorrupt, m.ActiveShard)
		}
	}

	return nil
}
