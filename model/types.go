package model

import (
	"fmt"
	"time"

	"github.com/hupe1980/tiervec/metadata"
)

// Tier is the storage/performance class of a shard.
// It governs where artifacts live on disk and whether the shard's index
// is searched by default.
type Tier string

const (
	// TierHot marks recently written shards that are kept resident and
	// searched on every query.
	TierHot Tier = "hot"
	// TierWarm marks aged shards that are loaded lazily on first search.
	TierWarm Tier = "warm"
	// TierCold marks archived shards that are excluded from search unless
	// explicitly requested.
	TierCold Tier = "cold"
)

// ParseTier parses a tier name.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierHot, TierWarm, TierCold:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown tier: %q", s)
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierHot, TierWarm, TierCold:
		return true
	}
	return false
}

// ShardState is the lifecycle state of a shard.
type ShardState string

const (
	// StateBuilding marks the single writable shard.
	StateBuilding ShardState = "building"
	// StateFinalized marks an immutable shard whose artifacts are flushed.
	// Tier movement (hot -> warm -> cold) happens only in this state.
	StateFinalized ShardState = "finalized"
)

// VectorDocument is one stored record: a compressed embedding plus the
// display and filter payload that travels with it.
type VectorDocument struct {
	// ID is the caller-assigned unique identifier.
	ID string `json:"id"`

	// Summary is a short, caller-supplied display string (~100 chars).
	Summary string `json:"summary"`

	// Embedding is the compressed vector. Its length must equal the store's
	// configured compressed dimension.
	Embedding []float32 `json:"embedding"`

	// Metadata holds filterable key/value attributes.
	Metadata metadata.Document `json:"metadata,omitempty"`

	// EntityID is an optional back-reference to the entity this document
	// was derived from.
	EntityID string `json:"entity_id,omitempty"`

	// Timestamp is the ingestion time.
	Timestamp time.Time `json:"timestamp"`

	// ContentType tags the kind of content the embedding was produced from.
	ContentType string `json:"content_type,omitempty"`

	// ValueScore is an externally computed importance score in [0, 1].
	ValueScore float64 `json:"value_score"`
}

// SearchResult is a read-only projection of a VectorDocument with its
// query-relative score. Higher scores are better.
type SearchResult struct {
	Document VectorDocument `json:"document"`
	Score    float32        `json:"score"`
	ShardID  string         `json:"shard_id"`
}

// Summary is the lightweight projection persisted alongside each shard so
// callers can display results without deserializing the full document table.
type Summary struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Timestamp   time.Time `json:"timestamp"`
	ContentType string    `json:"content_type,omitempty"`
	ValueScore  float64   `json:"value_score"`
}
