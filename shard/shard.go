// Package shard implements bounded vector shards and their tiered lifecycle.
//
// A shard couples an ANN index with a document table and a metadata inverted
// index. Exactly one shard per store is in the building state and accepts
// writes; once it reaches capacity it is finalized, becomes immutable, and a
// fresh building shard takes over. Finalized shards age through the warm and
// cold tiers without changing identity.
package shard

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/tiervec/codec"
	"github.com/hupe1980/tiervec/index"
	"github.com/hupe1980/tiervec/metadata"
	"github.com/hupe1980/tiervec/model"
	"github.com/hupe1980/tiervec/persistence"
)

var (
	// ErrFinalized is returned when writing to a shard that is no longer building.
	ErrFinalized = errors.New("shard: finalized, writes rejected")
	// ErrDuplicateID is returned when a document ID already exists in the shard.
	ErrDuplicateID = errors.New("shard: duplicate document id")
	// ErrShardFull is returned when a write would push the shard past its
	// capacity. The caller rotates via Manager.Current and retries.
	ErrShardFull = errors.New("shard: at capacity")
)

// Shard is a bounded unit of vector storage. Reads are safe concurrently
// with one writer; the document table and index grow append-only.
type Shard struct {
	id        string
	createdAt time.Time
	limit     int   // max documents; 0 means unbounded
	memBytes  int64 // artifact bytes charged against the memory budget

	mu    sync.RWMutex
	tier  model.Tier
	state model.ShardState
	idx   index.Index
	docs  []model.VectorDocument
	ids   map[string]uint32 // document ID -> local index ID
	meta  *metadata.Inverted

	lastAccess atomic.Int64 // unix nanos
}

// New creates an empty building shard over the given index. limit bounds the
// document count; 0 means unbounded.
func New(id string, tier model.Tier, idx index.Index, limit int) *Shard {
	s := &Shard{
		id:        id,
		createdAt: time.Now().UTC(),
		limit:     limit,
		tier:      tier,
		state:     model.StateBuilding,
		idx:       idx,
		ids:       make(map[string]uint32),
		meta:      metadata.NewInverted(),
	}
	s.Touch()
	return s
}

// ID returns the shard identifier. It is stable across tier migrations.
func (s *Shard) ID() string { return s.id }

// CreatedAt returns the shard creation time.
func (s *Shard) CreatedAt() time.Time { return s.createdAt }

// Tier returns the current tier.
func (s *Shard) Tier() model.Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tier
}

// SetTier records a tier migration. The shard's identity and contents are
// unchanged.
func (s *Shard) SetTier(tier model.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tier = tier
}

// State returns the lifecycle state.
func (s *Shard) State() model.ShardState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Len returns the number of stored documents.
func (s *Shard) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// LastAccess returns the time of the last search or write.
func (s *Shard) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

// Touch records an access now.
func (s *Shard) Touch() {
	s.lastAccess.Store(time.Now().UnixNano())
}

// Add appends one document. The embedding must already be compressed to the
// index dimension. A quantized index that has not been trained yet is
// trained on a bootstrap sample derived from the first embedding.
//
// The capacity check lives here, under the shard's write lock, so two
// callers holding the same shard handle cannot push it past its limit.
func (s *Shard) Add(doc model.VectorDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.StateBuilding {
		return ErrFinalized
	}
	if s.limit > 0 && len(s.docs) >= s.limit {
		return ErrShardFull
	}
	if len(doc.Embedding) != s.idx.Dimension() {
		return &index.ErrDimensionMismatch{Expected: s.idx.Dimension(), Actual: len(doc.Embedding)}
	}
	if _, exists := s.ids[doc.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, doc.ID)
	}

	if !s.idx.Trained() {
		samples, err := index.Bootstrap(doc.Embedding, index.BootstrapSampleCount)
		if err != nil {
			return fmt.Errorf("bootstrap training: %w", err)
		}
		if err := s.idx.Train(samples); err != nil {
			return fmt.Errorf("bootstrap training: %w", err)
		}
	}

	localIDs, err := s.idx.Add([][]float32{doc.Embedding})
	if err != nil {
		return err
	}
	localID := localIDs[0]

	// The index holds the vector; the table keeps everything else.
	stored := doc
	stored.Embedding = nil

	s.docs = append(s.docs, stored)
	s.ids[doc.ID] = localID
	if len(doc.Metadata) > 0 {
		s.meta.Set(localID, doc.Metadata)
	}

	s.Touch()
	return nil
}

// Contains reports whether a document ID is present.
func (s *Shard) Contains(docID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[docID]
	return ok
}

// Search returns the k best-scoring documents for q, best first. The filter
// set is compiled against the inverted index when possible; operators the
// posting lists cannot answer fall back to a per-candidate scan.
func (s *Shard) Search(q []float32, k int, fs *metadata.FilterSet) ([]model.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.Touch()

	var filter func(id uint32) bool
	if fs != nil && !fs.Empty() {
		if bm, ok := s.meta.Compile(fs); ok {
			filter = bm.Contains
		} else {
			filter = func(id uint32) bool {
				doc, ok := s.meta.Get(id)
				if !ok {
					return false
				}
				return fs.Matches(doc)
			}
		}
	}

	hits, err := s.idx.Search(q, k, filter)
	if err != nil {
		return nil, err
	}

	results := make([]model.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, model.SearchResult{
			Document: s.docs[h.ID],
			Score:    h.Score,
			ShardID:  s.id,
		})
	}
	return results, nil
}

// Finalize makes the shard immutable. Idempotent.
func (s *Shard) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = model.StateFinalized
}

// Summaries returns the lightweight projection of all documents.
func (s *Shard) Summaries() []model.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summariesLocked()
}

// docTable is the persisted form of the document table. Local index IDs are
// implicit in document order.
type docTable struct {
	Docs []model.VectorDocument `json:"docs"`
}

// Serialize produces the shard's persistence artifacts.
func (s *Shard) Serialize() (persistence.Artifacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idxBuf bytes.Buffer
	if _, err := s.idx.WriteTo(&idxBuf); err != nil {
		return persistence.Artifacts{}, fmt.Errorf("serialize index: %w", err)
	}

	metaBytes, err := codec.Default.Marshal(docTable{Docs: s.docs})
	if err != nil {
		return persistence.Artifacts{}, fmt.Errorf("serialize document table: %w", err)
	}

	sumBytes, err := codec.Default.Marshal(s.summariesLocked())
	if err != nil {
		return persistence.Artifacts{}, fmt.Errorf("serialize summaries: %w", err)
	}

	return persistence.Artifacts{
		Index:     idxBuf.Bytes(),
		Metadata:  metaBytes,
		Summaries: sumBytes,
	}, nil
}

func (s *Shard) summariesLocked() []model.Summary {
	out := make([]model.Summary, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, model.Summary{
			ID:          d.ID,
			Summary:     d.Summary,
			Timestamp:   d.Timestamp,
			ContentType: d.ContentType,
			ValueScore:  d.ValueScore,
		})
	}
	return out
}

// Restore rebuilds a shard from its persisted artifacts.
func Restore(id string, tier model.Tier, state model.ShardState, createdAt time.Time, art persistence.Artifacts) (*Shard, error) {
	idx, err := index.Load(bytes.NewReader(art.Index))
	if err != nil {
		return nil, fmt.Errorf("restore index for shard %s: %w", id, err)
	}

	var table docTable
	if err := codec.Default.Unmarshal(art.Metadata, &table); err != nil {
		return nil, fmt.Errorf("restore document table for shard %s: %w", id, err)
	}
	if len(table.Docs) != idx.Len() {
		return nil, fmt.Errorf("shard %s: document table has %d entries, index has %d", id, len(table.Docs), idx.Len())
	}

	s := &Shard{
		id:        id,
		createdAt: createdAt,
		tier:      tier,
		state:     state,
		idx:       idx,
		docs:      table.Docs,
		ids:       make(map[string]uint32, len(table.Docs)),
		meta:      metadata.NewInverted(),
	}
	for i, d := range table.Docs {
		localID := uint32(i)
		s.ids[d.ID] = localID
		if len(d.Metadata) > 0 {
			s.meta.Set(localID, d.Metadata)
		}
	}

	s.Touch()
	return s, nil
}
