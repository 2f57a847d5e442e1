package manifest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/tiervec/blobstore"
	"github.com/hupe1980/tiervec/codec"
	"github.com/hupe1980/tiervec/persistence"
)

// Store reads and writes the manifest through a blob store. Atomicity of a
// single save comes from the blob store itself (tmp+rename locally, object
// PUT on S3).
type Store struct {
	store blobstore.BlobStore
	codec codec.Codec

	mu sync.Mutex
}

// NewStore creates a manifest store. c may be nil, in which case the default
// codec is used.
func NewStore(store blobstore.BlobStore, c codec.Codec) *Store {
	if c == nil {
		c = codec.Default
	}
	return &Store{
		store: store,
		codec: c,
	}
}

// Load reads the current manifest. A missing manifest yields (nil, nil):
// the caller starts fresh. Any existing-but-undecodable manifest is
// reported as ErrCorrupt.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := s.store.Open(ctx, persistence.ManifestName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	data, err := blobstore.ReadAll(ctx, blob)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := s.codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Save writes the manifest, bumping its revision.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = CurrentVersion
	m.Revision++
	m.UpdatedAt = time.Now().UTC()

	data, err := s.codec.Marshal(m)
	if err != nil {
		return err
	}

	return s.store.Put(ctx, persistence.ManifestName, data)
}
