// Package flat provides an exact nearest-neighbor index: every search
// scores the query against all stored vectors. It is the reference
// implementation of the index contract and is always trained.
package flat

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/tiervec/index"
)

// Compile-time check to ensure Flat satisfies the index contract.
var _ index.Index = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	// It must be > 0 and is enforced for all inserts and searches.
	Dimension int

	// DistanceType selects the scoring function.
	DistanceType index.DistanceType
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Dimension:    0,
	DistanceType: index.DistanceTypeCosine,
}

// indexState holds the immutable vector set for lock-free reads.
type indexState struct {
	vectors [][]float32
}

// Flat is the exact index. It uses a copy-on-write state pattern so reads
// never take a lock; writes are serialized by a mutex.
type Flat struct {
	state   atomic.Pointer[indexState]
	writeMu sync.Mutex
	score   index.ScoreFunc
	opts    Options
}

// New creates a new flat index. Dimension must be set.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", opts.Dimension)
	}
	score, err := index.NewScoreFunc(opts.DistanceType)
	if err != nil {
		return nil, err
	}

	f := &Flat{score: score, opts: opts}
	f.state.Store(&indexState{})
	return f, nil
}

// Kind implements index.Index.
func (f *Flat) Kind() index.Kind { return index.KindFlat }

// Dimension implements index.Index.
func (f *Flat) Dimension() int { return f.opts.Dimension }

// Len implements index.Index.
func (f *Flat) Len() int { return len(f.state.Load().vectors) }

// Trained implements index.Index. A flat index is born trained.
func (f *Flat) Trained() bool { return true }

// Train implements index.Index as a no-op.
func (f *Flat) Train(samples [][]float32) error { return nil }

// Add appends vectors and returns their assigned IDs.
func (f *Flat) Add(vectors [][]float32) ([]uint32, error) {
	for _, v := range vectors {
		if len(v) != f.opts.Dimension {
			return nil, &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(v)}
		}
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	old := f.state.Load()
	next := &indexState{vectors: make([][]float32, len(old.vectors), len(old.vectors)+len(vectors))}
	copy(next.vectors, old.vectors)

	ids := make([]uint32, len(vectors))
	for i, v := range vectors {
		stored := make([]float32, len(v))
		copy(stored, v)
		ids[i] = uint32(len(next.vectors))
		next.vectors = append(next.vectors, stored)
	}

	f.state.Store(next)
	return ids, nil
}

// Search returns the k best-scoring vectors for q, best first.
func (f *Flat) Search(q []float32, k int, filter func(id uint32) bool) ([]index.Result, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if len(q) != f.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(q)}
	}

	state := f.state.Load()
	top := index.NewTopK(k)

	for id, v := range state.vectors {
		if filter != nil && !filter(uint32(id)) {
			continue
		}
		score, err := f.score(q, v)
		if err != nil {
			return nil, err
		}
		top.Push(index.Result{ID: uint32(id), Score: score})
	}

	return top.Results(), nil
}

// Vector returns the stored vector for an ID.
func (f *Flat) Vector(id uint32) ([]float32, bool) {
	state := f.state.Load()
	if int(id) >= len(state.vectors) {
		return nil, false
	}
	return state.vectors[id], true
}
