// Package index defines the contract every nearest-neighbor index must
// satisfy: train, add, search, serialize. The engine treats indexes as a
// pluggable capability and never depends on a concrete algorithm.
package index

import (
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/tiervec/metric"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("k must be positive")

// ErrNotTrained is returned when vectors are added to or searched in a
// calibration-based index before training.
var ErrNotTrained = errors.New("index is not trained")

// ErrDimensionMismatch is a named error type for dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

// Error returns the error message for dimension mismatch.
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInsufficientSamples is returned when a calibration-based index is
// trained with fewer samples than it requires.
type ErrInsufficientSamples struct {
	Need int
	Got  int
}

func (e *ErrInsufficientSamples) Error() string {
	return fmt.Sprintf("insufficient training samples: need %d, got %d", e.Need, e.Got)
}

// DistanceType selects the scoring function used by an index.
type DistanceType uint8

const (
	// DistanceTypeCosine scores by cosine similarity (higher is better).
	DistanceTypeCosine DistanceType = iota
	// DistanceTypeSquaredL2 scores by negated squared L2 distance.
	DistanceTypeSquaredL2
)

// String returns a string representation of the DistanceType.
func (dt DistanceType) String() string {
	switch dt {
	case DistanceTypeCosine:
		return "Cosine"
	case DistanceTypeSquaredL2:
		return "SquaredL2"
	default:
		return "Unknown"
	}
}

// ScoreFunc computes a query-relative score where higher is better.
type ScoreFunc func(q, v []float32) (float32, error)

// NewScoreFunc returns a score function for the given distance type.
func NewScoreFunc(dt DistanceType) (ScoreFunc, error) {
	switch dt {
	case DistanceTypeCosine:
		return metric.CosineSimilarity, nil
	case DistanceTypeSquaredL2:
		return func(q, v []float32) (float32, error) {
			d, err := metric.SquaredL2(q, v)
			if err != nil {
				return 0, err
			}
			return -d, nil
		}, nil
	default:
		return nil, fmt.Errorf("invalid distance type: %d", dt)
	}
}

// Result is one search hit: the index-local ID and its score.
type Result struct {
	ID    uint32
	Score float32
}

// Index is the abstract nearest-neighbor capability.
//
// IDs are dense, index-local, and assigned in insertion order; callers map
// them back to their own document identifiers.
type Index interface {
	// Kind identifies the concrete implementation (stable on-disk tag).
	Kind() Kind

	// Dimension returns the fixed vector dimension.
	Dimension() int

	// Len returns the number of stored vectors.
	Len() int

	// Trained reports whether the index is ready for Add/Search.
	// Exact indexes are born trained.
	Trained() bool

	// Train calibrates the index on a sample of vectors. Exact indexes
	// accept any call as a no-op.
	Train(samples [][]float32) error

	// Add appends vectors and returns their assigned IDs.
	Add(vectors [][]float32) ([]uint32, error)

	// Search returns the k best-scoring vectors for q, best first.
	// When filter is non-nil only IDs it accepts are considered.
	Search(q []float32, k int, filter func(id uint32) bool) ([]Result, error)

	// WriteTo serializes the index, including its kind tag, so that Load
	// can reconstruct it.
	WriteTo(w io.Writer) (int64, error)
}
