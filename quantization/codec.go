// Package quantization provides embedding compression for memory-efficient
// storage: dimensionality reduction at write time and scalar quantization
// inside indexes.
package quantization

import (
	"errors"

	"github.com/hupe1980/tiervec/internal/f16"
)

// ErrEmptyVector is returned when a zero-length vector is compressed.
var ErrEmptyVector = errors.New("empty vector")

// Codec reduces a raw embedding to the store's compressed dimension.
//
// Compression is deterministic for a given configuration and is an
// optimization, never a correctness requirement: callers that cannot
// compress fall back to Narrow and keep writing.
type Codec interface {
	// Compress narrows and, when the input is longer than the configured
	// compressed dimension, reduces the vector.
	Compress(v []float32) ([]float32, error)

	// CompressedDimension returns the target dimension.
	CompressedDimension() int

	// Ratio returns the raw-to-compressed storage ratio.
	Ratio() float64
}

// MeanPool reduces vectors by deterministic block-mean pooling followed by
// binary16 precision narrowing.
//
// Input dimensions are split into CompressedDimension contiguous blocks of
// near-equal size; each output component is the mean of its block. Inputs
// already at or below the target dimension are only narrowed.
type MeanPool struct {
	rawDim        int
	compressedDim int
}

// NewMeanPool creates a pooling codec. rawDim is the expected input
// dimension (used for the ratio metric); compressedDim is the target.
func NewMeanPool(rawDim, compressedDim int) (*MeanPool, error) {
	if compressedDim <= 0 {
		return nil, errors.New("compressed dimension must be positive")
	}
	if rawDim < compressedDim {
		return nil, errors.New("raw dimension must be >= compressed dimension")
	}
	return &MeanPool{rawDim: rawDim, compressedDim: compressedDim}, nil
}

// Compress implements Codec.
func (mp *MeanPool) Compress(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrEmptyVector
	}

	if len(v) <= mp.compressedDim {
		return Narrow(v), nil
	}

	out := make([]float32, mp.compressedDim)
	n := len(v)
	for i := 0; i < mp.compressedDim; i++ {
		start := i * n / mp.compressedDim
		end := (i + 1) * n / mp.compressedDim
		var sum float32
		for j := start; j < end; j++ {
			sum += v[j]
		}
		out[i] = sum / float32(end-start)
	}

	f16.RoundSlice(out)
	return out, nil
}

// CompressedDimension implements Codec.
func (mp *MeanPool) CompressedDimension() int { return mp.compressedDim }

// Ratio implements Codec.
func (mp *MeanPool) Ratio() float64 {
	return float64(mp.rawDim) / float64(mp.compressedDim)
}

// Narrow returns a copy of v with every component rounded to binary16
// precision. This is the non-truncating fallback used when reduction is
// not possible.
func Narrow(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	f16.RoundSlice(out)
	return out
}
