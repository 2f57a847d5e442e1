package quantization

import (
	"encoding/binary"
	"errors"
	"math"
)

// ScalarQuantizer implements 8-bit scalar quantization.
// It compresses float32 components (4 bytes/dim) to uint8 (1 byte/dim).
//
// The quantizer must be trained before encoding: training finds the global
// min/max across a sample of vectors and every component is linearly mapped
// from [min, max] to [0, 255].
type ScalarQuantizer struct {
	min     float32
	max     float32
	trained bool
}

// NewScalarQuantizer creates an untrained 8-bit scalar quantizer.
func NewScalarQuantizer() *ScalarQuantizer {
	return &ScalarQuantizer{min: 0, max: 1}
}

// Trained reports whether the quantizer has been calibrated.
func (sq *ScalarQuantizer) Trained() bool { return sq.trained }

// Train calibrates the quantizer by finding min/max values across all vectors.
func (sq *ScalarQuantizer) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return errors.New("no vectors provided for training")
	}

	sq.min = math.MaxFloat32
	sq.max = -math.MaxFloat32

	for _, vec := range vectors {
		for _, val := range vec {
			if val < sq.min {
				sq.min = val
			}
			if val > sq.max {
				sq.max = val
			}
		}
	}

	// Degenerate case: all components identical.
	if sq.min == sq.max {
		sq.max = sq.min + 1
	}

	sq.trained = true
	return nil
}

// Encode quantizes a float32 vector to its 8-bit representation.
func (sq *ScalarQuantizer) Encode(v []float32) []byte {
	quantized := make([]byte, len(v))
	scale := 255.0 / (sq.max - sq.min)

	for i, val := range v {
		if val < sq.min {
			val = sq.min
		} else if val > sq.max {
			val = sq.max
		}
		normalized := (val - sq.min) * scale
		quantized[i] = uint8(normalized + 0.5)
	}

	return quantized
}

// Decode reconstructs a float32 vector from its quantized representation.
func (sq *ScalarQuantizer) Decode(b []byte) []float32 {
	decoded := make([]float32, len(b))
	scale := (sq.max - sq.min) / 255.0

	for i, val := range b {
		decoded[i] = float32(val)*scale + sq.min
	}

	return decoded
}

// CompressionRatio returns the in-index memory ratio (float32 vs uint8).
func (sq *ScalarQuantizer) CompressionRatio() float64 { return 4.0 }

// MarshalBinary implements encoding.BinaryMarshaler.
// Format (little-endian): [min:float32][max:float32][trained:byte]
func (sq *ScalarQuantizer) MarshalBinary() ([]byte, error) {
	b := make([]byte, 9)
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(sq.min))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(sq.max))
	if sq.trained {
		b[8] = 1
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (sq *ScalarQuantizer) UnmarshalBinary(data []byte) error {
	if len(data) != 9 {
		return errors.New("invalid scalar quantizer binary length")
	}
	sq.min = math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	sq.max = math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))
	sq.trained = data[8] == 1
	return nil
}
