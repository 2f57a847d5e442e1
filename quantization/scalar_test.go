package quantization

import (
	"math"
	"testing"
)

func TestScalarQuantizer_Train(t *testing.T) {
	vectors := [][]float32{
		{-1.0, 0.0, 1.0},
		{-0.5, 0.5, 2.0},
		{-2.0, 1.0, 3.0},
	}

	sq := NewScalarQuantizer()
	if sq.Trained() {
		t.Fatal("new quantizer must not report trained")
	}

	err := sq.Train(vectors)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	if !sq.Trained() {
		t.Error("Expected trained after Train")
	}
	if sq.min != -2.0 {
		t.Errorf("Expected min=-2.0, got %f", sq.min)
	}
	if sq.max != 3.0 {
		t.Errorf("Expected max=3.0, got %f", sq.max)
	}
}

func TestScalarQuantizer_TrainEmpty(t *testing.T) {
	sq := NewScalarQuantizer()
	if err := sq.Train(nil); err == nil {
		t.Error("Expected error for empty training set")
	}
}

func TestScalarQuantizer_EncodeDecode(t *testing.T) {
	sq := NewScalarQuantizer()
	sq.min = -1.0
	sq.max = 1.0
	sq.trained = true

	original := []float32{-1.0, -0.5, 0.0, 0.5, 1.0}

	quantized := sq.Encode(original)
	if len(quantized) != len(original) {
		t.Fatalf("Expected %d bytes, got %d", len(original), len(quantized))
	}

	decoded := sq.Decode(quantized)
	if len(decoded) != len(original) {
		t.Fatalf("Expected %d floats, got %d", len(original), len(decoded))
	}

	maxError := float32(0.0)
	for i := range original {
		err := float32(math.Abs(float64(original[i] - decoded[i])))
		if err > maxError {
			maxError = err
		}
	}

	// Error should stay within one quantization step.
	expectedMaxError := (sq.max - sq.min) / 255.0
	if maxError > expectedMaxError*1.1 {
		t.Errorf("Reconstruction error too large: %f (expected <= %f)", maxError, expectedMaxError)
	}
}

func TestScalarQuantizer_DegenerateRange(t *testing.T) {
	sq := NewScalarQuantizer()
	if err := sq.Train([][]float32{{0.5, 0.5}, {0.5}}); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	// max must have been widened past min
	if sq.max <= sq.min {
		t.Errorf("Degenerate range not widened: min=%f max=%f", sq.min, sq.max)
	}
}

func TestScalarQuantizer_BinaryRoundTrip(t *testing.T) {
	sq := NewScalarQuantizer()
	_ = sq.Train([][]float32{{-3, 7}})

	data, err := sq.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	restored := NewScalarQuantizer()
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}

	if restored.min != sq.min || restored.max != sq.max || !restored.Trained() {
		t.Errorf("Round trip mismatch: %+v vs %+v", restored, sq)
	}

	if err := restored.UnmarshalBinary([]byte{1, 2}); err == nil {
		t.Error("Expected error for truncated data")
	}
}
