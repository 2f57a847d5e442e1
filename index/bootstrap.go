package index

import (
	"errors"
	"math"
	"math/rand"
)

// BootstrapSampleCount is the number of synthetic samples generated when a
// calibration-based index must be trained before enough real traffic has
// arrived.
const BootstrapSampleCount = 1000

// BootstrapSigma is the standard deviation of the Gaussian jitter applied
// to the seed vector.
const BootstrapSigma = 0.01

// Bootstrap synthesizes n training samples by jittering a real vector with
// small Gaussian noise. It satisfies training preconditions when real data
// is too sparse; it is not a quality guarantee.
//
// The generator is seeded deterministically from the vector contents so
// repeated bootstraps of the same seed vector are reproducible.
func Bootstrap(seed []float32, n int) ([][]float32, error) {
	if len(seed) == 0 {
		return nil, errors.New("empty seed vector")
	}
	if n < BootstrapSampleCount {
		n = BootstrapSampleCount
	}

	var h uint64 = 14695981039346656037
	for _, x := range seed {
		h ^= uint64(math.Float32bits(x))
		h *= 1099511628211
	}
	rng := rand.New(rand.NewSource(int64(h)))

	samples := make([][]float32, n)
	for i := range samples {
		s := make([]float32, len(seed))
		for j, x := range seed {
			s[j] = x + float32(rng.NormFloat64()*BootstrapSigma)
		}
		samples[i] = s
	}
	return samples, nil
}
