package sq

import (
	"bytes"
	"testing"

	"github.com/hupe1980/tiervec/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainedTest(t *testing.T, dim int) *SQ {
	t.Helper()
	s, err := New(func(o *Options) { o.Dimension = dim })
	require.NoError(t, err)

	seed := make([]float32, dim)
	for i := range seed {
		seed[i] = float32(i) / float32(dim)
	}
	samples, err := index.Bootstrap(seed, MinTrainSamples)
	require.NoError(t, err)
	require.NoError(t, s.Train(samples))
	return s
}

func TestSQ_RequiresTraining(t *testing.T) {
	s, err := New(func(o *Options) { o.Dimension = 4 })
	require.NoError(t, err)
	assert.False(t, s.Trained())

	_, err = s.Add([][]float32{{1, 0, 0, 0}})
	assert.ErrorIs(t, err, index.ErrNotTrained)

	_, err = s.Search([]float32{1, 0, 0, 0}, 1, nil)
	assert.ErrorIs(t, err, index.ErrNotTrained)
}

func TestSQ_TrainSampleCount(t *testing.T) {
	s, err := New(func(o *Options) { o.Dimension = 4 })
	require.NoError(t, err)

	err = s.Train([][]float32{{1, 0, 0, 0}})
	var ins *index.ErrInsufficientSamples
	require.ErrorAs(t, err, &ins)
	assert.Equal(t, MinTrainSamples, ins.Need)
}

func TestSQ_AddSearch(t *testing.T) {
	s := trainedTest(t, 4)

	ids, err := s.Add([][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.9, 0.1, 0, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, ids)
	assert.Equal(t, 3, s.Len())

	results, err := s.Search([]float32{1, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Quantization error must not change the obvious winner.
	assert.Equal(t, uint32(0), results[0].ID)
}

func TestSQ_BinaryRoundTrip(t *testing.T) {
	s := trainedTest(t, 4)
	_, err := s.Add([][]float32{{1, 0, 0, 0}, {0, 0, 1, 0}})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = s.WriteTo(&buf)
	require.NoError(t, err)

	loaded, err := index.Load(&buf)
	require.NoError(t, err)
	require.Equal(t, index.KindScalarQuantized, loaded.Kind())
	assert.True(t, loaded.Trained())
	assert.Equal(t, 2, loaded.Len())

	results, err := loaded.Search([]float32{0, 0, 1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(1), results[0].ID)
}
