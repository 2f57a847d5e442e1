package flat

import (
	"bytes"
	"testing"

	"github.com/hupe1980/tiervec/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTest(t *testing.T, dim int) *Flat {
	t.Helper()
	f, err := New(func(o *Options) { o.Dimension = dim })
	require.NoError(t, err)
	return f
}

func TestFlat(t *testing.T) {
	t.Run("Add", func(t *testing.T) {
		f := newTest(t, 3)

		ids, err := f.Add([][]float32{{1, 0, 0}, {0, 1, 0}})
		require.NoError(t, err)
		assert.Equal(t, []uint32{0, 1}, ids)
		assert.Equal(t, 2, f.Len())

		// Dimension mismatch rejects the whole batch
		_, err = f.Add([][]float32{{1, 2}})
		require.Error(t, err)
		assert.IsType(t, &index.ErrDimensionMismatch{}, err)
		assert.Equal(t, 2, f.Len())
	})

	t.Run("Search", func(t *testing.T) {
		f := newTest(t, 4)
		_, err := f.Add([][]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0.9, 0.1, 0, 0},
		})
		require.NoError(t, err)

		results, err := f.Search([]float32{1, 0, 0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, uint32(0), results[0].ID)
		assert.Equal(t, uint32(2), results[1].ID)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("SearchFilter", func(t *testing.T) {
		f := newTest(t, 2)
		_, err := f.Add([][]float32{{1, 0}, {0.9, 0.1}, {0, 1}})
		require.NoError(t, err)

		results, err := f.Search([]float32{1, 0}, 3, func(id uint32) bool { return id != 0 })
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, uint32(1), results[0].ID)
	})

	t.Run("SearchErrors", func(t *testing.T) {
		f := newTest(t, 2)
		_, err := f.Search([]float32{1, 0}, 0, nil)
		assert.ErrorIs(t, err, index.ErrInvalidK)

		_, err = f.Search([]float32{1, 0, 0}, 1, nil)
		assert.IsType(t, &index.ErrDimensionMismatch{}, err)
	})

	t.Run("AlwaysTrained", func(t *testing.T) {
		f := newTest(t, 2)
		assert.True(t, f.Trained())
		assert.NoError(t, f.Train(nil))
	})

	t.Run("InvalidDimension", func(t *testing.T) {
		_, err := New()
		assert.Error(t, err)
	})
}

func TestFlat_BinaryRoundTrip(t *testing.T) {
	f := newTest(t, 3)
	_, err := f.Add([][]float32{{1, 0, 0}, {0.5, 0.5, 0}, {0, 0, 1}})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)

	loaded, err := index.Load(&buf)
	require.NoError(t, err)
	require.Equal(t, index.KindFlat, loaded.Kind())
	assert.Equal(t, 3, loaded.Len())
	assert.Equal(t, 3, loaded.Dimension())

	results, err := loaded.Search([]float32{0, 0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(2), results[0].ID)
}
