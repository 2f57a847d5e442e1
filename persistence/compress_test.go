package persistence

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/hupe1980/tiervec/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForTier(t *testing.T) {
	assert.Equal(t, CompressionLZ4, ForTier(model.TierHot))
	assert.Equal(t, CompressionZSTD, ForTier(model.TierWarm))
	assert.Equal(t, CompressionZSTD, ForTier(model.TierCold))
}

func TestCompressRoundTrip(t *testing.T) {
	// Compressible payload
	data := bytes.Repeat([]byte("the quick brown fox "), 500)

	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(comp.String(), func(t *testing.T) {
			enveloped, err := Compress(data, comp)
			require.NoError(t, err)

			if comp != CompressionNone {
				assert.Less(t, len(enveloped), len(data))
			}

			out, err := Decompress(enveloped)
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}
}

func TestCompressIncompressible(t *testing.T) {
	// Random bytes do not compress; the envelope must fall back to raw storage.
	data := make([]byte, 4096)
	_, err := rand.Read(data)
	require.NoError(t, err)

	for _, comp := range []Compression{CompressionLZ4, CompressionZSTD} {
		t.Run(comp.String(), func(t *testing.T) {
			enveloped, err := Compress(data, comp)
			require.NoError(t, err)

			out, err := Decompress(enveloped)
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}
}

func TestCompressEmpty(t *testing.T) {
	enveloped, err := Compress(nil, CompressionZSTD)
	require.NoError(t, err)

	out, err := Decompress(enveloped)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecompressCorrupt(t *testing.T) {
	t.Run("TooShort", func(t *testing.T) {
		_, err := Decompress([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrEnvelopeTooSmall)
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		data := bytes.Repeat([]byte("abcdef"), 1000)
		enveloped, err := Compress(data, CompressionZSTD)
		require.NoError(t, err)

		_, err = Decompress(enveloped[:len(enveloped)/2])
		assert.Error(t, err)
	})
}
