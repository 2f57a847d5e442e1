package persistence

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/hupe1980/tiervec/model"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression defines the compression algorithm used for shard artifacts.
type Compression uint8

const (
	// CompressionNone indicates no compression.
	CompressionNone Compression = 0
	// CompressionLZ4 indicates LZ4 block compression (fast, used for the hot tier).
	CompressionLZ4 Compression = 1
	// CompressionZSTD indicates ZSTD compression (better ratio, used for warm and cold tiers).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "unknown"
	}
}

// ForTier returns the compression used for artifacts of the given tier.
// Hot shards favor decode speed; warm and cold favor ratio.
func ForTier(tier model.Tier) Compression {
	switch tier {
	case model.TierHot:
		return CompressionLZ4
	case model.TierWarm, model.TierCold:
		return CompressionZSTD
	default:
		return CompressionNone
	}
}

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Artifact envelope:
// [Algorithm uint8][UncompressedSize uint32][CompressedSize uint32][Data...]
// If CompressedSize == 0, Data is stored uncompressed (incompressible input
// or compression that did not pay for itself).
const envelopeHeaderSize = 9

var (
	// ErrEnvelopeTooSmall is returned when data is shorter than the envelope header.
	ErrEnvelopeTooSmall = errors.New("persistence: envelope too small for header")
	// ErrEnvelopeCorrupt is returned when envelope sizes disagree with the payload.
	ErrEnvelopeCorrupt = errors.New("persistence: envelope corrupt")
)

// Compress wraps data in a self-describing compressed envelope.
// If compression does not help (ratio > 0.9), the payload is stored raw.
func Compress(data []byte, c Compression) ([]byte, error) {
	var compressed []byte
	var err error

	switch c {
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZSTD:
		compressed, err = compressZSTD(data)
	case CompressionNone:
		// stored raw below
	default:
		return nil, errors.New("persistence: unknown compression")
	}
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		result := make([]byte, envelopeHeaderSize+len(data))
		result[0] = byte(c)
		binary.LittleEndian.PutUint32(result[1:], uint32(len(data)))
		binary.LittleEndian.PutUint32(result[5:], 0)
		copy(result[envelopeHeaderSize:], data)
		return result, nil
	}

	result := make([]byte, envelopeHeaderSize+len(compressed))
	result[0] = byte(c)
	binary.LittleEndian.PutUint32(result[1:], uint32(len(data)))
	binary.LittleEndian.PutUint32(result[5:], uint32(len(compressed)))
	copy(result[envelopeHeaderSize:], compressed)
	return result, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return compressed[:n], nil
}

func compressZSTD(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)

	return enc.EncodeAll(data, nil), nil
}

// Decompress unwraps a compressed envelope. The algorithm is read from the
// envelope itself, so readers need no out-of-band tier knowledge.
func Decompress(data []byte) ([]byte, error) {
	if len(data) < envelopeHeaderSize {
		return nil, ErrEnvelopeTooSmall
	}

	alg := Compression(data[0])
	uncompressedSize := binary.LittleEndian.Uint32(data[1:])
	compressedSize := binary.LittleEndian.Uint32(data[5:])

	if compressedSize == 0 {
		if uint32(len(data)) < envelopeHeaderSize+uncompressedSize {
			return nil, ErrEnvelopeCorrupt
		}
		// Copy so the result never aliases data, which may be an mmap
		// that goes away when the blob is closed.
		out := make([]byte, uncompressedSize)
		copy(out, data[envelopeHeaderSize:envelopeHeaderSize+uncompressedSize])
		return out, nil
	}

	if uint32(len(data)) < envelopeHeaderSize+compressedSize {
		return nil, ErrEnvelopeCorrupt
	}
	payload := data[envelopeHeaderSize : envelopeHeaderSize+compressedSize]
	result := make([]byte, uncompressedSize)

	switch alg {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, result)
		if err != nil {
			return nil, err
		}
		if uint32(n) != uncompressedSize {
			return nil, ErrEnvelopeCorrupt
		}
		return result, nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)

		decoded, err := dec.DecodeAll(payload, result[:0])
		if err != nil {
			return nil, err
		}
		if uint32(len(decoded)) != uncompressedSize {
			return nil, ErrEnvelopeCorrupt
		}
		return decoded, nil

	default:
		return nil, errors.New("persistence: unknown compression")
	}
}
