package sq

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/tiervec/index"
	"github.com/hupe1980/tiervec/quantization"
)

func init() {
	index.RegisterLoader(index.KindScalarQuantized, load)
}

const binaryVersion uint8 = 1

// WriteTo serializes the index.
//
// Layout after the kind tag (little-endian):
//
//	[version u8][distance u8][dimension u32]
//	[quantizer blob len u32][quantizer blob]
//	[count u32] count * dimension * [code u8]
func (s *SQ) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	if err := index.WriteKind(cw, index.KindScalarQuantized); err != nil {
		return cw.n, err
	}

	qblob, err := s.quantizer.MarshalBinary()
	if err != nil {
		return cw.n, err
	}

	state := s.state.Load()
	hdr := []any{
		binaryVersion,
		uint8(s.opts.DistanceType),
		uint32(s.opts.Dimension),
		uint32(len(qblob)),
	}
	for _, v := range hdr {
		if err := binary.Write(cw, binary.LittleEndian, v); err != nil {
			return cw.n, err
		}
	}
	if _, err := cw.Write(qblob); err != nil {
		return cw.n, err
	}

	if err := binary.Write(cw, binary.LittleEndian, uint32(len(state.codes))); err != nil {
		return cw.n, err
	}
	for _, codes := range state.codes {
		if _, err := cw.Write(codes); err != nil {
			return cw.n, err
		}
	}

	return cw.n, nil
}

func load(r io.Reader) (index.Index, error) {
	var (
		version  uint8
		distance uint8
		dim      uint32
		qlen     uint32
	)
	for _, v := range []any{&version, &distance, &dim, &qlen} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("read sq header: %w", err)
		}
	}
	if version != binaryVersion {
		return nil, fmt.Errorf("unsupported sq index version: %d", version)
	}

	qblob := make([]byte, qlen)
	if _, err := io.ReadFull(r, qblob); err != nil {
		return nil, fmt.Errorf("read sq quantizer: %w", err)
	}
	quantizer := quantization.NewScalarQuantizer()
	if err := quantizer.UnmarshalBinary(qblob); err != nil {
		return nil, err
	}

	s, err := New(func(o *Options) {
		o.Dimension = int(dim)
		o.DistanceType = index.DistanceType(distance)
	})
	if err != nil {
		return nil, err
	}
	s.quantizer = quantizer

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read sq count: %w", err)
	}

	codes := make([][]byte, count)
	for i := range codes {
		c := make([]byte, dim)
		if _, err := io.ReadFull(r, c); err != nil {
			return nil, fmt.Errorf("read sq codes %d: %w", i, err)
		}
		codes[i] = c
	}

	s.state.Store(&indexState{codes: codes})
	return s, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
