package flat

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/tiervec/index"
)

func init() {
	index.RegisterLoader(index.KindFlat, load)
}

// binaryVersion guards the on-disk layout of the flat index stream.
const binaryVersion uint8 = 1

// WriteTo serializes the index.
//
// Layout after the kind tag (little-endian):
//
//	[version u8][distance u8][dimension u32][count u32]
//	count * dimension * [component f32]
func (f *Flat) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	if err := index.WriteKind(cw, index.KindFlat); err != nil {
		return cw.n, err
	}

	state := f.state.Load()
	hdr := []any{
		binaryVersion,
		uint8(f.opts.DistanceType),
		uint32(f.opts.Dimension),
		uint32(len(state.vectors)),
	}
	for _, v := range hdr {
		if err := binary.Write(cw, binary.LittleEndian, v); err != nil {
			return cw.n, err
		}
	}

	buf := make([]byte, 4*f.opts.Dimension)
	for _, vec := range state.vectors {
		for i, x := range vec {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
		}
		if _, err := cw.Write(buf); err != nil {
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
		count    uint32
	)
	for _, v := range []any{&version, &distance, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("read flat header: %w", err)
		}
	}
	if version != binaryVersion {
		return nil, fmt.Errorf("unsupported flat index version: %d", version)
	}

	f, err := New(func(o *Options) {
		o.Dimension = int(dim)
		o.DistanceType = index.DistanceType(distance)
	})
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, count)
	buf := make([]byte, 4*dim)
	for i := range vectors {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read flat vector %d: %w", i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		vectors[i] = vec
	}

	f.state.Store(&indexState{vectors: vectors})
	return f, nil
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
