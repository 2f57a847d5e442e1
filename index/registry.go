package index

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// Kind is the stable on-disk tag of an index implementation.
type Kind uint8

const (
	// KindFlat tags the exact (flat) index.
	KindFlat Kind = 1
	// KindScalarQuantized tags the scalar-quantized flat index.
	KindScalarQuantized Kind = 2
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindScalarQuantized:
		return "sq"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind parses a configuration name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "flat":
		return KindFlat, nil
	case "sq":
		return KindScalarQuantized, nil
	default:
		return 0, fmt.Errorf("unknown index kind: %q", s)
	}
}

// Loader constructs an index instance by reading its binary representation
// from r. The reader begins after the kind tag.
type Loader func(r io.Reader) (Index, error)

var (
	loaderMu sync.RWMutex
	loaders  = map[Kind]Loader{}
)

// RegisterLoader registers a loader for an on-disk index kind.
//
// Index implementations call this from an init() function.
func RegisterLoader(kind Kind, loader Loader) {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	loaders[kind] = loader
}

// WriteKind writes the kind tag that Load dispatches on.
func WriteKind(w io.Writer, kind Kind) error {
	return binary.Write(w, binary.LittleEndian, uint8(kind))
}

// Load reads an index from r by dispatching on its kind tag.
func Load(r io.Reader) (Index, error) {
	var tag uint8
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return nil, fmt.Errorf("read index kind: %w", err)
	}

	loaderMu.RLock()
	loader, ok := loaders[Kind(tag)]
	loaderMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no loader registered for index kind %d", tag)
	}
	return loader(r)
}
