package tiervec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/tiervec/index"
	"github.com/hupe1980/tiervec/manifest"
)

var (
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrInvalidK is returned when a search requests a non-positive k.
	ErrInvalidK = index.ErrInvalidK

	// ErrCorruptManifest is returned by Open when the manifest exists but
	// cannot be decoded or fails validation. This is the only startup
	// failure that refuses to open the store; per-shard damage is skipped
	// and logged instead.
	ErrCorruptManifest = manifest.ErrCorrupt
)

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}
