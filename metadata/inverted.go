package metadata

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Inverted combines metadata storage with an inverted index backed by
// Roaring Bitmaps, giving each shard cheap equality/membership filter
// compilation before a vector search.
//
// Structure: field -> valueKey -> bitmap of local IDs.
type Inverted struct {
	mu sync.RWMutex

	// Primary metadata storage (local id -> metadata document)
	documents map[uint32]Document

	// Posting lists for fast filtering
	inverted map[string]map[string]*roaring.Bitmap
}

// NewInverted creates an empty inverted metadata index.
func NewInverted() *Inverted {
	return &Inverted{
		documents: make(map[uint32]Document),
		inverted:  make(map[string]map[string]*roaring.Bitmap),
	}
}

// Set stores metadata for an ID and updates the posting lists.
// Any existing metadata for the ID is replaced.
func (ix *Inverted) Set(id uint32, doc Document) {
	if doc == nil {
		return
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, exists := ix.documents[id]; exists {
		ix.removeLocked(id, old)
	}

	ix.documents[id] = doc
	ix.addLocked(id, doc)
}

// Get retrieves metadata for an ID.
func (ix *Inverted) Get(id uint32) (Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	doc, ok := ix.documents[id]
	return doc, ok
}

// Delete removes metadata for an ID.
func (ix *Inverted) Delete(id uint32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if doc, exists := ix.documents[id]; exists {
		ix.removeLocked(id, doc)
	}
	delete(ix.documents, id)
}

// Len returns the number of documents in the index.
func (ix *Inverted) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.documents)
}

// Compile translates a filter set into a bitmap of matching IDs.
//
// Only equality and membership filters compile to posting-list
// intersections; any other operator returns ok=false and the caller must
// fall back to scanning with FilterSet.Matches.
func (ix *Inverted) Compile(fs *FilterSet) (*roaring.Bitmap, bool) {
	if fs.Empty() {
		return nil, false
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var result *roaring.Bitmap
	for i := range fs.Filters {
		f := &fs.Filters[i]

		var stepBm *roaring.Bitmap
		switch f.Operator {
		case OpEqual:
			stepBm = ix.postingLocked(f.Key, f.Value)
		case OpIn:
			if f.Value.Kind != KindArray {
				return nil, false
			}
			stepBm = roaring.New()
			for _, item := range f.Value.A {
				if bm := ix.postingLocked(f.Key, item); bm != nil {
					stepBm.Or(bm)
				}
			}
		default:
			return nil, false
		}

		if stepBm == nil {
			// No document carries this value at all.
			return roaring.New(), true
		}

		if result == nil {
			result = stepBm.Clone()
		} else {
			result.And(stepBm)
		}
		if result.IsEmpty() {
			return result, true
		}
	}

	return result, true
}

func (ix *Inverted) postingLocked(key string, v Value) *roaring.Bitmap {
	byValue, ok := ix.inverted[key]
	if !ok {
		return nil
	}
	return byValue[v.Key()]
}

func (ix *Inverted) addLocked(id uint32, doc Document) {
	for key, value := range doc {
		byValue, ok := ix.inverted[key]
		if !ok {
			byValue = make(map[string]*roaring.Bitmap)
			ix.inverted[key] = byValue
		}
		vk := value.Key()
		bm, ok := byValue[vk]
		if !ok {
			bm = roaring.New()
			byValue[vk] = bm
		}
		bm.Add(id)
	}
}

func (ix *Inverted) removeLocked(id uint32, doc Document) {
	for key, value := range doc {
		byValue, ok := ix.inverted[key]
		if !ok {
			continue
		}
		vk := value.Key()
		if bm, ok := byValue[vk]; ok {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(byValue, vk)
			}
		}
		if len(byValue) == 0 {
			delete(ix.inverted, key)
		}
	}
}
