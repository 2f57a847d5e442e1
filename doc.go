// Package tiervec is an embedded, persistent vector store with tiered
// shards. Documents are appended to a single writable (building) shard;
// when it reaches capacity it is finalized, flushed to the blob store and a
// fresh shard takes over. Finalized shards migrate between hot, warm and
// cold tiers, and searches fan out concurrently across all eligible shards.
//
// Basic usage:
//
//	store, err := tiervec.Open(ctx, "./data", 1536)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.AddDocument(ctx, tiervec.Document{
//	    ID:        "doc-1",
//	    Summary:   "quarterly revenue report",
//	    Embedding: embedding,
//	    Metadata:  metadata.Document{"year": metadata.Int(2025)},
//	    Timestamp: time.Now(),
//	})
//
//	results, err := store.Search(query).
//	    KNN(10).
//	    Filter(metadata.Eq("year", 2025)).
//	    Execute(ctx)
//
// Embeddings are compressed on write (mean pooling to a configurable
// dimension, with values rounded to float16 precision), so search operates
// on compressed vectors. All state is persisted through a pluggable
// blobstore.BlobStore; the default backend is the local filesystem rooted
// at the path given to Open.
package tiervec
