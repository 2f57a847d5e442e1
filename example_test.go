package tiervec_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/tiervec"
	"github.com/hupe1980/tiervec/index"
	"github.com/hupe1980/tiervec/metadata"
)

func Example() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "tiervec")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := tiervec.Open(ctx, dir, 4,
		tiervec.WithIndexKind(index.KindFlat),
		tiervec.WithLogger(tiervec.NoopLogger()),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	docs := []tiervec.Document{
		{
			ID:        "report-2025",
			Summary:   "quarterly revenue report",
			Embedding: []float32{1, 0, 0, 0},
			Metadata:  metadata.Document{"year": metadata.Int(2025)},
		},
		{
			ID:        "memo-2024",
			Summary:   "planning memo",
			Embedding: []float32{0, 1, 0, 0},
			Metadata:  metadata.Document{"year": metadata.Int(2024)},
		},
	}

	if _, err := store.AddDocumentsBatch(ctx, docs); err != nil {
		log.Fatal(err)
	}

	results, err := store.Search([]float32{1, 0, 0, 0}).
		KNN(1).
		Filter(metadata.Eq("year", 2025)).
		Execute(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(results[0].Document.ID)
	// Output: report-2025
}
