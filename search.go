package tiervec

import (
	"context"

	"github.com/hupe1980/tiervec/metadata"
	"github.com/hupe1980/tiervec/model"
)

// Search creates a new fluent search builder for the given query vector.
//
// Example:
//
//	results, err := store.Search(query).
//	    KNN(10).
//	    Tiers(tiervec.TierHot, tiervec.TierWarm).
//	    Filter(metadata.Eq("year", 2025)).
//	    Execute(ctx)
func (s *Store) Search(query []float32) *SearchBuilder {
	return &SearchBuilder{
		store: s,
		query: query,
		k:     10, // Default k
	}
}

// SearchBuilder is a fluent builder for constructing search queries.
type SearchBuilder struct {
	store   *Store
	query   []float32
	k       int
	tiers   []model.Tier
	filters *metadata.FilterSet
}

// KNN sets the number of results to return.
func (sb *SearchBuilder) KNN(k int) *SearchBuilder {
	sb.k = k
	return sb
}

// Tiers restricts the search to the named tiers. Without it the hot and
// warm tiers are searched; the cold tier is only probed when named here.
func (sb *SearchBuilder) Tiers(tiers ...Tier) *SearchBuilder {
	sb.tiers = tiers
	return sb
}

// Filter adds metadata predicates. All predicates must match.
func (sb *SearchBuilder) Filter(filters ...metadata.Filter) *SearchBuilder {
	if sb.filters == nil {
		sb.filters = metadata.NewFilterSet()
	}
	sb.filters.Add(filters...)
	return sb
}

// WithFilterSet replaces the builder's filter set.
func (sb *SearchBuilder) WithFilterSet(fs *metadata.FilterSet) *SearchBuilder {
	sb.filters = fs
	return sb
}

// Execute runs the search and returns the results.
func (sb *SearchBuilder) Execute(ctx context.Context) ([]SearchResult, error) {
	return sb.store.SearchSimilar(ctx, sb.query, sb.k, func(o *SearchOptions) {
		o.Tiers = sb.tiers
		o.Filter = sb.filters
	})
}

// MustExecute runs the search and panics on error. Intended for tests and
// examples.
func (sb *SearchBuilder) MustExecute(ctx context.Context) []SearchResult {
	results, err := sb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return results
}

// First runs the search with k=1 and returns the single best hit, or
// ok=false when the store is empty or nothing matches the filters.
func (sb *SearchBuilder) First(ctx context.Context) (SearchResult, bool, error) {
	results, err := sb.KNN(1).Execute(ctx)
	if err != nil || len(results) == 0 {
		return SearchResult{}, false, err
	}
	return results[0], true, nil
}
