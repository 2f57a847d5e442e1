// Package metadata provides typed metadata documents, filter predicates,
// and a Roaring Bitmap inverted index for hybrid vector + metadata search.
//
// Filters are AND-combined: a document matches a FilterSet only when every
// predicate holds. Equality and membership predicates compile to posting
// list intersections; range and substring predicates are evaluated by
// scanning candidate documents.
package metadata
