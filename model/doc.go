// Package model defines the shared value types of the store: documents,
// search results, tiers, and shard lifecycle states.
//
// It is imported by every other package and must stay dependency-light.
package model
