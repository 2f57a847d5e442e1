package persistence

import (
	"path"

	"github.com/hupe1980/tiervec/model"
)

// On-disk layout:
//
//	hot_index/<shard_id>/index.bin
//	hot_index/<shard_id>/metadata.bin
//	hot_index/<shard_id>/summaries.json
//	warm_index/<shard_id>/...
//	cold_archive/<shard_id>/...
//	shard_metadata.json
const (
	FileIndex     = "index.bin"
	FileMetadata  = "metadata.bin"
	FileSummaries = "summaries.json"

	// ManifestName is the root manifest blob listing every shard.
	ManifestName = "shard_metadata.json"
)

var shardFiles = []string{FileIndex, FileMetadata, FileSummaries}

// TierDir returns the top-level directory for a tier.
func TierDir(tier model.Tier) string {
	switch tier {
	case model.TierHot:
		return "hot_index"
	case model.TierWarm:
		return "warm_index"
	case model.TierCold:
		return "cold_archive"
	default:
		return string(tier)
	}
}

// ShardDir returns the directory holding a shard's artifacts.
func ShardDir(tier model.Tier, shardID string) string {
	return path.Join(TierDir(tier), shardID)
}

// ArtifactName returns the blob name of one shard artifact.
func ArtifactName(tier model.Tier, shardID, file string) string {
	return path.Join(TierDir(tier), shardID, file)
}
