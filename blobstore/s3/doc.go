// Package s3 provides an S3 implementation of the blobstore.BlobStore
// interface, plus a DynamoDB-arbitrated commit store for the shard manifest.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(s3.NewFromConfig(cfg), "my-bucket", "tiervec/")
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large artifacts
//   - Automatic pagination for listing
//   - Conditional manifest commits via DynamoDB (exactly one concurrent
//     writer wins)
package s3
