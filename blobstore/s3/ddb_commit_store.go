package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/tiervec/blobstore"
)

// ErrCommitConflict is returned when a manifest commit loses a race against
// another writer. The caller should reload the manifest and retry.
var ErrCommitConflict = errors.New("s3: manifest commit conflict")

// DDBClient is the subset of the DynamoDB API the commit store uses.
// *dynamodb.Client satisfies it.
type DDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DDBCommitStore wraps a blob store and makes writes to one designated blob
// (the shard manifest) transactional. S3 has no compare-and-swap, so each
// manifest write goes to a fresh versioned object and a DynamoDB conditional
// put advances the current-version pointer. Concurrent committers race on the
// condition; exactly one wins.
//
// All other blob names pass through to the inner store unchanged.
type DDBCommitStore struct {
	inner        blobstore.BlobStore
	ddb          DDBClient
	table        string
	manifestName string

	mu      sync.Mutex
	version int64 // last version observed or committed
}

var _ blobstore.BlobStore = (*DDBCommitStore)(nil)

// NewDDBCommitStore creates a commit store. manifestName is the blob name
// whose writes are arbitrated through DynamoDB (typically
// "shard_metadata.json"); table is the DynamoDB table holding the pointer.
func NewDDBCommitStore(inner blobstore.BlobStore, ddb DDBClient, table, manifestName string) *DDBCommitStore {
	return &DDBCommitStore{
		inner:        inner,
		ddb:          ddb,
		table:        table,
		manifestName: manifestName,
	}
}

func (c *DDBCommitStore) versionedName(version int64) string {
	return fmt.Sprintf("%s.v%06d", c.manifestName, version)
}

// Open opens a blob. For the manifest it resolves the current version
// through DynamoDB first.
func (c *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name != c.manifestName {
		return c.inner.Open(ctx, name)
	}

	out, err := c.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"pk": &ddbtypes.AttributeValueMemberS{Value: c.manifestName},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, blobstore.ErrNotFound
	}

	version, object, err := decodePointer(out.Item)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if version > c.version {
		c.version = version
	}
	c.mu.Unlock()

	return c.inner.Open(ctx, object)
}

// Put writes a blob. For the manifest the write is a conditional commit:
// it succeeds only if no other writer advanced the pointer since this store
// last observed it.
func (c *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name != c.manifestName {
		return c.inner.Put(ctx, name, data)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.version + 1
	object := c.versionedName(next)

	if err := c.inner.Put(ctx, object, data); err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]ddbtypes.AttributeValue{
			"pk":      &ddbtypes.AttributeValueMemberS{Value: c.manifestName},
			"version": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(next, 10)},
			"object":  &ddbtypes.AttributeValueMemberS{Value: object},
		},
		ConditionExpression: aws.String("attribute_not_exists(pk) OR version = :prev"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":prev": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(c.version, 10)},
		},
	}

	if _, err := c.ddb.PutItem(ctx, input); err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// The orphaned versioned object is harmless; the next
			// winning commit supersedes it.
			return ErrCommitConflict
		}
		return err
	}

	c.version = next

	return nil
}

// Delete removes a blob. Deleting the manifest removes the pointer item;
// versioned objects are left for the inner store's retention to handle.
func (c *DDBCommitStore) Delete(ctx context.Context, name string) error {
	if name != c.manifestName {
		return c.inner.Delete(ctx, name)
	}

	_, err := c.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.table),
		Key: map[string]ddbtypes.AttributeValue{
			"pk": &ddbtypes.AttributeValueMemberS{Value: c.manifestName},
		},
	})
	return err
}

// List passes through to the inner store.
func (c *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return c.inner.List(ctx, prefix)
}

func decodePointer(item map[string]ddbtypes.AttributeValue) (int64, string, error) {
	versionAttr, ok := item["version"].(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: manifest pointer item missing version")
	}
	version, err := strconv.ParseInt(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: invalid manifest pointer version: %w", err)
	}

	objectAttr, ok := item["object"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: manifest pointer item missing object")
	}

	return version, objectAttr.Value, nil
}
