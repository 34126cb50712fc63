package s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hupe1980/annidx/blobstore"
)

// DynamoDBClient is the subset of the DynamoDB API used by CommitStore.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ DynamoDBClient = (*dynamodb.Client)(nil)

// ErrConcurrentModification is returned when another writer published the
// same version first.
var ErrConcurrentModification = errors.New("s3: concurrent publish detected")

// CommitStore is an S3 Store whose blobstore.CurrentName pointer lives in a
// DynamoDB table. Each publish appends a version with a conditional write,
// so concurrent builders cannot silently overwrite each other.
//
// Table schema: partition key base_uri (S), sort key version (N).
//
//	aws dynamodb create-table \
//	  --table-name annidx-snapshots \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	*Store
	ddb     DynamoDBClient
	table   string
	baseURI string
}

var _ blobstore.Store = (*CommitStore)(nil)

// NewCommitStore wraps store. Pointers are partitioned by the store's
// bucket and prefix.
func NewCommitStore(store *Store, ddb DynamoDBClient, table string) *CommitStore {
	return &CommitStore{
		Store:   store,
		ddb:     ddb,
		table:   table,
		baseURI: "s3://" + path.Join(store.bucket, store.prefix),
	}
}

// OpenCommitStore loads the default AWS configuration and returns a
// CommitStore for bucket with pointers in table.
func OpenCommitStore(ctx context.Context, bucket, table string, optFns ...Option) (*CommitStore, error) {
	o := newOptions(optFns)

	var cfg aws.Config
	if o.client == nil || o.ddb == nil {
		c, err := o.loadConfig(ctx)
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	client := o.client
	if client == nil {
		client = s3.NewFromConfig(cfg, o.s3Options)
	}
	ddb := o.ddb
	if ddb == nil {
		ddb = dynamodb.NewFromConfig(cfg)
	}

	return NewCommitStore(newStore(client, bucket, o.prefix, o.upload), ddb, table), nil
}

// Put writes a blob. Writing blobstore.CurrentName publishes a new version.
func (s *CommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name == blobstore.CurrentName {
		return s.publish(ctx, string(data))
	}
	return s.Store.Put(ctx, name, data)
}

// Get reads a blob. blobstore.CurrentName resolves to the latest version.
func (s *CommitStore) Get(ctx context.Context, name string) ([]byte, error) {
	if name == blobstore.CurrentName {
		v, snapshot, err := s.latest(ctx)
		if err != nil {
			return nil, err
		}
		if v == 0 {
			return nil, blobstore.ErrNotFound
		}
		return []byte(snapshot), nil
	}
	return s.Store.Get(ctx, name)
}

// Delete removes a blob. The version history cannot be deleted.
func (s *CommitStore) Delete(ctx context.Context, name string) error {
	if name == blobstore.CurrentName {
		return errors.New("s3: published versions are append-only")
	}
	return s.Store.Delete(ctx, name)
}

// Version returns the latest published version, 0 if none.
func (s *CommitStore) Version(ctx context.Context) (uint64, error) {
	v, _, err := s.latest(ctx)
	return v, err
}

func (s *CommitStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: query versions: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	vAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: version attribute missing")
	}
	nAttr, ok := item["snapshot"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: snapshot attribute missing")
	}
	v, err := strconv.ParseUint(vAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: parse version: %w", err)
	}
	return v, nAttr.Value, nil
}

func (s *CommitStore) publish(ctx context.Context, snapshot string) error {
	v, _, err := s.latest(ctx)
	if err != nil {
		return err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(v+1, 10)},
			"snapshot": &types.AttributeValueMemberS{Value: snapshot},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("s3: publish version %d: %w", v+1, err)
	}
	return nil
}
