package s3

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annidx/blobstore"
)

// fakeDynamoDB keeps items in memory and honors attribute_not_exists(version).
type fakeDynamoDB struct {
	mu    sync.Mutex
	items map[string]map[string]ddbtypes.AttributeValue
	err   error
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{items: make(map[string]map[string]ddbtypes.AttributeValue)}
}

func attrS(item map[string]ddbtypes.AttributeValue, name string) string {
	return item[name].(*ddbtypes.AttributeValueMemberS).Value
}

func attrN(item map[string]ddbtypes.AttributeValue, name string) uint64 {
	v, _ := strconv.ParseUint(item[name].(*ddbtypes.AttributeValueMemberN).Value, 10, 64)
	return v
}

func (f *fakeDynamoDB) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	key := attrS(params.Item, "base_uri") + "#" + strconv.FormatUint(attrN(params.Item, "version"), 10)
	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(version)" {
		if _, ok := f.items[key]; ok {
			return nil, &ddbtypes.ConditionalCheckFailedException{Message: aws.String("exists")}
		}
	}
	f.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	uri := params.ExpressionAttributeValues[":uri"].(*ddbtypes.AttributeValueMemberS).Value
	var items []map[string]ddbtypes.AttributeValue
	for _, item := range f.items {
		if attrS(item, "base_uri") == uri {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b map[string]ddbtypes.AttributeValue) int {
		va, vb := attrN(a, "version"), attrN(b, "version")
		if !aws.ToBool(params.ScanIndexForward) {
			va, vb = vb, va
		}
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0
	})
	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func TestCommitStore_Publish(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamoDB()
	store := NewCommitStore(NewStore(new(MockS3Client), "bucket", "idx"), ddb, "snapshots")

	_, err := blobstore.Current(ctx, store)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	v, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)

	// More than nine versions checks numeric ordering.
	for i := 1; i <= 12; i++ {
		require.NoError(t, blobstore.Publish(ctx, store, "snap-"+strconv.Itoa(i)))
	}

	name, err := blobstore.Current(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "snap-12", name)

	v, err = store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), v)

	assert.Error(t, store.Delete(ctx, blobstore.CurrentName))
}

func TestCommitStore_Namespaces(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamoDB()
	a := NewCommitStore(NewStore(new(MockS3Client), "bucket", "a"), ddb, "snapshots")
	b := NewCommitStore(NewStore(new(MockS3Client), "bucket", "b"), ddb, "snapshots")

	require.NoError(t, blobstore.Publish(ctx, a, "one"))
	require.NoError(t, blobstore.Publish(ctx, b, "two"))

	got, err := blobstore.Current(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "one", got)
	got, err = blobstore.Current(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "two", got)
}

func TestCommitStore_ConcurrentPublish(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamoDB()
	store := NewCommitStore(NewStore(new(MockS3Client), "bucket", ""), ddb, "snapshots")

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		conflicts int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := blobstore.Publish(ctx, store, "w"+strconv.Itoa(i))
			if errors.Is(err, ErrConcurrentModification) {
				mu.Lock()
				conflicts++
				mu.Unlock()
				return
			}
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers, int(v)+conflicts, "every publish either lands or reports a conflict")
}

func TestCommitStore_DelegatesBlobs(t *testing.T) {
	ctx := context.Background()
	client := new(MockS3Client)
	store := NewCommitStore(NewStore(client, "bucket", "p"), newFakeDynamoDB(), "snapshots")

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return *input.Key == "p/snap.anx"
	})).Return(&s3.PutObjectOutput{}, nil).Once()
	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(input *s3.DeleteObjectInput) bool {
		return *input.Key == "p/snap.anx"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()

	require.NoError(t, store.Put(ctx, "snap.anx", []byte("data")))
	require.NoError(t, store.Delete(ctx, "snap.anx"))
	client.AssertExpectations(t)
}

func TestCommitStore_QueryError(t *testing.T) {
	ddb := newFakeDynamoDB()
	ddb.err = errors.New("throttled")
	store := NewCommitStore(NewStore(new(MockS3Client), "bucket", ""), ddb, "snapshots")

	_, err := store.Get(context.Background(), blobstore.CurrentName)
	assert.ErrorIs(t, err, ddb.err)
	assert.ErrorIs(t, blobstore.Publish(context.Background(), store, "x"), ddb.err)
}

func TestOpenCommitStore_WithClients(t *testing.T) {
	store, err := OpenCommitStore(context.Background(), "bucket", "snapshots",
		WithClient(new(MockS3Client)), WithDynamoDBClient(newFakeDynamoDB()), WithPrefix("x"))
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/x", store.baseURI)
}
