package artifacts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fake S3 Client
// =============================================================================

type fakeS3 struct {
	objects map[string][]byte
	headErr error
	putErr  error
	lastPut *s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.lastPut = in
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

// =============================================================================
// Store Contract
// =============================================================================

func TestStoreCompliance(t *testing.T) {
	cases := []struct {
		name    string
		factory func() Store
	}{
		{"memory", func() Store { return NewMemoryStore("artifacts") }},
		{"s3", func() Store { return NewS3Store(newFakeS3(), "artifacts") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runStoreContract(t, tc.factory())
		})
	}
}

func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := "orders/environments/prod/versions/1.0.0/orders-1.0.0.zip"

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, key, []byte("zip-bytes")))

	exists, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("zip-bytes"), data)

	loc := s.Location(key)
	assert.Equal(t, "artifacts", loc.Bucket)
	assert.Equal(t, key, loc.Key)
}

// =============================================================================
// S3 Specific Tests
// =============================================================================

func TestS3Store_PutSetsContentType(t *testing.T) {
	api := newFakeS3()
	require.NoError(t, NewS3Store(api, "b").Put(context.Background(), "k", []byte("x")))

	assert.Equal(t, "application/zip", aws.ToString(api.lastPut.ContentType))
	assert.Equal(t, "b", aws.ToString(api.lastPut.Bucket))
}

func TestS3Store_ExistsTreatsNotFoundCodeAsMissing(t *testing.T) {
	api := newFakeS3()
	api.headErr = &smithy.GenericAPIError{Code: "NotFound"}

	exists, err := NewS3Store(api, "b").Exists(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestS3Store_ExistsSurfacesOtherErrors(t *testing.T) {
	api := newFakeS3()
	api.headErr = &smithy.GenericAPIError{Code: "AccessDenied"}

	_, err := NewS3Store(api, "b").Exists(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b/k")
}

func TestS3Store_PutError(t *testing.T) {
	api := newFakeS3()
	api.putErr = errors.New("denied")

	err := NewS3Store(api, "b").Put(context.Background(), "k", []byte("x"))
	assert.ErrorContains(t, err, "denied")
}

// =============================================================================
// Memory Specific Tests
// =============================================================================

func TestMemoryStore_CopiesOnPutAndGet(t *testing.T) {
	s := NewMemoryStore("m")
	body := []byte("abc")
	require.NoError(t, s.Put(context.Background(), "k", body))
	body[0] = 'X'

	got, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	assert.Equal(t, []string{"k"}, s.Keys())
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMemoryStore("m").Put(ctx, "k", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
