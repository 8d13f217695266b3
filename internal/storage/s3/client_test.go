package s3

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	put     *s3.PutObjectInput
	body    []byte
	objects []*s3.Object
	err     error
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.put = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2WithContext(_ aws.Context, in *s3.ListObjectsV2Input, _ ...request.Option) (*s3.ListObjectsV2Output, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &s3.ListObjectsV2Output{Contents: f.objects}, nil
}

func TestPutObject(t *testing.T) {
	fake := &fakeS3{}
	c := NewWithAPI(fake, "archive", time.Minute)

	require.NoError(t, c.PutObject(context.Background(), "transactions/a.jsonl", []byte("{}\n"), "application/x-ndjson"))
	assert.Equal(t, "archive", aws.StringValue(fake.put.Bucket))
	assert.Equal(t, "transactions/a.jsonl", aws.StringValue(fake.put.Key))
	assert.Equal(t, "{}\n", string(fake.body))

	fake.err = errors.New("denied")
	assert.ErrorContains(t, c.PutObject(context.Background(), "k", nil, "text/plain"), "failed to put object")
}

func TestListObjects(t *testing.T) {
	modified := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	fake := &fakeS3{objects: []*s3.Object{{Key: aws.String("transactions/a.jsonl"), Size: aws.Int64(42), LastModified: aws.Time(modified)}}}
	c := NewWithAPI(fake, "archive", time.Minute)

	got, err := c.ListObjects(context.Background(), "transactions/", 10)
	require.NoError(t, err)
	assert.Equal(t, []Object{{Key: "transactions/a.jsonl", Size: 42, LastModified: modified}}, got)
}

func TestBuildObjectKey(t *testing.T) {
	assert.Equal(t, "a.jsonl", BuildObjectKey("", "a.jsonl"))
	assert.Equal(t, "x/a.jsonl", BuildObjectKey("x", "a.jsonl"))
	assert.Equal(t, "x/a.jsonl", BuildObjectKey("x/", "a.jsonl"))
}
