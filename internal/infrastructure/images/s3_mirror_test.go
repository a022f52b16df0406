package images

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	headErr error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3MirrorRoundTripWithPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	m := &S3Mirror{client: fake, bucket: "trendpress", prefix: "images"}

	found, err := m.Exists(ctx, "42.png")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Put(ctx, "42.png", []byte("png")))
	assert.Contains(t, fake.objects, "images/42.png")

	found, err = m.Exists(ctx, "42.png")
	require.NoError(t, err)
	assert.True(t, found)

	data, err := m.Get(ctx, "42.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
}

func TestS3MirrorExistsPropagatesOtherErrors(t *testing.T) {
	t.Parallel()
	fake := &fakeS3{objects: map[string][]byte{}, headErr: errors.New("access denied")}
	m := &S3Mirror{client: fake, bucket: "trendpress"}

	_, err := m.Exists(context.Background(), "1.png")
	require.Error(t, err)
}
