// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package chunkstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	mock.Mock
}

var _ S3Client = (*mockS3Client)(nil)

func (m *mockS3Client) PutObject(
	ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) UploadPart(
	ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.UploadPartOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) CreateMultipartUpload(
	ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.CreateMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) CompleteMultipartUpload(
	ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options),
) (*s3.CompleteMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.CompleteMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) AbortMultipartUpload(
	ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.AbortMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) GetObject(
	ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) DeleteObject(
	ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) ListObjectsV2(
	ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

func newTestS3Store(t *testing.T, client S3Client) *S3Store {
	s, err := NewS3Store(client, S3Options{Bucket: "bucket", Root: "root/"})
	require.NoError(t, err)
	return s
}

func TestS3StorePut(t *testing.T) {
	client := new(mockS3Client)
	s := newTestS3Store(t, client)

	var uploaded []byte
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "bucket" && aws.ToString(in.Key) == "root/chunks/a"
	})).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.PutObjectInput)
		var err error
		uploaded, err = io.ReadAll(in.Body)
		require.NoError(t, err)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, s.Put(context.Background(), "chunks/a", []byte("payload")))
	require.Equal(t, "payload", string(uploaded))
	client.AssertExpectations(t)
}

func TestS3StoreGet(t *testing.T) {
	client := new(mockS3Client)
	s := newTestS3Store(t, client)
	ctx := context.Background()

	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Key) == "root/present"
	})).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader("hello")),
	}, nil).Once()
	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Key) == "root/missing"
	})).Return(nil, &types.NoSuchKey{}).Once()
	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Key) == "root/broken"
	})).Return(nil, fmt.Errorf("connection reset")).Once()

	data, err := s.Get(ctx, "present")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	_, err = s.Get(ctx, "missing")
	require.True(t, IsNotFound(err))

	_, err = s.Get(ctx, "broken")
	require.Error(t, err)
	require.False(t, IsNotFound(err))
	require.Contains(t, err.Error(), "connection reset")
	client.AssertExpectations(t)
}

func TestS3StoreDelete(t *testing.T) {
	client := new(mockS3Client)
	s := newTestS3Store(t, client)

	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Bucket) == "bucket" && aws.ToString(in.Key) == "root/a"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()
	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "root/gone"
	})).Return(nil, &types.NotFound{}).Once()

	require.NoError(t, s.Delete(context.Background(), "a"))
	require.NoError(t, s.Delete(context.Background(), "gone"))
	client.AssertExpectations(t)
}

func TestS3StoreListPaginates(t *testing.T) {
	client := new(mockS3Client)
	s := newTestS3Store(t, client)

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Prefix) == "root/chunks/" && in.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("token"),
		Contents:              []types.Object{{Key: aws.String("root/chunks/1")}},
	}, nil).Once()
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.ContinuationToken) == "token"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(false),
		Contents:    []types.Object{{Key: aws.String("root/chunks/2")}},
	}, nil).Once()

	names, err := s.List(context.Background(), ChunkPrefix)
	require.NoError(t, err)
	require.Equal(t, []string{"chunks/1", "chunks/2"}, names)
	client.AssertExpectations(t)
}

func TestS3StoreOptions(t *testing.T) {
	_, err := NewS3Store(new(mockS3Client), S3Options{})
	require.ErrorContains(t, err, "bucket must be set")
	_, err = NewS3Store(new(mockS3Client), S3Options{Bucket: "b", PartSize: 1024})
	require.ErrorContains(t, err, "below the minimum")
}

func TestS3StoreIntegration(t *testing.T) {
	bucket := os.Getenv("CHUNKWIRE_S3_BUCKET")
	if bucket == "" {
		t.Skip("CHUNKWIRE_S3_BUCKET not set")
	}
	ctx := context.Background()
	s, err := NewS3StoreFromEnv(ctx, S3Options{
		Bucket: bucket,
		Root:   fmt.Sprintf("chunkwire-test-%d", time.Now().UnixNano()),
	})
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "chunks/x", []byte("data")))
	data, err := s.Get(ctx, "chunks/x")
	require.NoError(t, err)
	require.Equal(t, "data", string(data))
	names, err := s.List(ctx, ChunkPrefix)
	require.NoError(t, err)
	require.Equal(t, []string{"chunks/x"}, names)
	require.NoError(t, s.Delete(ctx, "chunks/x"))
	_, err = s.Get(ctx, "chunks/x")
	require.True(t, IsNotFound(err))
}
