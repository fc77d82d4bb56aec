// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package chunkstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient is the subset of the MinIO client used by MinioStore.
// *minio.Client implements it.
type MinioClient interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

var _ MinioClient = (*minio.Client)(nil)

// MinioStore is a Store backed by a MinIO (or other S3 compatible) bucket.
type MinioStore struct {
	client MinioClient
	bucket string
	root   string
}

var _ Store = (*MinioStore)(nil)

// NewMinioStore returns a store writing into bucket through the client. Root
// is prepended to every object name.
func NewMinioStore(client MinioClient, bucket, root string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, root: root}
}

// DialMinio connects to a MinIO endpoint with static credentials.
func DialMinio(endpoint, accessKey, secretKey string, secure bool) (*minio.Client, error) {
	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	return c, errors.Wrapf(err, "chunkstore: connecting to %s", endpoint)
}

func (s *MinioStore) key(name string) string {
	if s.root == "" {
		return name
	}
	return strings.TrimSuffix(s.root, "/") + "/" + name
}

// Put implements Store.
func (s *MinioStore) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data),
		int64(len(data)), minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return errors.Wrapf(err, "chunkstore: put %q", name)
}

// Get implements Store.
func (s *MinioStore) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err == nil {
		defer func() { _ = obj.Close() }()
		var data []byte
		// A missing object only surfaces once the body is read.
		data, err = io.ReadAll(obj)
		if err == nil {
			return data, nil
		}
	}
	if isMinioNotFound(err) {
		return nil, errors.Wrapf(ErrNotFound, "get %q", name)
	}
	return nil, errors.Wrapf(err, "chunkstore: get %q", name)
}

// Delete implements Store.
func (s *MinioStore) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isMinioNotFound(err) {
		return errors.Wrapf(err, "chunkstore: delete %q", name)
	}
	return nil
}

// List implements Store.
func (s *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, errors.Wrapf(obj.Err, "chunkstore: list %q", prefix)
		}
		if name := trimRoot(obj.Key, s.root); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func isMinioNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
