// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package chunkstore

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cockroachdb/errors"
)

// S3Client is the subset of the S3 API used by S3Store. *s3.Client implements
// it.
type S3Client interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ S3Client = (*s3.Client)(nil)

// S3Options configures an S3Store.
type S3Options struct {
	// Bucket holds all objects.
	Bucket string
	// Root is prepended to every object name.
	Root string
	// PartSize is the multipart upload part size. Objects smaller than one
	// part are uploaded with a single PutObject. Zero selects the uploader's
	// default.
	PartSize int64
	// Concurrency is the number of parts uploaded in parallel. Zero selects
	// the uploader's default.
	Concurrency int
}

// S3Store is a Store backed by an S3 bucket.
type S3Store struct {
	client   S3Client
	uploader *manager.Uploader
	opts     S3Options
}

var _ Store = (*S3Store)(nil)

// NewS3Store returns a store writing into opts.Bucket through the client.
func NewS3Store(client S3Client, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("chunkstore: S3 bucket must be set")
	}
	if opts.PartSize != 0 && opts.PartSize < manager.MinUploadPartSize {
		return nil, errors.Newf("chunkstore: S3 part size %d is below the minimum of %d",
			errors.Safe(opts.PartSize), errors.Safe(manager.MinUploadPartSize))
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if opts.PartSize != 0 {
			u.PartSize = opts.PartSize
		}
		if opts.Concurrency != 0 {
			u.Concurrency = opts.Concurrency
		}
	})
	return &S3Store{client: client, uploader: uploader, opts: opts}, nil
}

// NewS3StoreFromEnv builds an S3Store from the default AWS configuration
// chain (environment, shared config files, instance metadata).
func NewS3StoreFromEnv(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "chunkstore: loading AWS config")
	}
	return NewS3Store(s3.NewFromConfig(cfg), opts)
}

func (s *S3Store) key(name string) string {
	if s.opts.Root == "" {
		return name
	}
	return strings.TrimSuffix(s.opts.Root, "/") + "/" + name
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(s.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return errors.Wrapf(err, "chunkstore: put %q", name)
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "get %q", name)
		}
		return nil, errors.Wrapf(err, "chunkstore: get %q", name)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "chunkstore: reading %q", name)
	}
	return data, nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil && !isS3NotFound(err) {
		return errors.Wrapf(err, "chunkstore: delete %q", name)
	}
	return nil
}

// List implements Store.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.opts.Bucket),
		Prefix: aws.String(s.key(prefix)),
	})
	var names []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "chunkstore: list %q", prefix)
		}
		for _, obj := range page.Contents {
			names = append(names, trimRoot(aws.ToString(obj.Key), s.opts.Root))
		}
	}
	// S3 lists keys in UTF-8 binary order, which matches sort.Strings.
	return names, nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}
