// Package minio stores the vector snapshot as one object in S3-compatible storage.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kailas-cloud/mailrag/internal/db"
)

// Compile-time check: Blob implements db.BlobStore.
var _ db.BlobStore = (*Blob)(nil)

// Config holds connection parameters for an S3-compatible endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
	Object    string
}

// Blob is a db.BlobStore backed by a single object. PutObject replaces the object atomically.
type Blob struct {
	client *minio.Client
	bucket string
	key    string
}

// NewBlob connects to the endpoint and binds the blob to bucket/prefix/object.
func NewBlob(cfg Config) (*Blob, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return NewBlobWithClient(client, cfg.Bucket, path.Join(cfg.Prefix, cfg.Object)), nil
}

// NewBlobWithClient binds an existing client to bucket/key.
func NewBlobWithClient(client *minio.Client, bucket, key string) *Blob {
	return &Blob{client: client, bucket: bucket, key: key}
}

// Load downloads the object. A missing object is an empty store.
func (b *Blob) Load(ctx context.Context) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, &db.Error{Op: db.OpLoad, Err: err}
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, &db.Error{Op: db.OpLoad, Err: err}
	}
	return data, nil
}

// Save uploads data as the new object version.
func (b *Blob) Save(ctx context.Context, data []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, b.key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"},
	)
	if err != nil {
		return &db.Error{Op: db.OpSave, Err: err}
	}
	return nil
}

// Ping checks that the bucket exists.
func (b *Blob) Ping(ctx context.Context) error {
	ok, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	if !ok {
		return &db.Error{Op: db.OpPing, Err: fmt.Errorf("bucket %q does not exist", b.bucket)}
	}
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
