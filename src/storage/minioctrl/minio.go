package minioctrl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	IndexBucket = "deck-indexes"
)

type MinioService struct {
	client *minio.Client
}

func NewMinioService(endpoint, accessKeyID, secretAccessKey string, useSSL bool) (*MinioService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %v", err)
	}

	return &MinioService{
		client: client,
	}, nil
}

func (s *MinioService) EnsureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := s.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	return nil
}

func (s *MinioService) GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, objectError("get", objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, objectError("read", objectName, err)
	}

	return data, nil
}

func (s *MinioService) PutObject(ctx context.Context, bucketName, objectName string, data []byte) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, bucketName, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %v", err)
	}

	return nil
}

// DeleteObject removes the object. RemoveObject succeeds for missing keys, so
// the object is looked up first to report fs.ErrNotExist.
func (s *MinioService) DeleteObject(ctx context.Context, bucketName, objectName string) error {
	if _, err := s.client.StatObject(ctx, bucketName, objectName, minio.StatObjectOptions{}); err != nil {
		return objectError("stat", objectName, err)
	}

	err := s.client.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %v", err)
	}

	return nil
}

func objectError(op, objectName string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %s: %w", op, objectName, fs.ErrNotExist)
	}
	return fmt.Errorf("failed to %s object %s: %v", op, objectName, err)
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}

// Bucket exposes one bucket as byte blobs keyed by object name.
type Bucket struct {
	service *MinioService
	name    string
}

// NewBucket creates the bucket when it does not exist yet.
func NewBucket(ctx context.Context, service *MinioService, name string) (*Bucket, error) {
	if err := service.EnsureBucketExists(ctx, name); err != nil {
		return nil, err
	}
	return &Bucket{service: service, name: name}, nil
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	return b.service.PutObject(ctx, b.name, key, data)
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	return b.service.GetObject(ctx, b.name, key)
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	return b.service.DeleteObject(ctx, b.name, key)
}
