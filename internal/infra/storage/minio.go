package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hirelens/interview-analyzer/internal/domain/files"
)

// Minio keeps uploaded files in an object bucket, for deployments where the
// API pods have no shared disk. Refs are object keys.
type Minio struct {
	client     *minio.Client
	bucketName string
}

func NewMinio(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Minio, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}
	return &Minio{client: cli, bucketName: bucket}, nil
}

func (m *Minio) Save(ctx context.Context, filename string, r io.Reader, limit int64) (string, int64, error) {
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return "", 0, err
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", 0, fmt.Errorf("%s is larger than %d bytes: %w", filename, limit, files.ErrTooLarge)
	}

	key := uuid.New().String() + filepath.Ext(filepath.Base(filename))
	_, err = m.client.PutObject(ctx, m.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: files.MIMEType(filename),
	})
	if err != nil {
		return "", 0, err
	}
	return key, int64(len(data)), nil
}

func (m *Minio) Read(ctx context.Context, ref string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucketName, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, files.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (m *Minio) Stat(ctx context.Context, ref string) (int64, error) {
	info, err := m.client.StatObject(ctx, m.bucketName, ref, minio.StatObjectOptions{})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return 0, files.ErrNotFound
		}
		return 0, err
	}
	return info.Size, nil
}
