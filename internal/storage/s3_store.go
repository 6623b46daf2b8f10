package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options 描述 S3 兼容存储（MinIO、AWS S3 等）的连接参数。
type S3Options struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

type s3Store struct {
	client *minio.Client
	bucket string
}

// NewS3 创建 S3 存储。构建客户端不会发起网络请求，连接错误在首次访问时暴露。
func NewS3(opts S3Options) (Backend, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("s3 endpoint and bucket required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &s3Store{client: client, bucket: opts.Bucket}, nil
}

func (s *s3Store) Stat(ctx context.Context, name string) (*Entry, error) {
	info, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return nil, translateS3Error(err)
	}
	return objectEntry(name, info), nil
}

func (s *s3Store) Open(ctx context.Context, name string) (*ReadResult, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateS3Error(err)
	}
	// GetObject 是惰性的，Stat 才会真正发起请求并暴露 NoSuchKey。
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, translateS3Error(err)
	}
	return &ReadResult{Entry: *objectEntry(name, info), Reader: obj}, nil
}

func (s *s3Store) Put(ctx context.Context, name string, body io.Reader, opts PutOptions) (*Entry, error) {
	size := opts.Size
	if size <= 0 {
		size = -1
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.PutObject(ctx, s.bucket, name, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, translateS3Error(err)
	}

	modTime := info.LastModified
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	return &Entry{
		Name:        name,
		Size:        info.Size,
		ModTime:     modTime,
		ContentType: contentType,
	}, nil
}

func (s *s3Store) Remove(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{})
	if err = translateS3Error(err); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func objectEntry(name string, info minio.ObjectInfo) *Entry {
	return &Entry{
		Name:        name,
		Size:        info.Size,
		ModTime:     info.LastModified,
		ContentType: info.ContentType,
	}
}

// translateS3Error 将 MinIO 错误响应映射为存储层错误。只有对象不存在才映射为
// ErrNotFound；桶不存在属于配置错误，保留原始错误。
func translateS3Error(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return ErrNotFound
	}
	return fmt.Errorf("minio: %w", err)
}
