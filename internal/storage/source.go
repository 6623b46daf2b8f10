package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrSourceNotFound 表示源图不存在。
	ErrSourceNotFound = errors.New("source image not found")
	// ErrSourceReadFailed 表示源图存在但无法读取。
	ErrSourceReadFailed = errors.New("source image read failed")
)

// Source 是源图存储的只读视图，同样用于水印存储。
type Source struct {
	backend Backend
	maxSize int64
}

// NewSource 包装 Backend；maxSize > 0 时拒绝读取超过该字节数的源图。
func NewSource(b Backend, maxSize int64) *Source {
	return &Source{backend: b, maxSize: maxSize}
}

// Exists 报告 path 是否存在。不存在返回 false 与 nil；I/O 失败返回 ErrSourceReadFailed。
func (s *Source) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.backend.Stat(ctx, path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s: %w", ErrSourceReadFailed, path, err)
	}
}

// LastModified 返回源图的修改时间。
func (s *Source) LastModified(ctx context.Context, path string) (time.Time, error) {
	entry, err := s.backend.Stat(ctx, path)
	if err != nil {
		return time.Time{}, s.wrap(path, err)
	}
	return entry.ModTime, nil
}

// Read 读取完整的源图字节。
func (s *Source) Read(ctx context.Context, path string) ([]byte, error) {
	res, err := s.backend.Open(ctx, path)
	if err != nil {
		return nil, s.wrap(path, err)
	}
	defer res.Reader.Close()

	var reader io.Reader = res.Reader
	if s.maxSize > 0 {
		if res.Entry.Size > s.maxSize {
			return nil, fmt.Errorf("%w: %s: size %d exceeds limit %d", ErrSourceReadFailed, path, res.Entry.Size, s.maxSize)
		}
		reader = io.LimitReader(res.Reader, s.maxSize+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceReadFailed, path, err)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("%w: %s: exceeds limit %d", ErrSourceReadFailed, path, s.maxSize)
	}
	return data, nil
}

func (s *Source) wrap(path string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrSourceReadFailed, path, err)
}
