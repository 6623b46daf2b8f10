package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCacheReadFailed 表示缓存条目存在但读取失败。
	ErrCacheReadFailed = errors.New("cache read failed")
	// ErrCacheWriteFailed 表示缓存写入或删除失败。
	ErrCacheWriteFailed = errors.New("cache write failed")
)

// Cache 是派生图缓存的视图，路径即缓存键对应的相对路径。
type Cache struct {
	backend Backend
}

// NewCache 包装 Backend。
func NewCache(b Backend) *Cache {
	return &Cache{backend: b}
}

// Exists 报告缓存条目是否存在。
func (c *Cache) Exists(ctx context.Context, path string) (bool, error) {
	_, err := c.backend.Stat(ctx, path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s: %w", ErrCacheReadFailed, path, err)
	}
}

// LastModified 返回缓存条目的写入时间，不存在时错误同时满足 ErrNotFound。
func (c *Cache) LastModified(ctx context.Context, path string) (time.Time, error) {
	entry, err := c.stat(ctx, path)
	if err != nil {
		return time.Time{}, err
	}
	return entry.ModTime, nil
}

// Size 返回缓存条目的字节数。
func (c *Cache) Size(ctx context.Context, path string) (int64, error) {
	entry, err := c.stat(ctx, path)
	if err != nil {
		return 0, err
	}
	return entry.Size, nil
}

// MimeType 返回缓存条目的 MIME 类型；驱动未记录时根据文件头推断。
func (c *Cache) MimeType(ctx context.Context, path string) (string, error) {
	entry, err := c.stat(ctx, path)
	if err != nil {
		return "", err
	}
	if entry.ContentType != "" {
		return entry.ContentType, nil
	}
	res, err := c.Read(ctx, path)
	if err != nil {
		return "", err
	}
	res.Reader.Close()
	return res.Entry.ContentType, nil
}

// Read 打开缓存条目供流式读取，调用方负责关闭 Reader。
func (c *Cache) Read(ctx context.Context, path string) (*ReadResult, error) {
	res, err := c.backend.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCacheReadFailed, path, err)
	}
	return res, nil
}

// Write 原子地写入派生图。
func (c *Cache) Write(ctx context.Context, path string, data []byte, contentType string) (*Entry, error) {
	entry, err := c.backend.Put(ctx, path, bytes.NewReader(data), PutOptions{
		ContentType: contentType,
		Size:        int64(len(data)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCacheWriteFailed, path, err)
	}
	return entry, nil
}

// Delete 删除缓存条目，条目不存在不视为错误。
func (c *Cache) Delete(ctx context.Context, path string) error {
	if err := c.backend.Remove(ctx, path); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCacheWriteFailed, path, err)
	}
	return nil
}

func (c *Cache) stat(ctx context.Context, path string) (*Entry, error) {
	entry, err := c.backend.Stat(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCacheReadFailed, path, err)
	}
	return entry, nil
}
