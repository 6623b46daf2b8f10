package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Backend 是所有存储驱动的最小公共接口，名称均为以 / 分隔的相对路径。
type Backend interface {
	// Stat 返回条目信息；不存在时返回 ErrNotFound。
	Stat(ctx context.Context, name string) (*Entry, error)

	// Open 返回可流式读取的条目，调用方负责关闭 Reader。不存在时返回 ErrNotFound。
	Open(ctx context.Context, name string) (*ReadResult, error)

	// Put 原子地写入条目：读者要么看到旧内容，要么看到完整的新内容。
	Put(ctx context.Context, name string, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除条目，条目不存在不视为错误。
	Remove(ctx context.Context, name string) error
}

// Entry 描述一个存储条目。
type Entry struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
	ContentType string    `json:"content_type,omitempty"`
}

// ReadResult 组合 Entry 与正文 Reader，便于处理层直接流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadCloser
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ContentType string
	ModTime     time.Time
	Size        int64
}

var (
	// ErrNotFound 表示条目不存在。
	ErrNotFound = errors.New("storage entry not found")
	// ErrReadOnly 表示驱动不支持写入（例如 http 源站）。
	ErrReadOnly = errors.New("storage backend is read-only")
)

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
