package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// NewLocal 以 root 为根目录构建本地磁盘存储。
func NewLocal(root string) (Backend, error) {
	if root == "" {
		return nil, errors.New("storage root required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	return NewBilly(osfs.New(abs)), nil
}

// NewBilly 基于任意 billy.Filesystem 构建存储，测试中可直接传入 memfs。
func NewBilly(bfs billy.Filesystem) Backend {
	return &billyStore{
		fs:    bfs,
		locks: make(map[string]*entryLock),
	}
}

// billyStore 通过 entryLock 避免同一条目并发写入或删除。
type billyStore struct {
	fs billy.Filesystem

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *billyStore) Stat(ctx context.Context, name string) (*Entry, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	info, err := s.fs.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	return &Entry{
		Name:    name,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

func (s *billyStore) Open(ctx context.Context, name string) (*ReadResult, error) {
	entry, err := s.Stat(ctx, name)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	entry.ContentType = sniffContentType(head[:n])

	return &ReadResult{Entry: *entry, Reader: f}, nil
}

func (s *billyStore) Put(ctx context.Context, name string, body io.Reader, opts PutOptions) (*Entry, error) {
	unlock := s.lockEntry(name)
	defer unlock()

	dir := path.Dir(name)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tempFile, err := s.fs.TempFile(dir, ".cache-")
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		s.fs.Remove(tempName)
		return nil, err
	}

	if err := s.fs.Rename(tempName, name); err != nil {
		s.fs.Remove(tempName)
		return nil, err
	}

	modTime := opts.ModTime
	if !modTime.IsZero() {
		if changer, ok := s.fs.(billy.Change); ok {
			if err := changer.Chtimes(name, modTime, modTime); err != nil && !errors.Is(err, billy.ErrNotSupported) {
				return nil, err
			}
		}
	}
	if info, err := s.fs.Stat(name); err == nil {
		modTime = info.ModTime()
	} else if modTime.IsZero() {
		modTime = time.Now()
	}

	return &Entry{
		Name:        name,
		Size:        written,
		ModTime:     modTime,
		ContentType: opts.ContentType,
	}, nil
}

func (s *billyStore) Remove(ctx context.Context, name string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	unlock := s.lockEntry(name)
	defer unlock()

	if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *billyStore) lockEntry(name string) func() {
	s.mu.Lock()
	lock := s.locks[name]
	if lock == nil {
		lock = &entryLock{}
		s.locks[name] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, name)
		}
		s.mu.Unlock()
	}
}
