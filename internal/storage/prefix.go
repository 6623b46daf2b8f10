package storage

import (
	"context"
	"io"
	"strings"
)

// WithPrefix 返回在所有条目名称前追加 prefix 的 Backend；prefix 为空时原样返回。
func WithPrefix(b Backend, prefix string) Backend {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return b
	}
	return &prefixed{inner: b, prefix: prefix + "/"}
}

type prefixed struct {
	inner  Backend
	prefix string
}

func (p *prefixed) Stat(ctx context.Context, name string) (*Entry, error) {
	entry, err := p.inner.Stat(ctx, p.prefix+name)
	if err != nil {
		return nil, err
	}
	entry.Name = name
	return entry, nil
}

func (p *prefixed) Open(ctx context.Context, name string) (*ReadResult, error) {
	res, err := p.inner.Open(ctx, p.prefix+name)
	if err != nil {
		return nil, err
	}
	res.Entry.Name = name
	return res, nil
}

func (p *prefixed) Put(ctx context.Context, name string, body io.Reader, opts PutOptions) (*Entry, error) {
	entry, err := p.inner.Put(ctx, p.prefix+name, body, opts)
	if err != nil {
		return nil, err
	}
	entry.Name = name
	return entry, nil
}

func (p *prefixed) Remove(ctx context.Context, name string) error {
	return p.inner.Remove(ctx, p.prefix+name)
}
