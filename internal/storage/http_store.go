package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// newHTTPClient 返回带超时的 http.Client，所有 http 源共享同一份 Transport 配置。
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}

// httpStore 以 HTTP 源站作为只读存储：HEAD 获取元数据，GET 读取正文。
type httpStore struct {
	base   *url.URL
	client *http.Client
}

// NewHTTP 创建只读 HTTP 存储，条目名称拼接在 baseURL 之后。
func NewHTTP(baseURL string, timeout time.Duration) (Backend, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return &httpStore{base: parsed, client: newHTTPClient(timeout)}, nil
}

func (s *httpStore) Stat(ctx context.Context, name string) (*Entry, error) {
	resp, err := s.do(ctx, http.MethodHead, name)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return responseEntry(name, resp), nil
}

func (s *httpStore) Open(ctx context.Context, name string) (*ReadResult, error) {
	resp, err := s.do(ctx, http.MethodGet, name)
	if err != nil {
		return nil, err
	}
	return &ReadResult{Entry: *responseEntry(name, resp), Reader: resp.Body}, nil
}

func (s *httpStore) Put(context.Context, string, io.Reader, PutOptions) (*Entry, error) {
	return nil, ErrReadOnly
}

func (s *httpStore) Remove(context.Context, string) error {
	return ErrReadOnly
}

func (s *httpStore) do(ctx context.Context, method, name string) (*http.Response, error) {
	target := *s.base
	target.Path = s.base.Path + "/" + strings.TrimLeft(name, "/")
	target.RawPath = ""

	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		drain(resp)
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		drain(resp)
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, target.Redacted(), resp.StatusCode)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

func responseEntry(name string, resp *http.Response) *Entry {
	entry := &Entry{
		Name:        name,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if raw := resp.Header.Get("Last-Modified"); raw != "" {
		if t, err := http.ParseTime(raw); err == nil {
			entry.ModTime = t
		}
	}
	return entry
}
