package handler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/img-hub/internal/derivative"
	"github.com/any-hub/img-hub/internal/manipulator"
	"github.com/any-hub/img-hub/internal/params"
	"github.com/any-hub/img-hub/internal/server"
	"github.com/any-hub/img-hub/internal/signature"
	"github.com/any-hub/img-hub/internal/storage"
)

const testSignKey = "test-sign-key"

type testEnv struct {
	app        *fiber.App
	sourceRoot string
	cacheRoot  string
	urls       *signature.URLBuilder
	now        time.Time
}

type envOptions struct {
	maxImageSize int
	signKey      string
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	sourceRoot := t.TempDir()
	sourceBackend, err := storage.NewLocal(sourceRoot)
	if err != nil {
		t.Fatalf("source backend: %v", err)
	}
	cacheRoot := t.TempDir()
	cacheBackend, err := storage.NewLocal(cacheRoot)
	if err != nil {
		t.Fatalf("cache backend: %v", err)
	}
	cache := storage.NewCache(cacheBackend)

	api := manipulator.NewAPI(manipulator.NewChain(manipulator.ChainOptions{MaxImageSize: opts.maxImageSize}), 0)
	gen := derivative.New(storage.NewSource(sourceBackend, 0), cache, api, derivative.Options{
		GroupCacheInFolders: true,
		Timeout:             10 * time.Second,
	}, derivative.NewMetrics(prometheus.NewRegistry()), nil)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	validator := signature.NewValidator(opts.signKey)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	h, err := New(Options{
		Logger:    logger,
		Generator: gen,
		Cache:     cache,
		Validator: validator,
		BasePath:  "/img",
		Now:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	app, err := server.NewApp(server.AppOptions{Logger: logger, Images: h, ListenPort: 5000})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	return &testEnv{
		app:        app,
		sourceRoot: sourceRoot,
		cacheRoot:  cacheRoot,
		urls:       signature.NewURLBuilder("/img", validator),
		now:        now,
	}
}

func (e *testEnv) writeSource(t *testing.T, name string, data []byte, modTime time.Time) {
	t.Helper()
	full := filepath.Join(e.sourceRoot, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := os.Chtimes(full, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, target string) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.app.Test(httptest.NewRequest(method, target, nil), fiber.TestConfig{Timeout: 20 * time.Second})
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, target, err)
	}
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestServeResizedDerivative(t *testing.T) {
	env := newTestEnv(t, envOptions{signKey: testSignKey})
	env.writeSource(t, "photos/big.jpg", jpegBytes(t, 2000, 2000), time.Now().Add(-time.Hour))
	target := env.urls.Build("photos/big.jpg", params.Params{"w": "100", "h": "100", "fm": "jpg"})

	resp, body := env.do(t, fiber.MethodGet, target)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("unexpected content type %s", ct)
	}
	if resp.Header.Get("Cache-Control") != "max-age=31536000, public" {
		t.Fatalf("unexpected Cache-Control %s", resp.Header.Get("Cache-Control"))
	}
	wantExpires := env.now.Add(365 * 24 * time.Hour).Format(http.TimeFormat)
	if resp.Header.Get("Expires") != wantExpires {
		t.Fatalf("Expires = %s, want %s", resp.Header.Get("Expires"), wantExpires)
	}
	if resp.Header.Get(HeaderCacheHit) != "false" {
		t.Fatalf("first request should be a miss")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
	if resp.ContentLength != int64(len(body)) {
		t.Fatalf("Content-Length %d does not match body %d", resp.ContentLength, len(body))
	}
	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if format != "jpeg" || img.Bounds().Dx() > 100 || img.Bounds().Dy() > 100 {
		t.Fatalf("unexpected output %s %v", format, img.Bounds())
	}

	again, againBody := env.do(t, fiber.MethodGet, target)
	if again.StatusCode != fiber.StatusOK || again.Header.Get(HeaderCacheHit) != "true" {
		t.Fatalf("second request should hit cache: %d %s", again.StatusCode, again.Header.Get(HeaderCacheHit))
	}
	if !bytes.Equal(body, againBody) {
		t.Fatalf("cached body differs from generated body")
	}
}

func TestHeadSendsHeadersOnly(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.writeSource(t, "a.png", jpegBytes(t, 40, 20), time.Now().Add(-time.Hour))

	resp, body := env.do(t, fiber.MethodHead, "/img/a.png?w=10")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(body) != 0 {
		t.Fatalf("HEAD should not return a body, got %d bytes", len(body))
	}
	if resp.Header.Get("Content-Type") == "" || resp.Header.Get("Expires") == "" {
		t.Fatalf("HEAD should carry image headers: %v", resp.Header)
	}
}

func TestMissingSourceReturns404(t *testing.T) {
	env := newTestEnv(t, envOptions{signKey: testSignKey})
	resp, body := env.do(t, fiber.MethodGet, env.urls.Build("nope.jpg", params.Params{"w": "10"}))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte(`"image_not_found"`)) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestSignatureRejection(t *testing.T) {
	env := newTestEnv(t, envOptions{signKey: testSignKey})
	env.writeSource(t, "a.jpg", jpegBytes(t, 10, 10), time.Now().Add(-time.Hour))

	signed := env.urls.Build("a.jpg", params.Params{"w": "5"})
	cases := map[string]string{
		"missing":  "/img/a.jpg?w=5",
		"tampered": strings.Replace(signed, "w=5", "w=6", 1),
		"garbage":  "/img/a.jpg?w=5&s=zz",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			resp, body := env.do(t, fiber.MethodGet, target)
			if resp.StatusCode != fiber.StatusForbidden {
				t.Fatalf("expected 403, got %d", resp.StatusCode)
			}
			if !bytes.Contains(body, []byte(`"signature_invalid"`)) {
				t.Fatalf("unexpected body %s", body)
			}
		})
	}

	resp, _ := env.do(t, fiber.MethodGet, signed)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("intact signature should pass, got %d", resp.StatusCode)
	}
}

func TestSignatureCheckedBeforeSourceLookup(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	gen := &stubGenerator{missingSource: true}
	h, err := New(Options{
		Logger:    logger,
		Generator: gen,
		Cache:     &stubCache{},
		Validator: signature.NewValidator(testSignKey),
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	app, err := server.NewApp(server.AppOptions{Logger: logger, Images: h, ListenPort: 5000})
	if err != nil {
		t.Fatalf("app: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/nope.jpg?w=10", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("unsigned request for a missing source should get 403, got %d", resp.StatusCode)
	}
	if gen.sourceChecks != 0 || gen.makeCalls != 0 {
		t.Fatalf("source touched before signature check: %d lookups, %d generations", gen.sourceChecks, gen.makeCalls)
	}
}

func TestUnsignedMissingSourceReturns403(t *testing.T) {
	env := newTestEnv(t, envOptions{signKey: testSignKey})
	resp, body := env.do(t, fiber.MethodGet, "/img/nope.jpg?w=10")
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte(`"signature_invalid"`)) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestMaxImageSizeClampsOutput(t *testing.T) {
	env := newTestEnv(t, envOptions{maxImageSize: 500})
	env.writeSource(t, "wide.jpg", jpegBytes(t, 1000, 1000), time.Now().Add(-time.Hour))

	resp, body := env.do(t, fiber.MethodGet, "/img/wide.jpg?w=5000")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Width > 500 {
		t.Fatalf("width %d exceeds MaxImageSize", cfg.Width)
	}
}

func TestStaleSourceRegenerates(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	old := time.Now().Add(-2 * time.Hour)
	env.writeSource(t, "a.jpg", jpegBytes(t, 30, 30), old)

	first, _ := env.do(t, fiber.MethodGet, "/img/a.jpg?w=10")
	if first.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", first.StatusCode)
	}

	env.writeSource(t, "a.jpg", jpegBytes(t, 60, 30), time.Now().Add(time.Hour))
	second, body := env.do(t, fiber.MethodGet, "/img/a.jpg?w=10")
	if second.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", second.StatusCode)
	}
	if second.Header.Get(HeaderCacheHit) != "false" {
		t.Fatalf("newer source should invalidate the cached derivative")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil || cfg.Height != 5 {
		t.Fatalf("regenerated derivative should follow the new source: %+v %v", cfg, err)
	}
}

func TestConcurrentRequestsForStaleSource(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.writeSource(t, "busy.jpg", jpegBytes(t, 30, 30), time.Now().Add(-3*time.Hour))
	if resp, _ := env.do(t, fiber.MethodGet, "/img/busy.jpg?w=10"); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// 缓存条目早于新源图，下一批请求都会把它判为过期。
	old := time.Now().Add(-2 * time.Hour)
	err := filepath.WalkDir(env.cacheRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		return os.Chtimes(path, old, old)
	})
	if err != nil {
		t.Fatalf("backdate cache: %v", err)
	}
	env.writeSource(t, "busy.jpg", jpegBytes(t, 60, 30), time.Now().Add(-time.Hour))

	const callers = 8
	var wg sync.WaitGroup
	statuses := make(chan int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := env.app.Test(httptest.NewRequest(fiber.MethodGet, "/img/busy.jpg?w=10", nil), fiber.TestConfig{Timeout: 20 * time.Second})
			if err != nil {
				statuses <- 0
				return
			}
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)
	for status := range statuses {
		if status != fiber.StatusOK {
			t.Fatalf("concurrent request for a stale derivative got %d", status)
		}
	}
}

func TestUndecodableSourceReturns500(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.writeSource(t, "broken.jpg", []byte("not an image"), time.Now().Add(-time.Hour))

	resp, body := env.do(t, fiber.MethodGet, "/img/broken.jpg")
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte(`"image_output_failed"`)) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestPathOutsideBaseReturns404(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	for _, target := range []string{"/other/a.jpg", "/imgx/a.jpg", "/img", "/img/"} {
		resp, _ := env.do(t, fiber.MethodGet, target)
		if resp.StatusCode != fiber.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", target, resp.StatusCode)
		}
	}
}

func TestUnsupportedMethod(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	resp, _ := env.do(t, fiber.MethodPost, "/img/a.jpg")
	if resp.StatusCode != fiber.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Allow") != "GET, HEAD" {
		t.Fatalf("unexpected Allow header %q", resp.Header.Get("Allow"))
	}
}

type stubGenerator struct {
	makeErr       error
	makeCalls     int
	sourceChecks  int
	missingSource bool
}

func (s *stubGenerator) SourceExists(context.Context, string) (bool, error) {
	s.sourceChecks++
	return !s.missingSource, nil
}

func (s *stubGenerator) CacheKey(path string, p params.Params) string {
	return params.CacheKey(path, p)
}

func (s *stubGenerator) MakeDerivative(_ context.Context, path string, p params.Params) (derivative.Result, error) {
	s.makeCalls++
	if s.makeErr != nil {
		return derivative.Result{}, s.makeErr
	}
	key := params.CacheKey(path, p)
	return derivative.Result{Key: key, CachePath: key}, nil
}

// stubCache 前 missing 次读取报告条目不存在，之后返回 body；body 为空时读取失败。
type stubCache struct {
	missing int
	body    []byte
	reads   int
}

func (s *stubCache) Read(_ context.Context, path string) (*storage.ReadResult, error) {
	s.reads++
	if s.reads <= s.missing {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrCacheReadFailed, path, storage.ErrNotFound)
	}
	if s.body == nil {
		return nil, storage.ErrCacheReadFailed
	}
	return &storage.ReadResult{
		Reader: io.NopCloser(bytes.NewReader(s.body)),
		Entry:  storage.Entry{Size: int64(len(s.body)), ContentType: "image/png"},
	}, nil
}

func newStubApp(t *testing.T, gen *stubGenerator, cache *stubCache) *fiber.App {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h, err := New(Options{Logger: logger, Generator: gen, Cache: cache})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	app, err := server.NewApp(server.AppOptions{Logger: logger, Images: h, ListenPort: 5000})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	return app
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		gen    *stubGenerator
		status int
		code   string
	}{
		{name: "source-vanished", gen: &stubGenerator{makeErr: storage.ErrSourceNotFound}, status: 404, code: CodeImageNotFound},
		{name: "manipulation-failure", gen: &stubGenerator{makeErr: manipulator.ErrManipulationFailed}, status: 500, code: CodeImageOutput},
		{name: "cache-read-failure", gen: &stubGenerator{}, status: 500, code: CodeImageOutput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newStubApp(t, tc.gen, &stubCache{})
			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/a.jpg", nil))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tc.status || !bytes.Contains(body, []byte(tc.code)) {
				t.Fatalf("got %d %s, want %d %s", resp.StatusCode, body, tc.status, tc.code)
			}
		})
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	logger := logrus.New()
	if _, err := New(Options{Generator: &stubGenerator{}, Cache: &stubCache{}}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := New(Options{Logger: logger, Cache: &stubCache{}}); err == nil {
		t.Fatalf("expected error without generator")
	}
	if _, err := New(Options{Logger: logger, Generator: &stubGenerator{}}); err == nil {
		t.Fatalf("expected error without cache")
	}
}

func TestEntryRemovedBeforeReadIsRegenerated(t *testing.T) {
	gen := &stubGenerator{}
	cache := &stubCache{missing: 1, body: []byte("derived")}
	app := newStubApp(t, gen, cache)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/a.jpg?w=10", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(body) != "derived" {
		t.Fatalf("expected regenerated derivative, got %d %s", resp.StatusCode, body)
	}
	if gen.makeCalls != 2 {
		t.Fatalf("MakeDerivative calls = %d, want 2", gen.makeCalls)
	}

	gen, cache = &stubGenerator{}, &stubCache{missing: 5, body: []byte("derived")}
	resp, err = newStubApp(t, gen, cache).Test(httptest.NewRequest(fiber.MethodGet, "/a.jpg", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError || gen.makeCalls != 2 {
		t.Fatalf("persistent miss should give up after one retry: %d, %d calls", resp.StatusCode, gen.makeCalls)
	}
}
