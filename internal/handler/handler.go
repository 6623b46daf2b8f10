// Package handler serves image derivatives over HTTP: it authorises the
// request, keeps the cached derivative coherent with its source and streams
// the cached bytes back with long-lived caching headers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/img-hub/internal/derivative"
	"github.com/any-hub/img-hub/internal/logging"
	"github.com/any-hub/img-hub/internal/params"
	"github.com/any-hub/img-hub/internal/server"
	"github.com/any-hub/img-hub/internal/signature"
	"github.com/any-hub/img-hub/internal/storage"
)

// 错误码与 JSON 响应体 {"error": code} 一一对应。
const (
	CodeSignatureInvalid = "signature_invalid"
	CodeImageNotFound    = "image_not_found"
	CodeImageOutput      = "image_output_failed"
	CodeMethodNotAllowed = "method_not_allowed"
)

const (
	cacheControl = "max-age=31536000, public"
	expiresAfter = 365 * 24 * time.Hour
	// HeaderCacheHit 标识响应是否直接来自已有缓存。
	HeaderCacheHit = "X-Img-Hub-Cache-Hit"
)

// Generator 是 handler 依赖的派生图生成能力，*derivative.Generator 是默认实现。
type Generator interface {
	SourceExists(ctx context.Context, path string) (bool, error)
	CacheKey(path string, p params.Params) string
	MakeDerivative(ctx context.Context, path string, p params.Params) (derivative.Result, error)
}

// CacheReader 打开已生成的派生图。
type CacheReader interface {
	Read(ctx context.Context, path string) (*storage.ReadResult, error)
}

// Options 汇总 Handler 的依赖。
type Options struct {
	Logger    *logrus.Logger
	Generator Generator
	Cache     CacheReader
	Validator *signature.Validator
	// BasePath 是挂载前缀（如 "/img"），为空表示挂载在根路径。
	BasePath string
	// Now 便于测试固定 Expires，默认 time.Now。
	Now func() time.Time
}

// Handler 负责 "校验签名 → 检查源图 → 失效过期缓存 → 生成派生图 → 回写缓存内容" 的全流程。
type Handler struct {
	logger    *logrus.Logger
	generator Generator
	cache     CacheReader
	validator *signature.Validator
	basePath  string
	now       func() time.Time
}

// New 构建 Handler。
func New(opts Options) (*Handler, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("cache reader is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		logger:    opts.Logger,
		generator: opts.Generator,
		cache:     opts.Cache,
		validator: opts.Validator,
		basePath:  strings.TrimRight(opts.BasePath, "/"),
		now:       now,
	}, nil
}

type requestState struct {
	requestID string
	path      string
	key       string
	cacheHit  bool
	started   time.Time
}

// Handle 实现 server.ImageHandler。
func (h *Handler) Handle(c fiber.Ctx) error {
	state := &requestState{
		requestID: server.RequestID(c),
		started:   time.Now(),
	}

	method := c.Method()
	if method != fiber.MethodGet && method != fiber.MethodHead {
		c.Set(fiber.HeaderAllow, "GET, HEAD")
		return h.fail(c, state, fiber.StatusMethodNotAllowed, CodeMethodNotAllowed, nil)
	}

	requestPath := string(c.Request().URI().Path())
	query := params.FromQuery(c.Queries())

	if err := h.validator.Verify(requestPath, query); err != nil {
		return h.fail(c, state, fiber.StatusForbidden, CodeSignatureInvalid, err)
	}

	relative, ok := h.stripBase(requestPath)
	if !ok {
		return h.fail(c, state, fiber.StatusNotFound, CodeImageNotFound, nil)
	}
	sourcePath, err := params.NormalizePath(relative)
	if err != nil {
		return h.fail(c, state, fiber.StatusNotFound, CodeImageNotFound, err)
	}
	state.path = sourcePath

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	exists, err := h.generator.SourceExists(ctx, sourcePath)
	if err != nil {
		return h.fail(c, state, fiber.StatusInternalServerError, CodeImageOutput, err)
	}
	if !exists {
		return h.fail(c, state, fiber.StatusNotFound, CodeImageNotFound, nil)
	}

	state.key = h.generator.CacheKey(sourcePath, query)
	result, cached, err := h.derive(ctx, sourcePath, query)
	if err != nil {
		return h.fail(c, state, statusFor(err), codeFor(err), err)
	}
	state.key = result.Key
	state.cacheHit = result.CacheHit
	defer cached.Reader.Close()

	return h.serve(c, state, cached)
}

// derive 生成或命中派生图并打开缓存条目。过期判断与失效都在生成器的
// 同键合并内完成；条目在生成后、读取前被其他请求的再生成删除时重试一次。
func (h *Handler) derive(ctx context.Context, sourcePath string, query params.Params) (derivative.Result, *storage.ReadResult, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var result derivative.Result
		result, err = h.generator.MakeDerivative(ctx, sourcePath, query)
		if err != nil {
			return result, nil, err
		}
		var cached *storage.ReadResult
		cached, err = h.cache.Read(ctx, result.CachePath)
		if err == nil {
			return result, cached, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			break
		}
	}
	return derivative.Result{}, nil, err
}

func (h *Handler) serve(c fiber.Ctx, state *requestState, cached *storage.ReadResult) error {
	contentType := cached.Entry.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Set(fiber.HeaderContentType, contentType)
	if cached.Entry.Size > 0 {
		c.Response().Header.SetContentLength(int(cached.Entry.Size))
	}
	c.Set(fiber.HeaderCacheControl, cacheControl)
	c.Set(fiber.HeaderExpires, h.now().Add(expiresAfter).UTC().Format(http.TimeFormat))
	c.Set(HeaderCacheHit, fmt.Sprintf("%t", state.cacheHit))
	if state.requestID != "" {
		c.Set("X-Request-ID", state.requestID)
	}

	status := fiber.StatusOK
	c.Status(status)

	if c.Method() == fiber.MethodHead {
		h.logResult(state, status, nil)
		return nil
	}

	_, err := io.Copy(c.Response().BodyWriter(), cached.Reader)
	h.logResult(state, status, err)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("read cache failed: %v", err))
	}
	return nil
}

func (h *Handler) stripBase(requestPath string) (string, bool) {
	if h.basePath == "" {
		return requestPath, true
	}
	if requestPath == h.basePath {
		return "", true
	}
	if !strings.HasPrefix(requestPath, h.basePath+"/") {
		return "", false
	}
	return strings.TrimPrefix(requestPath, h.basePath), true
}

func statusFor(err error) int {
	if errors.Is(err, storage.ErrSourceNotFound) {
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

func codeFor(err error) string {
	if errors.Is(err, storage.ErrSourceNotFound) {
		return CodeImageNotFound
	}
	return CodeImageOutput
}

func (h *Handler) fail(c fiber.Ctx, state *requestState, status int, code string, cause error) error {
	h.logResult(state, status, cause)
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(state *requestState, status int, err error) {
	fields := logging.RequestFields(state.requestID, state.path, state.key, state.cacheHit)
	fields["action"] = "image"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(state.started).Milliseconds()
	entry := h.logger.WithFields(fields)
	switch {
	case status >= fiber.StatusInternalServerError:
		entry.WithError(err).Error("image_failed")
	case status >= fiber.StatusBadRequest:
		if err != nil {
			entry = entry.WithField("reason", err.Error())
		}
		entry.Warn("image_rejected")
	default:
		if err != nil {
			entry.WithError(err).Error("image_stream_failed")
			return
		}
		entry.Info("image_served")
	}
}
