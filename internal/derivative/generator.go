package derivative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/img-hub/internal/config"
	"github.com/any-hub/img-hub/internal/logging"
	"github.com/any-hub/img-hub/internal/manipulator"
	"github.com/any-hub/img-hub/internal/params"
	"github.com/any-hub/img-hub/internal/storage"
)

// Pipeline 将源图字节转换为派生图，manipulator.API 是默认实现。
type Pipeline interface {
	Run(ctx context.Context, source []byte, p params.Params) (*manipulator.Output, error)
}

// Options 控制生成器行为。
type Options struct {
	Defaults            params.Params
	Presets             params.Presets
	GroupCacheInFolders bool
	// Timeout 限制单次生成的耗时，0 表示不限制。
	Timeout time.Duration
	// MaxConcurrent 限制同时运行的生成数，0 表示不限制。
	MaxConcurrent int
	// StalenessMode 为 config.StalenessGTE（默认）或 config.StalenessGT。
	StalenessMode string
}

// Result 描述一次 MakeDerivative 的结果。
type Result struct {
	Key       string
	CachePath string
	CacheHit  bool
	// Shared 表示结果来自同一缓存键上其它调用方发起的生成。
	Shared bool
}

// Generator 负责缓存有效性判断与派生图生成。
type Generator struct {
	source   *storage.Source
	cache    *storage.Cache
	pipeline Pipeline
	opts     Options

	group   singleflight.Group
	sem     *semaphore.Weighted
	metrics *Metrics
	logger  *logrus.Entry
}

// New 组装生成器。metrics 为 nil 时使用未注册的指标；logger 为 nil 时使用 logrus 标准 Logger。
func New(source *storage.Source, cache *storage.Cache, pipeline Pipeline, opts Options, metrics *Metrics, logger *logrus.Logger) *Generator {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if opts.StalenessMode == "" {
		opts.StalenessMode = config.StalenessGTE
	}
	g := &Generator{
		source:   source,
		cache:    cache,
		pipeline: pipeline,
		opts:     opts,
		metrics:  metrics,
		logger:   logging.Component(logger, "derivative"),
	}
	if opts.MaxConcurrent > 0 {
		g.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return g
}

// AllParams 合并默认值、预设与请求参数。
func (g *Generator) AllParams(p params.Params) params.Params {
	return params.Merge(g.opts.Defaults, g.opts.Presets, p)
}

// CacheKey 返回 path 与合并后参数对应的缓存键。
func (g *Generator) CacheKey(path string, p params.Params) string {
	return params.CacheKey(path, g.AllParams(p))
}

// CachePath 返回缓存键在缓存存储中的相对路径。
func (g *Generator) CachePath(key string) string {
	return params.CachePath(key, g.opts.GroupCacheInFolders)
}

// SourceExists 报告源图是否存在。
func (g *Generator) SourceExists(ctx context.Context, path string) (bool, error) {
	return g.source.Exists(ctx, path)
}

// CacheExists 报告缓存键对应的派生图是否存在。
func (g *Generator) CacheExists(ctx context.Context, key string) (bool, error) {
	return g.cache.Exists(ctx, g.CachePath(key))
}

// IsStale 当且仅当缓存条目存在且源图修改时间满足过期条件时返回 true。
func (g *Generator) IsStale(ctx context.Context, path, key string) (bool, error) {
	return g.isStale(ctx, path, g.CachePath(key))
}

func (g *Generator) isStale(ctx context.Context, path, cachePath string) (bool, error) {
	exists, err := g.cache.Exists(ctx, cachePath)
	if err != nil || !exists {
		return false, err
	}
	cachedAt, err := g.cache.LastModified(ctx, cachePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	sourceAt, err := g.source.LastModified(ctx, path)
	if err != nil {
		return false, err
	}
	if g.opts.StalenessMode == config.StalenessGT {
		return sourceAt.After(cachedAt), nil
	}
	return !sourceAt.Before(cachedAt), nil
}

// Invalidate 删除缓存键对应的派生图。
func (g *Generator) Invalidate(ctx context.Context, key string) error {
	return g.invalidate(ctx, key, g.CachePath(key))
}

func (g *Generator) invalidate(ctx context.Context, key, cachePath string) error {
	if err := g.cache.Delete(ctx, cachePath); err != nil {
		return err
	}
	g.metrics.Invalidations.Inc()
	g.logger.WithFields(logrus.Fields{"action": "cache_invalidated", "cache_key": key}).Debug("stale derivative removed")
	return nil
}

// MakeDerivative 确保 path+p 对应的派生图存在于缓存中并返回其缓存键。
// 同一缓存键的并发调用只运行一次 pipeline；调用方 ctx 取消时立即返回 ctx.Err()，
// 但已开始的生成会继续完成，供其它等待者使用。
func (g *Generator) MakeDerivative(ctx context.Context, path string, p params.Params) (Result, error) {
	all := g.AllParams(p)
	key := params.CacheKey(path, all)
	cachePath := g.CachePath(key)

	ch := g.group.DoChan(key, func() (val interface{}, err error) {
		// DoChan 会在新 goroutine 中重新抛出 panic，这里必须就地恢复。
		defer func() {
			if r := recover(); r != nil {
				g.logger.WithFields(logrus.Fields{
					"action":    "derivative_panic",
					"path":      path,
					"cache_key": key,
				}).Errorf("derivative generation panicked: %v", r)
				val = Result{Key: key, CachePath: cachePath}
				err = fmt.Errorf("%w: panic: %v", manipulator.ErrManipulationFailed, r)
			}
		}()
		genCtx := context.WithoutCancel(ctx)
		if g.opts.Timeout > 0 {
			var cancel context.CancelFunc
			genCtx, cancel = context.WithTimeout(genCtx, g.opts.Timeout)
			defer cancel()
		}
		return g.generate(genCtx, path, key, cachePath, all)
	})

	select {
	case <-ctx.Done():
		return Result{Key: key, CachePath: cachePath}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			g.metrics.Requests.WithLabelValues(ResultError).Inc()
			return Result{Key: key, CachePath: cachePath}, res.Err
		}
		result := res.Val.(Result)
		result.Shared = res.Shared
		if result.CacheHit {
			g.metrics.Requests.WithLabelValues(ResultHit).Inc()
		} else {
			g.metrics.Requests.WithLabelValues(ResultMiss).Inc()
		}
		return result, nil
	}
}

func (g *Generator) generate(ctx context.Context, path, key, cachePath string, p params.Params) (Result, error) {
	result := Result{Key: key, CachePath: cachePath}

	exists, err := g.cache.Exists(ctx, cachePath)
	if err != nil {
		return result, err
	}
	if exists {
		stale, err := g.isStale(ctx, path, cachePath)
		if err != nil {
			return result, err
		}
		if !stale {
			result.CacheHit = true
			return result, nil
		}
		if err := g.invalidate(ctx, key, cachePath); err != nil {
			return result, err
		}
	}

	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return result, fmt.Errorf("%w: waiting for generation slot: %w", manipulator.ErrManipulationFailed, err)
		}
		defer g.sem.Release(1)
	}

	g.metrics.InFlight.Inc()
	defer g.metrics.InFlight.Dec()
	start := time.Now()

	data, err := g.source.Read(ctx, path)
	if err != nil {
		return result, err
	}
	out, err := g.pipeline.Run(ctx, data, p)
	if err != nil {
		if !errors.Is(err, manipulator.ErrManipulationFailed) {
			err = fmt.Errorf("%w: %w", manipulator.ErrManipulationFailed, err)
		}
		return result, err
	}
	if _, err := g.cache.Write(ctx, cachePath, out.Data, out.MIME); err != nil {
		return result, err
	}

	elapsed := time.Since(start)
	g.metrics.Generations.Inc()
	g.metrics.Duration.Observe(elapsed.Seconds())
	g.logger.WithFields(logrus.Fields{
		"action":    "derivative_generated",
		"path":      path,
		"cache_key": key,
		"mime":      out.MIME,
		"bytes":     len(out.Data),
		"width":     out.Width,
		"height":    out.Height,
		"elapsed":   elapsed.String(),
	}).Info("derivative generated")
	return result, nil
}
