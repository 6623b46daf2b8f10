package main

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/img-hub/internal/config"
	"github.com/any-hub/img-hub/internal/derivative"
	"github.com/any-hub/img-hub/internal/handler"
	"github.com/any-hub/img-hub/internal/logging"
	"github.com/any-hub/img-hub/internal/manipulator"
	"github.com/any-hub/img-hub/internal/params"
	"github.com/any-hub/img-hub/internal/server"
	"github.com/any-hub/img-hub/internal/server/routes"
	"github.com/any-hub/img-hub/internal/signature"
	"github.com/any-hub/img-hub/internal/storage"
	"github.com/any-hub/img-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	signTarget  string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["source"] = cfg.Source.Describe()
		fields["cache"] = cfg.Cache.Describe()
		fields["watermarks"] = cfg.Watermarks.Describe()
		fields["presets"] = len(cfg.Presets)
		fields["bitmap_backend"] = cfg.Global.BitmapBackend
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	if opts.signTarget != "" {
		signed, err := signURL(cfg, opts.signTarget)
		if err != nil {
			fmt.Fprintf(stdErr, "生成签名 URL 失败: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdOut, signed)
		return 0
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 启动遵循“配置 → 存储 → chain → Generator → Fiber server”顺序，
	// 所有请求共享同一组存储句柄、single-flight 表与指标。
	app, err := buildApp(cfg, logger, registry)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["base_url"] = cfg.Global.BaseURL
	fields["signing"] = cfg.Global.SignKey != ""
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(app, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("img-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		signTarget string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 IMG_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&signTarget, "sign", "", "为 path?query 生成带签名的 URL 后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("IMG_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		signTarget:  strings.TrimSpace(signTarget),
	}, nil
}

// signURL 将 "photos/a.jpg?w=200" 形式的目标转换为 BaseURL 下的完整 URL。
func signURL(cfg *config.Config, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	imagePath, err := params.NormalizePath(parsed.Path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", target, err)
	}
	builder := signature.NewURLBuilder(cfg.Global.BaseURL, signature.NewValidator(cfg.Global.SignKey))
	return builder.Build(imagePath, params.FromValues(parsed.Query())), nil
}

// buildApp 根据配置组装存储、处理 chain、生成器与 Fiber 应用。
func buildApp(cfg *config.Config, logger *logrus.Logger, registry *prometheus.Registry) (*fiber.App, error) {
	httpTimeout := cfg.Global.HTTPTimeout.DurationValue()

	sourceBackend, err := storage.New(cfg.Source, cfg.Global.SourcePathPrefix, httpTimeout)
	if err != nil {
		return nil, fmt.Errorf("source store: %w", err)
	}
	cacheBackend, err := storage.New(cfg.Cache, cfg.Global.CachePathPrefix, httpTimeout)
	if err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}
	logger.WithFields(logging.StoreFields("source", cfg.Source.Describe())).Info("存储已就绪")
	logger.WithFields(logging.StoreFields("cache", cfg.Cache.Describe())).Info("存储已就绪")

	resampler, err := cfg.ResolveBackend()
	if err != nil {
		return nil, err
	}
	chainOpts := manipulator.ChainOptions{
		MaxImageSize: cfg.Global.MaxImageSize,
		Resampler:    resampler.Resampler,
	}
	if cfg.Watermarks.Enabled() {
		watermarkBackend, err := storage.New(cfg.Watermarks, cfg.Global.WatermarksPathPrefix, httpTimeout)
		if err != nil {
			return nil, fmt.Errorf("watermarks store: %w", err)
		}
		chainOpts.Watermarks = storage.NewSource(watermarkBackend, cfg.Global.MaxSourceSize)
		logger.WithFields(logging.StoreFields("watermarks", cfg.Watermarks.Describe())).Info("存储已就绪")
	}

	if cfg.Global.SignKey == "" {
		logger.WithField("action", "signature_disabled").Warn("SignKey 未配置，签名校验已关闭")
	}
	if cfg.Global.MaxImageSize <= 0 {
		logger.WithField("action", "max_image_size_unset").Warn("MaxImageSize 未配置，输出尺寸不受限制")
	}

	api := manipulator.NewAPI(manipulator.NewChain(chainOpts), cfg.Global.MaxSourcePixels)
	cache := storage.NewCache(cacheBackend)
	generator := derivative.New(
		storage.NewSource(sourceBackend, cfg.Global.MaxSourceSize),
		cache,
		api,
		derivative.Options{
			Defaults:            cfg.DefaultParams(),
			Presets:             cfg.PresetParams(),
			GroupCacheInFolders: cfg.Global.GroupCacheInFolders,
			Timeout:             cfg.Global.GenerationTimeout.DurationValue(),
			MaxConcurrent:       cfg.Global.MaxConcurrentGenerations,
			StalenessMode:       cfg.Global.StalenessMode,
		},
		derivative.NewMetrics(registry),
		logger,
	)

	images, err := handler.New(handler.Options{
		Logger:    logger,
		Generator: generator,
		Cache:     cache,
		Validator: signature.NewValidator(cfg.Global.SignKey),
		BasePath:  cfg.Global.BasePath(),
	})
	if err != nil {
		return nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Images:     images,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnosticsRoutes(app, routes.Diagnostics{
		Defaults:      cfg.DefaultParams(),
		Presets:       cfg.PresetParams(),
		ActiveBackend: resampler.Key,
		Chain:         api.Chain(),
		Gatherer:      registry,
	})
	return app, nil
}

func startHTTPServer(app *fiber.App, port int, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
