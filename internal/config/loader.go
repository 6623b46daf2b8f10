package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/any-hub/img-hub/internal/manipulator/backend"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyStoreDefaults(&cfg.Source)
	applyStoreDefaults(&cfg.Cache)
	applyStoreDefaults(&cfg.Watermarks)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, store := range []*StoreConfig{&cfg.Source, &cfg.Cache, &cfg.Watermarks} {
		if store.Driver != DriverLocal {
			continue
		}
		abs, err := filepath.Abs(store.Root)
		if err != nil {
			return nil, fmt.Errorf("无法解析存储目录: %w", err)
		}
		store.Root = abs
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("BaseURL", "")
	v.SetDefault("MaxImageSize", 0)
	v.SetDefault("MaxSourcePixels", 100_000_000)
	v.SetDefault("MaxSourceSize", 64*1024*1024)
	v.SetDefault("GroupCacheInFolders", true)
	v.SetDefault("BitmapBackend", backend.DefaultKey())
	v.SetDefault("GenerationTimeout", "30s")
	v.SetDefault("MaxConcurrentGenerations", 0)
	v.SetDefault("StalenessMode", StalenessGTE)
	v.SetDefault("HTTPTimeout", "30s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	g.BitmapBackend = strings.ToLower(strings.TrimSpace(g.BitmapBackend))
	if g.BitmapBackend == "" {
		g.BitmapBackend = backend.DefaultKey()
	}
	g.StalenessMode = strings.ToLower(strings.TrimSpace(g.StalenessMode))
	if g.StalenessMode == "" {
		g.StalenessMode = StalenessGTE
	}
	if g.GenerationTimeout.DurationValue() == 0 {
		g.GenerationTimeout = Duration(30 * time.Second)
	}
	if g.HTTPTimeout.DurationValue() == 0 {
		g.HTTPTimeout = Duration(30 * time.Second)
	}
	g.SourcePathPrefix = strings.Trim(g.SourcePathPrefix, "/")
	g.CachePathPrefix = strings.Trim(g.CachePathPrefix, "/")
	g.WatermarksPathPrefix = strings.Trim(g.WatermarksPathPrefix, "/")
}

func applyStoreDefaults(s *StoreConfig) {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
