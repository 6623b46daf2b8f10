package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 存储驱动名称。
const (
	DriverLocal = "local"
	DriverS3    = "s3"
	DriverHTTP  = "http"
)

// 缓存过期判定方式：gte 表示源文件修改时间不早于缓存即视为过期，gt 要求严格晚于。
const (
	StalenessGTE = "gte"
	StalenessGT  = "gt"
)

// GlobalConfig 描述全局运行时行为。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	BaseURL                  string   `mapstructure:"BaseURL"`
	SignKey                  string   `mapstructure:"SignKey"`
	MaxImageSize             int      `mapstructure:"MaxImageSize"`
	MaxSourcePixels          int64    `mapstructure:"MaxSourcePixels"`
	MaxSourceSize            int64    `mapstructure:"MaxSourceSize"`
	GroupCacheInFolders      bool     `mapstructure:"GroupCacheInFolders"`
	SourcePathPrefix         string   `mapstructure:"SourcePathPrefix"`
	CachePathPrefix          string   `mapstructure:"CachePathPrefix"`
	WatermarksPathPrefix     string   `mapstructure:"WatermarksPathPrefix"`
	BitmapBackend            string   `mapstructure:"BitmapBackend"`
	GenerationTimeout        Duration `mapstructure:"GenerationTimeout"`
	MaxConcurrentGenerations int      `mapstructure:"MaxConcurrentGenerations"`
	StalenessMode            string   `mapstructure:"StalenessMode"`
	HTTPTimeout              Duration `mapstructure:"HTTPTimeout"`
}

// StoreConfig 描述一个存储后端（源图、缓存或水印）。
type StoreConfig struct {
	Driver    string `mapstructure:"Driver"`
	Root      string `mapstructure:"Root"`
	BaseURL   string `mapstructure:"BaseURL"`
	Endpoint  string `mapstructure:"Endpoint"`
	Bucket    string `mapstructure:"Bucket"`
	AccessKey string `mapstructure:"AccessKey"`
	SecretKey string `mapstructure:"SecretKey"`
	UseSSL    bool   `mapstructure:"UseSSL"`
	Region    string `mapstructure:"Region"`
}

// Enabled 表示该存储是否被配置；水印存储是可选的。
func (s StoreConfig) Enabled() bool {
	return strings.TrimSpace(s.Driver) != ""
}

// Describe 输出便于日志展示的存储摘要，不包含凭证。
func (s StoreConfig) Describe() string {
	switch s.Driver {
	case DriverLocal:
		return "local:" + s.Root
	case DriverS3:
		return "s3:" + s.Endpoint + "/" + s.Bucket
	case DriverHTTP:
		return "http:" + s.BaseURL
	case "":
		return "disabled"
	default:
		return s.Driver
	}
}

// Config 是 TOML 文件映射的整体结构。Viper 会把表名与键名转为小写，
// 因此 Defaults/Presets 中的参数名与预设名均以小写存储。
type Config struct {
	Global     GlobalConfig                 `mapstructure:",squash"`
	Source     StoreConfig                  `mapstructure:"Source"`
	Cache      StoreConfig                  `mapstructure:"Cache"`
	Watermarks StoreConfig                  `mapstructure:"Watermarks"`
	Defaults   map[string]string            `mapstructure:"Defaults"`
	Presets    map[string]map[string]string `mapstructure:"Presets"`
}
