package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/any-hub/img-hub/internal/manipulator/backend"
	"github.com/any-hub/img-hub/internal/params"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.MaxImageSize < 0 {
		return newFieldError("Global.MaxImageSize", "不能为负数")
	}
	if g.MaxSourcePixels < 0 {
		return newFieldError("Global.MaxSourcePixels", "不能为负数")
	}
	if g.MaxSourceSize < 0 {
		return newFieldError("Global.MaxSourceSize", "不能为负数")
	}
	if g.MaxConcurrentGenerations < 0 {
		return newFieldError("Global.MaxConcurrentGenerations", "不能为负数")
	}
	if g.GenerationTimeout.DurationValue() <= 0 {
		return newFieldError("Global.GenerationTimeout", "必须大于 0")
	}
	if g.HTTPTimeout.DurationValue() <= 0 {
		return newFieldError("Global.HTTPTimeout", "必须大于 0")
	}
	switch g.StalenessMode {
	case StalenessGTE, StalenessGT:
	default:
		return newFieldError("Global.StalenessMode", "仅支持 gte/gt")
	}
	if _, ok := backend.Resolve(g.BitmapBackend); !ok {
		return newFieldError("Global.BitmapBackend", "仅支持 "+strings.Join(backend.Keys(), "|"))
	}
	if err := validateBaseURL(g.BaseURL); err != nil {
		return fmt.Errorf("Global.BaseURL: %w", err)
	}

	if !c.Source.Enabled() {
		return newFieldError(storeField("Source", "Driver"), "必须配置源图存储")
	}
	if err := validateStore("Source", c.Source, true); err != nil {
		return err
	}
	if !c.Cache.Enabled() {
		return newFieldError(storeField("Cache", "Driver"), "必须配置缓存存储")
	}
	if err := validateStore("Cache", c.Cache, false); err != nil {
		return err
	}
	if c.Watermarks.Enabled() {
		if err := validateStore("Watermarks", c.Watermarks, true); err != nil {
			return err
		}
	}

	for name, preset := range c.Presets {
		if strings.TrimSpace(name) == "" || strings.Contains(name, ",") {
			return newFieldError(presetField(name, ""), "预设名不能为空或包含逗号")
		}
		if err := validateParamTable(preset, presetField(name, "")); err != nil {
			return err
		}
	}
	if err := validateParamTable(c.Defaults, "Defaults"); err != nil {
		return err
	}

	return nil
}

// validateParamTable 禁止在默认值或预设中出现签名与预设选择参数。
func validateParamTable(values map[string]string, field string) error {
	for _, reserved := range []string{params.SignatureKey, params.PresetKey} {
		if _, ok := values[reserved]; ok {
			return newFieldError(field+"."+reserved, "保留参数不能出现在默认值或预设中")
		}
	}
	return nil
}

func validateStore(table string, s StoreConfig, readOnlyAllowed bool) error {
	switch s.Driver {
	case DriverLocal:
		if strings.TrimSpace(s.Root) == "" {
			return newFieldError(storeField(table, "Root"), "local 驱动必须指定目录")
		}
	case DriverS3:
		if s.Endpoint == "" {
			return newFieldError(storeField(table, "Endpoint"), "s3 驱动必须指定 Endpoint")
		}
		if strings.Contains(s.Endpoint, "://") {
			return newFieldError(storeField(table, "Endpoint"), "Endpoint 不应包含协议头，请使用 UseSSL")
		}
		if s.Bucket == "" {
			return newFieldError(storeField(table, "Bucket"), "s3 驱动必须指定 Bucket")
		}
		if (s.AccessKey == "") != (s.SecretKey == "") {
			return newFieldError(storeField(table, "AccessKey/SecretKey"), "必须同时提供或同时留空")
		}
	case DriverHTTP:
		if !readOnlyAllowed {
			return newFieldError(storeField(table, "Driver"), "http 驱动只读，不能用于缓存")
		}
		if err := validateUpstream(s.BaseURL); err != nil {
			return fmt.Errorf("%s: %w", storeField(table, "BaseURL"), err)
		}
	default:
		return newFieldError(storeField(table, "Driver"), "仅支持 local|s3|http")
	}
	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" && !strings.HasPrefix(raw, "/") {
		return errors.New("必须以 / 开头或为完整 URL")
	}
	if strings.HasPrefix(parsed.Path, "/-/") || parsed.Path == "/-" {
		return errors.New("/-/ 前缀保留给诊断接口")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}

// BasePath 返回 BaseURL 的路径部分（去掉末尾斜杠），用于从请求路径中剥离前缀。
func (g GlobalConfig) BasePath() string {
	if g.BaseURL == "" {
		return ""
	}
	parsed, err := url.Parse(g.BaseURL)
	if err != nil {
		return ""
	}
	return strings.TrimRight(parsed.Path, "/")
}
