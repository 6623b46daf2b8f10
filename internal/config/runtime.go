package config

import (
	"fmt"

	"github.com/any-hub/img-hub/internal/manipulator/backend"
	"github.com/any-hub/img-hub/internal/params"
)

// ResolveBackend 返回配置选定的位图后端（假定 Validate 已经通过）。
func (c *Config) ResolveBackend() (backend.Metadata, error) {
	meta, ok := backend.Resolve(c.Global.BitmapBackend)
	if !ok {
		return backend.Metadata{}, newFieldError("Global.BitmapBackend", fmt.Sprintf("未注册后端: %s", c.Global.BitmapBackend))
	}
	return meta, nil
}

// DefaultParams 将 [Defaults] 表转换为操作参数。
func (c *Config) DefaultParams() params.Params {
	return params.Params(c.Defaults).Clone()
}

// PresetParams 将 [Presets.*] 表转换为按名称索引的参数集合。
func (c *Config) PresetParams() params.Presets {
	out := make(params.Presets, len(c.Presets))
	for name, values := range c.Presets {
		out[name] = params.Params(values).Clone()
	}
	return out
}
