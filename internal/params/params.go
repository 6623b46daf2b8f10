// Package params models the manipulation parameters and source paths carried
// by an image request, and derives the stable cache key for a derivative.
package params

import (
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// SignatureKey 是请求签名所在的查询参数名，不参与缓存键与签名计算。
const SignatureKey = "s"

// PresetKey 是选择预设的查询参数名，多个预设以逗号分隔。
const PresetKey = "p"

// ErrInvalidPath 表示请求路径无法规范化为安全的相对路径。
var ErrInvalidPath = errors.New("invalid source path")

// Params 保存一次请求的操作参数，键为参数名，值为原始字符串。
type Params map[string]string

// FromQuery 复制查询参数；fiber 会复用底层缓冲区，因此这里必须克隆字符串。
func FromQuery(query map[string]string) Params {
	out := make(Params, len(query))
	for k, v := range query {
		out[strings.Clone(k)] = strings.Clone(v)
	}
	return out
}

// FromValues 取每个键的第一个值。
func FromValues(values url.Values) Params {
	out := make(Params, len(values))
	for k, vs := range values {
		if len(vs) == 0 {
			continue
		}
		out[k] = vs[0]
	}
	return out
}

// Get 返回参数值，不存在时为空字符串。
func (p Params) Get(key string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p[key])
}

// Has 报告参数是否存在且值非空。
func (p Params) Has(key string) bool {
	return p.Get(key) != ""
}

// Int 解析整数参数，解析失败时 ok 为 false。
func (p Params) Int(key string) (int, bool) {
	raw := p.Get(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Float 解析浮点参数。
func (p Params) Float(key string) (float64, bool) {
	raw := p.Get(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Clone 返回独立副本。
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Without 返回去掉指定键的副本。
func (p Params) Without(keys ...string) Params {
	out := p.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Encode 以键排序的 URL 编码形式输出，语义相同的参数集合得到相同字符串。
// 值按 Get 的规则去除首尾空白，去除后为空的参数与缺省等价，不参与编码。
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		if p.Get(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Get(k)))
	}
	return b.String()
}

// Presets 按名称保存预设参数集合。
type Presets map[string]Params

// PresetNames 返回请求中 p 参数选择的预设名称（小写），保持请求中的顺序。
func (p Params) PresetNames() []string {
	raw := p.Get(PresetKey)
	if raw == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Merge 按 defaults < presets < request 的优先级合并参数。未知预设被忽略，
// 多个预设按请求顺序应用，后者覆盖前者。
func Merge(defaults Params, presets Presets, request Params) Params {
	out := make(Params, len(defaults)+len(request))
	for k, v := range defaults {
		out[k] = v
	}
	for _, name := range request.PresetNames() {
		preset, ok := presets[name]
		if !ok {
			continue
		}
		for k, v := range preset {
			out[k] = v
		}
	}
	for k, v := range request {
		out[k] = v
	}
	return out
}
