package signature

import (
	"net/url"
	"strings"

	"github.com/any-hub/img-hub/internal/params"
)

// URLBuilder 生成可直接访问的图片 URL，签名开启时自动附加 s 参数。
type URLBuilder struct {
	baseURL   string
	validator *Validator
}

// NewURLBuilder 以 baseURL 为前缀构建 URL；baseURL 可以是 "/img" 这样的路径，
// 也可以是带 scheme 的绝对地址。validator 可为 nil。
func NewURLBuilder(baseURL string, validator *Validator) *URLBuilder {
	return &URLBuilder{baseURL: strings.TrimRight(baseURL, "/"), validator: validator}
}

// Build 返回 base + path + 查询串。签名只覆盖 URL 的路径部分（含 base 路径前缀），
// 与服务端收到的请求路径一致。
func (b *URLBuilder) Build(path string, p params.Params) string {
	full := b.baseURL + "/" + strings.TrimLeft(path, "/")
	query := p.Without(params.SignatureKey)
	if b.validator.Enabled() {
		query[params.SignatureKey] = b.validator.Sign(signedPath(full), query)
	}
	if encoded := query.Encode(); encoded != "" {
		return full + "?" + encoded
	}
	return full
}

func signedPath(full string) string {
	u, err := url.Parse(full)
	if err != nil || u.Scheme == "" {
		return full
	}
	return u.Path
}
