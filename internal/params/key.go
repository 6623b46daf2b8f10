package params

import (
	"github.com/opencontainers/go-digest"
)

// CacheKey 根据规范化路径与参数（不含签名）计算派生图的缓存键。
// 参数按键排序后编码，因此参数顺序不影响结果。
func CacheKey(sourcePath string, p Params) string {
	return digest.SHA256.FromString(sourcePath + "?" + p.Without(SignatureKey).Encode()).Encoded()
}

// CachePath 返回缓存键在缓存存储中的相对路径；grouped 时以键的前两位分目录，
// 避免单目录下条目过多。
func CachePath(key string, grouped bool) string {
	if grouped && len(key) > 2 {
		return key[:2] + "/" + key
	}
	return key
}
