package params

import "strings"

// NormalizePath 将请求路径转换为以 / 分隔的相对路径：去掉前导斜杠、折叠
// 重复斜杠，并拒绝 ".." 段、反斜杠与 NUL 字节，避免越出存储根目录。
func NormalizePath(raw string) (string, error) {
	if strings.ContainsAny(raw, "\\\x00") {
		return "", ErrInvalidPath
	}
	segments := strings.Split(raw, "/")
	kept := segments[:0]
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidPath
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "", ErrInvalidPath
	}
	return strings.Join(kept, "/"), nil
}
