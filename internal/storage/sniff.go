package storage

import (
	"bytes"
	"net/http"
)

const sniffLen = 512

// sniffContentType 根据文件头推断 MIME 类型，补充 net/http 未识别的 TIFF。
func sniffContentType(head []byte) string {
	if bytes.HasPrefix(head, []byte("II*\x00")) || bytes.HasPrefix(head, []byte("MM\x00*")) {
		return "image/tiff"
	}
	return http.DetectContentType(head)
}
