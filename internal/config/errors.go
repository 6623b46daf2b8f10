package config

import "fmt"

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// newFieldError 创建包含字段路径与原因的 error，便于 CLI 定位。
func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// storeField 拼接存储表内的字段路径，例如 Source.Root。
func storeField(table, field string) string {
	return fmt.Sprintf("%s.%s", table, field)
}

// presetField 拼接预设字段路径，例如 Presets[small].w。
func presetField(name, key string) string {
	if key == "" {
		return fmt.Sprintf("Presets[%s]", name)
	}
	return fmt.Sprintf("Presets[%s].%s", name, key)
}
