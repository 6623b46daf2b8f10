package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fixture 返回 testdata 下的配置样例路径，不检查文件是否存在。
func fixture(name string) string {
	return filepath.Join("testdata", name)
}

// writeTempConfig 写入临时 TOML，去掉测试字面量首尾的空白行。
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}
