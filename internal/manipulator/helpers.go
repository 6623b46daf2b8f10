package manipulator

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/colornames"

	"github.com/any-hub/img-hub/internal/manipulator/backend"
	"github.com/any-hub/img-hub/internal/params"
)

var (
	transparent = color.NRGBA{}
	white       = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// resample 使用选定后端缩放；未配置后端时退回 imaging 的 Lanczos。
func resample(r backend.Resampler, src image.Image, width, height int) *image.NRGBA {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if r == nil {
		return imaging.Resize(src, width, height, imaging.Lanczos)
	}
	return r.Resize(src, width, height)
}

// boundedInt 读取 [min, max] 范围内的整数参数，越界或非法时 ok 为 false。
func boundedInt(p params.Params, key string, lo, hi int) (int, bool) {
	v, ok := p.Int(key)
	if !ok || v < lo || v > hi {
		return 0, false
	}
	return v, true
}

// dpr 返回设备像素比，合法范围 0-8，默认 1。
func dpr(p params.Params) float64 {
	v, ok := p.Float("dpr")
	if !ok || v < 0 || v > 8 {
		return 1
	}
	return v
}

// dimension 解析尺寸：纯数字按像素乘以 dpr；"<n>w"/"<n>h" 为相对图像宽/高的百分比。
func dimension(raw string, width, height int, ratio float64) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	switch {
	case strings.HasSuffix(raw, "w"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "w"), 64)
		if err != nil || v < 0 {
			return 0, false
		}
		return float64(width) * v / 100, true
	case strings.HasSuffix(raw, "h"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "h"), 64)
		if err != nil || v < 0 {
			return 0, false
		}
		return float64(height) * v / 100, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v * ratio, true
}

// parseColor 支持 RGB、ARGB、RRGGBB、AARRGGBB 十六进制（alpha 在前）与 CSS 颜色名。
func parseColor(raw string) (color.NRGBA, error) {
	raw = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
	if named, ok := colornames.Map[raw]; ok {
		return color.NRGBA{R: named.R, G: named.G, B: named.B, A: named.A}, nil
	}

	expand := func(s string) string {
		var b strings.Builder
		for _, r := range s {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		return b.String()
	}

	var hex string
	switch len(raw) {
	case 3:
		hex = "ff" + expand(raw)
	case 4:
		hex = expand(raw)
	case 6:
		hex = "ff" + raw
	case 8:
		hex = raw
	default:
		return color.NRGBA{}, fmt.Errorf("invalid color %q", raw)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", raw)
	}
	return color.NRGBA{
		A: uint8(v >> 24),
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}, nil
}

func round(v float64) int {
	return int(math.Round(v))
}
