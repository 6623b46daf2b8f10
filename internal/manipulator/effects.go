package manipulator

import (
	"context"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/any-hub/img-hub/internal/params"
)

// sepia 依次执行灰度、亮度 -15、对比度 5、着色 (38,27,12)、亮度 -10、对比度 10。
func sepia(src image.Image) *image.NRGBA {
	out := imaging.Grayscale(src)
	out = imaging.AdjustBrightness(out, -15)
	out = imaging.AdjustContrast(out, 5)
	out = colorize(out, 38, 27, 12)
	out = imaging.AdjustBrightness(out, -10)
	return imaging.AdjustContrast(out, 10)
}

// colorize 按百分比平移各颜色通道（-100..100）。
func colorize(src image.Image, red, green, blue float64) *image.NRGBA {
	shift := func(v uint8, pct float64) uint8 {
		n := float64(v) + pct*255/100
		switch {
		case n < 0:
			return 0
		case n > 255:
			return 255
		}
		return uint8(n + 0.5)
	}
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: shift(c.R, red), G: shift(c.G, green), B: shift(c.B, blue), A: c.A}
	})
}

// Background 处理 bg：把图像合成到纯色画布上。
type Background struct{}

func (Background) Name() string { return "background" }

func (Background) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	raw := p.Get("bg")
	if raw == "" {
		return img, nil
	}
	col, err := parseColor(raw)
	if err != nil {
		return img, nil
	}
	canvas := imaging.New(img.Width(), img.Height(), col)
	return img.with(imaging.Overlay(canvas, img.Pixels, image.Pt(0, 0), 1)), nil
}

// 边框绘制方式。
const (
	BorderOverlay = "overlay"
	BorderShrink  = "shrink"
	BorderExpand  = "expand"
)

// Border 处理 border=width,color,method。边框宽度不超过图像较长边；
// expand 模式下扩展后的边长不超过 MaxImageSize，放不下时不加边框。
type Border struct {
	MaxImageSize int
}

func (Border) Name() string { return "border" }

func (b Border) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	raw := p.Get("border")
	if raw == "" {
		return img, nil
	}
	parts := strings.Split(raw, ",")
	w, h := img.Width(), img.Height()
	width, ok := dimension(parts[0], w, h, dpr(p))
	if !ok {
		return img, nil
	}
	size := round(math.Min(width, float64(max(w, h))))
	if size <= 0 {
		return img, nil
	}

	colorRaw := "ffffff"
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		colorRaw = parts[1]
	}
	col, err := parseColor(colorRaw)
	if err != nil {
		return img, nil
	}

	method := BorderOverlay
	if len(parts) > 2 {
		switch m := strings.TrimSpace(parts[2]); m {
		case BorderShrink, BorderExpand:
			method = m
		}
	}

	switch method {
	case BorderExpand:
		if b.MaxImageSize > 0 {
			size = min(size, (b.MaxImageSize-max(w, h))/2)
			if size <= 0 {
				return img, nil
			}
		}
		canvas := imaging.New(w+2*size, h+2*size, col)
		return img.with(imaging.Overlay(canvas, img.Pixels, image.Pt(size, size), 1)), nil
	case BorderShrink:
		if 2*size >= w || 2*size >= h {
			return img, nil
		}
		inner := imaging.Resize(img.Pixels, w-2*size, h-2*size, imaging.Lanczos)
		canvas := imaging.New(w, h, col)
		return img.with(imaging.Overlay(canvas, inner, image.Pt(size, size), 1)), nil
	default:
		return img.with(overlayBorder(img.Pixels, size, col)), nil
	}
}

// overlayBorder 在图像内侧绘制宽度为 size 的边框。
func overlayBorder(src image.Image, size int, col color.NRGBA) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	out := imaging.Clone(src)
	if 2*size >= w || 2*size >= h {
		return imaging.Overlay(out, imaging.New(w, h, col), image.Pt(0, 0), 1)
	}
	horizontal := imaging.New(w, size, col)
	vertical := imaging.New(size, h-2*size, col)
	out = imaging.Overlay(out, horizontal, image.Pt(0, 0), 1)
	out = imaging.Overlay(out, horizontal, image.Pt(0, h-size), 1)
	out = imaging.Overlay(out, vertical, image.Pt(0, size), 1)
	return imaging.Overlay(out, vertical, image.Pt(w-size, size), 1)
}
