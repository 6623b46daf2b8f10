package manipulator

import (
	"context"
	"image"
	"math"
	"regexp"
	"strconv"

	"github.com/disintegration/imaging"

	"github.com/any-hub/img-hub/internal/manipulator/backend"
	"github.com/any-hub/img-hub/internal/params"
)

// 支持的 fit 取值；crop 另外支持 crop-<position> 与 crop-<x>-<y>[-<zoom>]。
const (
	FitContain = "contain"
	FitMax     = "max"
	FitFill    = "fill"
	FitFillMax = "fill-max"
	FitStretch = "stretch"
	FitCrop    = "crop"
)

var cropPositions = map[string][2]float64{
	"crop-top-left":     {0, 0},
	"crop-top":          {50, 0},
	"crop-top-right":    {100, 0},
	"crop-left":         {0, 50},
	"crop-center":       {50, 50},
	"crop-right":        {100, 50},
	"crop-bottom-left":  {0, 100},
	"crop-bottom":       {50, 100},
	"crop-bottom-right": {100, 100},
}

var focalPointPattern = regexp.MustCompile(`^crop-(\d{1,3})-(\d{1,3})(?:-(\d{1,3}(?:\.\d+)?))?$`)

// focalCrop 描述 crop 模式的焦点（百分比）与缩放倍数。
type focalCrop struct {
	x, y, zoom float64
}

// Size 处理 w、h、fit、dpr 参数，并把输出边长限制在 MaxImageSize 以内。
type Size struct {
	MaxImageSize int
	Resampler    backend.Resampler
}

func (s *Size) Name() string { return "size" }

func (s *Size) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	width, hasW := positive(p, "w")
	height, hasH := positive(p, "h")
	fit, focal := parseFit(p.Get("fit"))
	ratio := dpr(p)

	srcW, srcH := float64(img.Width()), float64(img.Height())
	if srcW == 0 || srcH == 0 {
		return img, nil
	}

	switch {
	case !hasW && !hasH:
		width, height = srcW, srcH
	case !hasW:
		width = height * (srcW / srcH)
	case !hasH:
		height = width / (srcW / srcH)
	}
	width, height = width*ratio, height*ratio
	width, height = s.limit(width, height)

	w, h := round(width), round(height)
	if w < 1 || h < 1 {
		return img, nil
	}
	if w == img.Width() && h == img.Height() && focal.zoom == 1 {
		return img, nil
	}
	return img.with(fitImage(s.Resampler, img.Pixels, w, h, fit, focal)), nil
}

// limit 按比例缩小尺寸，使两条边都不超过 MaxImageSize。
func (s *Size) limit(width, height float64) (float64, float64) {
	ceiling := float64(s.MaxImageSize)
	if ceiling <= 0 || (width <= ceiling && height <= ceiling) {
		return width, height
	}
	scale := math.Min(ceiling/width, ceiling/height)
	return math.Floor(width * scale), math.Floor(height * scale)
}

func positive(p params.Params, key string) (float64, bool) {
	v, ok := p.Float(key)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

// parseFit 规范化 fit 参数，未知值退回 contain。
func parseFit(raw string) (string, focalCrop) {
	center := focalCrop{x: 50, y: 50, zoom: 1}
	switch raw {
	case FitContain, FitMax, FitFill, FitFillMax, FitStretch:
		return raw, center
	case FitCrop:
		return FitCrop, center
	}
	if pos, ok := cropPositions[raw]; ok {
		return FitCrop, focalCrop{x: pos[0], y: pos[1], zoom: 1}
	}
	if m := focalPointPattern.FindStringSubmatch(raw); m != nil {
		x, _ := strconv.ParseFloat(m[1], 64)
		y, _ := strconv.ParseFloat(m[2], 64)
		zoom := 1.0
		if m[3] != "" {
			zoom, _ = strconv.ParseFloat(m[3], 64)
		}
		if x <= 100 && y <= 100 && zoom >= 1 && zoom <= 100 {
			return FitCrop, focalCrop{x: x, y: y, zoom: zoom}
		}
	}
	return FitContain, center
}

// fitImage 按 fit 模式把 src 调整到 w×h 的框内。
func fitImage(r backend.Resampler, src image.Image, w, h int, fit string, focal focalCrop) image.Image {
	switch fit {
	case FitStretch:
		return resample(r, src, w, h)
	case FitMax:
		return containResize(r, src, w, h, false)
	case FitFill:
		return imaging.PasteCenter(imaging.New(w, h, transparent), containResize(r, src, w, h, false))
	case FitFillMax:
		return imaging.PasteCenter(imaging.New(w, h, transparent), containResize(r, src, w, h, true))
	case FitCrop:
		return cropResize(r, src, w, h, focal)
	default:
		return containResize(r, src, w, h, true)
	}
}

// containResize 保持宽高比缩放到框内；upscale 为 false 时不放大。
func containResize(r backend.Resampler, src image.Image, w, h int, upscale bool) image.Image {
	srcW, srcH := float64(src.Bounds().Dx()), float64(src.Bounds().Dy())
	scale := math.Min(float64(w)/srcW, float64(h)/srcH)
	if !upscale && scale >= 1 {
		return src
	}
	return resample(r, src, round(srcW*scale), round(srcH*scale))
}

// cropResize 在源图坐标系中按焦点与 zoom 计算裁剪窗口，先裁剪再缩放到 w×h，
// 中间结果不会超过源图或目标尺寸。
func cropResize(r backend.Resampler, src image.Image, w, h int, focal focalCrop) image.Image {
	bounds := src.Bounds()
	srcW, srcH := float64(bounds.Dx()), float64(bounds.Dy())
	scale := math.Max(float64(w)/srcW, float64(h)/srcH) * focal.zoom
	winW := math.Min(srcW, math.Max(1, float64(w)/scale))
	winH := math.Min(srcH, math.Max(1, float64(h)/scale))

	left := math.Min(math.Max(srcW*focal.x/100-winW/2, 0), srcW-winW)
	top := math.Min(math.Max(srcH*focal.y/100-winH/2, 0), srcH-winH)
	window := image.Rect(round(left), round(top), round(left+winW), round(top+winH)).Add(bounds.Min)
	if window.Dx() < 1 || window.Dy() < 1 {
		window = bounds
	}
	return resample(r, imaging.Crop(src, window), w, h)
}
