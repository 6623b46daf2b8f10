package manipulator

import (
	"context"
	"math"

	"github.com/disintegration/imaging"

	"github.com/any-hub/img-hub/internal/params"
)

// Brightness 处理 bri（-100..100）。
type Brightness struct{}

func (Brightness) Name() string { return "brightness" }

func (Brightness) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	v, ok := boundedInt(p, "bri", -100, 100)
	if !ok || v == 0 {
		return img, nil
	}
	return img.with(imaging.AdjustBrightness(img.Pixels, float64(v))), nil
}

// Contrast 处理 con（-100..100）。
type Contrast struct{}

func (Contrast) Name() string { return "contrast" }

func (Contrast) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	v, ok := boundedInt(p, "con", -100, 100)
	if !ok || v == 0 {
		return img, nil
	}
	return img.with(imaging.AdjustContrast(img.Pixels, float64(v))), nil
}

// Gamma 处理 gam（0.1..9.99）。
type Gamma struct{}

func (Gamma) Name() string { return "gamma" }

func (Gamma) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	v, ok := p.Float("gam")
	if !ok || v < 0.1 || v > 9.99 || v == 1 {
		return img, nil
	}
	return img.with(imaging.AdjustGamma(img.Pixels, v)), nil
}

// Sharpen 处理 sharp（0..100），sigma = sharp/10。
type Sharpen struct{}

func (Sharpen) Name() string { return "sharpen" }

func (Sharpen) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	v, ok := boundedInt(p, "sharp", 0, 100)
	if !ok || v == 0 {
		return img, nil
	}
	return img.with(imaging.Sharpen(img.Pixels, float64(v)/10)), nil
}

// Blur 处理 blur（0..100），sigma = blur/10。
type Blur struct{}

func (Blur) Name() string { return "blur" }

func (Blur) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	v, ok := boundedInt(p, "blur", 0, 100)
	if !ok || v == 0 {
		return img, nil
	}
	return img.with(imaging.Blur(img.Pixels, float64(v)/10)), nil
}

// Pixelate 处理 pixel（0..1000）：按块大小缩小，再用最近邻放大回原尺寸。
type Pixelate struct{}

func (Pixelate) Name() string { return "pixelate" }

func (Pixelate) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	size, ok := boundedInt(p, "pixel", 0, 1000)
	if !ok || size <= 1 {
		return img, nil
	}
	w, h := img.Width(), img.Height()
	smallW := int(math.Max(1, math.Ceil(float64(w)/float64(size))))
	smallH := int(math.Max(1, math.Ceil(float64(h)/float64(size))))
	small := imaging.Resize(img.Pixels, smallW, smallH, imaging.Box)
	return img.with(imaging.Resize(small, w, h, imaging.NearestNeighbor)), nil
}

// Filter 处理 filt=greyscale|sepia。
type Filter struct{}

func (Filter) Name() string { return "filter" }

func (Filter) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	switch p.Get("filt") {
	case "greyscale":
		return img.with(imaging.Grayscale(img.Pixels)), nil
	case "sepia":
		return img.with(sepia(img.Pixels)), nil
	default:
		return img, nil
	}
}
