package manipulator

import (
	"context"
	"image"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/any-hub/img-hub/internal/params"
)

// Orientation 处理 or 参数。auto 为默认值：EXIF 方向已在解码时应用，无需再处理。
// 数值角度按逆时针旋转。
type Orientation struct{}

func (Orientation) Name() string { return "orientation" }

func (Orientation) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	switch p.Get("or") {
	case "90":
		return img.with(imaging.Rotate90(img.Pixels)), nil
	case "180":
		return img.with(imaging.Rotate180(img.Pixels)), nil
	case "270":
		return img.with(imaging.Rotate270(img.Pixels)), nil
	default:
		return img, nil
	}
}

// Crop 处理 crop=w,h,x,y，矩形超出图像时被裁到边界内。
type Crop struct{}

func (Crop) Name() string { return "crop" }

func (Crop) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	rect, ok := cropRect(p.Get("crop"), img.Width(), img.Height())
	if !ok {
		return img, nil
	}
	return img.with(imaging.Crop(img.Pixels, rect)), nil
}

func cropRect(raw string, imgW, imgH int) (image.Rectangle, bool) {
	if raw == "" {
		return image.Rectangle{}, false
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, false
	}
	var v [4]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return image.Rectangle{}, false
		}
		v[i] = n
	}
	w, h, x, y := v[0], v[1], v[2], v[3]
	if w <= 0 || h <= 0 || x < 0 || y < 0 || x >= imgW || y >= imgH {
		return image.Rectangle{}, false
	}
	if w > imgW-x {
		w = imgW - x
	}
	if h > imgH-y {
		h = imgH - y
	}
	return image.Rect(x, y, x+w, y+h), true
}

// Flip 处理 flip=v|h|both。
type Flip struct{}

func (Flip) Name() string { return "flip" }

func (Flip) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	switch p.Get("flip") {
	case "v":
		return img.with(imaging.FlipV(img.Pixels)), nil
	case "h":
		return img.with(imaging.FlipH(img.Pixels)), nil
	case "both":
		return img.with(imaging.FlipV(imaging.FlipH(img.Pixels))), nil
	default:
		return img, nil
	}
}
