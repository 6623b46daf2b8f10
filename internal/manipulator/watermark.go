package manipulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/any-hub/img-hub/internal/manipulator/backend"
	"github.com/any-hub/img-hub/internal/params"
	"github.com/any-hub/img-hub/internal/storage"
)

var watermarkPositions = map[string]struct{}{
	"top-left": {}, "top": {}, "top-right": {},
	"left": {}, "center": {}, "right": {},
	"bottom-left": {}, "bottom": {}, "bottom-right": {},
}

// Watermark 处理 mark、markw、markh、markfit、markx、marky、markpad、markpos、markalpha。
// 水印文件不存在时跳过；其它读取或解码错误视为处理失败。
// 缩放后的水印边长不超过底图较长边，也不超过 MaxImageSize。
type Watermark struct {
	Source       WatermarkSource
	Resampler    backend.Resampler
	MaxImageSize int
}

func (w *Watermark) Name() string { return "watermark" }

func (w *Watermark) Apply(ctx context.Context, img *Image, p params.Params) (*Image, error) {
	path := p.Get("mark")
	if path == "" || w.Source == nil {
		return img, nil
	}
	normalized, err := params.NormalizePath(path)
	if err != nil {
		return img, nil
	}

	data, err := w.Source.Read(ctx, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrSourceNotFound) {
			return img, nil
		}
		return nil, fmt.Errorf("read watermark %s: %w", normalized, err)
	}
	mark, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode watermark %s: %w", normalized, err)
	}

	imgW, imgH := img.Width(), img.Height()
	ratio := dpr(p)
	markW, hasW := dimension(p.Get("markw"), imgW, imgH, ratio)
	markH, hasH := dimension(p.Get("markh"), imgW, imgH, ratio)
	if hasW || hasH {
		sizeParams := params.Params{"fit": p.Get("markfit")}
		if hasW && markW > 0 {
			sizeParams["w"] = fmt.Sprintf("%g", markW)
		}
		if hasH && markH > 0 {
			sizeParams["h"] = fmt.Sprintf("%g", markH)
		}
		sized, err := (&Size{MaxImageSize: w.markCeiling(imgW, imgH), Resampler: w.Resampler}).Apply(ctx, &Image{Pixels: mark}, sizeParams)
		if err != nil {
			return nil, err
		}
		mark = sized.Pixels
	}

	pad, _ := dimension(p.Get("markpad"), imgW, imgH, ratio)
	x, hasX := dimension(p.Get("markx"), imgW, imgH, ratio)
	if !hasX {
		x = pad
	}
	y, hasY := dimension(p.Get("marky"), imgW, imgH, ratio)
	if !hasY {
		y = pad
	}

	position := p.Get("markpos")
	if _, ok := watermarkPositions[position]; !ok {
		position = "bottom-right"
	}

	opacity := 1.0
	if alpha, ok := boundedInt(p, "markalpha", 0, 100); ok {
		opacity = float64(alpha) / 100
	}

	pt := watermarkPoint(position, imgW, imgH, mark.Bounds().Dx(), mark.Bounds().Dy(), round(x), round(y))
	return img.with(imaging.Overlay(img.Pixels, mark, pt, opacity)), nil
}

func (w *Watermark) markCeiling(imgW, imgH int) int {
	ceiling := max(imgW, imgH)
	if w.MaxImageSize > 0 && w.MaxImageSize < ceiling {
		ceiling = w.MaxImageSize
	}
	return ceiling
}

// watermarkPoint 计算水印左上角坐标；x/y 为相对锚点边缘的偏移。
func watermarkPoint(position string, imgW, imgH, markW, markH, x, y int) image.Point {
	var px, py int
	switch position {
	case "top-left", "left", "bottom-left":
		px = x
	case "top-right", "right", "bottom-right":
		px = imgW - markW - x
	default:
		px = (imgW-markW)/2 + x
	}
	switch position {
	case "top-left", "top", "top-right":
		py = y
	case "bottom-left", "bottom", "bottom-right":
		py = imgH - markH - y
	default:
		py = (imgH-markH)/2 + y
	}
	return image.Pt(px, py)
}
