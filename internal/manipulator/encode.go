package manipulator

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/any-hub/img-hub/internal/params"
)

const defaultQuality = 90

type outputFormat struct {
	format imaging.Format
	mime   string
}

// 可编码的输出格式。pjpg 以基线 JPEG 输出。
var outputFormats = map[string]outputFormat{
	"jpg":  {imaging.JPEG, "image/jpeg"},
	"pjpg": {imaging.JPEG, "image/jpeg"},
	"png":  {imaging.PNG, "image/png"},
	"gif":  {imaging.GIF, "image/gif"},
	"tiff": {imaging.TIFF, "image/tiff"},
	"bmp":  {imaging.BMP, "image/bmp"},
}

// sourceFormats 把 image.DecodeConfig 的格式名映射为 fm 取值。
var sourceFormats = map[string]string{
	"jpeg": "jpg",
	"png":  "png",
	"gif":  "gif",
	"tiff": "tiff",
	"bmp":  "bmp",
}

// Encode 处理 fm 与 q，是 chain 中唯一产生输出字节的步骤。
type Encode struct{}

func (Encode) Name() string { return "encode" }

func (Encode) Apply(_ context.Context, img *Image, p params.Params) (*Image, error) {
	name := ResolveFormat(p.Get("fm"), img.Format)
	out := outputFormats[name]

	quality := defaultQuality
	if q, ok := boundedInt(p, "q", 0, 100); ok {
		quality = q
	}

	pixels := img.Pixels
	if out.format == imaging.JPEG {
		pixels = flatten(pixels)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, pixels, out.format, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}

	next := img.with(pixels)
	next.Output = buf.Bytes()
	next.MIME = out.mime
	return next, nil
}

// ResolveFormat 返回实际输出格式：合法的 fm 优先，其次沿用源图格式，最后退回 jpg。
func ResolveFormat(requested, sourceFormat string) string {
	if _, ok := outputFormats[requested]; ok {
		return requested
	}
	if name, ok := sourceFormats[sourceFormat]; ok {
		return name
	}
	return "jpg"
}

// flatten 把带透明通道的图像合成到白色背景上，JPEG 不支持透明。
func flatten(src image.Image) image.Image {
	b := src.Bounds()
	return imaging.Overlay(imaging.New(b.Dx(), b.Dy(), white), src, image.Pt(0, 0), 1)
}
