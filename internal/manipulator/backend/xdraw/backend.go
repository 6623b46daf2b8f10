// Package xdraw 注册基于 golang.org/x/image/draw 的 Catmull-Rom 缩放后端。
package xdraw

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/any-hub/img-hub/internal/manipulator/backend"
)

const Key = "xdraw"

type resampler struct{}

func (resampler) Resize(src image.Image, width, height int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if width <= 0 || height <= 0 {
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func init() {
	backend.MustRegister(backend.Metadata{
		Key:         Key,
		Description: "golang.org/x/image/draw Catmull-Rom resampling",
		Resampler:   resampler{},
	})
}
