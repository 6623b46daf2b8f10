// Package imaging 注册基于 disintegration/imaging 的 Lanczos 缩放后端（默认后端）。
package imaging

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/any-hub/img-hub/internal/manipulator/backend"
)

const Key = "imaging"

type resampler struct{}

func (resampler) Resize(src image.Image, width, height int) *image.NRGBA {
	return imaging.Resize(src, width, height, imaging.Lanczos)
}

func init() {
	backend.MustRegister(backend.Metadata{
		Key:         Key,
		Description: "disintegration/imaging Lanczos resampling",
		Resampler:   resampler{},
	})
}
