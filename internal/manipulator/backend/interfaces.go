package backend

import "image"

// Resampler 将图像缩放到精确的目标尺寸。
type Resampler interface {
	Resize(src image.Image, width, height int) *image.NRGBA
}

// Metadata 描述一个已注册的后端。
type Metadata struct {
	Key         string    `json:"key"`
	Description string    `json:"description"`
	Resampler   Resampler `json:"-"`
}
