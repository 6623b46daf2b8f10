package manipulator

import (
	"context"
	"errors"
	"image"

	"github.com/any-hub/img-hub/internal/manipulator/backend"
	_ "github.com/any-hub/img-hub/internal/manipulator/backend/imaging"
	"github.com/any-hub/img-hub/internal/params"
)

// ErrManipulationFailed 表示解码、处理或编码任一阶段失败。
var ErrManipulationFailed = errors.New("manipulation failed")

// Image 是在 chain 中流转的中间结果。
type Image struct {
	// Pixels 为当前位图。
	Pixels image.Image
	// Format 为源图格式（image.DecodeConfig 给出的名称，如 jpeg/png/webp）。
	Format string
	// Output/MIME 仅由 Encode 填充。
	Output []byte
	MIME   string
}

// Width 返回当前位图宽度。
func (img *Image) Width() int { return img.Pixels.Bounds().Dx() }

// Height 返回当前位图高度。
func (img *Image) Height() int { return img.Pixels.Bounds().Dy() }

// with 返回替换了位图的副本。
func (img *Image) with(pixels image.Image) *Image {
	next := *img
	next.Pixels = pixels
	return &next
}

// Manipulator 是 chain 中的一个步骤。实现不得访问源图或缓存存储。
type Manipulator interface {
	Name() string
	Apply(ctx context.Context, img *Image, p params.Params) (*Image, error)
}

// WatermarkSource 提供水印图片字节；不存在时返回的错误需满足 storage.ErrSourceNotFound。
type WatermarkSource interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

// ChainOptions 控制 chain 的构建。
type ChainOptions struct {
	// MaxImageSize 限制输出的最大边长，0 表示不限制。
	MaxImageSize int
	// Resampler 为缩放后端，nil 时使用默认后端。
	Resampler backend.Resampler
	// Watermarks 为空时 chain 不包含 Watermark 步骤。
	Watermarks WatermarkSource
}

// NewChain 按固定顺序构建 chain：Size、Orientation、Crop、Brightness、Contrast、
// Gamma、Sharpen、Filter、Flip、Blur、Pixelate、Background、Border、Watermark、Encode。
func NewChain(opts ChainOptions) []Manipulator {
	resampler := opts.Resampler
	if resampler == nil {
		if meta, ok := backend.Resolve(backend.DefaultKey()); ok {
			resampler = meta.Resampler
		}
	}

	chain := []Manipulator{
		&Size{MaxImageSize: opts.MaxImageSize, Resampler: resampler},
		Orientation{},
		Crop{},
		Brightness{},
		Contrast{},
		Gamma{},
		Sharpen{},
		Filter{},
		Flip{},
		Blur{},
		Pixelate{},
		Background{},
		Border{MaxImageSize: opts.MaxImageSize},
	}
	if opts.Watermarks != nil {
		chain = append(chain, &Watermark{Source: opts.Watermarks, Resampler: resampler, MaxImageSize: opts.MaxImageSize})
	}
	return append(chain, Encode{})
}
