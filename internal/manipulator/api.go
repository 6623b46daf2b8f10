package manipulator

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/any-hub/img-hub/internal/params"
)

// Output 是一次完整处理的结果。
type Output struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// API 负责解码源图、依次运行 chain 并返回编码结果。
type API struct {
	chain           []Manipulator
	maxSourcePixels int64
}

// NewAPI 创建处理入口；maxSourcePixels > 0 时在完整解码前拒绝过大的源图。
func NewAPI(chain []Manipulator, maxSourcePixels int64) *API {
	return &API{chain: chain, maxSourcePixels: maxSourcePixels}
}

// Chain 返回 chain 中各步骤的名称，供诊断使用。
func (a *API) Chain() []string {
	names := make([]string, len(a.chain))
	for i, m := range a.chain {
		names[i] = m.Name()
	}
	return names
}

// Run 处理 source 字节。任何失败都满足 errors.Is(err, ErrManipulationFailed)。
func (a *API) Run(ctx context.Context, source []byte, p params.Params) (*Output, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrManipulationFailed)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("%w: decode config: %w", ErrManipulationFailed, err)
	}
	if a.maxSourcePixels > 0 && int64(cfg.Width)*int64(cfg.Height) > a.maxSourcePixels {
		return nil, fmt.Errorf("%w: source %dx%d exceeds %d pixels", ErrManipulationFailed, cfg.Width, cfg.Height, a.maxSourcePixels)
	}

	pixels, err := imaging.Decode(bytes.NewReader(source), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrManipulationFailed, err)
	}

	img := &Image{Pixels: pixels, Format: format}
	for _, m := range a.chain {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrManipulationFailed, err)
		}
		next, err := m.Apply(ctx, img, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrManipulationFailed, m.Name(), err)
		}
		if next != nil {
			img = next
		}
	}

	if len(img.Output) == 0 {
		return nil, fmt.Errorf("%w: chain produced no output", ErrManipulationFailed)
	}
	return &Output{
		Data:   img.Output,
		MIME:   img.MIME,
		Width:  img.Width(),
		Height: img.Height(),
	}, nil
}
