package manipulator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/any-hub/img-hub/internal/params"
	"github.com/any-hub/img-hub/internal/storage"
)

type stubWatermarks struct {
	files map[string][]byte
	err   error
}

func (s stubWatermarks) Read(_ context.Context, path string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrSourceNotFound, path)
	}
	return data, nil
}

func TestWatermarkPlacement(t *testing.T) {
	mark := encodePNG(t, solidImage(10, 10, color.NRGBA{R: 255, A: 255}))
	wm := &Watermark{Source: stubWatermarks{files: map[string][]byte{"logo.png": mark}}}
	base := &Image{Pixels: solidImage(100, 50, color.White)}

	out, err := wm.Apply(context.Background(), base, params.Params{"mark": "logo.png", "markpad": "5"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// 默认 bottom-right，距离边缘 5 像素。
	if c := nrgbaAt(out.Pixels, 100-5-5, 50-5-5); c.G != 0 {
		t.Fatalf("watermark missing at bottom-right, got %+v", c)
	}
	if c := nrgbaAt(out.Pixels, 2, 2); c.G != 255 {
		t.Fatalf("top-left should be untouched, got %+v", c)
	}

	top, err := wm.Apply(context.Background(), base, params.Params{"mark": "logo.png", "markpos": "top-left", "markw": "20w", "markalpha": "100"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if c := nrgbaAt(top.Pixels, 15, 15); c.G != 0 {
		t.Fatalf("resized watermark should cover 20x20 at top-left, got %+v", c)
	}

	faded, _ := wm.Apply(context.Background(), base, params.Params{"mark": "logo.png", "markpos": "center", "markalpha": "50"})
	if c := nrgbaAt(faded.Pixels, 50, 25); c.G < 100 || c.G > 155 {
		t.Fatalf("half alpha should blend, got %+v", c)
	}
}

func TestWatermarkMissingAndFailures(t *testing.T) {
	base := &Image{Pixels: solidImage(20, 20, color.White)}

	wm := &Watermark{Source: stubWatermarks{files: map[string][]byte{}}}
	out, err := wm.Apply(context.Background(), base, params.Params{"mark": "missing.png"})
	if err != nil || out != base {
		t.Fatalf("missing watermark should be skipped: %v", err)
	}
	out, err = wm.Apply(context.Background(), base, params.Params{"mark": "../escape.png"})
	if err != nil || out != base {
		t.Fatalf("invalid watermark path should be skipped: %v", err)
	}

	broken := &Watermark{Source: stubWatermarks{err: errors.New("bucket offline")}}
	if _, err := broken.Apply(context.Background(), base, params.Params{"mark": "logo.png"}); err == nil {
		t.Fatalf("read failures should fail the manipulation")
	}

	garbage := &Watermark{Source: stubWatermarks{files: map[string][]byte{"logo.png": []byte("not an image")}}}
	if _, err := garbage.Apply(context.Background(), base, params.Params{"mark": "logo.png"}); err == nil {
		t.Fatalf("undecodable watermark should fail")
	}
}

func TestWatermarkPoint(t *testing.T) {
	cases := map[string]image.Point{
		"top-left":     {3, 4},
		"top":          {45 + 3, 4},
		"right":        {100 - 10 - 3, 20 + 4},
		"bottom":       {45 + 3, 50 - 10 - 4},
		"center":       {45 + 3, 20 + 4},
		"bottom-right": {100 - 10 - 3, 50 - 10 - 4},
	}
	for pos, want := range cases {
		if got := watermarkPoint(pos, 100, 50, 10, 10, 3, 4); got != want {
			t.Fatalf("%s: want %v got %v", pos, want, got)
		}
	}
}

func TestWatermarkSizeIsBounded(t *testing.T) {
	mark := encodePNG(t, solidImage(10, 10, color.NRGBA{R: 255, A: 255}))
	files := stubWatermarks{files: map[string][]byte{"logo.png": mark}}
	base := &Image{Pixels: solidImage(100, 50, color.White)}
	request := params.Params{"mark": "logo.png", "markw": "5000", "markh": "5000"}

	rec := &recordingResampler{}
	wm := &Watermark{Source: files, Resampler: rec}
	out, err := wm.Apply(context.Background(), base, request)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Width() != 100 || out.Height() != 50 {
		t.Fatalf("watermark must not change the base size, got %dx%d", out.Width(), out.Height())
	}
	if got := rec.largest(); got > 100 {
		t.Fatalf("watermark resized to %d px, larger than the base image", got)
	}

	rec = &recordingResampler{}
	wm = &Watermark{Source: files, Resampler: rec, MaxImageSize: 40}
	if _, err := wm.Apply(context.Background(), base, request); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := rec.largest(); got > 40 {
		t.Fatalf("watermark resized to %d px, MaxImageSize is 40", got)
	}
}
