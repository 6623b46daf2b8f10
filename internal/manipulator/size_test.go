package manipulator

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/any-hub/img-hub/internal/params"
)

func applySize(t *testing.T, s *Size, w, h int, p params.Params) (int, int) {
	t.Helper()
	out, err := s.Apply(context.Background(), &Image{Pixels: solidImage(w, h, color.White)}, p)
	if err != nil {
		t.Fatalf("apply size: %v", err)
	}
	return out.Width(), out.Height()
}

func TestSizeFitModes(t *testing.T) {
	cases := []struct {
		name  string
		p     params.Params
		wantW int
		wantH int
	}{
		{"no params keeps size", params.Params{}, 200, 100},
		{"width only derives height", params.Params{"w": "100"}, 100, 50},
		{"height only derives width", params.Params{"h": "25"}, 50, 25},
		{"contain upscales", params.Params{"w": "400", "h": "400"}, 400, 200},
		{"max never upscales", params.Params{"w": "400", "h": "400", "fit": "max"}, 200, 100},
		{"max downscales", params.Params{"w": "100", "h": "100", "fit": "max"}, 100, 50},
		{"stretch", params.Params{"w": "50", "h": "50", "fit": "stretch"}, 50, 50},
		{"crop exact", params.Params{"w": "50", "h": "50", "fit": "crop"}, 50, 50},
		{"crop focal", params.Params{"w": "80", "h": "60", "fit": "crop-25-75-2"}, 80, 60},
		{"fill canvas", params.Params{"w": "300", "h": "300", "fit": "fill"}, 300, 300},
		{"fill-max canvas", params.Params{"w": "300", "h": "300", "fit": "fill-max"}, 300, 300},
		{"dpr doubles", params.Params{"w": "50", "dpr": "2"}, 100, 50},
		{"invalid dpr ignored", params.Params{"w": "50", "dpr": "9"}, 50, 25},
		{"invalid width ignored", params.Params{"w": "abc"}, 200, 100},
		{"unknown fit is contain", params.Params{"w": "100", "h": "100", "fit": "bogus"}, 100, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h := applySize(t, &Size{}, 200, 100, tc.p)
			if w != tc.wantW || h != tc.wantH {
				t.Fatalf("want %dx%d got %dx%d", tc.wantW, tc.wantH, w, h)
			}
		})
	}
}

func TestSizeMaxImageSizeClampsBothSides(t *testing.T) {
	w, h := applySize(t, &Size{MaxImageSize: 500}, 100, 50, params.Params{"w": "5000"})
	if w != 500 || h != 250 {
		t.Fatalf("expected clamp to 500x250, got %dx%d", w, h)
	}
	w, h = applySize(t, &Size{MaxImageSize: 500}, 100, 400, params.Params{"h": "4000"})
	if w > 500 || h > 500 {
		t.Fatalf("height should be clamped too, got %dx%d", w, h)
	}
}

func TestParseFit(t *testing.T) {
	cases := map[string]focalCrop{
		"crop":              {50, 50, 1},
		"crop-top-left":     {0, 0, 1},
		"crop-bottom-right": {100, 100, 1},
		"crop-10-90":        {10, 90, 1},
		"crop-10-90-1.5":    {10, 90, 1.5},
	}
	for raw, want := range cases {
		fit, focal := parseFit(raw)
		if fit != FitCrop || focal != want {
			t.Fatalf("%s: got %s %+v", raw, fit, focal)
		}
	}
	for _, raw := range []string{"crop-101-0", "crop-1-1-0", "crop-1-1-200", "crop-x"} {
		if fit, _ := parseFit(raw); fit != FitContain {
			t.Fatalf("%s should fall back to contain, got %s", raw, fit)
		}
	}
}

func TestCropResizeHonoursFocalPoint(t *testing.T) {
	// 左半红色、右半蓝色，焦点在右侧时结果应为蓝色。
	src := solidImage(200, 100, color.NRGBA{R: 255, A: 255})
	blue := solidImage(100, 100, color.NRGBA{B: 255, A: 255})
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			src.Set(100+x, y, blue.At(x, y))
		}
	}
	out := cropResize(nil, src, 50, 100, focalCrop{x: 100, y: 50, zoom: 1})
	c := color.NRGBAModel.Convert(out.At(25, 50)).(color.NRGBA)
	if c.B < 200 || c.R > 50 {
		t.Fatalf("expected blue crop, got %+v", c)
	}
}

// recordingResampler 记录每次缩放的目标尺寸。
type recordingResampler struct {
	targets []image.Point
}

func (r *recordingResampler) Resize(src image.Image, w, h int) *image.NRGBA {
	r.targets = append(r.targets, image.Pt(w, h))
	return imaging.Resize(src, w, h, imaging.Lanczos)
}

func (r *recordingResampler) largest() int {
	largest := 0
	for _, pt := range r.targets {
		largest = max(largest, pt.X, pt.Y)
	}
	return largest
}

func TestCropZoomResamplesOnlyTheWindow(t *testing.T) {
	src := solidImage(200, 200, color.NRGBA{R: 255, A: 255})
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			src.Set(x, y, color.NRGBA{G: 255, A: 255})
		}
	}
	rec := &recordingResampler{}
	size := &Size{MaxImageSize: 100, Resampler: rec}

	out, err := size.Apply(context.Background(), &Image{Pixels: src}, params.Params{"w": "100", "h": "100", "fit": "crop-0-0-100"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Width() != 100 || out.Height() != 100 {
		t.Fatalf("unexpected size %dx%d", out.Width(), out.Height())
	}
	if got := rec.largest(); got > 100 {
		t.Fatalf("zoomed crop resampled to %d px, ceiling is 100", got)
	}
	if c := nrgbaAt(out.Pixels, 50, 50); c.G < 200 || c.R > 50 {
		t.Fatalf("zoom should magnify the top-left corner, got %+v", c)
	}
}
