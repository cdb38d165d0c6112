package compose

import (
	"image"
	"image/color"
	"testing"

	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestEffectiveDimensionsSwapsOnRotation(t *testing.T) {
	w, h := EffectiveDimensions(1920, 1080, 1.0, Transform90)
	if w != 1080 || h != 1920 {
		t.Fatalf("expected swapped dimensions under 90deg rotation, got %dx%d", w, h)
	}
}

func TestEffectiveDimensionsPreservesOrientationAt180(t *testing.T) {
	w, h := EffectiveDimensions(1920, 1080, 1.0, Transform180)
	if w != 1920 || h != 1080 {
		t.Fatalf("expected unchanged dimensions at 180deg, got %dx%d", w, h)
	}
}

func TestEffectiveDimensionsScalesByFactor(t *testing.T) {
	w, h := EffectiveDimensions(1000, 500, 2.0, TransformNormal)
	if w != 2000 || h != 1000 {
		t.Fatalf("expected scale factor applied, got %dx%d", w, h)
	}
}

func TestZoomFillsEntireOutput(t *testing.T) {
	src := solidImage(100, 50, color.White)
	out := Zoom(src, 40, 40, wallpaperconfig.FilterLanczos)
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 40 {
		t.Fatalf("expected output to exactly cover 40x40, got %v", out.Bounds())
	}
}

func TestFitNeverExceedsRequestedBounds(t *testing.T) {
	src := solidImage(100, 50, color.White)
	out := Fit(src, 40, 40, wallpaperconfig.FilterLanczos, wallpaperconfig.RGB{})
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 40 {
		t.Fatalf("expected canvas size 40x40, got %v", out.Bounds())
	}
	// The wide source fit into a square canvas must letterbox: top row
	// should be background, not source content.
	bg := out.At(0, 0)
	r, g, b, _ := bg.RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Fatalf("expected black letterbox background at corner, got %v", bg)
	}
}

func TestBufferSizeRejectsOverflow(t *testing.T) {
	_, err := BufferSize(1<<20, 1<<20, FormatXRGB8888)
	if err == nil {
		t.Fatal("expected overflow error for huge dimensions")
	}
}

func TestBufferSizeComputesExpectedBytes(t *testing.T) {
	size, err := BufferSize(10, 10, FormatXRGB8888)
	if err != nil {
		t.Fatalf("BufferSize: %v", err)
	}
	if size != 400 {
		t.Fatalf("expected 400 bytes for 10x10 XRGB8888, got %d", size)
	}
}

func TestWriteIntoRejectsMismatchedSlotSize(t *testing.T) {
	src := solidImage(4, 4, color.White)
	dst := make([]byte, 10)
	if err := WriteInto(dst, src, FormatXRGB8888); err == nil {
		t.Fatal("expected error for undersized destination slot")
	}
}

func TestWriteIntoPacksXRGB8888InBGRXOrder(t *testing.T) {
	src := solidImage(1, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	dst := make([]byte, 4)
	if err := WriteInto(dst, src, FormatXRGB8888); err != nil {
		t.Fatalf("WriteInto: %v", err)
	}
	if dst[0] != 30 || dst[1] != 20 || dst[2] != 10 || dst[3] != 0xFF {
		t.Fatalf("expected BGRX byte order, got %v", dst)
	}
}
