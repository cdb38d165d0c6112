package compose

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
)

// resampleFilter maps a wallpaperconfig.FilterMethod to the
// disintegration/imaging kernel it selects.
func resampleFilter(m wallpaperconfig.FilterMethod) imaging.ResampleFilter {
	switch m {
	case wallpaperconfig.FilterBilinear:
		return imaging.Linear
	default:
		return imaging.Lanczos
	}
}

// Fit scales src down or up, preserving aspect ratio, so it fits entirely
// within width x height, then letterboxes the remainder with bg. Testable
// property 9: "the output of Fit never crops the source."
func Fit(src *image.RGBA, width, height int, filter wallpaperconfig.FilterMethod, bg wallpaperconfig.RGB) *image.RGBA {
	fitted := imaging.Fit(src, width, height, resampleFilter(filter))
	canvas := imaging.New(width, height, toColor(bg))
	offsetX := (width - fitted.Bounds().Dx()) / 2
	offsetY := (height - fitted.Bounds().Dy()) / 2
	return toRGBA(imaging.Paste(canvas, fitted, image.Pt(offsetX, offsetY)))
}

// Zoom scales src up or down, preserving aspect ratio, so it fully covers
// width x height, then center-crops the excess. Testable property 8: "the
// output of Zoom always fully covers the output with no visible background."
func Zoom(src *image.RGBA, width, height int, filter wallpaperconfig.FilterMethod) *image.RGBA {
	return toRGBA(imaging.Fill(src, width, height, imaging.Center, resampleFilter(filter)))
}

// Stretch scales src independently on each axis to exactly width x height,
// ignoring aspect ratio.
func Stretch(src *image.RGBA, width, height int, filter wallpaperconfig.FilterMethod) *image.RGBA {
	return toRGBA(imaging.Resize(src, width, height, resampleFilter(filter)))
}

// Apply dispatches to the scaling mode named by mode.
func Apply(src *image.RGBA, mode wallpaperconfig.ScalingMode, width, height int, filter wallpaperconfig.FilterMethod, bg wallpaperconfig.RGB) *image.RGBA {
	switch mode {
	case wallpaperconfig.ScalingFit:
		return Fit(src, width, height, filter, bg)
	case wallpaperconfig.ScalingStretch:
		return Stretch(src, width, height, filter)
	default:
		return Zoom(src, width, height, filter)
	}
}

func toRGBA(img *image.NRGBA) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

func toColor(c wallpaperconfig.RGB) color.NRGBA {
	clamp := func(v float64) uint8 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 255
		}
		return uint8(v * 255)
	}
	return color.NRGBA{R: clamp(c.R), G: clamp(c.G), B: clamp(c.B), A: 255}
}
