package frame

import "image"

// toRGBA normalizes any decoded image.Image to *image.RGBA, the pixel format
// the Scaler & Composer (C5) operates on throughout the pipeline. Decoders
// that already produce *image.RGBA (the common case) are returned as-is.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba
}
