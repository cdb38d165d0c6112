// Package compose implements the Scaler & Composer (C5): it fits a decoded
// frame to an output's effective geometry using the configured scaling mode
// and resampling filter, then writes the result into a Wayland shm buffer in
// the output's native pixel format.
package compose

// Transform mirrors the wl_output transform enum values relevant to
// wallpaper composition: 0/180 degree rotations swap nothing, 90/270 degree
// rotations swap width and height, and the *_flipped variants additionally
// mirror the image.
type Transform int

const (
	TransformNormal Transform = iota
	Transform90
	Transform180
	Transform270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

// rotates90 reports whether this transform swaps the effective width and
// height, per spec.md 4.5: "Output geometry under a 90/270 transform is the
// logical size with width and height swapped."
func (t Transform) rotates90() bool {
	switch t {
	case Transform90, Transform270, TransformFlipped90, TransformFlipped270:
		return true
	default:
		return false
	}
}

// flips reports whether this transform mirrors the image horizontally
// before rotation, matching the wl_output.transform flipped variants.
func (t Transform) flips() bool {
	switch t {
	case TransformFlipped, TransformFlipped90, TransformFlipped180, TransformFlipped270:
		return true
	default:
		return false
	}
}

// EffectiveDimensions computes the (width, height) the Scaler must fit the
// source frame into, given the output's logical size, its scale factor, and
// its transform. Logical size is multiplied by scale to reach physical
// pixels, then swapped if the transform rotates by 90 or 270 degrees
// (testable property 6: geometry under rotation).
func EffectiveDimensions(logicalWidth, logicalHeight int, scale float64, transform Transform) (width, height int) {
	physW := int(float64(logicalWidth) * scale)
	physH := int(float64(logicalHeight) * scale)
	if transform.rotates90() {
		return physH, physW
	}
	return physW, physH
}
