package frame

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
)

// Color is the Color Frame Source variant: rasterizes a solid color or a
// linear/radial gradient directly into an RGBA buffer at the output's
// geometry, with no external decode step.
type Color struct {
	spec wallpaperconfig.ColorSource

	mu     sync.Mutex
	ready  bool
	width  int
	height int
	image  *image.RGBA

	// coeffs holds the gradient stops' offsets and colors flattened for
	// interpolation; it is rebuilt each time the gradient is regenerated.
	coeffs []gradientCoeff
}

type gradientCoeff struct {
	offset  float64
	r, g, b float64
}

// NewColor constructs a Color source from a validated ColorSource
// descriptor, matching spec.md 4.1's "Color" contract.
func NewColor(spec wallpaperconfig.ColorSource) *Color {
	return &Color{spec: spec}
}

func (c *Color) Prepare(width, height int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: non-positive geometry %dx%d", ErrSourceNotReady, width, height)
	}
	if c.ready && c.width == width && c.height == height {
		return nil
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	switch {
	case c.spec.Single != nil:
		fillSolid(img, *c.spec.Single)
	case c.spec.Gradient != nil:
		c.coeffs = gradientCoeffs(c.spec.Gradient.Stops)
		fillGradient(img, *c.spec.Gradient, c.coeffs)
	default:
		return fmt.Errorf("%w: color source has neither single nor gradient spec", ErrSourceNotReady)
	}

	c.image = img
	c.width = width
	c.height = height
	c.ready = true
	return nil
}

func (c *Color) NextFrame() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return Frame{}, ErrSourceNotReady
	}
	return Frame{Image: c.image, Timestamp: time.Now()}, nil
}

func (c *Color) FrameDuration() time.Duration { return InfiniteDuration }
func (c *Color) IsAnimated() bool             { return false }

func (c *Color) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
	c.image = nil
}

func (c *Color) Description() string {
	if c.spec.Single != nil {
		return fmt.Sprintf("color(solid %.2f,%.2f,%.2f)", c.spec.Single.R, c.spec.Single.G, c.spec.Single.B)
	}
	return "color(gradient)"
}

func toNRGBA8(v float64) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(math.Round(v * 255))
}

func fillSolid(img *image.RGBA, rgb wallpaperconfig.RGB) {
	c := color.RGBA{R: toNRGBA8(rgb.R), G: toNRGBA8(rgb.G), B: toNRGBA8(rgb.B), A: 255}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			row[i+0] = c.R
			row[i+1] = c.G
			row[i+2] = c.B
			row[i+3] = c.A
		}
	}
}

func gradientCoeffs(stops []wallpaperconfig.GradientStop) []gradientCoeff {
	out := make([]gradientCoeff, len(stops))
	for i, s := range stops {
		out[i] = gradientCoeff{offset: s.Offset, r: s.Color.R, g: s.Color.G, b: s.Color.B}
	}
	return out
}

// fillGradient rasterizes a linear (radius == 0) or radial (radius > 0)
// gradient by evaluating a normalized blend parameter t per pixel and
// interpolating between the two bracketing stops.
func fillGradient(img *image.RGBA, spec wallpaperconfig.GradientSpec, coeffs []gradientCoeff) {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	cx, cy := w/2, h/2
	maxRadius := math.Hypot(cx, cy)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var t float64
			if spec.Radius > 0 {
				t = math.Hypot(float64(x)-cx, float64(y)-cy) / maxRadius
			} else {
				t = float64(x) / w
			}
			r, g, bl := interpolateStops(coeffs, t)
			img.Set(x, y, color.RGBA{R: toNRGBA8(r), G: toNRGBA8(g), B: toNRGBA8(bl), A: 255})
		}
	}
}

func interpolateStops(coeffs []gradientCoeff, t float64) (r, g, b float64) {
	if len(coeffs) == 0 {
		return 0, 0, 0
	}
	if t <= coeffs[0].offset {
		return coeffs[0].r, coeffs[0].g, coeffs[0].b
	}
	last := coeffs[len(coeffs)-1]
	if t >= last.offset {
		return last.r, last.g, last.b
	}
	for i := 0; i < len(coeffs)-1; i++ {
		a, bNext := coeffs[i], coeffs[i+1]
		if t >= a.offset && t <= bNext.offset {
			span := bNext.offset - a.offset
			f := 0.0
			if span > 0 {
				f = (t - a.offset) / span
			}
			return a.r + (bNext.r-a.r)*f, a.g + (bNext.g-a.g)*f, a.b + (bNext.b-a.b)*f
		}
	}
	return last.r, last.g, last.b
}
