package wallpaper

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/cosmic-wall/wallpaperd/internal/compose"
	"github.com/cosmic-wall/wallpaperd/internal/frame"
	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
)

// Draw produces the next composed frame for this wallpaper at the given
// output geometry, or falls back to a solid FallbackColor frame if the
// Frame Source isn't ready or fails, per spec.md 7's "a Frame Source error
// degrades to the entry's fallback color rather than leaving the output
// blank."
func (w *Wallpaper) Draw(width, height int) (*image.RGBA, error) {
	w.mu.Lock()
	src := w.source
	entry := w.entry
	ready := w.loadState == StateReady || w.loadState == StateError
	w.mu.Unlock()

	if src == nil || !ready {
		return fallbackFrame(width, height, entry.FallbackColor), nil
	}

	if err := src.Prepare(width, height); err != nil {
		w.mu.Lock()
		w.loadState = StateError
		w.lastErr = err
		w.mu.Unlock()
		return fallbackFrame(width, height, entry.FallbackColor), nil
	}
	w.mu.Lock()
	if w.loadState == StateError && w.source == src {
		w.loadState = StateReady
		w.lastErr = nil
	}
	w.mu.Unlock()

	f, err := src.NextFrame()
	if err != nil {
		if errors.Is(err, frame.ErrEndOfStream) {
			// Terminal for a finite, non-looping animation: show the
			// fallback color without reporting an error.
			return fallbackFrame(width, height, entry.FallbackColor), nil
		}
		return fallbackFrame(width, height, entry.FallbackColor), fmt.Errorf("draw %s: %w", w.outputName, err)
	}

	return compose.Apply(f.Image, entry.ScalingMode, width, height, entry.Filter, entry.FitBackground), nil
}

// prepareBackoff is the minimum interval between Prepare retries for a
// Wallpaper stuck in StateError, per spec.md 4.1's failure policy: "the next
// scheduled tick retries prepare after a minimum 1 s backoff."
const prepareBackoff = 1 * time.Second

// NextTickDelay reports how long until this wallpaper's Frame Source
// expects to be advanced again, combined with its slideshow rotation
// deadline if sooner. ok is false when neither the source nor a rotation
// schedule gives any reason to redraw again (e.g. a static image with no
// RotationFrequency): the caller should not reschedule this output until
// an explicit AddOutput/UpdateConfig rebinds it, matching FrameDuration's
// "zero means do not reschedule" contract instead of busy-looping on it.
// A Wallpaper in StateError is always rescheduled after prepareBackoff so
// Draw gets a chance to retry Prepare, even for sources with no cadence of
// their own (a failed Static decode or Color source) and no slideshow
// rotation — otherwise it would render the fallback color forever.
func (w *Wallpaper) NextTickDelay() (delay time.Duration, ok bool) {
	w.mu.Lock()
	src := w.source
	rotationFreq := w.entry.RotationFrequency
	lastRotation := w.lastRotation
	inError := w.loadState == StateError
	w.mu.Unlock()

	hasSourceCadence := false
	if src != nil {
		delay = src.FrameDuration()
		hasSourceCadence = delay != frame.InfiniteDuration
	}

	if inError && (!hasSourceCadence || delay < prepareBackoff) {
		return prepareBackoff, true
	}

	if rotationFreq > 0 {
		remaining := rotationFreq - time.Since(lastRotation)
		if remaining < 0 {
			remaining = 0
		}
		if !hasSourceCadence || remaining < delay {
			delay = remaining
		}
		return delay, true
	}

	return delay, hasSourceCadence
}

func fallbackFrame(width, height int, c wallpaperconfig.RGB) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	r := uint8(clamp01(c.R) * 255)
	g := uint8(clamp01(c.G) * 255)
	b := uint8(clamp01(c.B) * 255)
	for y := 0; y < height; y++ {
		row := img.Pix[img.PixOffset(0, y):img.PixOffset(width, y)]
		for i := 0; i < len(row); i += 4 {
			row[i+0], row[i+1], row[i+2], row[i+3] = r, g, b, 255
		}
	}
	return img
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
