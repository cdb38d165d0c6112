// Package frame defines the Frame Source contract (C1) — the uniform
// pixel-producer capability set every source variant (static image, color,
// animated image, video, shader) satisfies — and implements the five
// variants described in spec.md section 4.1.
package frame

import (
	"errors"
	"image"
	"time"
)

// Errors in the Frame Source taxonomy (spec.md section 7).
var (
	// ErrSourceNotReady is returned by next_frame when prepare has not
	// succeeded, and by prepare itself on unrecoverable decode/init error.
	ErrSourceNotReady = errors.New("frame: source not ready")

	// ErrEndOfStream is returned only by finite, non-looping animated
	// sources after their last frame.
	ErrEndOfStream = errors.New("frame: end of stream")

	// ErrBufferTooLarge signals arithmetic overflow computing a buffer size.
	ErrBufferTooLarge = errors.New("frame: buffer too large")
)

// Frame is one produced image plus the time it was produced, matching
// next_frame()'s (image, timestamp) return shape.
type Frame struct {
	Image     *image.RGBA
	Timestamp time.Time
}

// Source is the capability set every Frame Source variant implements.
// Dispatch across variants happens per-tick, not per-pixel, so a plain Go
// interface costs nothing here — concrete structs satisfy it the same way
// scanout and video sources do elsewhere in this codebase.
type Source interface {
	// Prepare is idempotent preparation for the given output geometry. It
	// must release and rebuild internal surfaces when the size changes.
	Prepare(width, height int) error

	// NextFrame returns the next frame. It fails with ErrSourceNotReady if
	// Prepare has not succeeded, and with ErrEndOfStream only for finite,
	// non-looping animated sources after their last frame.
	NextFrame() (Frame, error)

	// FrameDuration is a lower bound on the interval after which NextFrame
	// is expected to be called again. A zero duration means "no known
	// cadence" for static/color sources; the Scheduler interprets this as
	// "do not reschedule."
	FrameDuration() time.Duration

	// IsAnimated reports whether the source ever changes over time.
	IsAnimated() bool

	// Release drops all external resources (GPU handles, decoding
	// pipelines, file handles). Safe to call multiple times and from every
	// exit path.
	Release()

	// Description is a short human-readable summary, for diagnostics only.
	Description() string
}

// InfiniteDuration is the sentinel FrameDuration() returns for sources the
// Scheduler should never reschedule (static images, solid colors).
const InfiniteDuration time.Duration = 0

// minFrameDelay is the floor every animated delay is clamped to, per
// spec.md 4.1: "max(source_delay, 10 ms)".
const minFrameDelay = 10 * time.Millisecond

// clampDelay applies the animated-source delay floor described in spec.md
// 4.1 and testable property 10: at least source delay, at least 10ms, and
// at least 1000/fpsLimit if an fps cap is set.
func clampDelay(sourceDelay time.Duration, fpsLimit *int) time.Duration {
	d := sourceDelay
	if d < minFrameDelay {
		d = minFrameDelay
	}
	if fpsLimit != nil && *fpsLimit > 0 {
		floor := time.Second / time.Duration(*fpsLimit)
		if d < floor {
			d = floor
		}
	}
	return d
}
