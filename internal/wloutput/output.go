// Package wloutput implements the Output Layer (C6): one background
// zwlr_layer_shell_v1 surface per advertised wl_output, tracking its
// geometry/scale/transform and exposing a Commit method the Orchestrator
// calls once per tick with a frame composed by the output's Wallpaper.
package wloutput

import (
	"fmt"
	"image"
	"sync"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/cosmic-wall/wallpaperd/internal/compose"
	"github.com/cosmic-wall/wallpaperd/internal/wlproto"
)

// Name identifies an output the way the rest of the daemon refers to it
// (the wl_output's advertised name, e.g. "DP-1").
type Name = string

// Output owns one output's layer-shell surface, shm slot pool, and the
// geometry state needed to compute effective composition dimensions. It
// never references the Orchestrator directly; redraw requests flow out
// through RedrawRequests, avoiding the back-reference spec.md's design
// notes warn against.
type Output struct {
	name   Name
	global *client.Output
	g      *wlproto.Globals
	shell  *wlproto.LayerShell

	mu         sync.Mutex
	surface    *wlproto.Surface
	slotPool   *wlproto.SlotPool
	slotWidth  int
	slotHeight int
	logicalW   int
	logicalH   int
	scale      float64
	transform  compose.Transform
	closed     bool

	// RedrawRequests is sent a value whenever the compositor's configure
	// event changes this output's effective geometry, so the owning
	// Wallpaper can re-render at the new size without the Output Layer
	// needing to know about Wallpaper, Scheduler, or any other component.
	RedrawRequests chan<- Name
}

// New constructs an Output for global, bound to the given wl_output proxy,
// and creates its background layer surface immediately.
func New(name Name, global *client.Output, g *wlproto.Globals, shell *wlproto.LayerShell, redraws chan<- Name) (*Output, error) {
	o := &Output{
		name:           name,
		global:         global,
		g:              g,
		shell:          shell,
		scale:          1.0,
		transform:      compose.TransformNormal,
		RedrawRequests: redraws,
	}

	global.SetGeometryHandler(func(ev client.OutputGeometryEvent) {
		o.mu.Lock()
		o.transform = compose.Transform(ev.Transform)
		o.mu.Unlock()
		o.notifyRedraw()
	})
	global.SetModeHandler(func(ev client.OutputModeEvent) {
		o.mu.Lock()
		o.logicalW = int(ev.Width)
		o.logicalH = int(ev.Height)
		o.mu.Unlock()
		o.notifyRedraw()
	})
	global.SetScaleHandler(func(ev client.OutputScaleEvent) {
		o.mu.Lock()
		o.scale = float64(ev.Factor)
		o.mu.Unlock()
		o.notifyRedraw()
	})

	surface, err := wlproto.CreateBackgroundSurface(g, shell, global, "wallpaperd-"+name, wlproto.LayerSurfaceHandlers{
		OnConfigure: func(_ uint32, width, height uint32) {
			o.mu.Lock()
			if width > 0 && height > 0 {
				o.logicalW, o.logicalH = int(width), int(height)
			}
			o.mu.Unlock()
			o.notifyRedraw()
		},
		OnClosed: func() {
			o.mu.Lock()
			o.closed = true
			o.mu.Unlock()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create background surface for %s: %w", name, err)
	}
	o.surface = surface
	return o, nil
}

func (o *Output) notifyRedraw() {
	if o.RedrawRequests == nil {
		return
	}
	select {
	case o.RedrawRequests <- o.name:
	default:
		// A redraw is already queued for this output; coalescing here
		// avoids an unbounded backlog if the compositor sends geometry
		// events faster than the Orchestrator drains them.
	}
}

// Name reports the output's identifying name.
func (o *Output) Name() Name { return o.name }

// Closed reports whether the compositor has sent wl_output.closed /
// layer_surface.closed for this output; the Orchestrator tears it down the
// next time it ticks this output.
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// EffectiveDimensions returns the output's current composition geometry,
// per spec.md 4.5/4.6 and testable property 6.
func (o *Output) EffectiveDimensions() (width, height int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return compose.EffectiveDimensions(o.logicalW, o.logicalH, o.scale, o.transform)
}

// Transform reports the output's current wl_output transform.
func (o *Output) Transform() compose.Transform {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transform
}

// ensureSlotPoolLocked (re)allocates the shm slot pool when geometry has
// changed or none exists yet. Caller holds o.mu.
func (o *Output) ensureSlotPoolLocked(width, height int, format wlproto.ShmFormat) error {
	if o.slotPool != nil && o.slotWidth == width && o.slotHeight == height {
		return nil
	}
	if o.slotPool != nil {
		o.slotPool.Release()
		o.slotPool = nil
	}
	stride := width * 4
	pool, err := wlproto.NewSlotPool(o.g.Shm, width, height, stride, format)
	if err != nil {
		return err
	}
	o.slotPool = pool
	o.slotWidth, o.slotHeight = width, height
	return nil
}

// Commit writes img into the next available shm slot and attaches/commits
// it to the surface. If both outstanding slots are still held by the
// compositor, Commit returns immediately without blocking, dropping this
// tick's frame, per spec.md 4.6's bounded double-buffering.
func (o *Output) Commit(img *image.RGBA, format wlproto.ShmFormat) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}

	b := img.Bounds()
	if err := o.ensureSlotPoolLocked(b.Dx(), b.Dy(), format); err != nil {
		return fmt.Errorf("ensure slot pool for %s: %w", o.name, err)
	}

	slot, ok := o.slotPool.Acquire()
	if !ok {
		return nil // both slots in flight; drop this frame
	}

	pixelFormat := compose.FormatXRGB8888
	if format == wlproto.ShmFormatXRGB2101010 {
		pixelFormat = compose.FormatXRGB2101010
	}
	if err := compose.WriteInto(slot.Bytes, img, pixelFormat); err != nil {
		return fmt.Errorf("write buffer for %s: %w", o.name, err)
	}

	return o.surface.Attach(slot, b.Dx(), b.Dy())
}

// Close releases the surface and shm pool for this output.
func (o *Output) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.slotPool != nil {
		o.slotPool.Release()
		o.slotPool = nil
	}
	if o.surface != nil {
		o.surface.Close()
		o.surface = nil
	}
}
