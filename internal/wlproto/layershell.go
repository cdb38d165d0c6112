package wlproto

import (
	"fmt"

	"github.com/rajveermalviya/go-wayland/wayland/client"
	layershell "github.com/rajveermalviya/go-wayland/wayland/unstable/wlr-layer-shell-v1"
)

// LayerShell binds the zwlr_layer_shell_v1 global, the protocol the Output
// Layer uses to place the wallpaper surface below normal windows on every
// output, matching spec.md 4.6's "background layer, no input region,
// anchored to all four edges."
type LayerShell struct {
	proto *layershell.LayerShellV1
}

// BindLayerShell binds zwlr_layer_shell_v1 from an already-populated
// registry. Must be called after Connect's initial roundtrip has delivered
// the global listing.
func BindLayerShell(g *Globals) (*LayerShell, error) {
	var shell *layershell.LayerShellV1
	g.Registry.SetGlobalHandler(func(ev client.RegistryGlobalEvent) {
		if ev.Interface == "zwlr_layer_shell_v1" {
			shell = layershell.NewLayerShellV1(g.Display.Context())
			g.Registry.Bind(ev.Name, ev.Interface, ev.Version, shell)
		}
	})
	if err := roundtrip(g.Display); err != nil {
		return nil, fmt.Errorf("bind layer shell: %w", err)
	}
	if shell == nil {
		return nil, fmt.Errorf("compositor does not support zwlr_layer_shell_v1")
	}
	return &LayerShell{proto: shell}, nil
}

// LayerSurfaceHandlers are the callbacks a Surface owner registers.
type LayerSurfaceHandlers struct {
	// OnConfigure reports the compositor-assigned size (may be 0,0 meaning
	// "use your own size") and must be acked before the first commit.
	OnConfigure func(serial uint32, width, height uint32)
	OnClosed    func()
}

// Surface is one output's background layer surface.
type Surface struct {
	wlSurface    *client.Surface
	layerSurface *layershell.LayerSurfaceV1
}

// CreateBackgroundSurface creates a surface on output at the background
// layer, anchored to fill it entirely, with no keyboard/pointer interactivity
// and zero exclusive zone so it never displaces panels or other clients.
func CreateBackgroundSurface(g *Globals, shell *LayerShell, output *client.Output, namespace string, handlers LayerSurfaceHandlers) (*Surface, error) {
	wlSurface, err := g.Compositor.CreateSurface()
	if err != nil {
		return nil, fmt.Errorf("create wl_surface: %w", err)
	}

	layerSurface, err := shell.proto.GetLayerSurface(wlSurface, output, layershell.LayerShellV1LayerBackground, namespace)
	if err != nil {
		wlSurface.Destroy()
		return nil, fmt.Errorf("get_layer_surface: %w", err)
	}

	const anchorAll = layershell.LayerSurfaceV1AnchorTop |
		layershell.LayerSurfaceV1AnchorBottom |
		layershell.LayerSurfaceV1AnchorLeft |
		layershell.LayerSurfaceV1AnchorRight

	layerSurface.SetAnchor(uint32(anchorAll))
	layerSurface.SetExclusiveZone(0)
	layerSurface.SetKeyboardInteractivity(0)

	layerSurface.SetConfigureHandler(func(ev layershell.LayerSurfaceV1ConfigureEvent) {
		layerSurface.AckConfigure(ev.Serial)
		if handlers.OnConfigure != nil {
			handlers.OnConfigure(ev.Serial, ev.Width, ev.Height)
		}
	})
	layerSurface.SetClosedHandler(func(layershell.LayerSurfaceV1ClosedEvent) {
		if handlers.OnClosed != nil {
			handlers.OnClosed()
		}
	})

	if err := wlSurface.Commit(); err != nil {
		return nil, fmt.Errorf("initial commit: %w", err)
	}

	return &Surface{wlSurface: wlSurface, layerSurface: layerSurface}, nil
}

// Attach attaches slot's buffer at (0,0), damages the whole surface, and
// commits, matching the one-buffer-per-commit discipline spec.md 4.6
// requires for shm double buffering.
func (s *Surface) Attach(slot *Slot, width, height int) error {
	if err := s.wlSurface.Attach(slot.Buffer(), 0, 0); err != nil {
		return fmt.Errorf("wl_surface.attach: %w", err)
	}
	if err := s.wlSurface.DamageBuffer(0, 0, int32(width), int32(height)); err != nil {
		return fmt.Errorf("wl_surface.damage_buffer: %w", err)
	}
	return s.wlSurface.Commit()
}

// Close destroys the layer surface and its backing wl_surface.
func (s *Surface) Close() {
	if s.layerSurface != nil {
		s.layerSurface.Destroy()
	}
	if s.wlSurface != nil {
		s.wlSurface.Destroy()
	}
}
