// Package wlproto is a thin wrapper around the raw generated Wayland client
// bindings (github.com/rajveermalviya/go-wayland/wayland), providing just
// the primitives the Output Layer needs: registry binding, shm pool
// allocation, and layer-shell surface creation. Grounded on the same
// connect/registry/bind-by-interface-name pattern the example pack's
// ctxmenu Wayland client uses, adapted from its vendored proto package to
// the upstream client package.
package wlproto

import (
	"fmt"
	"os"

	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// Globals holds the bound Wayland global objects every output surface is
// built from.
type Globals struct {
	Display    *client.Display
	Registry   *client.Registry
	Compositor *client.Compositor
	Shm        *client.Shm
	Seat       *client.Seat
}

// Connect opens a connection to displayName (empty string means
// $WAYLAND_DISPLAY) and binds the compositor, shm, and seat globals.
// Discovering wl_output and zwlr_layer_shell_v1 globals happens in later,
// separate registry roundtrips (DiscoverOutputs, BindLayerShell), since
// each needs its own temporary SetGlobalHandler and go-wayland's registry
// only keeps one handler installed at a time.
func Connect(displayName string) (*Globals, error) {
	display, err := client.Connect(displayName)
	if err != nil {
		return nil, fmt.Errorf("connect to wayland display %q: %w", displayName, err)
	}

	registry, err := display.GetRegistry()
	if err != nil {
		return nil, fmt.Errorf("get registry: %w", err)
	}

	g := &Globals{Display: display, Registry: registry}

	registry.SetGlobalHandler(func(ev client.RegistryGlobalEvent) {
		switch ev.Interface {
		case "wl_compositor":
			g.Compositor = client.NewCompositor(display.Context())
			registry.Bind(ev.Name, ev.Interface, ev.Version, g.Compositor)
		case "wl_shm":
			g.Shm = client.NewShm(display.Context())
			registry.Bind(ev.Name, ev.Interface, ev.Version, g.Shm)
		case "wl_seat":
			g.Seat = client.NewSeat(display.Context())
			registry.Bind(ev.Name, ev.Interface, ev.Version, g.Seat)
		}
	})

	if err := roundtrip(display); err != nil {
		return nil, fmt.Errorf("initial registry roundtrip: %w", err)
	}
	if g.Compositor == nil || g.Shm == nil {
		return nil, fmt.Errorf("compositor did not advertise wl_compositor or wl_shm")
	}
	return g, nil
}

// DiscoverOutputs binds every wl_output currently advertised by the
// registry, keyed by the globals' registry name (a stable per-connection
// identifier, not yet the human-readable output name wl_output.name later
// reports). Call once after Connect and BindLayerShell have finished their
// own registry roundtrips, before installing a persistent hot-plug handler
// for globals arriving afterward.
func DiscoverOutputs(g *Globals) (map[uint32]*client.Output, error) {
	outputs := make(map[uint32]*client.Output)
	g.Registry.SetGlobalHandler(func(ev client.RegistryGlobalEvent) {
		if ev.Interface != "wl_output" {
			return
		}
		out := client.NewOutput(g.Display.Context())
		g.Registry.Bind(ev.Name, ev.Interface, ev.Version, out)
		outputs[ev.Name] = out
	})
	if err := roundtrip(g.Display); err != nil {
		return nil, fmt.Errorf("discover outputs: %w", err)
	}
	return outputs, nil
}

// WatchOutputs installs the persistent registry handler that reports
// wl_output globals appearing or disappearing after DiscoverOutputs' own
// one-shot roundtrip has completed (monitor hot-plug). It replaces any
// handler installed by Connect, BindLayerShell, or DiscoverOutputs, so it
// must be the last registry handler wired during startup.
func WatchOutputs(g *Globals, onNew func(regName uint32, out *client.Output), onRemove func(regName uint32)) {
	g.Registry.SetGlobalHandler(func(ev client.RegistryGlobalEvent) {
		if ev.Interface != "wl_output" {
			return
		}
		out := client.NewOutput(g.Display.Context())
		g.Registry.Bind(ev.Name, ev.Interface, ev.Version, out)
		if onNew != nil {
			onNew(ev.Name, out)
		}
	})
	g.Registry.SetGlobalRemoveHandler(func(ev client.RegistryGlobalRemoveEvent) {
		if onRemove != nil {
			onRemove(ev.Name)
		}
	})
}

// ResolveOutputName waits for out's wl_output.name event (present since
// wl_output version 4) and returns it, falling back to a synthesized
// "output-N" name keyed by the registry name if the compositor doesn't
// advertise one.
func ResolveOutputName(g *Globals, regName uint32, out *client.Output) (string, error) {
	var name string
	out.SetNameHandler(func(ev client.OutputNameEvent) {
		name = ev.Name
	})
	if err := roundtrip(g.Display); err != nil {
		return "", fmt.Errorf("resolve output name: %w", err)
	}
	if name == "" {
		name = fmt.Sprintf("output-%d", regName)
	}
	return name, nil
}

// roundtrip blocks until the server has processed every request issued so
// far, by round-tripping a display sync callback.
func roundtrip(display *client.Display) error {
	callback, err := display.Sync()
	if err != nil {
		return err
	}
	defer callback.Destroy()

	done := make(chan struct{}, 1)
	callback.SetDoneHandler(func(client.CallbackDoneEvent) {
		select {
		case done <- struct{}{}:
		default:
		}
	})

	for {
		if err := display.Context().Dispatch(); err != nil {
			return err
		}
		select {
		case <-done:
			return nil
		default:
		}
	}
}

// createAnonymousFile allocates an unlinked tmpfile in $XDG_RUNTIME_DIR
// sized for one shm pool, matching wl_shm's POSIX shared memory
// requirement.
func createAnonymousFile(size int64) (*os.File, error) {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		return nil, fmt.Errorf("XDG_RUNTIME_DIR is not set")
	}
	f, err := os.CreateTemp(dir, "wallpaperd-shm-*")
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
