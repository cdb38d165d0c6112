// Package orchestrator implements the Core Orchestrator (C8): the single
// cooperative event loop that owns every Wallpaper, the Frame Scheduler,
// the Async Loader handle, and the shared Image Cache, and drives them
// from Wayland output events, Config Ingest diffs, loader results, and
// scheduler deadlines.
package orchestrator

import (
	"image"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/cosmic-wall/wallpaperd/internal/cache"
	"github.com/cosmic-wall/wallpaperd/internal/loader"
	"github.com/cosmic-wall/wallpaperd/internal/scheduler"
	"github.com/cosmic-wall/wallpaperd/internal/state"
	"github.com/cosmic-wall/wallpaperd/internal/wallpaper"
	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
	"github.com/cosmic-wall/wallpaperd/internal/wlproto"
)

// OutputPort is the subset of wloutput.Output the Orchestrator depends on,
// narrowed to an interface so the event loop is testable without a real
// Wayland compositor.
type OutputPort interface {
	Name() string
	Closed() bool
	EffectiveDimensions() (width, height int)
	Commit(frame *image.RGBA, format wlproto.ShmFormat) error
	Close()
}

// Orchestrator is the Core Orchestrator. It is not safe for concurrent
// use: spec.md 4.8 specifies a single-threaded cooperative model, and
// every method here assumes it is only ever called from Run's goroutine.
type Orchestrator struct {
	outputs     map[string]OutputPort
	wallpapers  map[string]*wallpaper.Wallpaper // keyed by output name
	entries     map[wallpaperconfig.OutputSelector]wallpaperconfig.Entry
	sched       *scheduler.Scheduler
	loaderCmds  chan<- loader.Command
	loaderRes   <-chan loader.Result
	stateStore  *state.Store
	imageCache  *cache.Cache
	isDirectory func(string) bool
	redraws     <-chan string

	diffs chan wallpaperconfig.Diff
}

// Dependencies bundles everything the Orchestrator needs that lives
// outside this package, so construction stays a single call site in
// cmd/wallpaperd.
type Dependencies struct {
	Scheduler   *scheduler.Scheduler
	LoaderCmds  chan<- loader.Command
	LoaderRes   <-chan loader.Result
	StateStore  *state.Store
	ImageCache  *cache.Cache
	IsDirectory func(string) bool

	// Redraws carries output names whose Wayland-reported geometry changed
	// (configure/mode/scale events) and should be redrawn immediately
	// instead of waiting for their next scheduled deadline.
	Redraws <-chan string
}

// New constructs an Orchestrator with no outputs and no entries attached
// yet; AddOutput and the initial Diff populate it before Run starts.
func New(deps Dependencies) *Orchestrator {
	isDir := deps.IsDirectory
	if isDir == nil {
		isDir = defaultIsDirectory
	}
	return &Orchestrator{
		outputs:     make(map[string]OutputPort),
		wallpapers:  make(map[string]*wallpaper.Wallpaper),
		entries:     make(map[wallpaperconfig.OutputSelector]wallpaperconfig.Entry),
		sched:       deps.Scheduler,
		loaderCmds:  deps.LoaderCmds,
		loaderRes:   deps.LoaderRes,
		stateStore:  deps.StateStore,
		imageCache:  deps.ImageCache,
		isDirectory: isDir,
		redraws:     deps.Redraws,
		diffs:       make(chan wallpaperconfig.Diff, 4),
	}
}

// Diffs returns the channel Config Ingest should send Diffs on.
func (o *Orchestrator) Diffs() chan<- wallpaperconfig.Diff {
	return o.diffs
}

// AddOutput registers a newly-advertised Wayland output and binds the
// entry matching its name (or the "all" selector) if one is already
// known, per spec.md 4.8's "a new output picks up any already-ingested
// entry that selects it."
func (o *Orchestrator) AddOutput(out OutputPort) {
	name := out.Name()
	o.outputs[name] = out

	entry, ok := o.resolveEntryFor(name)
	if !ok {
		log.Info().Str("output", name).Msg("[orchestrator] output has no matching config entry yet")
		return
	}
	o.bindWallpaper(name, entry)
}

// RemoveOutput detaches and releases the Wallpaper bound to a
// disconnected output, and drops its scheduler entries.
func (o *Orchestrator) RemoveOutput(name string) {
	if w, ok := o.wallpapers[name]; ok {
		w.Detach()
		delete(o.wallpapers, name)
	}
	delete(o.outputs, name)
	o.sched.RemoveOutput(scheduler.OutputName(name))
}

// resolveEntryFor finds the Entry that applies to a given output name:
// an exact-output-name selector takes priority over the "all" selector,
// matching spec.md section 3's selector precedence.
func (o *Orchestrator) resolveEntryFor(outputName string) (wallpaperconfig.Entry, bool) {
	if e, ok := o.entries[wallpaperconfig.OutputSelector(outputName)]; ok {
		return e, true
	}
	if e, ok := o.entries[wallpaperconfig.AllOutputs]; ok {
		return e, true
	}
	return wallpaperconfig.Entry{}, false
}

func (o *Orchestrator) bindWallpaper(outputName string, entry wallpaperconfig.Entry) {
	w := wallpaper.New(outputName, entry, o.loaderCmds, o.stateStore, o.imageCache)
	o.wallpapers[outputName] = w
	w.Attach(o.isDirectory)
	o.scheduleNext(outputName, w)
}

// scheduleNext reschedules outputName against its Wallpaper's next tick
// deadline, or leaves it unscheduled if the Wallpaper has no cadence at
// all (e.g. a static image with no slideshow rotation): such an output is
// drawn once and otherwise only redrawn on a future config update or
// RedrawRequests signal. Any deadline already pending for outputName is
// dropped first, so each output holds at most one scheduler entry.
func (o *Orchestrator) scheduleNext(outputName string, w *wallpaper.Wallpaper) {
	o.sched.RemoveOutput(scheduler.OutputName(outputName))
	delay, ok := w.NextTickDelay()
	if !ok {
		return
	}
	o.sched.Schedule(scheduler.OutputName(outputName), delay)
}

func defaultIsDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
