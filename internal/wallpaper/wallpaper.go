// Package wallpaper implements the Wallpaper (C7): it binds one Entry to
// one output, owns that binding's Frame Source exclusively,
// and drives per-tick drawing plus slideshow directory rotation.
package wallpaper

import (
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cosmic-wall/wallpaperd/internal/cache"
	"github.com/cosmic-wall/wallpaperd/internal/frame"
	"github.com/cosmic-wall/wallpaperd/internal/loader"
	"github.com/cosmic-wall/wallpaperd/internal/state"
	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
)

// LoadState is the Wallpaper's loading state machine, per spec.md 4.7.
type LoadState int

const (
	StateIdle LoadState = iota
	StateScanningDirectory
	StateDecoding
	StateReady
	StateError
)

// Wallpaper binds one wallpaperconfig.Entry to a single named output and
// owns the Frame Source instance that produces that output's pixels.
type Wallpaper struct {
	mu sync.Mutex

	entry  wallpaperconfig.Entry
	source frame.Source

	loadState LoadState
	lastErr   error

	// Slideshow fields, populated only when entry.IsSlideshow reports true.
	images       []string
	cursor       int
	rotations    int
	scanPending  bool
	pendingScan  uuid.UUID
	resumePath   string
	lastRotation time.Time

	loaderCmds chan<- loader.Command
	stateStore *state.Store
	outputName string
	imageCache *cache.Cache

	rng *rand.Rand
}

// New constructs a Wallpaper bound to outputName for entry. loaderCmds and
// stateStore may be nil in tests that never exercise slideshow directories.
// imageCache is shared across every Wallpaper in the process (C2).
func New(outputName string, entry wallpaperconfig.Entry, loaderCmds chan<- loader.Command, stateStore *state.Store, imageCache *cache.Cache) *Wallpaper {
	return &Wallpaper{
		entry:      entry,
		outputName: outputName,
		loaderCmds: loaderCmds,
		stateStore: stateStore,
		imageCache: imageCache,
		loadState:  StateIdle,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Entry returns the currently bound configuration entry.
func (w *Wallpaper) Entry() wallpaperconfig.Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entry
}

// LoadState reports the current loading state machine value, for
// diagnostics and tests.
func (w *Wallpaper) LoadState() LoadState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadState
}

// LastError reports the error that put this Wallpaper into StateError, if
// any.
func (w *Wallpaper) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Attach binds the Wallpaper to its Frame Source for the first time,
// dispatching a directory scan if the entry is a slideshow, or resolving a
// single-file source immediately.
func (w *Wallpaper) Attach(isDir func(string) bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rebuildSourceLocked()
	w.loadImagesLocked(isDir)
}

// UpdateConfig applies a diff-driven config change, per spec.md 4.7: if the
// source itself is unchanged, rendering parameters (scaling mode, filter,
// rotation frequency, ...) update in place without disturbing the Frame
// Source; if the source changed, the old source is released, a new one is
// built, and loading state resets to trigger an immediate tick.
func (w *Wallpaper) UpdateConfig(next wallpaperconfig.Entry, isDir func(string) bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sourceChanged := !sourceDescriptorEqual(w.entry.Source, next.Source)
	w.entry = next

	if !sourceChanged {
		return
	}

	if w.source != nil {
		w.source.Release()
		w.source = nil
	}
	w.loadState = StateIdle
	w.images = nil
	w.cursor = 0
	w.rebuildSourceLocked()
	w.loadImagesLocked(isDir)
}

func sourceDescriptorEqual(a, b wallpaperconfig.SourceDescriptor) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case wallpaperconfig.SourcePath:
		return a.Path == b.Path
	case wallpaperconfig.SourceColor:
		return colorSourceEqual(a.Color, b.Color)
	case wallpaperconfig.SourceAnimated:
		return reflect.DeepEqual(a.Animated, b.Animated)
	case wallpaperconfig.SourceVideo:
		return a.Video == b.Video
	case wallpaperconfig.SourceShader:
		return a.Shader == b.Shader
	default:
		return true
	}
}

func colorSourceEqual(a, b wallpaperconfig.ColorSource) bool {
	if (a.Single == nil) != (b.Single == nil) {
		return false
	}
	if a.Single != nil && *a.Single != *b.Single {
		return false
	}
	if (a.Gradient == nil) != (b.Gradient == nil) {
		return false
	}
	if a.Gradient == nil {
		return true
	}
	if a.Gradient.Radius != b.Gradient.Radius || len(a.Gradient.Stops) != len(b.Gradient.Stops) {
		return false
	}
	for i := range a.Gradient.Stops {
		if a.Gradient.Stops[i] != b.Gradient.Stops[i] {
			return false
		}
	}
	return true
}

// rebuildSourceLocked constructs the Frame Source matching w.entry.Source.
// For directory (slideshow) path entries, the source isn't built until
// loadImagesLocked resolves the first concrete image path.
func (w *Wallpaper) rebuildSourceLocked() {
	switch w.entry.Source.Kind {
	case wallpaperconfig.SourceColor:
		w.source = frame.NewColor(w.entry.Source.Color)
	case wallpaperconfig.SourceAnimated:
		w.source = frame.NewAnimated(w.entry.Source.Animated)
	case wallpaperconfig.SourceVideo:
		w.source = frame.NewVideo(w.entry.Source.Video)
	case wallpaperconfig.SourceShader:
		w.source = frame.NewShader(w.entry.Source.Shader)
	case wallpaperconfig.SourcePath:
		// Handled by loadImagesLocked once a concrete path is resolved.
	}
}

// loadImagesLocked dispatches directory scanning for slideshow entries, or
// resolves a single-file path immediately. Caller holds w.mu.
func (w *Wallpaper) loadImagesLocked(isDir func(string) bool) {
	if w.entry.Source.Kind != wallpaperconfig.SourcePath {
		if w.source != nil {
			w.loadState = StateReady
		}
		return
	}

	path := w.entry.Source.Path
	if !isDir(path) {
		// Single image: idempotent, no rescan needed.
		w.source = frame.NewStatic(path, w.imageCache)
		w.loadState = StateReady
		return
	}

	if w.scanPending {
		return
	}

	var resumed string
	if w.stateStore != nil {
		if cursor, ok := w.stateStore.Get(w.outputName, path); ok {
			resumed = cursor.CurrentPath
		}
	}

	scanID := uuid.New()
	w.loadState = StateScanningDirectory
	w.scanPending = true
	w.pendingScan = scanID
	w.resumePath = resumed
	if w.loaderCmds != nil {
		select {
		case w.loaderCmds <- loader.Command{Output: w.outputName, Kind: loader.ScanDirectory, Directory: path, ScanID: scanID}:
		default:
			log.Warn().Str("output", w.outputName).Msg("[wallpaper] loader command channel full, scan dropped")
			w.scanPending = false
			w.loadState = StateError
		}
	}
}

// OnDirectoryScanned applies a loader.DirectoryScanned result: orders the
// entries by the configured SamplingMethod, resumes the persisted cursor if
// present, and transitions to StateReady with a concrete image bound. A
// result whose scanID doesn't match the most recently issued scan is
// discarded — it was superseded by a later config change or rescan before
// it came back.
func (w *Wallpaper) OnDirectoryScanned(scanID uuid.UUID, entries []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if scanID != w.pendingScan {
		return
	}
	w.scanPending = false
	if len(entries) == 0 {
		w.loadState = StateError
		w.lastErr = fmt.Errorf("slideshow directory %s has no images", w.entry.Source.Path)
		return
	}

	ordered := loader.OrderEntries(entries, w.entry.Sampling, func(s []string) { w.rng.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] }) })
	w.images = ordered
	w.cursor = 0

	if w.resumePath != "" {
		for i, p := range ordered {
			if p == w.resumePath {
				w.cursor = i
				break
			}
		}
	}
	w.resumePath = ""

	w.source = frame.NewStatic(w.images[w.cursor], w.imageCache)
	w.loadState = StateReady
}

// OnLoadError applies a loader.LoadError result, discarding it if scanID
// doesn't match the most recently issued scan.
func (w *Wallpaper) OnLoadError(scanID uuid.UUID, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if scanID != w.pendingScan {
		return
	}
	w.scanPending = false
	w.loadState = StateError
	w.lastErr = err
}

// PendingScanID reports the scan ID of the most recently dispatched
// directory scan, for tests and diagnostics.
func (w *Wallpaper) PendingScanID() uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingScan
}

// advanceSlideshowLocked moves to the next image in a slideshow, wrapping
// around, matching spec.md 4.7's rotation semantics.
func (w *Wallpaper) advanceSlideshowLocked(isDir func(string) bool) {
	if len(w.images) == 0 {
		return
	}
	w.cursor = (w.cursor + 1) % len(w.images)
	if w.source != nil {
		w.source.Release()
	}
	w.source = frame.NewStatic(w.images[w.cursor], w.imageCache)
	w.lastRotation = time.Now()
	w.rotations++

	if w.stateStore != nil {
		w.stateStore.Update(w.outputName, w.entry.Source.Path, w.images[w.cursor], w.lastRotation)
	}

	// Re-scan periodically so new files dropped into a watched directory
	// are picked up without a config change, matching spec.md 4.7's
	// "directory contents are refreshed opportunistically on rotation."
	if w.rotations%rescanEveryNRotations == 0 {
		w.loadImagesLocked(isDir)
	}
}

// rescanEveryNRotations bounds how often a slideshow directory is
// re-listed while running, trading promptness of picking up newly added
// files against the cost of a directory walk every tick.
const rescanEveryNRotations = 50

// Source returns the currently bound Frame Source, or nil if not yet ready.
func (w *Wallpaper) Source() frame.Source {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.source
}

// ShouldRotate reports whether this wallpaper's slideshow rotation
// frequency has elapsed as of now.
func (w *Wallpaper) ShouldRotate(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.entry.RotationFrequency <= 0 || w.loadState != StateReady {
		return false
	}
	return now.Sub(w.lastRotation) >= w.entry.RotationFrequency
}

// Rotate advances the slideshow if due.
func (w *Wallpaper) Rotate(isDir func(string) bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advanceSlideshowLocked(isDir)
}

// Detach releases the Frame Source and clears slideshow state, used when an
// output is removed.
func (w *Wallpaper) Detach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.source != nil {
		w.source.Release()
		w.source = nil
	}
	if w.stateStore != nil {
		w.stateStore.Remove(w.outputName)
	}
}
