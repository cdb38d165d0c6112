package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cosmic-wall/wallpaperd/internal/loader"
	"github.com/cosmic-wall/wallpaperd/internal/scheduler"
	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
	"github.com/cosmic-wall/wallpaperd/internal/wlproto"
)

// defaultBufferFormat is the shm pixel format committed to outputs;
// spec.md 4.6 allows XRGB2101010 for higher color depth but XRGB8888 is
// the universally-supported baseline every compositor accepts.
const defaultBufferFormat = wlproto.ShmFormatXRGB8888

// flushInterval bounds how long the persisted slideshow cursor may lag a
// rotation before being durably written, trading fsync cost against
// resume fidelity after a crash.
const flushInterval = 5 * time.Second

// Run drives the single cooperative event loop until ctx is canceled or
// an unrecoverable channel closure occurs (Diff channel or loader result
// channel closed). It applies Diffs and loader Results as soon as they
// arrive, then lets the scheduler fire any deadlines that are due,
// matching spec.md 4.8's ordering: "diffs and loader results apply before
// the scheduler is consulted within the same iteration."
func (o *Orchestrator) Run(ctx context.Context) error {
	flushTicker := time.NewTicker(flushInterval)
	defer flushTicker.Stop()

	for {
		timer := o.nextTimer()

		select {
		case <-ctx.Done():
			o.shutdown()
			return ctx.Err()

		case diff, ok := <-o.diffs:
			timer.Stop()
			if !ok {
				o.shutdown()
				return nil
			}
			o.applyDiff(diff)

		case res, ok := <-o.loaderRes:
			timer.Stop()
			if !ok {
				log.Warn().Msg("[orchestrator] loader result channel closed, shutting down")
				o.shutdown()
				return context.Canceled
			}
			o.applyLoaderResult(res)

		case name, ok := <-o.redraws:
			timer.Stop()
			if ok {
				o.tick(name)
			}

		case <-flushTicker.C:
			timer.Stop()
			if o.stateStore != nil {
				if err := o.stateStore.Flush(); err != nil {
					log.Warn().Err(err).Msg("[orchestrator] failed to flush slideshow state")
				}
			}

		case <-timer.C:
			// Drain Diffs and loader Results that were ready alongside the
			// timer, since select chooses among ready cases at random.
			for pending := true; pending; {
				select {
				case diff, ok := <-o.diffs:
					if ok {
						o.applyDiff(diff)
					}
					pending = ok
				case res, ok := <-o.loaderRes:
					if ok {
						o.applyLoaderResult(res)
					}
					pending = ok
				default:
					pending = false
				}
			}
			o.fireDue()
		}
	}
}

// nextTimer returns a timer armed for the scheduler's next deadline, or a
// long idle timer if nothing is scheduled, so Run never busy-loops with
// zero outputs attached.
func (o *Orchestrator) nextTimer() *time.Timer {
	if d, ok := o.sched.NextDeadline(); ok {
		return time.NewTimer(d)
	}
	return time.NewTimer(time.Second)
}

func (o *Orchestrator) fireDue() {
	now := time.Now()
	for _, name := range o.sched.PopReady(now) {
		o.tick(string(name))
	}
}

// tick draws and commits one frame for outputName, then reschedules it
// against its Frame Source's own cadence (and rotates its slideshow if
// due), per spec.md 4.4/4.7/4.8.
func (o *Orchestrator) tick(outputName string) {
	w, ok := o.wallpapers[outputName]
	if !ok {
		return
	}
	out, ok := o.outputs[outputName]
	if !ok {
		return
	}
	if out.Closed() {
		o.RemoveOutput(outputName)
		out.Close()
		return
	}

	if w.ShouldRotate(time.Now()) {
		w.Rotate(o.isDirectory)
	}

	width, height := out.EffectiveDimensions()
	if width <= 0 || height <= 0 {
		o.scheduleNext(outputName, w)
		return
	}

	img, err := w.Draw(width, height)
	if err != nil {
		log.Warn().Err(err).Str("output", outputName).Msg("[orchestrator] draw failed")
	}
	if img != nil {
		if err := out.Commit(img, defaultBufferFormat); err != nil {
			log.Warn().Err(err).Str("output", outputName).Msg("[orchestrator] commit failed")
		}
	}

	o.scheduleNext(outputName, w)
}

// applyDiff binds, updates, or releases Wallpapers to reflect a newly
// ingested configuration. Added entries are indexed first so Updated
// entries that apply to newly-attached outputs in the same Diff resolve
// against the latest entry map; Removed entries are applied last so a
// selector that moves from "all" to a specific output within one Diff
// doesn't transiently detach an output that's about to be rebound.
func (o *Orchestrator) applyDiff(diff wallpaperconfig.Diff) {
	for _, e := range diff.Added {
		o.entries[e.Output] = e
		o.rebindOutputsFor(e.Output, e)
	}
	for _, u := range diff.Updated {
		o.entries[u.Output] = u.New
		o.rebindOutputsFor(u.Output, u.New)
	}
	for _, sel := range diff.Removed {
		delete(o.entries, sel)
		o.unbindOutputsFor(sel)
	}
}

// rebindOutputsFor applies entry to every currently-attached output that
// selector resolves to: an exact output name, or every output lacking a
// more specific entry when selector is AllOutputs.
func (o *Orchestrator) rebindOutputsFor(selector wallpaperconfig.OutputSelector, entry wallpaperconfig.Entry) {
	for name := range o.outputs {
		resolved, ok := o.resolveEntryFor(name)
		if !ok || resolved.Output != selector {
			continue
		}
		if w, exists := o.wallpapers[name]; exists {
			w.UpdateConfig(entry, o.isDirectory)
			o.sched.RemoveOutput(scheduler.OutputName(name))
			o.sched.Schedule(scheduler.OutputName(name), 0)
			continue
		}
		o.bindWallpaper(name, entry)
	}
}

// unbindOutputsFor detaches every Wallpaper whose bound entry came from
// selector and has no fallback entry to fall back to.
func (o *Orchestrator) unbindOutputsFor(selector wallpaperconfig.OutputSelector) {
	for name := range o.outputs {
		w, exists := o.wallpapers[name]
		if !exists || w.Entry().Output != selector {
			continue
		}
		if fallback, ok := o.resolveEntryFor(name); ok {
			w.UpdateConfig(fallback, o.isDirectory)
			o.sched.RemoveOutput(scheduler.OutputName(name))
			o.sched.Schedule(scheduler.OutputName(name), 0)
			continue
		}
		w.Detach()
		delete(o.wallpapers, name)
		o.sched.RemoveOutput(scheduler.OutputName(name))
	}
}

func (o *Orchestrator) shutdown() {
	for name, w := range o.wallpapers {
		w.Detach()
		if out, ok := o.outputs[name]; ok {
			out.Close()
		}
	}
	if o.loaderCmds != nil {
		select {
		case o.loaderCmds <- loader.Command{Kind: loader.Shutdown}:
		default:
		}
	}
	if o.stateStore != nil {
		if err := o.stateStore.Flush(); err != nil {
			log.Warn().Err(err).Msg("[orchestrator] failed final state flush")
		}
	}
}

// applyLoaderResult routes a completed directory scan or scan failure
// back to the Wallpaper that requested it.
func (o *Orchestrator) applyLoaderResult(res loader.Result) {
	w, ok := o.wallpapers[res.Output]
	if !ok {
		return
	}
	switch res.Kind {
	case loader.DirectoryScanned:
		w.OnDirectoryScanned(res.ScanID, res.Entries)
		o.scheduleNext(res.Output, w)
	case loader.LoadError:
		w.OnLoadError(res.ScanID, res.Err)
		log.Warn().Err(res.Err).Str("output", res.Output).Msg("[orchestrator] directory scan failed")
	}
}
