package orchestrator

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/cosmic-wall/wallpaperd/internal/loader"
	"github.com/cosmic-wall/wallpaperd/internal/scheduler"
	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
	"github.com/cosmic-wall/wallpaperd/internal/wlproto"
)

// fakeOutput is a minimal OutputPort stand-in so orchestrator behavior is
// testable without a real Wayland compositor or GPU.
type fakeOutput struct {
	name     string
	width    int
	height   int
	closed   bool
	commits  int
	lastImg  *image.RGBA
	commitFn func(*image.RGBA, wlproto.ShmFormat) error
}

func (f *fakeOutput) Name() string   { return f.name }
func (f *fakeOutput) Closed() bool   { return f.closed }
func (f *fakeOutput) Close()         { f.closed = true }
func (f *fakeOutput) EffectiveDimensions() (int, int) {
	return f.width, f.height
}
func (f *fakeOutput) Commit(img *image.RGBA, format wlproto.ShmFormat) error {
	f.commits++
	f.lastImg = img
	if f.commitFn != nil {
		return f.commitFn(img, format)
	}
	return nil
}

func colorEntry(sel wallpaperconfig.OutputSelector, r float64) wallpaperconfig.Entry {
	return wallpaperconfig.Entry{
		Output: sel,
		Source: wallpaperconfig.SourceDescriptor{
			Kind:  wallpaperconfig.SourceColor,
			Color: wallpaperconfig.ColorSource{Single: &wallpaperconfig.RGB{R: r}},
		},
		ScalingMode: wallpaperconfig.ScalingZoom,
	}
}

func newTestOrchestrator() *Orchestrator {
	return New(Dependencies{
		Scheduler: scheduler.New(),
	})
}

func TestAddOutputBindsAlreadyIngestedAllSelector(t *testing.T) {
	o := newTestOrchestrator()
	o.applyDiff(wallpaperconfig.Diff{Added: []wallpaperconfig.Entry{colorEntry(wallpaperconfig.AllOutputs, 1)}})

	out := &fakeOutput{name: "DP-1", width: 100, height: 100}
	o.AddOutput(out)

	if _, ok := o.wallpapers["DP-1"]; !ok {
		t.Fatal("expected a Wallpaper bound for DP-1 from the \"all\" selector")
	}
}

func TestExactOutputSelectorTakesPriorityOverAll(t *testing.T) {
	o := newTestOrchestrator()
	o.applyDiff(wallpaperconfig.Diff{Added: []wallpaperconfig.Entry{
		colorEntry(wallpaperconfig.AllOutputs, 1),
		colorEntry("DP-1", 0.5),
	}})

	out := &fakeOutput{name: "DP-1", width: 100, height: 100}
	o.AddOutput(out)

	w := o.wallpapers["DP-1"]
	if w == nil {
		t.Fatal("expected DP-1 bound")
	}
	if w.Entry().Output != "DP-1" {
		t.Fatalf("expected DP-1's specific entry to win over \"all\", got selector %v", w.Entry().Output)
	}
}

func TestTickCommitsAFrameAndReschedulesWhenRotationIsConfigured(t *testing.T) {
	entry := colorEntry(wallpaperconfig.AllOutputs, 1)
	entry.RotationFrequency = time.Minute
	o := newTestOrchestrator()
	o.applyDiff(wallpaperconfig.Diff{Added: []wallpaperconfig.Entry{entry}})
	out := &fakeOutput{name: "DP-1", width: 64, height: 48}
	o.AddOutput(out)

	o.tick("DP-1")

	if out.commits != 1 {
		t.Fatalf("expected exactly one commit, got %d", out.commits)
	}
	if out.lastImg == nil || out.lastImg.Bounds().Dx() != 64 {
		t.Fatal("expected a committed frame sized to the output's effective dimensions")
	}
	if o.sched.Len() != 1 {
		t.Fatalf("expected the output rescheduled after tick because a rotation is configured, heap len=%d", o.sched.Len())
	}
}

func TestStaticColorWithNoRotationIsNotRescheduled(t *testing.T) {
	o := newTestOrchestrator()
	o.applyDiff(wallpaperconfig.Diff{Added: []wallpaperconfig.Entry{colorEntry(wallpaperconfig.AllOutputs, 1)}})
	out := &fakeOutput{name: "DP-1", width: 64, height: 48}
	o.AddOutput(out)

	o.tick("DP-1")

	if o.sched.Len() != 0 {
		t.Fatalf("expected a cadence-less static source to not be rescheduled, heap len=%d", o.sched.Len())
	}
}

func TestRemoveOutputDetachesAndClearsSchedule(t *testing.T) {
	o := newTestOrchestrator()
	o.applyDiff(wallpaperconfig.Diff{Added: []wallpaperconfig.Entry{colorEntry(wallpaperconfig.AllOutputs, 1)}})
	out := &fakeOutput{name: "DP-1", width: 64, height: 48}
	o.AddOutput(out)

	o.RemoveOutput("DP-1")

	if _, ok := o.wallpapers["DP-1"]; ok {
		t.Fatal("expected Wallpaper removed")
	}
	if o.sched.Len() != 0 {
		t.Fatal("expected no scheduler entries left for a removed output")
	}
}

func TestApplyDiffRemovedFallsBackToAllSelector(t *testing.T) {
	o := newTestOrchestrator()
	o.applyDiff(wallpaperconfig.Diff{Added: []wallpaperconfig.Entry{
		colorEntry(wallpaperconfig.AllOutputs, 1),
		colorEntry("DP-1", 0.5),
	}})
	out := &fakeOutput{name: "DP-1", width: 64, height: 48}
	o.AddOutput(out)

	o.applyDiff(wallpaperconfig.Diff{Removed: []wallpaperconfig.OutputSelector{"DP-1"}})

	w := o.wallpapers["DP-1"]
	if w == nil {
		t.Fatal("expected DP-1 to remain bound via the fallback \"all\" entry")
	}
	if w.Entry().Output != wallpaperconfig.AllOutputs {
		t.Fatalf("expected DP-1 to fall back to the \"all\" entry, got %v", w.Entry().Output)
	}
}

func TestRunExitsOnContextCancellation(t *testing.T) {
	o := newTestOrchestrator()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	select {
	case err := <-done:
		if err != context.DeadlineExceeded {
			t.Fatalf("expected Run to exit with DeadlineExceeded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}

func TestApplyLoaderResultRoutesToBoundWallpaper(t *testing.T) {
	o := newTestOrchestrator()
	entry := wallpaperconfig.Entry{
		Output: wallpaperconfig.AllOutputs,
		Source: wallpaperconfig.SourceDescriptor{Kind: wallpaperconfig.SourcePath, Path: "/wallpapers"},
	}
	o.applyDiff(wallpaperconfig.Diff{Added: []wallpaperconfig.Entry{entry}})
	o.isDirectory = func(p string) bool { return p == "/wallpapers" }

	out := &fakeOutput{name: "DP-1", width: 64, height: 48}
	o.AddOutput(out)

	w := o.wallpapers["DP-1"]
	o.applyLoaderResult(loader.Result{
		Output:  "DP-1",
		Kind:    loader.DirectoryScanned,
		ScanID:  w.PendingScanID(),
		Entries: []string{"/wallpapers/a.png", "/wallpapers/b.png"},
	})

	if img, err := w.Draw(10, 10); err != nil || img == nil {
		t.Fatalf("expected Draw to succeed after a directory scan result, err=%v", err)
	}
}
