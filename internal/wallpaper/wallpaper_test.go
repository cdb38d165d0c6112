package wallpaper

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cosmic-wall/wallpaperd/internal/loader"
	"github.com/cosmic-wall/wallpaperd/internal/state"
	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
)

func colorEntry(r float64) wallpaperconfig.Entry {
	return wallpaperconfig.Entry{
		Output: "DP-1",
		Source: wallpaperconfig.SourceDescriptor{
			Kind:  wallpaperconfig.SourceColor,
			Color: wallpaperconfig.ColorSource{Single: &wallpaperconfig.RGB{R: r}},
		},
		ScalingMode: wallpaperconfig.ScalingZoom,
	}
}

func alwaysFile(string) bool { return false }

func TestAttachColorSourceBecomesReadyImmediately(t *testing.T) {
	w := New("DP-1", colorEntry(1), nil, nil, nil)
	w.Attach(alwaysFile)
	if w.LoadState() != StateReady {
		t.Fatalf("expected StateReady after attaching a color source, got %v", w.LoadState())
	}
}

func TestUpdateConfigSourceUnchangedKeepsFrameSource(t *testing.T) {
	w := New("DP-1", colorEntry(1), nil, nil, nil)
	w.Attach(alwaysFile)
	before := w.Source()

	next := colorEntry(1)
	next.ScalingMode = wallpaperconfig.ScalingFit
	w.UpdateConfig(next, alwaysFile)

	if w.Source() != before {
		t.Fatal("expected Frame Source to survive a source-unchanged config update")
	}
	if w.Entry().ScalingMode != wallpaperconfig.ScalingFit {
		t.Fatal("expected updated scaling mode to apply")
	}
}

func TestUpdateConfigSourceChangedRebuildsFrameSource(t *testing.T) {
	w := New("DP-1", colorEntry(1), nil, nil, nil)
	w.Attach(alwaysFile)
	before := w.Source()

	w.UpdateConfig(colorEntry(0), alwaysFile)

	if w.Source() == before {
		t.Fatal("expected Frame Source to be rebuilt when the source descriptor changes")
	}
	if w.LoadState() != StateReady {
		t.Fatalf("expected immediately-ready color source after rebuild, got %v", w.LoadState())
	}
}

func TestDetachReleasesSourceAndClearsState(t *testing.T) {
	w := New("DP-1", colorEntry(1), nil, nil, nil)
	w.Attach(alwaysFile)
	w.Detach()
	if w.Source() != nil {
		t.Fatal("expected Source() to be nil after Detach")
	}
}

func TestSlideshowResumesFromPersistedCursor(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "slideshow-state.json")
	store := state.Load(statePath)
	store.Update("DP-1", dir, filepath.Join(dir, "b.png"), time.Now())

	entry := wallpaperconfig.Entry{
		Output: "DP-1",
		Source: wallpaperconfig.SourceDescriptor{Kind: wallpaperconfig.SourcePath, Path: dir},
	}
	cmds := make(chan loader.Command, 4)
	w := New("DP-1", entry, cmds, store, nil)
	isDir := func(p string) bool { return p == dir }

	w.Attach(isDir)
	if w.LoadState() != StateScanningDirectory {
		t.Fatalf("expected a directory scan dispatched, got %v", w.LoadState())
	}

	w.OnDirectoryScanned(w.PendingScanID(), []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "c.png"),
	})

	if w.LoadState() != StateReady {
		t.Fatalf("expected StateReady after scan, got %v", w.LoadState())
	}
	if w.cursor != 1 {
		t.Fatalf("expected cursor resumed at index 1 (b.png), got %d", w.cursor)
	}
}

func TestNextTickDelaySchedulesRetryAfterPrepareFailure(t *testing.T) {
	entry := wallpaperconfig.Entry{
		Output: "DP-1",
		Source: wallpaperconfig.SourceDescriptor{Kind: wallpaperconfig.SourcePath, Path: "/nonexistent/missing.png"},
	}
	w := New("DP-1", entry, nil, nil, nil)
	w.Attach(alwaysFile)
	if w.LoadState() != StateReady {
		t.Fatalf("expected a single-file Path source to be StateReady before its first Draw, got %v", w.LoadState())
	}

	if _, err := w.Draw(10, 10); err != nil {
		t.Fatalf("Draw itself should not error (fallback color path): %v", err)
	}
	if w.LoadState() != StateError {
		t.Fatalf("expected StateError after Prepare fails on a missing file, got %v", w.LoadState())
	}

	delay, ok := w.NextTickDelay()
	if !ok {
		t.Fatal("expected NextTickDelay to schedule a retry for a Wallpaper in StateError, not leave it unscheduled forever")
	}
	if delay < prepareBackoff {
		t.Fatalf("expected at least the %v prepare backoff, got %v", prepareBackoff, delay)
	}
}

func TestOnDirectoryScannedWithNoEntriesReportsError(t *testing.T) {
	entry := wallpaperconfig.Entry{
		Output: "DP-1",
		Source: wallpaperconfig.SourceDescriptor{Kind: wallpaperconfig.SourcePath, Path: "/empty"},
	}
	w := New("DP-1", entry, nil, nil, nil)
	w.OnDirectoryScanned(uuid.UUID{}, nil)
	if w.LoadState() != StateError {
		t.Fatalf("expected StateError for an empty directory scan, got %v", w.LoadState())
	}
}
