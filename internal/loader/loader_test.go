package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
)

func TestScanDirectoryFiltersToImageExtensions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.txt", "c.JPG", "d.wgsl"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	entries, err := scanDirectory(dir)
	if err != nil {
		t.Fatalf("scanDirectory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 image entries, got %v", entries)
	}
}

func TestOrderEntriesAlphanumericIsDeterministic(t *testing.T) {
	in := []string{"c.png", "a.png", "b.png"}
	out := OrderEntries(in, wallpaperconfig.SamplingAlphanumeric, nil)
	want := []string{"a.png", "b.png", "c.png"}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("expected sorted order %v, got %v", want, out)
		}
	}
}

func TestOrderEntriesRandomInvokesShuffle(t *testing.T) {
	in := []string{"a.png", "b.png", "c.png"}
	called := false
	OrderEntries(in, wallpaperconfig.SamplingRandom, func([]string) { called = true })
	if !called {
		t.Fatal("expected shuffle callback invoked for random sampling")
	}
}

func TestOrderEntriesDoesNotMutateInput(t *testing.T) {
	in := []string{"c.png", "a.png", "b.png"}
	_ = OrderEntries(in, wallpaperconfig.SamplingAlphanumeric, nil)
	if in[0] != "c.png" {
		t.Fatal("expected OrderEntries to leave its input slice untouched")
	}
}
