package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOnMissingFileStartsEmpty(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "missing.json"))
	if _, ok := s.Get("DP-1", "/wallpapers"); ok {
		t.Fatal("expected no cursor for a freshly loaded empty store")
	}
}

func TestUpdateThenFlushThenLoadResumesPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slideshow-state.json")

	s := Load(path)
	s.Update("DP-1", "/wallpapers", "/wallpapers/03.png", time.Unix(1000, 0))
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reloaded := Load(path)
	c, ok := reloaded.Get("DP-1", "/wallpapers")
	if !ok {
		t.Fatal("expected cursor to survive a reload (testable property 5: slideshow resume)")
	}
	if c.CurrentPath != "/wallpapers/03.png" {
		t.Fatalf("expected resumed path /wallpapers/03.png, got %s", c.CurrentPath)
	}
}

func TestGetIgnoresStaleDirectoryMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slideshow-state.json")
	s := Load(path)
	s.Update("DP-1", "/old-wallpapers", "/old-wallpapers/01.png", time.Now())

	if _, ok := s.Get("DP-1", "/new-wallpapers"); ok {
		t.Fatal("expected stale cursor for a changed directory to be rejected")
	}
}

func TestFlushIsNoOpWithoutChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slideshow-state.json")
	s := Load(path)
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush on clean store: %v", err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatal("expected no file written when store was never marked dirty")
	}
}
