package wallpaperconfig

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Ingest watches a config file for changes and republishes a Diff against
// the last successfully parsed state each time the file is written,
// created, or renamed into place. It is the
// concrete implementation of C9's "Emits a diff {added, removed,
// updated-by-output} to the Orchestrator."
type Ingest struct {
	path    string
	log     zerolog.Logger
	watcher *fsnotify.Watcher
	current []Entry
	sizeOf  shaderSourceSizer
}

// NewIngest creates an Ingest watching the directory containing path (the
// file itself, not just the directory, is watched by watching its parent —
// matching the common fsnotify idiom for atomically-replaced config files).
func NewIngest(path string, log zerolog.Logger) (*Ingest, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &Ingest{path: path, log: log, watcher: watcher, sizeOf: statSize}, nil
}

func statSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// LoadInitial parses the current file once, synchronously, so the
// Orchestrator has a starting Diff before entering its event loop.
func (ig *Ingest) LoadInitial() Diff {
	entries, errs := ParseFile(ig.path, ig.sizeOf)
	for _, e := range errs {
		ig.log.Warn().Err(e).Msg("config entry rejected at ingest")
	}
	diff := Compute(nil, entries)
	ig.current = entries
	return diff
}

// Run watches for file-system events and sends a Diff on diffs each time
// the config file changes, until ctx is canceled. It never blocks the
// caller's event loop beyond the channel send.
func (ig *Ingest) Run(ctx context.Context, diffs chan<- Diff) {
	defer ig.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ig.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(ig.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			ig.reload(ctx, diffs)
		case err, ok := <-ig.watcher.Errors:
			if !ok {
				return
			}
			ig.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (ig *Ingest) reload(ctx context.Context, diffs chan<- Diff) {
	entries, errs := ParseFile(ig.path, ig.sizeOf)
	for _, e := range errs {
		ig.log.Warn().Err(e).Msg("config entry rejected at ingest")
	}
	if len(entries) == 0 && len(errs) > 0 {
		// Unreadable file or no valid entry: keep the last good state.
		return
	}
	diff := Compute(ig.current, entries)
	ig.current = entries
	if diff.IsEmpty() {
		return
	}
	select {
	case diffs <- diff:
	case <-ctx.Done():
	}
}
