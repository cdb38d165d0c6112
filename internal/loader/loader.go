// Package loader implements the Async Loader (C3): a single worker
// goroutine that performs blocking directory walks off the Orchestrator's
// event-loop goroutine (it has no image-decode command; Frame Sources
// decode when prepared), reporting results back tagged by
// output so stale results (superseded by a config change or detach) can be
// discarded without blocking the worker.
package loader

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cosmic-wall/wallpaperd/internal/wallpaperconfig"
)

// Command is a unit of work sent to the loader's worker.
type Command struct {
	Output    string
	Kind      CommandKind
	Directory string    // for ScanDirectory
	ScanID    uuid.UUID // identifies this specific scan request
}

type CommandKind int

const (
	ScanDirectory CommandKind = iota
	Shutdown
)

// Result is one outcome delivered back to the Orchestrator. ScanID echoes
// the Command that produced it, so a Wallpaper that issued a second scan
// before the first one returned (directory changed again mid-scan) can
// discard the stale one instead of letting it clobber newer state.
type Result struct {
	Output  string
	Kind    ResultKind
	ScanID  uuid.UUID
	Entries []string // for DirectoryScanned: image file paths, unsorted order of discovery
	Err     error    // for LoadError
}

type ResultKind int

const (
	DirectoryScanned ResultKind = iota
	LoadError
)

// imageExtensions bounds what ScanDirectory treats as candidate wallpaper
// images, matching the formats the frame package's Static source decodes.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true,
	".tif": true, ".tiff": true, ".webp": true, ".jxl": true, ".gif": true,
}

// Loader runs one worker goroutine draining Commands and producing Results.
type Loader struct {
	commands chan Command
	results  chan Result
}

// New starts the worker goroutine and returns a handle. Commands is
// buffered so the Orchestrator's event loop never blocks submitting work;
// Results is buffered similarly so the worker never blocks delivering it.
func New(ctx context.Context) *Loader {
	l := &Loader{
		commands: make(chan Command, 32),
		results:  make(chan Result, 32),
	}
	go l.run(ctx)
	return l
}

// Commands returns the channel the Orchestrator sends work on.
func (l *Loader) Commands() chan<- Command { return l.commands }

// Results returns the channel the Orchestrator drains outcomes from. It is
// closed when the worker exits, signaling the Orchestrator to treat the
// Loader as failed per spec.md's "graceful shutdown on Loader channel
// failure."
func (l *Loader) Results() <-chan Result { return l.results }

func (l *Loader) run(ctx context.Context) {
	defer close(l.results)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-l.commands:
			if !ok {
				return
			}
			if cmd.Kind == Shutdown {
				return
			}
			l.handle(cmd)
		}
	}
}

func (l *Loader) handle(cmd Command) {
	switch cmd.Kind {
	case ScanDirectory:
		entries, err := scanDirectory(cmd.Directory)
		if err != nil {
			l.results <- Result{Output: cmd.Output, Kind: LoadError, ScanID: cmd.ScanID, Err: err}
			return
		}
		l.results <- Result{Output: cmd.Output, Kind: DirectoryScanned, ScanID: cmd.ScanID, Entries: entries}
	}
}

// scanDirectory lists image files directly inside dir (non-recursive,
// matching spec.md 4.2's "slideshow directories are scanned one level
// deep").
func scanDirectory(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if !imageExtensions[ext] {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// OrderEntries applies a SamplingMethod to a freshly scanned file list,
// matching spec.md 4.2's slideshow ordering rule: alphanumeric is
// deterministic across restarts, random reshuffles on every scan.
func OrderEntries(entries []string, sampling wallpaperconfig.SamplingMethod, shuffle func([]string)) []string {
	ordered := append([]string(nil), entries...)
	switch sampling {
	case wallpaperconfig.SamplingRandom:
		if shuffle != nil {
			shuffle(ordered)
		}
	default:
		sort.Strings(ordered)
	}
	return ordered
}

// LogDropped logs entries discarded because they arrived for an output the
// Orchestrator no longer tracks (stale result discarding).
func LogDropped(output string, kind ResultKind) {
	log.Debug().Str("output", output).Int("kind", int(kind)).Msg("[Loader] dropped stale result for detached output")
}
