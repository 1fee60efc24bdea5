// Package watcher turns filesystem notifications for the preview targets
// into a stream of RawChangeEvents.
//
// The containing directory of each target is watched non-recursively, since
// many editors save by writing a temporary file and renaming it over the
// original, which a watch on the file itself would lose. Events are delivered
// on a bounded channel; when the consumer falls behind, new events are
// dropped and counted instead of blocking the notifier.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/mdpreview/internal/errors"
	"github.com/conneroisu/mdpreview/internal/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// Kind represents the type of file change
type Kind int

const (
	KindCreated Kind = iota
	KindModified
	KindRemoved
	KindOther
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	case KindRemoved:
		return "removed"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// RawChangeEvent is one low-level notification. Arrival order is the only
// notion of time.
type RawChangeEvent struct {
	Path string
	Kind Kind
}

// DefaultBufferSize is the capacity of the event channel.
const DefaultBufferSize = 64

// DefaultIgnorePatterns match the scratch files common editors write next to
// the file being edited.
var DefaultIgnorePatterns = []string{
	"*.swp",
	"*.swx",
	"*.swo",
	"*~",
	".#*",
	"#*#",
	"4913",
	"*.tmp",
}

// Options configures a Watcher.
type Options struct {
	// BufferSize is the capacity of the event channel.
	BufferSize int
	// Ignore lists glob patterns matched against the base name of each
	// changed file.
	Ignore []string
}

// Watcher watches a fixed set of directories for changes.
type Watcher struct {
	fs      *fsnotify.Watcher
	events  chan RawChangeEvent
	ignore  []glob.Glob
	logger  logging.Logger
	dropped atomic.Uint64

	mu      sync.Mutex
	dirs    map[string]struct{}
	started bool
}

// New creates a watcher. Nothing is watched until Add is called.
func New(opts Options, logger logging.Logger) (*Watcher, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	ignore, err := CompilePatterns(opts.Ignore)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapWatch(err, "creating filesystem watcher", "")
	}

	return &Watcher{
		fs:     fsw,
		events: make(chan RawChangeEvent, opts.BufferSize),
		ignore: ignore,
		logger: logger.WithComponent("watcher"),
		dirs:   make(map[string]struct{}),
	}, nil
}

// CompilePatterns compiles glob patterns, rejecting the first invalid one.
func CompilePatterns(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.NewConfigError(
				errors.ErrCodeWatchPattern,
				fmt.Sprintf("invalid ignore pattern %q: %v", pattern, err),
			)
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

// Add subscribes to changes of the file at path by watching its directory.
// Adding two files from the same directory creates a single subscription.
func (w *Watcher) Add(path string) error {
	canonical, err := Canonical(path)
	if err != nil {
		return errors.WrapWatch(err, "resolving watch path", path)
	}

	dir := filepath.Dir(canonical)
	info, err := os.Stat(dir)
	if err != nil {
		return errors.WrapWatch(err, "watching directory", dir)
	}
	if !info.IsDir() {
		return errors.NewWatchError(errors.ErrCodeWatchSubscribe, "not a directory", nil).WithPath(dir)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return errors.WrapWatch(err, "watching directory", dir)
	}
	w.dirs[dir] = struct{}{}
	w.logger.Debug(context.Background(), "Watching directory", "dir", dir)

	return nil
}

// Events returns the channel of raw change events. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan RawChangeEvent {
	return w.events
}

// Dropped returns how many events were discarded because the channel was
// full.
func (w *Watcher) Dropped() uint64 {
	return w.dropped.Load()
}

// Start begins delivering events until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Close releases the underlying notifier.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			// Overflow and similar errors are not fatal; keep watching.
			w.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if w.ignored(event.Name) {
		return
	}

	raw := RawChangeEvent{Path: event.Name, Kind: kindOf(event.Op)}

	select {
	case w.events <- raw:
	default:
		dropped := w.dropped.Add(1)
		w.logger.Debug(ctx, "Event queue full, dropping event",
			"path", raw.Path, "kind", raw.Kind.String(), "dropped_total", dropped)
	}
}

func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.ignore {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func kindOf(op fsnotify.Op) Kind {
	switch {
	case op.Has(fsnotify.Create):
		return KindCreated
	case op.Has(fsnotify.Write):
		return KindModified
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return KindRemoved
	default:
		return KindOther
	}
}
