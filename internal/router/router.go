// Package router coalesces raw change notifications into Updates.
//
// The Router is a two-state machine driven by a single loop. While Idle it
// waits for the next raw event. The first Created or Modified event moves it
// to Collecting and arms the debounce timer; every further event for a
// watch target pushes the deadline back. Events are resolved against the
// targets as they arrive, so sibling files in a watched directory never
// delay a burst. When the timer fires the changed targets are re-read and
// exactly one Update is published.
package router

import (
	"context"
	"path/filepath"
	"time"

	"github.com/conneroisu/mdpreview/internal/errors"
	"github.com/conneroisu/mdpreview/internal/logging"
	"github.com/conneroisu/mdpreview/internal/types"
	"github.com/conneroisu/mdpreview/internal/watcher"
)

// DefaultDebounce is the quiet period that ends a burst.
const DefaultDebounce = 30 * time.Millisecond

// Reader returns the current text of a file.
type Reader interface {
	Read(path string) (string, error)
}

// Renderer converts document text into markup.
type Renderer interface {
	Render(text string) string
}

// Publisher receives every Update the router emits.
type Publisher interface {
	Broadcast(update types.Update)
}

// Config wires a Router to its collaborators.
type Config struct {
	Targets   []types.WatchTarget
	Events    <-chan watcher.RawChangeEvent
	Reader    Reader
	Renderer  Renderer
	Publisher Publisher
	Debounce  time.Duration
	Logger    logging.Logger
}

type state int

const (
	stateIdle state = iota
	stateCollecting
)

// Router is the debounce loop between the watcher and the hub.
type Router struct {
	targets   map[string]types.Role
	events    <-chan watcher.RawChangeEvent
	reader    Reader
	renderer  Renderer
	publisher Publisher
	debounce  time.Duration
	logger    logging.Logger

	state   state
	pending map[types.Role]string
}

// New creates a router. Target paths are expected to be canonical already.
func New(cfg Config) *Router {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	targets := make(map[string]types.Role, len(cfg.Targets))
	for _, t := range cfg.Targets {
		targets[t.Path] = t.Role
	}

	return &Router{
		targets:   targets,
		events:    cfg.Events,
		reader:    cfg.Reader,
		renderer:  cfg.Renderer,
		publisher: cfg.Publisher,
		debounce:  cfg.Debounce,
		logger:    cfg.Logger.WithComponent("router"),
		pending:   make(map[types.Role]string),
	}
}

// Run consumes events until ctx is cancelled or the event channel closes.
// A burst still being collected when the channel closes is flushed first.
// Recoverable read failures only skip the affected field; any other read
// failure stops the router and is returned.
func (r *Router) Run(ctx context.Context) error {
	timer := time.NewTimer(r.debounce)
	timer.Stop()
	defer timer.Stop()

	// nil while Idle so the select never wakes on a stale deadline
	var expired <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-r.events:
			if !ok {
				if r.state == stateCollecting {
					return r.flush(ctx)
				}
				return nil
			}
			if !r.observe(ctx, ev) {
				continue
			}
			timer.Reset(r.debounce)
			expired = timer.C

		case <-expired:
			expired = nil
			if err := r.flush(ctx); err != nil {
				return err
			}
		}
	}
}

// observe records ev and reports whether the debounce deadline should move.
// Paths that are not watch targets are logged and dropped here.
func (r *Router) observe(ctx context.Context, ev watcher.RawChangeEvent) bool {
	changed := ev.Kind == watcher.KindCreated || ev.Kind == watcher.KindModified
	if r.state == stateIdle && !changed {
		return false
	}

	role, target, ok := r.resolve(filepath.Clean(ev.Path))
	if !ok {
		r.logger.Warn(ctx, errors.ErrUnknownPath(ev.Path), "Ignoring change for untracked path")
		return false
	}

	r.state = stateCollecting
	if changed {
		r.pending[role] = target
	}
	return true
}

// flush re-reads the pending targets, publishes at most one Update and
// returns the router to Idle.
func (r *Router) flush(ctx context.Context) error {
	roles := r.pending
	r.pending = make(map[types.Role]string)
	r.state = stateIdle

	if len(roles) == 0 {
		return nil
	}

	perf := logging.StartOperation(r.logger, "flush")
	defer perf.End(ctx)

	var update types.Update

	if path, ok := roles[types.RoleDocument]; ok {
		text, err := r.read(ctx, path, "Skipping document update")
		if err != nil {
			return err
		}
		if text != nil {
			update = update.Merge(types.ContentUpdate(r.renderer.Render(*text)))
		}
	}

	if path, ok := roles[types.RoleStylesheet]; ok {
		text, err := r.read(ctx, path, "Skipping stylesheet update")
		if err != nil {
			return err
		}
		if text != nil {
			update = update.Merge(types.StylesheetUpdate(*text))
		}
	}

	if update.IsEmpty() {
		return nil
	}

	r.logger.Debug(ctx, "Publishing update",
		"content", update.Content != nil,
		"stylesheet", update.Stylesheet != nil,
	)
	r.publisher.Broadcast(update)
	return nil
}

// read returns nil text when a recoverable failure should skip the field.
func (r *Router) read(ctx context.Context, path, skipMsg string) (*string, error) {
	text, err := r.reader.Read(path)
	if err == nil {
		return &text, nil
	}
	if errors.IsRecoverable(err) {
		r.logger.Warn(ctx, err, skipMsg, "path", path)
		return nil, nil
	}
	return nil, errors.WrapInternal(err, errors.ErrCodeFileRead, "reading watch target").WithPath(path)
}

// resolve maps a path reported by the watcher onto a target. Exact matches
// are tried first; otherwise the path is canonicalized so relative or
// symlinked names still compare equal.
func (r *Router) resolve(path string) (types.Role, string, bool) {
	if role, ok := r.targets[path]; ok {
		return role, path, true
	}

	canonical, err := watcher.Canonical(path)
	if err != nil {
		return 0, "", false
	}
	role, ok := r.targets[canonical]
	return role, canonical, ok
}
