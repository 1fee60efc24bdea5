package router

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/conneroisu/mdpreview/internal/content"
	"github.com/conneroisu/mdpreview/internal/errors"
	"github.com/conneroisu/mdpreview/internal/renderer"
	"github.com/conneroisu/mdpreview/internal/types"
	"github.com/conneroisu/mdpreview/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	docPath = "/notes/doc.md"
	cssPath = "/notes/style.css"
)

// fakeReader serves file contents from memory.
type fakeReader struct {
	mu    sync.Mutex
	files map[string]string
	errs  map[string]error
	reads int
}

func newFakeReader() *fakeReader {
	return &fakeReader{files: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeReader) set(path, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = text
	delete(f.errs, path)
}

func (f *fakeReader) fail(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[path] = err
}

func (f *fakeReader) Read(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if err, ok := f.errs[path]; ok {
		return "", err
	}
	text, ok := f.files[path]
	if !ok {
		return "", errors.WrapIO(fs.ErrNotExist, "reading file", path)
	}
	return text, nil
}

type stubRenderer struct{}

func (stubRenderer) Render(text string) string { return "rendered:" + text }

// recorder collects published updates.
type recorder struct {
	updates chan types.Update
}

func (r *recorder) Broadcast(update types.Update) {
	r.updates <- update
}

type harness struct {
	events chan watcher.RawChangeEvent
	reader *fakeReader
	pub    *recorder
	done   chan error
	cancel context.CancelFunc
}

func startRouter(t *testing.T, debounce time.Duration, targets ...types.WatchTarget) *harness {
	t.Helper()

	h := &harness{
		events: make(chan watcher.RawChangeEvent, 64),
		reader: newFakeReader(),
		pub:    &recorder{updates: make(chan types.Update, 16)},
		done:   make(chan error, 1),
	}

	r := New(Config{
		Targets:   targets,
		Events:    h.events,
		Reader:    h.reader,
		Renderer:  stubRenderer{},
		Publisher: h.pub,
		Debounce:  debounce,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- r.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) send(path string, kind watcher.Kind) {
	h.events <- watcher.RawChangeEvent{Path: path, Kind: kind}
}

func (h *harness) next(t *testing.T) types.Update {
	t.Helper()
	select {
	case u := <-h.pub.updates:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no update published")
		return types.Update{}
	}
}

func (h *harness) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case u := <-h.pub.updates:
		t.Fatalf("unexpected update: content=%v stylesheet=%v", u.Content != nil, u.Stylesheet != nil)
	case <-time.After(wait):
	}
}

func documentOnly() []types.WatchTarget {
	return []types.WatchTarget{{Path: docPath, Role: types.RoleDocument}}
}

func documentAndStylesheet() []types.WatchTarget {
	return []types.WatchTarget{
		{Path: docPath, Role: types.RoleDocument},
		{Path: cssPath, Role: types.RoleStylesheet},
	}
}

func TestBurstEmitsOneUpdateWithLastWrite(t *testing.T) {
	h := startRouter(t, 100*time.Millisecond, documentOnly()...)

	h.reader.set(docPath, "one")
	h.send(docPath, watcher.KindModified)
	h.reader.set(docPath, "two")
	h.send(docPath, watcher.KindModified)
	h.reader.set(docPath, "three")
	h.send(docPath, watcher.KindModified)

	u := h.next(t)
	require.NotNil(t, u.Content)
	assert.Equal(t, "rendered:three", *u.Content)
	assert.Nil(t, u.Stylesheet)

	h.expectNone(t, 300*time.Millisecond)
}

func TestSeparateWindowsEmitSeparateUpdates(t *testing.T) {
	h := startRouter(t, 30*time.Millisecond, documentAndStylesheet()...)
	h.reader.set(docPath, "# doc")
	h.reader.set(cssPath, "body {}")

	h.send(docPath, watcher.KindModified)
	first := h.next(t)
	require.NotNil(t, first.Content)
	assert.Nil(t, first.Stylesheet)

	h.send(cssPath, watcher.KindModified)
	second := h.next(t)
	assert.Nil(t, second.Content)
	require.NotNil(t, second.Stylesheet)
	assert.Equal(t, "body {}", *second.Stylesheet)

	h.expectNone(t, 100*time.Millisecond)
}

func TestBothTargetsInOneBurst(t *testing.T) {
	h := startRouter(t, 100*time.Millisecond, documentAndStylesheet()...)
	h.reader.set(docPath, "text")
	h.reader.set(cssPath, "p { color: red }")

	h.send(cssPath, watcher.KindModified)
	h.send(docPath, watcher.KindModified)

	u := h.next(t)
	require.True(t, u.IsComplete())
	assert.Equal(t, "rendered:text", *u.Content)
	assert.Equal(t, "p { color: red }", *u.Stylesheet)

	h.expectNone(t, 250*time.Millisecond)
}

func TestResaveWithIdenticalContentStillPublishes(t *testing.T) {
	h := startRouter(t, 30*time.Millisecond, documentOnly()...)
	h.reader.set(docPath, "same")

	h.send(docPath, watcher.KindModified)
	first := h.next(t)

	h.send(docPath, watcher.KindModified)
	second := h.next(t)

	assert.Equal(t, *first.Content, *second.Content)
}

func TestCreateIsHonored(t *testing.T) {
	h := startRouter(t, 30*time.Millisecond, documentOnly()...)
	h.reader.set(docPath, "replaced by rename")

	h.send(docPath, watcher.KindCreated)

	u := h.next(t)
	require.NotNil(t, u.Content)
	assert.Equal(t, "rendered:replaced by rename", *u.Content)
}

func TestCreateAndModifyCoalesce(t *testing.T) {
	h := startRouter(t, 100*time.Millisecond, documentOnly()...)
	h.reader.set(docPath, "x")

	h.send(docPath, watcher.KindCreated)
	h.send(docPath, watcher.KindModified)

	h.next(t)
	h.expectNone(t, 250*time.Millisecond)
}

func TestRemovedWhileIdleIsIgnored(t *testing.T) {
	h := startRouter(t, 30*time.Millisecond, documentOnly()...)
	h.reader.set(docPath, "x")

	h.send(docPath, watcher.KindRemoved)
	h.send(docPath, watcher.KindOther)

	h.expectNone(t, 150*time.Millisecond)
}

func TestRemovedWhileCollectingDoesNotAddPath(t *testing.T) {
	h := startRouter(t, 100*time.Millisecond, documentAndStylesheet()...)
	h.reader.set(docPath, "doc")
	h.reader.set(cssPath, "css")

	h.send(cssPath, watcher.KindModified)
	h.send(docPath, watcher.KindRemoved)

	u := h.next(t)
	assert.Nil(t, u.Content)
	require.NotNil(t, u.Stylesheet)
}

func TestUnknownPathIsIgnored(t *testing.T) {
	h := startRouter(t, 30*time.Millisecond, documentOnly()...)
	h.reader.set(docPath, "doc")

	h.send("/notes/sibling.md", watcher.KindModified)
	h.expectNone(t, 150*time.Millisecond)

	// the router keeps working afterwards
	h.send(docPath, watcher.KindModified)
	u := h.next(t)
	assert.NotNil(t, u.Content)
}

func TestSiblingWritesDoNotDelayBurst(t *testing.T) {
	h := startRouter(t, 30*time.Millisecond, documentOnly()...)
	h.reader.set(docPath, "doc")

	stop := make(chan struct{})
	stopped := make(chan struct{})
	defer func() {
		close(stop)
		<-stopped
	}()

	h.send(docPath, watcher.KindModified)
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				select {
				case h.events <- watcher.RawChangeEvent{Path: "/notes/build.log", Kind: watcher.KindModified}:
				case <-stop:
					return
				}
			}
		}
	}()

	select {
	case u := <-h.pub.updates:
		require.NotNil(t, u.Content)
		assert.Equal(t, "rendered:doc", *u.Content)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("document update held back by sibling writes")
	}
}

func TestTargetRemovalExtendsWindow(t *testing.T) {
	h := startRouter(t, 80*time.Millisecond, documentOnly()...)
	h.reader.set(docPath, "doc")

	start := time.Now()
	h.send(docPath, watcher.KindModified)
	time.Sleep(50 * time.Millisecond)
	h.send(docPath, watcher.KindRemoved)

	u := h.next(t)
	assert.NotNil(t, u.Content)
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
}

func TestReadErrorSkipsUpdate(t *testing.T) {
	h := startRouter(t, 30*time.Millisecond, documentOnly()...)
	h.reader.fail(docPath, errors.WrapIO(fs.ErrPermission, "reading file", docPath))

	h.send(docPath, watcher.KindModified)
	h.expectNone(t, 150*time.Millisecond)

	h.reader.set(docPath, "readable again")
	h.send(docPath, watcher.KindModified)
	u := h.next(t)
	assert.Equal(t, "rendered:readable again", *u.Content)
}

func TestReadErrorKeepsOtherField(t *testing.T) {
	h := startRouter(t, 100*time.Millisecond, documentAndStylesheet()...)
	h.reader.fail(docPath, errors.NewEncodingError("invalid UTF-8"))
	h.reader.set(cssPath, "css")

	h.send(docPath, watcher.KindModified)
	h.send(cssPath, watcher.KindModified)

	u := h.next(t)
	assert.Nil(t, u.Content)
	require.NotNil(t, u.Stylesheet)
	assert.Equal(t, "css", *u.Stylesheet)
}

func TestUnrecoverableReadErrorStopsRouter(t *testing.T) {
	h := startRouter(t, 30*time.Millisecond, documentOnly()...)
	h.reader.fail(docPath, errors.NewInternalError(errors.ErrCodeInternalError, "reader closed", nil))

	h.send(docPath, watcher.KindModified)

	select {
	case err := <-h.done:
		require.Error(t, err)
		assert.False(t, errors.IsRecoverable(err))
		assert.Equal(t, docPath, errors.GetErrorContext(err)["path"])
		h.done <- err
	case <-time.After(time.Second):
		t.Fatal("router kept running after an unrecoverable read error")
	}
	h.expectNone(t, 50*time.Millisecond)
}

func TestFlushesPendingBurstWhenEventsClose(t *testing.T) {
	h := startRouter(t, time.Hour, documentOnly()...)
	h.reader.set(docPath, "final")

	h.send(docPath, watcher.KindModified)
	close(h.events)

	u := h.next(t)
	assert.Equal(t, "rendered:final", *u.Content)

	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(time.Second):
		t.Fatal("router did not stop after events closed")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := startRouter(t, 30*time.Millisecond, documentOnly()...)

	h.cancel()

	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(time.Second):
		t.Fatal("router did not stop after cancel")
	}
}

func TestDefaultDebounce(t *testing.T) {
	r := New(Config{})
	assert.Equal(t, DefaultDebounce, r.debounce)
}

// writeFile writes text to path in the given test directory.
func writeFile(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

// startDiskRouter wires the router to real files, the real content source
// and the real Markdown renderer.
func startDiskRouter(t *testing.T, debounce time.Duration, targets []types.WatchTarget) (chan watcher.RawChangeEvent, *recorder) {
	t.Helper()

	events := make(chan watcher.RawChangeEvent, 64)
	pub := &recorder{updates: make(chan types.Update, 16)}

	r := New(Config{
		Targets:   targets,
		Events:    events,
		Reader:    content.NewSource(),
		Renderer:  renderer.New(renderer.Options{}),
		Publisher: pub,
		Debounce:  debounce,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return events, pub
}

func canonicalTemp(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestDocumentEditScenario(t *testing.T) {
	dir := canonicalTemp(t)
	doc := filepath.Join(dir, "doc.md")
	writeFile(t, doc, "# Title")

	events, pub := startDiskRouter(t, 30*time.Millisecond, []types.WatchTarget{{Path: doc, Role: types.RoleDocument}})

	writeFile(t, doc, "# Title\n\nBody")
	events <- watcher.RawChangeEvent{Path: doc, Kind: watcher.KindModified}

	select {
	case u := <-pub.updates:
		require.NotNil(t, u.Content)
		assert.Nil(t, u.Stylesheet)
		assert.Contains(t, *u.Content, "Title</h1>")
		assert.Contains(t, *u.Content, "<p>Body</p>")
	case <-time.After(2 * time.Second):
		t.Fatal("no update")
	}
}

func TestStylesheetWritesInsideOneWindow(t *testing.T) {
	dir := canonicalTemp(t)
	doc := filepath.Join(dir, "doc.md")
	css := filepath.Join(dir, "style.css")
	writeFile(t, doc, "# Title")
	writeFile(t, css, "body { margin: 0 }")

	events, pub := startDiskRouter(t, 30*time.Millisecond, []types.WatchTarget{
		{Path: doc, Role: types.RoleDocument},
		{Path: css, Role: types.RoleStylesheet},
	})

	writeFile(t, css, "body { margin: 1px }")
	events <- watcher.RawChangeEvent{Path: css, Kind: watcher.KindModified}
	time.Sleep(5 * time.Millisecond)
	writeFile(t, css, "body { margin: 2px }")
	events <- watcher.RawChangeEvent{Path: css, Kind: watcher.KindModified}

	select {
	case u := <-pub.updates:
		assert.Nil(t, u.Content)
		require.NotNil(t, u.Stylesheet)
		assert.Equal(t, "body { margin: 2px }", *u.Stylesheet)
	case <-time.After(2 * time.Second):
		t.Fatal("no update")
	}

	select {
	case <-pub.updates:
		t.Fatal("second update for a single burst")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSymlinkedEventPathResolves(t *testing.T) {
	dir := canonicalTemp(t)
	doc := filepath.Join(dir, "doc.md")
	writeFile(t, doc, "# Linked")

	link := filepath.Join(dir, "link.md")
	if err := os.Symlink(doc, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	events, pub := startDiskRouter(t, 30*time.Millisecond, []types.WatchTarget{{Path: doc, Role: types.RoleDocument}})
	events <- watcher.RawChangeEvent{Path: link, Kind: watcher.KindModified}

	select {
	case u := <-pub.updates:
		require.NotNil(t, u.Content)
		assert.Contains(t, *u.Content, "Linked</h1>")
	case <-time.After(2 * time.Second):
		t.Fatal("no update")
	}
}
