// Package preview assembles the live preview pipeline: the file watcher
// feeds the router, the router renders and publishes to the hub, and the
// hub pushes Updates to every viewer that loaded the page served by the
// presentation server.
//
// Everything that can fail at startup (reading the targets, subscribing to
// their directories, binding both ports) fails in New or Start, before any
// goroutine is running. After that the pipeline only stops when its context
// is cancelled or one of the listeners dies.
package preview

import (
	"context"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/mdpreview/internal/assets"
	"github.com/conneroisu/mdpreview/internal/config"
	"github.com/conneroisu/mdpreview/internal/content"
	"github.com/conneroisu/mdpreview/internal/errors"
	"github.com/conneroisu/mdpreview/internal/hub"
	"github.com/conneroisu/mdpreview/internal/logging"
	"github.com/conneroisu/mdpreview/internal/renderer"
	"github.com/conneroisu/mdpreview/internal/router"
	"github.com/conneroisu/mdpreview/internal/server"
	"github.com/conneroisu/mdpreview/internal/types"
	"github.com/conneroisu/mdpreview/internal/version"
	"github.com/conneroisu/mdpreview/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

// replaced in tests
var (
	interfaceAddrs = net.InterfaceAddrs
	hostname       = os.Hostname
)

// Preview is one running preview of a document.
type Preview struct {
	cfg    *config.Config
	logger logging.Logger

	targets  []types.WatchTarget
	document string
	renderer *renderer.Renderer
	watcher  *watcher.Watcher
	hub      *hub.Hub
	router   *router.Router

	mu     sync.Mutex
	page   *server.Endpoint
	ws     *server.Endpoint
	cancel context.CancelFunc
	errs   chan error
	wg     sync.WaitGroup
	ctx    context.Context
}

// New reads the targets, renders the initial state and subscribes to
// changes. Nothing is served until Start.
func New(cfg *config.Config, logger logging.Logger) (*Preview, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("preview")
	ctx := context.Background()

	source := content.NewSource()

	document, err := watcher.Canonical(cfg.Document)
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeDocumentMissing, "resolving document").
			WithPath(cfg.Document)
	}
	text, err := source.Read(document)
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeDocumentMissing, "reading document").
			WithPath(document)
	}
	targets := []types.WatchTarget{{Path: document, Role: types.RoleDocument}}

	stylesheet := assets.DefaultStylesheet
	if cfg.Stylesheet != "" {
		path, err := watcher.Canonical(cfg.Stylesheet)
		if err != nil {
			return nil, errors.WrapConfig(err, errors.ErrCodeStylesheet, "resolving stylesheet").
				WithPath(cfg.Stylesheet)
		}
		if stylesheet, err = source.Read(path); err != nil {
			return nil, errors.WrapConfig(err, errors.ErrCodeStylesheet, "reading stylesheet").
				WithPath(path)
		}
		targets = append(targets, types.WatchTarget{Path: path, Role: types.RoleStylesheet})
	}

	r := renderer.New(renderer.Options{
		HighlightStyle: cfg.Render.HighlightStyle,
		Sanitize:       cfg.Render.Sanitize,
	})
	initial := types.NewUpdate(r.Render(text), stylesheet)

	w, err := watcher.New(watcher.Options{
		BufferSize: cfg.Watch.BufferSize,
		Ignore:     cfg.Watch.Ignore,
	}, logger)
	if err != nil {
		return nil, err
	}
	for _, target := range targets {
		if err := w.Add(target.Path); err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	h := hub.New(initial, hub.Options{OriginPatterns: originPatterns(cfg.Server.Host)}, logger)

	rt := router.New(router.Config{
		Targets:   targets,
		Events:    w.Events(),
		Reader:    source,
		Renderer:  r,
		Publisher: h,
		Debounce:  cfg.Watch.Debounce,
		Logger:    logger,
	})

	logger.Info(ctx, "Preview ready", "document", document, "targets", len(targets))

	return &Preview{
		cfg:      cfg,
		logger:   logger,
		targets:  targets,
		document: document,
		renderer: r,
		watcher:  w,
		hub:      h,
		router:   rt,
	}, nil
}

// Start binds both ports and starts the pipeline. It returns once
// everything is listening; use Wait to block until the preview stops.
func (p *Preview) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "preview already started", nil)
	}

	host := p.cfg.Server.Host

	ws, err := server.Listen("websocket", net.JoinHostPort(host, strconv.Itoa(p.cfg.Server.WebSocketPort)), p.hub, p.logger)
	if err != nil {
		_ = p.watcher.Close()
		return err
	}

	srv := server.New(server.Options{
		Document:      p.document,
		WebSocketPort: ws.Port(),
		HighlightCSS:  p.renderer.HighlightCSS(),
		Version:       version.GetShortVersion(),
	}, p.hub, p.logger)

	page, err := server.Listen("http", net.JoinHostPort(host, strconv.Itoa(p.cfg.Server.Port)), srv.Handler(), p.logger)
	if err != nil {
		_ = ws.Shutdown(context.Background())
		_ = p.watcher.Close()
		return err
	}

	p.ws, p.page = ws, page
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.errs = make(chan error, 3)

	p.watcher.Start(p.ctx)

	p.spawn(func() error { return p.router.Run(p.ctx) })
	p.spawn(ws.Serve)
	p.spawn(page.Serve)

	p.wg.Add(1)
	go p.shutdownOnDone()

	p.logger.Info(p.ctx, "Serving preview", "url", p.urlLocked(), "websocket", ws.Addr().String())

	if p.cfg.Server.Open {
		go server.OpenBrowser(p.ctx, p.urlLocked(), p.logger)
	}

	return nil
}

// Wait blocks until the preview stops and returns the error that stopped
// it, or nil when its context was cancelled.
func (p *Preview) Wait() error {
	p.mu.Lock()
	ctx, cancel, errs := p.ctx, p.cancel, p.errs
	p.mu.Unlock()

	if cancel == nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "preview not started", nil)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
		p.logger.Error(ctx, err, "Preview stopped")
	}

	cancel()
	p.wg.Wait()
	return err
}

// Run starts the preview and blocks until it stops.
func (p *Preview) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	return p.Wait()
}

// URL returns the address of the presentation page.
func (p *Preview) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.urlLocked()
}

// Addr returns the bound address of the presentation server.
func (p *Preview) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.page == nil {
		return nil
	}
	return p.page.Addr()
}

// WebSocketAddr returns the bound address of the websocket endpoint.
func (p *Preview) WebSocketAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ws == nil {
		return nil
	}
	return p.ws.Addr()
}

// Current returns the state a newly connecting viewer would receive.
func (p *Preview) Current() types.Update {
	return p.hub.Current()
}

// Targets returns the canonical watch targets.
func (p *Preview) Targets() []types.WatchTarget {
	return append([]types.WatchTarget(nil), p.targets...)
}

func (p *Preview) spawn(fn func() error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := fn(); err != nil {
			p.errs <- err
		}
	}()
}

// shutdownOnDone tears the pipeline down once the run context ends. The
// hub is closed before the endpoints because hijacked websocket
// connections are invisible to http.Server.Shutdown.
func (p *Preview) shutdownOnDone() {
	defer p.wg.Done()
	<-p.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	_ = p.hub.Close()
	if err := p.page.Shutdown(ctx); err != nil {
		p.logger.Warn(ctx, err, "Presentation server shutdown failed")
	}
	if err := p.ws.Shutdown(ctx); err != nil {
		p.logger.Warn(ctx, err, "WebSocket server shutdown failed")
	}
	if err := p.watcher.Close(); err != nil {
		p.logger.Warn(ctx, err, "Closing file watcher failed")
	}

	p.logger.Info(ctx, "Preview stopped", "dropped_events", p.watcher.Dropped())
}

func (p *Preview) urlLocked() string {
	if p.page == nil {
		return ""
	}
	host := p.cfg.Server.Host
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		host = "localhost"
	}
	u := url.URL{Scheme: "http", Host: net.JoinHostPort(host, strconv.Itoa(p.page.Port())), Path: "/"}
	return u.String()
}

// originPatterns extends the local defaults with the configured host so a
// page opened through a LAN address can still connect. A wildcard bind
// accepts the machine's own interface addresses and hostname.
func originPatterns(host string) []string {
	patterns := append([]string(nil), hub.DefaultOriginPatterns...)
	add := func(p string) {
		if !slices.Contains(patterns, p) {
			patterns = append(patterns, p)
		}
	}

	if host == "" || host == "localhost" {
		return patterns
	}

	ip := net.ParseIP(host)
	switch {
	case ip == nil:
		add(host + ":*")
	case ip.IsUnspecified():
		if name, err := hostname(); err == nil && name != "" {
			add(name + ":*")
		}
		addrs, _ := interfaceAddrs()
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLinkLocalUnicast() {
				continue
			}
			if ip.To4() != nil && ipnet.IP.To4() == nil {
				continue
			}
			add(ipOriginPattern(ipnet.IP))
		}
	default:
		add(ipOriginPattern(ip))
	}
	return patterns
}

// ipOriginPattern matches any port on ip as it appears in an Origin header.
func ipOriginPattern(ip net.IP) string {
	if ip.To4() != nil {
		return ip.String() + ":*"
	}
	return `\[` + ip.String() + `\]:*`
}
