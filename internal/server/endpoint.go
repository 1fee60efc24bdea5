package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/conneroisu/mdpreview/internal/errors"
	"github.com/conneroisu/mdpreview/internal/logging"
)

// Endpoint is a bound listener plus the HTTP server that serves it. Binding
// happens in Listen so port conflicts surface before anything is served.
type Endpoint struct {
	name     string
	listener net.Listener
	server   *http.Server
	logger   logging.Logger
}

// Listen binds addr and prepares handler to be served on it.
func Listen(name, addr string, handler http.Handler, logger logging.Logger) (*Endpoint, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNetwork, errors.ErrCodeListen, "listening for "+name).
			WithContext("addr", addr)
	}

	return &Endpoint{
		name:     name,
		listener: ln,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.WithComponent(name),
	}, nil
}

// Addr returns the bound address, which differs from the requested one
// when port 0 was used.
func (e *Endpoint) Addr() net.Addr {
	return e.listener.Addr()
}

// Port returns the bound TCP port.
func (e *Endpoint) Port() int {
	if tcp, ok := e.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Serve blocks until the endpoint is shut down. A clean shutdown returns nil.
func (e *Endpoint) Serve() error {
	e.logger.Info(context.Background(), "Listening", "addr", e.Addr().String())

	if err := e.server.Serve(e.listener); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, errors.ErrorTypeNetwork, errors.ErrCodeListen, e.name+" stopped")
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests. It
// also releases the listener of an endpoint that was never served.
// Hijacked websocket connections are not tracked here and must be closed
// by their owner.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	err := e.server.Shutdown(ctx)
	_ = e.listener.Close()
	return err
}
