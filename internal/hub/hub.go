// Package hub fans Updates out to connected viewers over websockets.
//
// The Hub owns the session set and the current full state behind a single
// mutex. Joining, broadcasting and eviction all go through that lock, so a
// viewer is registered at the exact point its initial snapshot is taken and
// every later broadcast lands in its queue behind that snapshot.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/mdpreview/internal/errors"
	"github.com/conneroisu/mdpreview/internal/logging"
	"github.com/conneroisu/mdpreview/internal/types"
)

const (
	// DefaultQueueSize is the number of Updates buffered per viewer.
	DefaultQueueSize = 16

	// DefaultWriteTimeout bounds a single write to a viewer.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultPingInterval is how often idle viewers are pinged.
	DefaultPingInterval = 30 * time.Second

	// Viewers never send anything meaningful.
	maxMessageSize = 512
)

// DefaultOriginPatterns allow pages served from the local machine. Patterns
// use path.Match syntax, so IPv6 brackets are escaped.
var DefaultOriginPatterns = []string{"localhost:*", "127.0.0.1:*", `\[::1\]:*`}

// Options configures a Hub.
type Options struct {
	QueueSize      int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	OriginPatterns []string
}

// Hub is the registry of viewer sessions.
type Hub struct {
	opts   Options
	logger logging.Logger

	mu       sync.Mutex
	sessions map[*session]struct{}
	current  types.Update
	closed   bool
	nextID   uint64
}

type session struct {
	id     uint64
	remote string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *session) stop() {
	s.once.Do(func() { close(s.done) })
}

// New creates a hub whose first viewers will see initial. Missing fields of
// initial are treated as empty so the first snapshot is always complete.
func New(initial types.Update, opts Options, logger logging.Logger) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if len(opts.OriginPatterns) == 0 {
		opts.OriginPatterns = DefaultOriginPatterns
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Hub{
		opts:     opts,
		logger:   logger.WithComponent("hub"),
		sessions: make(map[*session]struct{}),
		current:  types.NewUpdate("", "").Merge(initial),
	}
}

// ServeHTTP upgrades the request and serves one viewer until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	s, initial, err := h.join(conn, r.RemoteAddr)
	if err != nil {
		h.logger.Debug(r.Context(), "Rejecting viewer", "remote", r.RemoteAddr, "error", err.Error())
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The writer is not running yet, so nothing queued since join can
	// overtake the snapshot.
	if err := h.write(s, initial); err != nil {
		h.remove(s, err)
		return
	}

	go h.writeLoop(s)
	h.readLoop(r.Context(), s)
}

// Broadcast delivers update to every registered viewer. The payload is
// encoded once; a viewer whose queue is full is evicted without affecting
// the others.
func (h *Hub) Broadcast(update types.Update) {
	ctx := context.Background()

	if update.IsEmpty() {
		h.logger.Debug(ctx, "Ignoring empty update")
		return
	}

	payload, err := json.Marshal(update)
	if err != nil {
		h.logger.Error(ctx, errors.WrapInternal(err, errors.ErrCodeInternalError, "encoding update"), "Dropping update")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = h.current.Merge(update)

	for s := range h.sessions {
		select {
		case s.send <- payload:
		default:
			h.evictLocked(s, errors.ErrSlowViewer(s.remote))
		}
	}

	h.logger.Debug(ctx, "Broadcast update", "viewers", len(h.sessions), "bytes", len(payload))
}

// Current returns a copy of the most recent full state.
func (h *Hub) Current() types.Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current.Merge(types.Update{})
}

// Len returns the number of registered viewers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close disconnects every viewer and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for s := range h.sessions {
		delete(h.sessions, s)
		s.stop()
		go s.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}

func (h *Hub) join(conn *websocket.Conn, remote string) (*session, []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, nil, errors.NewDeliveryError(errors.ErrCodeDelivery, "hub closed", nil)
	}

	initial, err := json.Marshal(h.current)
	if err != nil {
		return nil, nil, errors.WrapInternal(err, errors.ErrCodeInternalError, "encoding initial update")
	}

	h.nextID++
	s := &session{
		id:     h.nextID,
		remote: remote,
		conn:   conn,
		send:   make(chan []byte, h.opts.QueueSize),
		done:   make(chan struct{}),
	}
	h.sessions[s] = struct{}{}

	h.logger.Info(context.Background(), "Viewer connected",
		"session", s.id, "remote", remote, "viewers", len(h.sessions))

	return s, initial, nil
}

// remove unregisters s after a read or write failure.
func (h *Hub) remove(s *session, cause error) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	count := len(h.sessions)
	h.mu.Unlock()

	s.stop()

	if !ok {
		return
	}

	ctx := context.Background()
	switch websocket.CloseStatus(cause) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		h.logger.Info(ctx, "Viewer disconnected", "session", s.id, "viewers", count)
	default:
		h.logger.Warn(ctx, errors.WrapDelivery(cause, "viewer connection failed"),
			"Viewer removed", "session", s.id, "remote", s.remote, "viewers", count)
	}
}

func (h *Hub) evictLocked(s *session, cause error) {
	delete(h.sessions, s)
	s.stop()
	// Close waits for the close handshake, which a stuck viewer never answers.
	go s.conn.Close(websocket.StatusPolicyViolation, "viewer too slow")

	h.logger.Warn(context.Background(), cause, "Evicting viewer",
		"session", s.id, "remote", s.remote, "viewers", len(h.sessions))
}

func (h *Hub) write(s *session, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

func (h *Hub) writeLoop(s *session) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case payload := <-s.send:
			// Both cases may be ready; a removed session is never written to.
			select {
			case <-s.done:
				return
			default:
			}
			if err := h.write(s, payload); err != nil {
				h.remove(s, err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil {
				h.remove(s, err)
				return
			}
		}
	}
}

// readLoop discards inbound frames until the viewer goes away.
func (h *Hub) readLoop(ctx context.Context, s *session) {
	for {
		if _, _, err := s.conn.Read(ctx); err != nil {
			h.remove(s, err)
			return
		}
	}
}
