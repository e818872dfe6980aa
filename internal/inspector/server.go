// Package inspector exposes a running world to editor tooling over a websocket:
// type introspection, property reads and writes, and observable notifications.
package inspector

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/world"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// Server serves the inspector protocol on /ws.
type Server struct {
	world    *world.World
	logger   log.Log
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	http    *http.Server

	clientCount atomic.Int64
	running     atomic.Bool
	closed      atomic.Bool
}

func NewServer(w *world.World, logger log.Log) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	return &Server{
		world:  w,
		logger: logger.With(log.String("component", "inspector")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The inspector is a local editor bridge; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Handler routes /ws to the websocket endpoint and /healthz to a liveness probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// Start listens on addr and serves in the background.
func (s *Server) Start(ctx context.Context, addr string) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.running.Store(false)
		s.logger.Error("Failed to listen", log.String("addr", addr), log.Error(err))
		return err
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Inspector stopped serving", log.Error(err))
		}
	}()

	s.logger.Info("Inspector listening", log.String("addr", ln.Addr().String()))
	return nil
}

// Stop closes every client and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}
	s.closed.Store(true)

	s.mu.Lock()
	srv := s.http
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	err := srv.Shutdown(ctx)
	s.logger.Info("Inspector stopped")
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Upgrade failed", log.String("remote_addr", r.RemoteAddr), log.Error(err))
		return
	}

	c := newClient(s, conn)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	total := s.clientCount.Add(1)

	c.logger.Info("Client connected", log.Int("total_clients", int(total)))

	go c.writeLoop()
	c.readLoop()

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	total = s.clientCount.Add(-1)
	c.logger.Info("Client disconnected", log.Int("total_clients", int(total)))
}

// ClientCount reports the connected clients.
func (s *Server) ClientCount() int { return int(s.clientCount.Load()) }
