// Package inspect exposes an opsbus.Bus over a read-only WebSocket feed,
// the server side of the pattern the teacher uses as a client against
// Home Assistant's event WebSocket: upgrade the connection, then run a
// dedicated per-connection write loop off a buffered channel so one slow
// reader never blocks the broadcast.
package inspect

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/eventgraph/internal/opsbus"
)

const (
	writeWait      = 10 * time.Second
	subscriberBuf  = 64
)

// Server upgrades incoming connections to WebSocket and streams every
// opsbus.Event published after the connection was accepted.
type Server struct {
	bus      *opsbus.Bus
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New returns a Server that streams events from bus.
func New(bus *opsbus.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Dashboards are expected to run on the operator's own
			// network; this is not exposed to the public internet.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler, upgrading each request to a
// WebSocket connection and running that connection's write loop until
// the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("inspect: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.bus.Subscribe(subscriberBuf)
	defer s.bus.Unsubscribe(ch)

	s.logger.Info("inspect: client connected", "remote", r.RemoteAddr)

	// A dashboard feed is fire-and-forget; read and discard anything the
	// client sends so the connection's close/ping frames are handled by
	// gorilla's internal machinery.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for event := range ch {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			s.logger.Debug("inspect: client write failed, closing", "error", err)
			return
		}
	}
}

// Run starts an HTTP server hosting the WebSocket feed at /ws and blocks
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("inspect: serving websocket feed", "addr", addr, "path", "/ws")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
