package signaling

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Path is the HTTP path of the rendezvous endpoint.
const Path = "/ws"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// server is the base-side WebSocket rendezvous (private). It hands out the
// first connection that presents the right PIN.
type server struct {
	pin      string
	listener net.Listener
	connCh   chan *websocket.Conn
	accepted atomic.Bool
}

// newServer creates a rendezvous server. An empty pin disables the check.
func newServer(pin string) *server {
	return &server{
		pin:    pin,
		connCh: make(chan *websocket.Conn, 1),
	}
}

// start begins listening on addr and returns the bound address.
func (s *server) start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return listener.Addr(), nil
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.pin != "" {
		pin := r.URL.Query().Get("pin")
		if subtle.ConstantTimeCompare([]byte(pin), []byte(s.pin)) != 1 {
			http.Error(w, "Invalid PIN", http.StatusUnauthorized)
			return
		}
	}

	first := s.accepted.CompareAndSwap(false, true)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if first {
			s.accepted.Store(false)
		}
		return
	}

	// Only accept the first station.
	if !first {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
		return
	}
	s.connCh <- conn
}

// waitForClient blocks until a station connects or ctx is cancelled.
func (s *server) waitForClient(ctx context.Context) (*websocket.Conn, error) {
	select {
	case conn := <-s.connCh:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// close shuts down the listener, preventing new connections.
func (s *server) close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

// connect dials the given WebSocket URL and returns the connection (private).
func connect(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return conn, nil
}
