package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/radiolink/internal/protocol"
	"github.com/1ureka/radiolink/internal/util"
)

const wsWriteTimeout = time.Second

// WebSocket carries one frame per binary WebSocket message. It is used when
// the stations can reach each other over TCP but not over WebRTC.
type WebSocket struct {
	conn  *websocket.Conn
	wmu   sync.Mutex // gorilla allows one concurrent writer
	inbox *inbox

	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocket takes ownership of conn and starts its read loop.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	t := &WebSocket{
		conn: conn,
		done: make(chan struct{}),
	}
	t.inbox = newInbox(inboxSize, t.done)
	go t.readLoop()
	return t
}

func (t *WebSocket) readLoop() {
	defer t.Close()

	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
			default:
				util.LogWarning("WebSocket read failed: %v", err)
			}
			return
		}
		if mt != websocket.BinaryMessage || len(data) == 0 || len(data) > protocol.MaxFrameSize {
			util.LogDebug("WebSocket: ignoring message (type=%d, %d bytes)", mt, len(data))
			continue
		}
		if !t.inbox.push(data) {
			return
		}
	}
}

// Send writes frame as a single binary message.
func (t *WebSocket) Send(frame []byte) error {
	if len(frame) > protocol.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}

	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Receive returns the next inbound frame.
func (t *WebSocket) Receive(ctx context.Context) ([]byte, error) {
	return t.inbox.receive(ctx)
}

// Close sends a close message and shuts the connection. Safe to call more
// than once.
func (t *WebSocket) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.wmu.Lock()
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteTimeout))
		t.wmu.Unlock()
		err = t.conn.Close()
	})
	return err
}
