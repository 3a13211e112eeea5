package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/1ureka/radiolink/internal/protocol"
	"github.com/1ureka/radiolink/internal/util"
)

// UDP carries one frame per datagram between two fixed addresses. Datagrams
// from any other source are ignored.
type UDP struct {
	conn  *net.UDPConn
	peer  *net.UDPAddr
	inbox *inbox

	done      chan struct{}
	closeOnce sync.Once
}

// ListenUDP binds listen and exchanges frames with peer.
func ListenUDP(listen, peer string) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", listen, err)
	}
	raddr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", peer, err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", listen, err)
	}

	t := &UDP{
		conn: conn,
		peer: raddr,
		done: make(chan struct{}),
	}
	t.inbox = newInbox(inboxSize, t.done)
	go t.readLoop()

	util.LogInfo("UDP link %s <-> %s", conn.LocalAddr(), raddr)
	return t, nil
}

// LocalAddr is the bound address, useful when listening on port 0.
func (t *UDP) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *UDP) readLoop() {
	defer t.Close()

	buf := make([]byte, 2*protocol.MaxFrameSize)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
			default:
				util.LogWarning("UDP read failed: %v", err)
			}
			return
		}
		if n == 0 || n > protocol.MaxFrameSize {
			continue
		}
		if !from.IP.Equal(t.peer.IP) || from.Port != t.peer.Port {
			util.LogDebug("UDP: ignoring datagram from %s", from)
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		if !t.inbox.push(frame) {
			return
		}
	}
}

// Send writes frame to the peer.
func (t *UDP) Send(frame []byte) error {
	if len(frame) > protocol.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	_, err := t.conn.WriteToUDP(frame, t.peer)
	return err
}

// Receive returns the next inbound frame.
func (t *UDP) Receive(ctx context.Context) ([]byte, error) {
	return t.inbox.receive(ctx)
}

// Close releases the socket.
func (t *UDP) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}
