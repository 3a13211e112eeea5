package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/1ureka/radiolink/internal/protocol"
	"github.com/1ureka/radiolink/internal/util"
)

const serialReadTimeout = 100 * time.Millisecond

// Serial talks KISS to a radio modem on a serial port. Each radio frame is
// one KISS data frame.
type Serial struct {
	port  serial.Port
	wmu   sync.Mutex
	inbox *inbox

	done      chan struct{}
	closeOnce sync.Once
}

// OpenSerial opens device at baud and starts the read loop.
func OpenSerial(device string, baud int) (*Serial, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}
	// A read timeout lets the read loop notice Close.
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", device, err)
	}
	util.LogInfo("opened serial port %s at %d baud", device, baud)

	t := &Serial{
		port: port,
		done: make(chan struct{}),
	}
	t.inbox = newInbox(inboxSize, t.done)
	go t.readLoop()
	return t, nil
}

func (t *Serial) readLoop() {
	defer t.Close()

	var dec kissDecoder
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if err != nil {
			select {
			case <-t.done:
			default:
				util.LogWarning("serial read failed: %v", err)
			}
			return
		}

		select {
		case <-t.done:
			return
		default:
		}

		dec.feed(buf[:n], func(frame []byte) {
			if len(frame) > protocol.MaxFrameSize {
				util.LogDebug("serial: dropping %d-byte KISS frame", len(frame))
				return
			}
			if !t.inbox.offer(frame) {
				util.LogDebug("serial inbox full, frame dropped")
			}
		})
	}
}

// Send writes frame as a KISS data frame.
func (t *Serial) Send(frame []byte) error {
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
	_, err := t.port.Write(encodeKISS(frame))
	return err
}

// Receive returns the next inbound frame.
func (t *Serial) Receive(ctx context.Context) ([]byte, error) {
	return t.inbox.receive(ctx)
}

// Close releases the port.
func (t *Serial) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.port.Close()
	})
	return err
}
