package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/1ureka/radiolink/internal/protocol"
)

// pipeEnd is one side of an in-process transport pair.
type pipeEnd struct {
	inbox *inbox
	peer  *pipeEnd
	close func()
	done  <-chan struct{}
}

// Pipe returns two linked in-process transports: frames sent on one are
// received on the other. Each side queues up to buffer frames and drops the
// rest. Closing either side closes both.
func Pipe(buffer int) (Transport, Transport) {
	done := make(chan struct{})
	var once sync.Once
	closeBoth := func() { once.Do(func() { close(done) }) }

	a := &pipeEnd{inbox: newInbox(buffer, done), close: closeBoth, done: done}
	b := &pipeEnd{inbox: newInbox(buffer, done), close: closeBoth, done: done}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipeEnd) Send(frame []byte) error {
	if len(frame) > protocol.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	p.peer.inbox.offer(append([]byte(nil), frame...))
	return nil
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	return p.inbox.receive(ctx)
}

func (p *pipeEnd) Close() error {
	p.close()
	return nil
}
