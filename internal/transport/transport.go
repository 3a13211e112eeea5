// Package transport carries radio frames between the two stations. Every
// carrier is unreliable and unordered from the ARQ's point of view: a Send
// that returns nil may still lose the frame.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned once a transport has been shut down.
	ErrClosed = errors.New("transport closed")
	// ErrNotReady is returned by Send before the carrier is open.
	ErrNotReady = errors.New("transport not ready")
	// ErrCongested is returned by Send when the carrier's buffer is full.
	ErrCongested = errors.New("transport congested")
	// ErrFrameTooLarge is returned for frames that exceed the radio payload.
	ErrFrameTooLarge = errors.New("frame too large")
)

// FrameSender transmits one frame. Implementations are safe for concurrent
// use: the transmit loop and the receive loop both send.
type FrameSender interface {
	Send(frame []byte) error
}

// FrameReceiver blocks until a frame arrives, ctx is done, or the transport
// is closed (ErrClosed).
type FrameReceiver interface {
	Receive(ctx context.Context) ([]byte, error)
}

// Transport is a bidirectional frame carrier.
type Transport interface {
	FrameSender
	FrameReceiver
	Close() error
}

// inbox is the receive side shared by the callback- and goroutine-driven
// transports: frames are queued by a producer and drained by Receive.
type inbox struct {
	frames chan []byte
	done   <-chan struct{}
}

func newInbox(size int, done <-chan struct{}) *inbox {
	return &inbox{frames: make(chan []byte, size), done: done}
}

// offer queues a frame without blocking. A full queue drops the frame, the
// same way a radio RX FIFO overflows.
func (in *inbox) offer(frame []byte) bool {
	select {
	case in.frames <- frame:
		return true
	default:
		return false
	}
}

// push queues a frame, blocking until there is room or the transport closes.
func (in *inbox) push(frame []byte) bool {
	select {
	case in.frames <- frame:
		return true
	case <-in.done:
		return false
	}
}

func (in *inbox) receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-in.frames:
		return f, nil
	case <-in.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
