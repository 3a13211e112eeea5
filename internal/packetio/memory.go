package packetio

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process PacketIO backed by channels. Packets passed to
// Submit are read by the station; delivered packets appear on Delivered.
type Memory struct {
	outbound  chan []byte
	delivered chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemory creates a Memory PacketIO buffering up to size packets each way.
func NewMemory(size int) *Memory {
	return &Memory{
		outbound:  make(chan []byte, size),
		delivered: make(chan []byte, size),
		done:      make(chan struct{}),
	}
}

// Submit queues packet for transmission.
func (m *Memory) Submit(packet []byte) {
	m.outbound <- packet
}

// Delivered yields packets written by the station.
func (m *Memory) Delivered() <-chan []byte {
	return m.delivered
}

func (m *Memory) ReadPacket(ctx context.Context) ([]byte, error) {
	select {
	case p := <-m.outbound:
		return p, nil
	case <-m.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Memory) WritePacket(packet []byte) error {
	select {
	case m.delivered <- packet:
		return nil
	default:
		return fmt.Errorf("delivery queue full, dropping %d-byte packet", len(packet))
	}
}

// Close makes ReadPacket fail with ErrClosed. Deliveries still succeed.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
