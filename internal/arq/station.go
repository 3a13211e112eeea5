package arq

import (
	"context"
	"errors"
	"sync"

	"github.com/1ureka/radiolink/internal/packetio"
	"github.com/1ureka/radiolink/internal/protocol"
	"github.com/1ureka/radiolink/internal/transport"
	"github.com/1ureka/radiolink/internal/util"
)

// Station couples one Sender and one Receiver to a transport and a packet
// source/sink.
type Station struct {
	tx      transport.FrameSender
	rx      transport.FrameReceiver
	packets packetio.PacketIO
	valid   func([]byte) bool

	sender   *Sender
	receiver *Receiver
}

// NewStation wires a station. tx and rx are usually the same transport.
func NewStation(tx transport.FrameSender, rx transport.FrameReceiver, packets packetio.PacketIO, opts Options) *Station {
	if opts.Valid == nil {
		opts.Valid = packetio.IsIPv4
	}
	return &Station{
		tx:       tx,
		rx:       rx,
		packets:  packets,
		valid:    opts.Valid,
		sender:   NewSender(tx, opts),
		receiver: NewReceiver(tx, packets, opts),
	}
}

// Run starts the transmit loop and runs the receive loop until ctx is done
// or the transport closes. A failing transmit loop is logged and leaves the
// receive loop running.
func (st *Station) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := st.transmitLoop(ctx); err != nil && ctx.Err() == nil {
			util.LogError("transmit loop stopped: %v", err)
		}
	}()

	err := st.receiveLoop(ctx)
	cancel()
	wg.Wait()
	return err
}

// transmitLoop moves packets from PacketIO across the link, one at a time.
func (st *Station) transmitLoop(ctx context.Context) error {
	for {
		packet, err := st.packets.ReadPacket(ctx)
		if err != nil {
			return err
		}
		if !st.valid(packet) {
			util.LogDebug("station: skipping non-IPv4 packet (%d bytes)", len(packet))
			continue
		}

		if err := st.sender.Transfer(ctx, packet); err != nil {
			if errors.Is(err, ErrPacketSize) {
				util.LogWarning("station: %v", err)
				continue
			}
			return err
		}
	}
}

// receiveLoop blocks on the transport and dispatches every frame by its
// control bit.
func (st *Station) receiveLoop(ctx context.Context) error {
	for {
		raw, err := st.rx.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, transport.ErrClosed) {
				return err
			}
			util.LogWarning("station: receive failed: %v", err)
			continue
		}
		util.Stats.AddRecv(len(raw))
		util.LogFrame("rx", raw)

		f, err := protocol.Decode(raw)
		if err != nil {
			util.Stats.AddBadFrame()
			util.LogDebug("station: %v", err)
			continue
		}

		if f.Control {
			st.sender.Feedback(f.Generation, f.Seq)
		} else {
			st.receiver.HandleData(f)
		}
	}
}
