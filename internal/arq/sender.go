package arq

import (
	"context"
	"fmt"
	"time"

	"github.com/1ureka/radiolink/internal/protocol"
	"github.com/1ureka/radiolink/internal/transport"
	"github.com/1ureka/radiolink/internal/util"
)

const feedbackQueueSize = 256

// outState tracks one sent frame on the sender side.
type outState uint8

const (
	awaitingFeedback outState = iota
	nakPending                // resend on the next sweep
	acked                     // ACK mode only
)

// feedback is a control frame handed from the receive loop to the transmit
// loop.
type feedback struct {
	gen protocol.Generation
	seq uint8
}

// transfer is the one packet in flight.
type transfer struct {
	gen    protocol.Generation
	start  protocol.Start
	frames [][]byte   // encoded frames indexed by seq; frames[0] is the start frame
	state  []outState // indexed by seq
	acked  int
}

// Sender drives one packet at a time to completion. Transfer runs on the
// transmit loop, which owns the generation bit and the outstanding table;
// Feedback is the only method called from the receive loop.
type Sender struct {
	tx       transport.FrameSender
	mode     Mode
	interval time.Duration
	events   chan feedback

	gen protocol.Generation
}

// NewSender creates a Sender that transmits on tx.
func NewSender(tx transport.FrameSender, opts Options) *Sender {
	interval := opts.ResendInterval
	if interval <= 0 {
		interval = DefaultResendInterval
	}
	return &Sender{
		tx:       tx,
		mode:     opts.Mode,
		interval: interval,
		events:   make(chan feedback, feedbackQueueSize),
		gen:      initialGeneration,
	}
}

// Feedback queues a control frame for the running transfer. It never blocks;
// when the queue is full the frame is dropped as if lost on air.
func (s *Sender) Feedback(gen protocol.Generation, seq uint8) {
	select {
	case s.events <- feedback{gen: gen, seq: seq}:
	default:
		util.LogDebug("sender: feedback queue full, dropping (gen=%d seq=%d)", gen, seq)
	}
}

// Transfer sends packet and blocks until the peer confirms it or ctx is done.
// Retransmission is unbounded.
func (s *Sender) Transfer(ctx context.Context, packet []byte) error {
	if len(packet) < protocol.MinPacketSize || len(packet) > protocol.MaxPacketSize {
		return fmt.Errorf("%w: %d bytes", ErrPacketSize, len(packet))
	}

	t := s.prepare(packet)
	s.drain()

	// First pass: every frame once.
	for _, frame := range t.frames {
		s.send(frame, false)
	}
	util.LogDebug("sender: gen=%d %s sent, awaiting completion", t.gen, t.start)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case fb := <-s.events:
			if s.apply(t, fb) {
				s.gen = s.gen.Flip()
				util.Stats.AddPacketSent()
				util.LogDebug("sender: gen=%d complete", t.gen)
				return nil
			}

		case <-ticker.C:
			s.sweep(t)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// prepare encodes the start frame and every fragment for the current
// generation.
func (s *Sender) prepare(packet []byte) *transfer {
	frags := protocol.Fragment(packet)
	t := &transfer{
		gen: s.gen,
		start: protocol.Start{
			Fragments: uint8(len(frags)),
			Length:    uint16(len(packet)),
		},
		frames: make([][]byte, len(frags)+1),
		state:  make([]outState, len(frags)+1),
	}

	t.frames[0] = protocol.Encode(protocol.Frame{
		Generation: t.gen,
		Seq:        protocol.StartSeq,
		Payload:    t.start.Marshal(),
	})
	for i, frag := range frags {
		t.frames[i+1] = protocol.Encode(protocol.Frame{
			Generation: t.gen,
			Seq:        uint8(i + 1),
			Payload:    frag,
		})
	}
	return t
}

// drain discards feedback left over from the previous transfer.
func (s *Sender) drain() {
	for {
		select {
		case <-s.events:
		default:
			return
		}
	}
}

// apply records one feedback frame and reports whether the transfer is done.
func (s *Sender) apply(t *transfer, fb feedback) bool {
	if fb.gen != t.gen {
		util.LogDebug("sender: ignoring stale feedback (gen=%d seq=%d)", fb.gen, fb.seq)
		return false
	}

	if s.mode == ModeACK {
		if int(fb.seq) >= len(t.state) || t.state[fb.seq] == acked {
			return false
		}
		t.state[fb.seq] = acked
		t.acked++
		return t.acked == len(t.state)
	}

	if fb.seq == protocol.CompletionSeq {
		return true
	}
	if int(fb.seq) < len(t.state) {
		t.state[fb.seq] = nakPending
	}
	return false
}

// sweep runs once per resend interval.
func (s *Sender) sweep(t *transfer) {
	if s.mode == ModeACK {
		for seq, st := range t.state {
			if st != acked {
				s.send(t.frames[seq], true)
			}
		}
		return
	}

	for seq, st := range t.state {
		if st == nakPending {
			s.send(t.frames[seq], true)
			t.state[seq] = awaitingFeedback
		}
	}
	// Poll: lets the receiver repeat NAKs that were lost.
	s.send(t.frames[0], true)
}

func (s *Sender) send(frame []byte, resend bool) {
	if err := s.tx.Send(frame); err != nil {
		util.Stats.AddSendError()
		util.LogDebug("sender: send failed: %v", err)
		return
	}
	util.Stats.AddSent(len(frame))
	if resend {
		util.Stats.AddResent()
	}
	util.LogFrame("tx", frame)
}
