package arq

import (
	"github.com/1ureka/radiolink/internal/packetio"
	"github.com/1ureka/radiolink/internal/protocol"
	"github.com/1ureka/radiolink/internal/transport"
	"github.com/1ureka/radiolink/internal/util"
)

// fragState tracks one sequence number on the receiver side.
type fragState uint8

const (
	fragUnknown fragState = iota
	fragReceived
	fragNakSent
)

// Receiver reassembles inbound transfers. All methods run on the receive
// loop; feedback frames go out over tx.
type Receiver struct {
	tx    transport.FrameSender
	out   PacketWriter
	valid func([]byte) bool
	mode  Mode

	gen     protocol.Generation
	started bool
	start   protocol.Start
	table   [protocol.MaxSeq + 1]fragState
	count   int
	buf     [protocol.MaxPacketSize]byte
}

// NewReceiver creates a Receiver that answers on tx and delivers to out.
func NewReceiver(tx transport.FrameSender, out PacketWriter, opts Options) *Receiver {
	valid := opts.Valid
	if valid == nil {
		valid = packetio.IsIPv4
	}
	return &Receiver{
		tx:    tx,
		out:   out,
		valid: valid,
		mode:  opts.Mode,
		gen:   initialGeneration,
	}
}

// HandleData processes one data frame (control bit clear).
func (r *Receiver) HandleData(f protocol.Frame) {
	if f.Generation != r.gen {
		r.handleStale(f)
		return
	}

	switch f.Seq {
	case protocol.StartSeq:
		if !r.handleStart(f) {
			return
		}
	case protocol.CompletionSeq:
		util.LogDebug("receiver: discarding data frame with reserved seq 63")
		return
	default:
		if !r.handleFragment(f) {
			return
		}
	}

	r.tryComplete()
}

// handleStale answers a frame from a transfer that already completed here
// but whose sender has not heard about it yet.
func (r *Receiver) handleStale(f protocol.Frame) {
	if r.mode == ModeACK {
		if f.Seq != protocol.CompletionSeq {
			r.sendFeedback(f.Generation, f.Seq)
		}
		return
	}
	util.LogDebug("receiver: stale frame (gen=%d seq=%d), repeating completion", f.Generation, f.Seq)
	r.sendCompletion(f.Generation)
}

// handleStart reports whether the frame was a valid start.
func (r *Receiver) handleStart(f protocol.Frame) bool {
	st, err := protocol.ParseStart(f.Payload)
	if err != nil || !st.Valid() {
		util.LogDebug("receiver: discarding malformed start frame (%s, err=%v)", st, err)
		return false
	}

	if r.mode == ModeACK {
		r.sendFeedback(r.gen, protocol.StartSeq)
	}

	// Every valid start sets F and L, repeats included.
	repeat := r.started
	if repeat && st != r.start {
		util.LogDebug("receiver: gen=%d start changed %s -> %s", r.gen, r.start, st)
	}
	r.started = true
	r.start = st
	r.table[protocol.StartSeq] = fragReceived

	if repeat {
		if r.mode == ModeNAK {
			r.poll()
		}
	} else {
		util.LogDebug("receiver: gen=%d start %s", r.gen, st)
	}
	return true
}

// poll answers a repeated start frame by NAKing every missing fragment.
func (r *Receiver) poll() {
	for seq := uint8(1); seq <= r.start.Fragments; seq++ {
		if r.table[seq] != fragReceived {
			r.sendFeedback(r.gen, seq)
			r.table[seq] = fragNakSent
		}
	}
}

// handleFragment stores one fragment and reports whether it was new.
func (r *Receiver) handleFragment(f protocol.Frame) bool {
	seq := f.Seq

	if r.mode == ModeACK {
		r.sendFeedback(r.gen, seq)
	}
	if r.table[seq] == fragReceived {
		return false
	}

	if r.mode == ModeNAK {
		// Everything below seq that was never seen is presumed lost.
		for gap := uint8(0); gap < seq; gap++ {
			if r.table[gap] == fragUnknown {
				r.sendFeedback(r.gen, gap)
				r.table[gap] = fragNakSent
			}
		}
	}

	copy(r.buf[protocol.FragmentOffset(seq):], f.Payload)
	r.table[seq] = fragReceived
	r.count++
	return true
}

// tryComplete finishes the transfer once every announced fragment is here.
func (r *Receiver) tryComplete() {
	if !r.started || r.count < int(r.start.Fragments) {
		return
	}
	for seq := uint8(1); seq <= r.start.Fragments; seq++ {
		if r.table[seq] != fragReceived {
			return
		}
	}

	if r.mode == ModeNAK {
		r.sendCompletion(r.gen)
	}
	util.LogDebug("receiver: gen=%d complete, %d bytes", r.gen, r.start.Length)
	r.gen = r.gen.Flip()

	packet := make([]byte, r.start.Length)
	copy(packet, r.buf[:r.start.Length])
	r.reset()
	r.deliver(packet)
}

func (r *Receiver) reset() {
	r.started = false
	r.start = protocol.Start{}
	r.table = [protocol.MaxSeq + 1]fragState{}
	r.count = 0
	clear(r.buf[:])
}

func (r *Receiver) deliver(packet []byte) {
	if !r.valid(packet) {
		util.Stats.AddPacketDrop()
		util.LogWarning("receiver: dropping reassembled %d-byte buffer, not an IPv4 packet", len(packet))
		return
	}
	if err := r.out.WritePacket(packet); err != nil {
		util.Stats.AddPacketDrop()
		util.LogWarning("receiver: failed to deliver packet: %v", err)
		return
	}
	util.Stats.AddPacketRecv()
}

func (r *Receiver) sendFeedback(gen protocol.Generation, seq uint8) {
	if r.send(protocol.Control(gen, seq)) {
		util.Stats.AddFeedback()
	}
}

func (r *Receiver) sendCompletion(gen protocol.Generation) {
	if r.send(protocol.Control(gen, protocol.CompletionSeq)) {
		util.Stats.AddCompletion()
	}
}

func (r *Receiver) send(frame []byte) bool {
	if err := r.tx.Send(frame); err != nil {
		util.Stats.AddSendError()
		util.LogDebug("receiver: send failed: %v", err)
		return false
	}
	util.Stats.AddSent(len(frame))
	util.LogFrame("tx", frame)
	return true
}
