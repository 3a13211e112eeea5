package arq

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/radiolink/internal/protocol"
	"github.com/1ureka/radiolink/internal/transport"
)

// Compile-time interface checks.
var (
	_ transport.FrameSender = (*recorder)(nil)
	_ PacketWriter          = (*sink)(nil)
)

// recorder is a FrameSender that keeps every frame it is given.
type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (r *recorder) Send(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("radio busy")
	}
	r.frames = append(r.frames, append([]byte(nil), frame...))
	return nil
}

// sent returns the decoded frames recorded so far.
func (r *recorder) sent(t *testing.T) []protocol.Frame {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]protocol.Frame, 0, len(r.frames))
	for _, raw := range r.frames {
		f, err := protocol.Decode(raw)
		if err != nil {
			t.Fatalf("recorded undecodable frame %x: %v", raw, err)
		}
		out = append(out, f)
	}
	return out
}

func (r *recorder) headers() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.frames))
	for i, f := range r.frames {
		out[i] = f[0]
	}
	return out
}

func (r *recorder) count(header byte) int {
	n := 0
	for _, h := range r.headers() {
		if h == header {
			n++
		}
	}
	return n
}

func (r *recorder) clear() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}

// sink is a PacketWriter that keeps delivered packets.
type sink struct {
	packets [][]byte
	err     error
}

func (s *sink) WritePacket(p []byte) error {
	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, p)
	return nil
}

// makePacket returns a size-byte IPv4-looking packet whose body depends on seed.
func makePacket(size int, seed byte) []byte {
	p := make([]byte, size)
	p[0] = 0x45
	p[2], p[3] = byte(size>>8), byte(size)
	p[8] = 64
	for i := 20; i < size; i++ {
		p[i] = byte(i%251) ^ seed
	}
	return p
}

// framesFor splits packet into the frames a sender of generation gen emits:
// index 0 is the start frame, index i is fragment i.
func framesFor(gen protocol.Generation, packet []byte) []protocol.Frame {
	frags := protocol.Fragment(packet)
	out := []protocol.Frame{startFrame(gen, uint8(len(frags)), uint16(len(packet)))}
	for i, frag := range frags {
		out = append(out, protocol.Frame{Generation: gen, Seq: uint8(i + 1), Payload: frag})
	}
	return out
}

func startFrame(gen protocol.Generation, fragments uint8, length uint16) protocol.Frame {
	return protocol.Frame{
		Generation: gen,
		Seq:        protocol.StartSeq,
		Payload:    protocol.Start{Fragments: fragments, Length: length}.Marshal(),
	}
}

// control is the expected feedback frame.
func control(gen protocol.Generation, seq uint8) protocol.Frame {
	return protocol.Frame{Control: true, Generation: gen, Seq: seq}
}

// assertControls compares recorded feedback against want.
func assertControls(t *testing.T, rec *recorder, want ...protocol.Frame) {
	t.Helper()
	got := rec.sent(t)
	if len(got) != len(want) {
		t.Fatalf("sent %d frames %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i].Control != want[i].Control || got[i].Generation != want[i].Generation ||
			got[i].Seq != want[i].Seq || len(got[i].Payload) != 0 {
			t.Errorf("frame %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
