package arq

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/1ureka/radiolink/internal/protocol"
)

// startTransfer runs Transfer in the background and waits for its first
// pass (start frame + every fragment) to reach the recorder.
func startTransfer(t *testing.T, s *Sender, rec *recorder, packet []byte) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Transfer(context.Background(), packet) }()

	n := protocol.FragmentCount(len(packet)) + 1
	waitFor(t, "first pass", func() bool { return len(rec.headers()) >= n })
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Transfer failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Transfer did not complete")
	}
}

func TestSenderFirstPass(t *testing.T) {
	rec := &recorder{}
	s := NewSender(rec, Options{ResendInterval: time.Hour})
	packet := makePacket(140, 1)

	done := startTransfer(t, s, rec, packet)

	sent := rec.sent(t)
	start := sent[0]
	if start.Control || start.Generation != 1 || start.Seq != 0 {
		t.Fatalf("first frame is not a gen-1 start frame: %+v", start)
	}
	if !bytes.Equal(start.Payload, []byte{5, 0, 140}) {
		t.Errorf("start payload: got %v, want [5 0 140]", start.Payload)
	}
	for seq := 1; seq <= 5; seq++ {
		f := sent[seq]
		if f.Control || f.Generation != 1 || int(f.Seq) != seq {
			t.Errorf("fragment %d header: %+v", seq, f)
		}
		off := protocol.FragmentOffset(uint8(seq))
		end := min(off+protocol.MaxFragmentSize, len(packet))
		if !bytes.Equal(f.Payload, packet[off:end]) {
			t.Errorf("fragment %d payload mismatch", seq)
		}
	}

	s.Feedback(1, protocol.CompletionSeq)
	waitDone(t, done)
	if s.gen != 0 {
		t.Errorf("generation after completion: got %d, want 0", s.gen)
	}
}

func TestSenderResendsNAKedFragment(t *testing.T) {
	rec := &recorder{}
	s := NewSender(rec, Options{ResendInterval: 2 * time.Millisecond})

	done := startTransfer(t, s, rec, makePacket(140, 2))
	s.Feedback(1, 3)

	waitFor(t, "resend of fragment 3", func() bool { return rec.count(0x43) >= 2 })
	waitFor(t, "start frame poll", func() bool { return rec.count(0x40) >= 2 })
	if n := rec.count(0x42); n != 1 {
		t.Errorf("fragment 2 sent %d times without a NAK", n)
	}

	s.Feedback(1, protocol.CompletionSeq)
	waitDone(t, done)
}

func TestSenderIgnoresStaleFeedback(t *testing.T) {
	rec := &recorder{}
	s := NewSender(rec, Options{ResendInterval: time.Hour})

	done := startTransfer(t, s, rec, makePacket(64, 3))
	s.Feedback(0, protocol.CompletionSeq)

	select {
	case err := <-done:
		t.Fatalf("stale completion ended the transfer: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	s.Feedback(1, protocol.CompletionSeq)
	waitDone(t, done)
}

func TestSenderGenerationAlternates(t *testing.T) {
	rec := &recorder{}
	s := NewSender(rec, Options{ResendInterval: time.Hour})

	done := startTransfer(t, s, rec, makePacket(40, 4))
	s.Feedback(1, protocol.CompletionSeq)
	waitDone(t, done)

	rec.clear()
	done = startTransfer(t, s, rec, makePacket(40, 5))
	if h := rec.headers(); h[0] != 0x00 || h[1] != 0x01 || h[2] != 0x02 {
		t.Errorf("second transfer headers: got % X, want 00 01 02", h[:3])
	}
	s.Feedback(0, protocol.CompletionSeq)
	waitDone(t, done)

	if s.gen != 1 {
		t.Errorf("generation after two transfers: got %d, want 1", s.gen)
	}
}

func TestSenderRejectsPacketSize(t *testing.T) {
	rec := &recorder{}
	s := NewSender(rec, Options{})

	for _, size := range []int{0, 10, 1923, 2000} {
		err := s.Transfer(context.Background(), make([]byte, size))
		if !errors.Is(err, ErrPacketSize) {
			t.Errorf("size %d: got %v, want ErrPacketSize", size, err)
		}
	}
	if n := len(rec.headers()); n != 0 {
		t.Errorf("rejected packets sent %d frames", n)
	}
}

func TestSenderContextCancel(t *testing.T) {
	rec := &recorder{}
	s := NewSender(rec, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := s.Transfer(ctx, makePacket(100, 6)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context.DeadlineExceeded", err)
	}
	if s.gen != 1 {
		t.Errorf("generation changed without completion: %d", s.gen)
	}
}

func TestSenderSendFailureKeepsRetrying(t *testing.T) {
	rec := &recorder{fail: true}
	s := NewSender(rec, Options{ResendInterval: time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- s.Transfer(context.Background(), makePacket(40, 7)) }()

	time.Sleep(10 * time.Millisecond)
	rec.mu.Lock()
	rec.fail = false
	rec.mu.Unlock()

	// Polls resume once the radio accepts frames again.
	waitFor(t, "poll after recovery", func() bool { return rec.count(0x40) >= 1 })
	s.Feedback(1, protocol.CompletionSeq)
	waitDone(t, done)
}

func TestSenderACKMode(t *testing.T) {
	rec := &recorder{}
	s := NewSender(rec, Options{Mode: ModeACK, ResendInterval: 2 * time.Millisecond})

	done := startTransfer(t, s, rec, makePacket(140, 8))
	for _, seq := range []uint8{0, 1, 3, 4, 5} {
		s.Feedback(1, seq)
	}
	// A completion signal means nothing in ACK mode.
	s.Feedback(1, protocol.CompletionSeq)

	waitFor(t, "resend of unacknowledged fragment 2", func() bool { return rec.count(0x42) >= 2 })

	s.Feedback(1, 2)
	waitDone(t, done)
	if s.gen != 0 {
		t.Errorf("generation after completion: got %d, want 0", s.gen)
	}
}
