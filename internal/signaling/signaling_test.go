package signaling

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/1ureka/radiolink/internal/transport"
)

func TestWithPIN(t *testing.T) {
	tests := []struct {
		name string
		url  string
		pin  string
		want string
	}{
		{"no pin", "ws://127.0.0.1:7400/ws", "", "ws://127.0.0.1:7400/ws"},
		{"pin", "ws://127.0.0.1:7400/ws", "1234", "ws://127.0.0.1:7400/ws?pin=1234"},
		{"existing query", "ws://h/ws?x=1", "9", "ws://h/ws?pin=9&x=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := withPIN(tt.url, tt.pin)
			if err != nil {
				t.Fatalf("withPIN: %v", err)
			}
			if got != tt.want {
				t.Errorf("withPIN(%q, %q) = %q, want %q", tt.url, tt.pin, got, tt.want)
			}
		})
	}
}

func TestWithPINBadURL(t *testing.T) {
	if _, err := withPIN("://bad", "1"); err == nil {
		t.Fatal("expected error for malformed URL")
	}
}

func startServer(t *testing.T, pin string) (*server, string) {
	t.Helper()
	srv := newServer(pin)
	addr, err := srv.start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(srv.close)
	return srv, "ws://" + addr.String() + Path
}

func TestServerRejectsWrongPIN(t *testing.T) {
	_, wsURL := startServer(t, "1234")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := DialWebSocket(ctx, wsURL, "0000"); err == nil {
		t.Fatal("dial with wrong PIN succeeded")
	}
	if _, err := DialWebSocket(ctx, wsURL, ""); err == nil {
		t.Fatal("dial without PIN succeeded")
	}
}

func TestServerAcceptsFirstStation(t *testing.T) {
	srv, wsURL := startServer(t, "1234")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := DialWebSocket(ctx, wsURL, "1234")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	conn, err := srv.waitForClient(ctx)
	if err != nil {
		t.Fatalf("waitForClient: %v", err)
	}
	defer conn.Close()

	// A second station is told to go away.
	second, err := DialWebSocket(ctx, wsURL, "1234")
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := second.ReadMessage(); err == nil {
		t.Fatal("second station was not closed")
	}

	// The first connection still carries messages.
	if err := client.WriteJSON(envelope{Kind: kindOffer, SDP: "v=0"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got envelope
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Kind != kindOffer || got.SDP != "v=0" {
		t.Errorf("got %+v", got)
	}
}

func TestWaitForClientCancelled(t *testing.T) {
	srv, _ := startServer(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := srv.waitForClient(ctx); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestAcceptWebSocketCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := AcceptWebSocket(ctx, "127.0.0.1:0", ""); err == nil {
		t.Fatal("expected timeout error")
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().String()
}

// waitListening blocks until something accepts TCP connections on addr.
func waitListening(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s never listened: %v", addr, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// relay sends frame on from until to yields it. DataChannel messages are
// unreliable, so the frame is repeated.
func relay(t *testing.T, from, to transport.Transport, frame []byte) {
	t.Helper()
	for attempt := 0; attempt < 50; attempt++ {
		if err := from.Send(frame); err != nil {
			t.Fatalf("Send: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		got, err := to.Receive(ctx)
		cancel()
		if err == nil {
			if !bytes.Equal(got, frame) {
				t.Fatalf("received %x, want %x", got, frame)
			}
			return
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Receive: %v", err)
		}
	}
	t.Fatalf("frame %x never arrived", frame)
}

func TestEstablishLoopback(t *testing.T) {
	addr := freeAddr(t)
	ice := transport.ICE{Loopback: true}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	type result struct {
		link *transport.DataChannel
		err  error
	}
	baseCh := make(chan result, 1)
	go func() {
		link, err := EstablishAsBase(ctx, addr, "2468", ice)
		baseCh <- result{link, err}
	}()

	waitListening(t, addr)

	mobile, err := EstablishAsMobile(ctx, "ws://"+addr+Path, "2468", ice)
	if err != nil {
		t.Fatalf("EstablishAsMobile: %v", err)
	}
	defer mobile.Close()

	res := <-baseCh
	if res.err != nil {
		t.Fatalf("EstablishAsBase: %v", res.err)
	}
	base := res.link
	defer base.Close()

	// Frames travel both ways, up to the full radio frame size.
	relay(t, mobile, base, []byte{0x00, 0x05, 0x00, 0x8C})
	relay(t, base, mobile, []byte{0xBF})
	relay(t, mobile, base, bytes.Repeat([]byte{0xA5}, 32))

	if err := base.Send(make([]byte, 33)); !errors.Is(err, transport.ErrFrameTooLarge) {
		t.Errorf("oversize Send: got %v, want ErrFrameTooLarge", err)
	}

	base.Close()
	if err := base.Send([]byte{0x01}); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Send after Close: got %v, want ErrClosed", err)
	}
}

func TestEstablishAsMobileWrongPIN(t *testing.T) {
	addr := freeAddr(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go EstablishAsBase(ctx, addr, "2468", transport.ICE{Loopback: true})
	waitListening(t, addr)

	if _, err := EstablishAsMobile(ctx, "ws://"+addr+Path, "1111", transport.ICE{Loopback: true}); err == nil {
		t.Fatal("negotiated with the wrong PIN")
	}
}
