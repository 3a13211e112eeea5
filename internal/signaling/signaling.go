// Package signaling runs the rendezvous between the two stations. The base
// hosts a PIN-protected WebSocket endpoint and the mobile dials it. The
// connection either negotiates a WebRTC DataChannel and is then discarded,
// or is handed over as the frame link itself.
package signaling

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/radiolink/internal/transport"
	"github.com/1ureka/radiolink/internal/util"
)

// AcceptWebSocket listens on addr and returns the first station connection
// that presents pin. The listener is closed before returning.
func AcceptWebSocket(ctx context.Context, addr, pin string) (*websocket.Conn, error) {
	srv := newServer(pin)
	bound, err := srv.start(addr)
	if err != nil {
		return nil, err
	}
	defer srv.close()

	util.LogInfo("Waiting for mobile station on ws://%s%s", bound, Path)

	conn, err := srv.waitForClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for mobile station: %w", err)
	}
	util.LogInfo("Mobile station connected from %s", conn.RemoteAddr())
	return conn, nil
}

// DialWebSocket connects to the base station's rendezvous at rawURL. A
// non-empty pin is added to the query string.
func DialWebSocket(ctx context.Context, rawURL, pin string) (*websocket.Conn, error) {
	target, err := withPIN(rawURL, pin)
	if err != nil {
		return nil, err
	}

	conn, err := connect(ctx, target)
	if err != nil {
		return nil, err
	}
	util.LogInfo("Connected to base station at %s", rawURL)
	return conn, nil
}

// handoverGrace bounds how long a side waits for its DataChannel after the
// peer, already open, has closed the rendezvous.
const handoverGrace = 5 * time.Second

// EstablishAsBase accepts the mobile station on addr, offers a DataChannel,
// and returns it once open. The WebSocket is closed afterwards.
func EstablishAsBase(ctx context.Context, addr, pin string, ice transport.ICE) (*transport.DataChannel, error) {
	conn, err := AcceptWebSocket(ctx, addr, pin)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return negotiate(ctx, conn, true, ice)
}

// EstablishAsMobile dials the base station and answers its DataChannel offer.
func EstablishAsMobile(ctx context.Context, rawURL, pin string, ice transport.ICE) (*transport.DataChannel, error) {
	conn, err := DialWebSocket(ctx, rawURL, pin)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return negotiate(ctx, conn, false, ice)
}

// negotiate performs the SDP/ICE exchange over conn. The base offers, the
// mobile answers.
func negotiate(ctx context.Context, conn *websocket.Conn, offer bool, ice transport.ICE) (*transport.DataChannel, error) {
	link, err := transport.NewDataChannel(ctx, ice)
	if err != nil {
		return nil, fmt.Errorf("failed to create DataChannel: %w", err)
	}

	s := &session{link: link, conn: conn}
	link.OnICECandidate(s.trickle)

	// Exits when conn is closed by the caller.
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.serve()
	}()

	if offer {
		if err := s.describe(kindOffer); err != nil {
			link.Close()
			return nil, err
		}
	}

	select {
	case <-link.Ready():
		util.LogSuccess("DataChannel established, closing rendezvous")
		return link, nil

	case err := <-errCh:
		select {
		case <-link.Ready():
			util.LogSuccess("DataChannel established")
			return link, nil
		case <-time.After(handoverGrace):
			link.Close()
			return nil, fmt.Errorf("signaling failed: %w", err)
		case <-ctx.Done():
			link.Close()
			return nil, ctx.Err()
		}

	case <-ctx.Done():
		link.Close()
		return nil, ctx.Err()
	}
}

func withPIN(rawURL, pin string) (string, error) {
	if pin == "" {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid rendezvous URL %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set("pin", pin)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
