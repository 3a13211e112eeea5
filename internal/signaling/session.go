package signaling

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/radiolink/internal/transport"
	"github.com/1ureka/radiolink/internal/util"
)

// Envelope kinds.
const (
	kindOffer     = "offer"
	kindAnswer    = "answer"
	kindCandidate = "candidate"
)

// envelope is one JSON message on the rendezvous WebSocket.
type envelope struct {
	Kind      string                   `json:"kind"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// session negotiates one DataChannel link over a rendezvous connection.
// serve runs on its own goroutine; post may be called from pion callbacks.
type session struct {
	link *transport.DataChannel
	conn *websocket.Conn
	wmu  sync.Mutex

	// Remote candidates that arrived before the remote description.
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func (s *session) post(e envelope) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteJSON(e)
}

// describe creates the local offer or answer, applies it and sends it.
func (s *session) describe(kind string) error {
	var (
		desc webrtc.SessionDescription
		err  error
	)
	if kind == kindOffer {
		desc, err = s.link.CreateOffer()
	} else {
		desc, err = s.link.CreateAnswer()
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", kind, err)
	}
	if err := s.link.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("failed to apply local %s: %w", kind, err)
	}
	return s.post(envelope{Kind: kind, SDP: desc.SDP})
}

// trickle forwards a locally gathered candidate. Losing one is not fatal.
func (s *session) trickle(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	init := c.ToJSON()
	if err := s.post(envelope{Kind: kindCandidate, Candidate: &init}); err != nil {
		util.LogDebug("signaling: candidate not sent: %v", err)
	}
}

// serve applies the peer's messages until the connection closes.
func (s *session) serve() error {
	for {
		var e envelope
		if err := s.conn.ReadJSON(&e); err != nil {
			return fmt.Errorf("failed to read signaling message: %w", err)
		}
		if err := s.apply(e); err != nil {
			return err
		}
	}
}

func (s *session) apply(e envelope) error {
	switch e.Kind {
	case kindOffer:
		if err := s.remote(webrtc.SDPTypeOffer, e.SDP); err != nil {
			return err
		}
		return s.describe(kindAnswer)

	case kindAnswer:
		return s.remote(webrtc.SDPTypeAnswer, e.SDP)

	case kindCandidate:
		if e.Candidate == nil {
			return nil
		}
		if !s.remoteSet {
			s.pending = append(s.pending, *e.Candidate)
			return nil
		}
		if err := s.link.AddICECandidate(*e.Candidate); err != nil {
			return fmt.Errorf("failed to add ICE candidate: %w", err)
		}
		return nil

	default:
		util.LogDebug("signaling: ignoring %q message", e.Kind)
		return nil
	}
}

// remote applies the peer's description and then any candidates held back
// while it was missing.
func (s *session) remote(typ webrtc.SDPType, sdp string) error {
	if err := s.link.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("failed to apply remote %s: %w", typ, err)
	}
	s.remoteSet = true

	for _, c := range s.pending {
		if err := s.link.AddICECandidate(c); err != nil {
			return fmt.Errorf("failed to add ICE candidate: %w", err)
		}
	}
	s.pending = nil
	return nil
}
