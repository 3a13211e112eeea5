package transport

import (
	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

// ICE selects how a DataChannel link finds a path to the other station.
type ICE struct {
	// STUN server URLs for server-reflexive candidates. Empty gathers host
	// candidates only.
	STUN []string
	// Loopback also offers 127.0.0.1, for two stations on one host. mDNS is
	// turned off with it.
	Loopback bool
}

// DefaultICE uses public STUN servers and no TURN relay.
var DefaultICE = ICE{
	STUN: []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	},
}

func (c ICE) peerConnection() (*webrtc.PeerConnection, error) {
	var se webrtc.SettingEngine
	if c.Loopback {
		se.SetIncludeLoopbackCandidate(true)
		se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}

	var cfg webrtc.Configuration
	if len(c.STUN) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: c.STUN}}
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se)).NewPeerConnection(cfg)
}

// radioChannel opens the link's only DataChannel. Both ends create it with
// the same pre-agreed ID, so neither waits for an in-band announcement. It is
// unordered and never retransmits: a lost message stays lost, as on air.
func radioChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	var (
		ordered    = false
		negotiated = true
		retries    = uint16(0)
		id         = uint16(0)
	)
	return pc.CreateDataChannel("radio", &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retries,
		Negotiated:     &negotiated,
		ID:             &id,
	})
}
