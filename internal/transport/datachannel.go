package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/radiolink/internal/protocol"
	"github.com/1ureka/radiolink/internal/util"
)

const (
	highWaterMark = 64 * 1024 // refuse frames while bufferedAmount exceeds this
	inboxSize     = 256       // queued inbound frames before the oldest overflow
)

// DataChannel wraps a single PeerConnection + DataChannel pair and carries one
// radio frame per DataChannel message.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time. The PeerConnection state is recorded but does not
// drive open/close decisions.
type DataChannel struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	inbox      *inbox
	openSignal chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// NewDataChannel creates a DataChannel transport backed by a new
// PeerConnection gathering candidates as ice says. The caller performs
// signaling via the exposed methods and waits on Ready before sending.
func NewDataChannel(ctx context.Context, ice ICE) (*DataChannel, error) {
	pc, err := ice.peerConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}

	dc, err := radioChannel(pc)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create DataChannel: %w", err)
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &DataChannel{
		pc:         pc,
		dc:         dc,
		inbox:      newInbox(inboxSize, tCtx.Done()),
		openSignal: make(chan struct{}),
		ctx:        tCtx,
		cancel:     tCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	// DC open gate.
	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(t.openSignal) })
	})

	// DC close → cancel transport context.
	dc.OnClose(func() {
		util.LogInfo("DataChannel closed")
		tCancel()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		frame := append([]byte(nil), msg.Data...)
		if !t.inbox.offer(frame) {
			util.LogDebug("DataChannel inbox full, frame dropped")
		}
	})

	// Record PC state (informational only).
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		t.mu.Lock()
		t.pcState = state
		t.mu.Unlock()
	})

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open.
func (t *DataChannel) Ready() <-chan struct{} {
	return t.openSignal
}

// Done returns a channel that is closed when the transport is shut down.
func (t *DataChannel) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Close shuts down the DataChannel and PeerConnection.
func (t *DataChannel) Close() error {
	t.cancel()
	return errors.Join(t.dc.Close(), t.pc.Close())
}

// ConnectionState returns the last observed PeerConnection state.
func (t *DataChannel) ConnectionState() webrtc.PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *DataChannel) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *DataChannel) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (t *DataChannel) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *DataChannel) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (t *DataChannel) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (t *DataChannel) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// Send writes one frame as a DataChannel message. Frames are refused rather
// than queued when the SCTP buffer is above the high-water mark.
func (t *DataChannel) Send(frame []byte) error {
	if len(frame) > protocol.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}

	select {
	case <-t.ctx.Done():
		return ErrClosed
	case <-t.openSignal:
	default:
		return ErrNotReady
	}

	if t.dc.BufferedAmount() > uint64(highWaterMark) {
		return ErrCongested
	}
	return t.dc.Send(frame)
}

// Receive returns the next inbound frame.
func (t *DataChannel) Receive(ctx context.Context) ([]byte, error) {
	return t.inbox.receive(ctx)
}
