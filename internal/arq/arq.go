// Package arq implements the selective-NAK automatic repeat request that
// moves one IP packet at a time across the radio link, plus the positive-ACK
// mode of the same state machine.
//
// Each station runs one Sender and one Receiver. Both directions of the link
// carry traffic for both roles: control frames are feedback for the local
// Sender, data frames belong to the local Receiver.
package arq

import (
	"errors"
	"time"

	"github.com/1ureka/radiolink/internal/protocol"
)

// Mode selects how the receiver reports progress.
type Mode int

const (
	// ModeNAK: the receiver reports only gaps and sends a completion signal.
	ModeNAK Mode = iota
	// ModeACK: the receiver acknowledges every data frame; no completion
	// signal is sent.
	ModeACK
)

func (m Mode) String() string {
	if m == ModeACK {
		return "ack"
	}
	return "nak"
}

// DefaultResendInterval is the cadence of the sender's resend sweep.
const DefaultResendInterval = time.Millisecond

// initialGeneration is shared by both ends of both directions.
const initialGeneration protocol.Generation = 1

// ErrPacketSize is returned by Sender.Transfer for packets that cannot be
// described by a start frame.
var ErrPacketSize = errors.New("packet size out of range")

// PacketWriter receives reassembled packets.
type PacketWriter interface {
	WritePacket(packet []byte) error
}

// Options configures a Station and its roles. The zero value is NAK mode
// with a 1ms resend interval and the IPv4 validity check.
type Options struct {
	Mode           Mode
	ResendInterval time.Duration
	// Valid decides whether a buffer is a packet worth sending or
	// delivering. Nil means packetio.IsIPv4.
	Valid func([]byte) bool
}
