// Package packetio connects the station to the local network stack: it
// yields outbound packets and accepts reassembled inbound ones.
package packetio

import (
	"context"
	"errors"

	"golang.org/x/net/ipv4"
)

// ErrClosed is returned by ReadPacket after Close.
var ErrClosed = errors.New("packetio closed")

// PacketIO is the station's view of the local network stack.
type PacketIO interface {
	// ReadPacket blocks until the next outbound packet is available.
	ReadPacket(ctx context.Context) ([]byte, error)
	// WritePacket delivers a reassembled packet.
	WritePacket(packet []byte) error
}

// IsIPv4 reports whether b starts with a well-formed IPv4 header.
func IsIPv4(b []byte) bool {
	h, err := ipv4.ParseHeader(b)
	if err != nil {
		return false
	}
	return h.Version == ipv4.Version && h.Len >= ipv4.HeaderLen
}
