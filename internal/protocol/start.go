package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// StartPayloadSize is the size of the seq-0 payload: F(1) + L(2).
const StartPayloadSize = 3

// ErrStartPayload is returned by ParseStart for a truncated payload.
var ErrStartPayload = errors.New("start payload too short")

// Start is the transfer announcement carried by the seq-0 frame.
type Start struct {
	Fragments uint8  // F
	Length    uint16 // L, bytes
}

// Marshal encodes the start payload, L big-endian.
func (s Start) Marshal() []byte {
	buf := make([]byte, StartPayloadSize)
	buf[0] = s.Fragments
	binary.BigEndian.PutUint16(buf[1:3], s.Length)
	return buf
}

// ParseStart decodes a start payload without range checks.
func ParseStart(payload []byte) (Start, error) {
	if len(payload) < StartPayloadSize {
		return Start{}, fmt.Errorf("%w: %d bytes (need %d)", ErrStartPayload, len(payload), StartPayloadSize)
	}
	return Start{
		Fragments: payload[0],
		Length:    binary.BigEndian.Uint16(payload[1:3]),
	}, nil
}

// Valid reports whether F and L are within the protocol bounds.
func (s Start) Valid() bool {
	return s.Fragments >= 1 && s.Fragments <= MaxFragments &&
		s.Length >= MinPacketSize && s.Length <= MaxPacketSize
}

// String is used in debug logs.
func (s Start) String() string {
	return fmt.Sprintf("F=%d L=%d", s.Fragments, s.Length)
}
