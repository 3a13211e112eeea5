// Package protocol defines the radio frame format: a one-byte header carrying
// the control bit, the generation bit and a 6-bit sequence number, followed by
// at most 31 payload bytes.
package protocol

// Frame layout limits.
const (
	MaxFrameSize    = 32 // one radio payload
	HeaderSize      = 1
	MaxFragmentSize = MaxFrameSize - HeaderSize
)

// Reserved sequence numbers. Data fragments use 1..MaxFragments.
const (
	StartSeq      uint8 = 0
	CompletionSeq uint8 = 63
	MaxSeq        uint8 = 63
	MaxFragments        = 62
)

// Packet size bounds: the IPv4 minimum header up to 62 full fragments.
const (
	MinPacketSize = 20
	MaxPacketSize = MaxFragments * MaxFragmentSize // 1922
)

const (
	controlBit    = 0x80
	generationBit = 0x40
	seqMask       = 0x3F
)

// Generation is the 1-bit parity tagging one packet transfer.
type Generation uint8

// Flip returns the other generation.
func (g Generation) Flip() Generation { return g ^ 1 }

// Frame is one decoded radio frame.
type Frame struct {
	Control    bool       // feedback (NAK, ACK or completion) rather than data
	Generation Generation // 0 or 1
	Seq        uint8      // 0..63
	Payload    []byte     // start payload, fragment bytes, or empty for control frames
}

// IsStart reports whether f is a data frame announcing a transfer.
func (f Frame) IsStart() bool { return !f.Control && f.Seq == StartSeq }

// IsCompletion reports whether f is the completion signal.
func (f Frame) IsCompletion() bool { return f.Control && f.Seq == CompletionSeq }
