package protocol

import (
	"errors"
	"fmt"
)

// ErrFrameSize is returned by Decode for empty or oversize buffers.
var ErrFrameSize = errors.New("invalid frame size")

// Header packs the three header fields into one byte.
func Header(control bool, gen Generation, seq uint8) byte {
	h := seq & seqMask
	if control {
		h |= controlBit
	}
	if gen&1 == 1 {
		h |= generationBit
	}
	return h
}

// ParseHeader unpacks a header byte.
func ParseHeader(h byte) (control bool, gen Generation, seq uint8) {
	control = h&controlBit != 0
	if h&generationBit != 0 {
		gen = 1
	}
	return control, gen, h & seqMask
}

// Encode serializes a Frame for the radio link. It panics if the sequence
// number does not fit in six bits or the payload exceeds MaxFragmentSize.
func Encode(f Frame) []byte {
	if f.Seq > MaxSeq {
		panic(fmt.Sprintf("protocol: sequence %d out of range", f.Seq))
	}
	if len(f.Payload) > MaxFragmentSize {
		panic(fmt.Sprintf("protocol: payload of %d bytes exceeds %d", len(f.Payload), MaxFragmentSize))
	}

	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = Header(f.Control, f.Generation, f.Seq)
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// Decode deserializes a radio frame. No semantic checks are made; range
// validation belongs to the ARQ roles.
func Decode(data []byte) (Frame, error) {
	if len(data) < HeaderSize || len(data) > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameSize, len(data))
	}

	var f Frame
	f.Control, f.Generation, f.Seq = ParseHeader(data[0])
	if len(data) > HeaderSize {
		f.Payload = make([]byte, len(data)-HeaderSize)
		copy(f.Payload, data[HeaderSize:])
	}
	return f, nil
}

// Control builds a payload-less feedback frame.
func Control(gen Generation, seq uint8) []byte {
	return []byte{Header(true, gen, seq)}
}
