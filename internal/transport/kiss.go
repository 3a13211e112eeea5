package transport

import "github.com/1ureka/radiolink/internal/protocol"

// KISS framing, as spoken by TNCs and most serial radio modems.
const (
	kissFEND    = 0xC0
	kissFESC    = 0xDB
	kissTFEND   = 0xDC
	kissTFESC   = 0xDD
	kissCmdData = 0x00

	// command byte + the largest radio frame
	kissMaxFrame = 1 + protocol.MaxFrameSize
)

// encodeKISS wraps frame as a KISS data frame on port 0.
func encodeKISS(frame []byte) []byte {
	out := make([]byte, 0, len(frame)*2+3)
	out = append(out, kissFEND, kissCmdData)
	for _, b := range frame {
		switch b {
		case kissFEND:
			out = append(out, kissFESC, kissTFEND)
		case kissFESC:
			out = append(out, kissFESC, kissTFESC)
		default:
			out = append(out, b)
		}
	}
	return append(out, kissFEND)
}

// kissDecoder reassembles KISS frames from an arbitrarily chunked byte
// stream. Non-data commands and malformed escapes are discarded.
type kissDecoder struct {
	buf     []byte
	inFrame bool
	escaped bool
}

// feed consumes chunk and calls emit for every complete data frame.
func (d *kissDecoder) feed(chunk []byte, emit func([]byte)) {
	for _, b := range chunk {
		switch {
		case b == kissFEND:
			if d.inFrame && len(d.buf) > 1 && d.buf[0]&0x0F == kissCmdData {
				frame := make([]byte, len(d.buf)-1)
				copy(frame, d.buf[1:])
				emit(frame)
			}
			d.buf = d.buf[:0]
			d.inFrame = true
			d.escaped = false

		case !d.inFrame:
			// noise before the first FEND

		case d.escaped:
			d.escaped = false
			switch b {
			case kissTFEND:
				d.add(kissFEND)
			case kissTFESC:
				d.add(kissFESC)
			default:
				// invalid escape: drop the frame
				d.drop()
			}

		case b == kissFESC:
			d.escaped = true

		default:
			d.add(b)
		}
	}
}

// add appends one unescaped byte. A frame that outgrows any radio frame is
// noise; it is dropped and the decoder waits for the next FEND.
func (d *kissDecoder) add(b byte) {
	if len(d.buf) >= kissMaxFrame {
		d.drop()
		return
	}
	d.buf = append(d.buf, b)
}

func (d *kissDecoder) drop() {
	d.buf = d.buf[:0]
	d.inFrame = false
	d.escaped = false
}
