package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// headerSize is the byte width of the length prefix.
const headerSize = 8

// Encode returns payload prefixed with its 8-byte big-endian length. There
// is no length limit beyond the integer width.
func Encode(payload []byte) []byte {
	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint64(frame[:headerSize], uint64(len(payload)))
	copy(frame[headerSize:], payload)
	return frame
}

// Decoder incrementally reassembles frames from a fragmented byte stream.
// The zero value is ready to use. Not safe for concurrent use.
type Decoder struct {
	buf []byte
}

// Append adds a chunk of stream bytes and returns every complete payload now
// available, in order. Partial tails are retained for the next call. Append
// never blocks and never discards bytes.
func (d *Decoder) Append(chunk []byte) [][]byte {
	d.buf = append(d.buf, chunk...)

	var payloads [][]byte
	for {
		if len(d.buf) < headerSize {
			break
		}
		length := binary.BigEndian.Uint64(d.buf[:headerSize])
		if length > math.MaxInt-headerSize {
			// Cannot ever buffer a frame this large; wait forever rather
			// than mis-slice on overflow.
			break
		}
		total := uint64(headerSize) + length
		if uint64(len(d.buf)) < total {
			break
		}
		payload := make([]byte, length)
		copy(payload, d.buf[headerSize:total])
		payloads = append(payloads, payload)
		d.buf = d.buf[total:]
	}

	// Re-home the remainder so completed frames can be collected.
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return payloads
}

// Buffered returns the number of undecoded bytes held by the decoder.
func (d *Decoder) Buffered() int { return len(d.buf) }

// WriteFrame writes payload as a single frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if _, err := w.Write(Encode(payload)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one complete frame from r and returns its payload. maxLen
// bounds the accepted payload length; pass 0 for no bound. Blocking
// receivers use this instead of Decoder when they own the stream.
func ReadFrame(r io.Reader, maxLen uint64) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint64(header[:])
	if maxLen > 0 && length > maxLen {
		return nil, fmt.Errorf("frame too large: %d bytes", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}
