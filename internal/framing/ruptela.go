package framing

import (
	"github.com/intelcon-group/fleet-gateway/internal/codec"
	"github.com/intelcon-group/fleet-gateway/internal/crc"
	"github.com/intelcon-group/fleet-gateway/pkg/ruptela"
)

// RuptelaReader reassembles Ruptela frames. The format is length-prefixed
// with no end marker: declared length (2 bytes big-endian), payload,
// CRC-16/Kermit over the payload.
type RuptelaReader struct {
	buf []byte
}

// NewRuptelaReader creates a reader for one connection.
func NewRuptelaReader() *RuptelaReader {
	return &RuptelaReader{buf: make([]byte, 0, 1024)}
}

// Push implements Reader.
func (r *RuptelaReader) Push(p []byte) ([][]byte, error) {
	r.buf = append(r.buf, p...)

	var frames [][]byte
	var lastErr *Error

	for {
		frame, err := r.tryExtract()
		if err != nil {
			lastErr = err
			if !err.Recoverable {
				r.buf = r.buf[:0]
				return frames, err
			}
			continue
		}
		if frame == nil {
			break
		}
		frames = append(frames, frame)
	}

	if len(r.buf) > MaxBuffer {
		r.buf = r.buf[:0]
		lastErr = errf(true, "ruptela: buffer exceeded %d bytes without a frame, reset", MaxBuffer)
	}

	if lastErr != nil {
		return frames, lastErr
	}
	return frames, nil
}

// tryExtract attempts to take one complete frame off the front of the
// buffer. A nil frame and nil error means more bytes are needed.
func (r *RuptelaReader) tryExtract() ([]byte, *Error) {
	// Length prefix plus enough of the payload to sanity-check it.
	if len(r.buf) < 8 {
		return nil, nil
	}

	declared := int(codec.ReadUint16BE(r.buf))
	total := declared + ruptela.LengthFieldSize + ruptela.CRCSize

	if declared < ruptela.HeaderSize || total > MaxBuffer {
		// A length that cannot hold the IMEI+command header, or one past
		// the ceiling, means the stream is out of step.
		r.buf = r.buf[:0]
		return nil, errf(true, "ruptela: implausible declared length %d, buffer dropped", declared)
	}

	if len(r.buf) < total {
		return nil, nil
	}

	frame := r.buf[:total]
	payload := frame[ruptela.LengthFieldSize : total-ruptela.CRCSize]

	calculated := crc.Kermit(payload)
	received := codec.ReadUint16BE(frame[total-ruptela.CRCSize:])
	if calculated != received {
		r.consume(total)
		return nil, errf(true, "ruptela: CRC mismatch (calculated 0x%04X, received 0x%04X), frame discarded",
			calculated, received)
	}

	out := make([]byte, total)
	copy(out, frame)
	r.consume(total)

	return out, nil
}

func (r *RuptelaReader) consume(n int) {
	r.buf = append(r.buf[:0], r.buf[n:]...)
}

// Buffered returns the number of bytes waiting for frame completion.
func (r *RuptelaReader) Buffered() int {
	return len(r.buf)
}
