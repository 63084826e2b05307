package framing

import (
	"github.com/intelcon-group/fleet-gateway/internal/crc"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/protocol"
)

// JimiReader reassembles JM-LL301 frames: start marker 0x7878/0x7979,
// declared length, protocol, content, serial, CRC-ITU, stop marker 0x0D0A.
type JimiReader struct {
	buf []byte
}

// NewJimiReader creates a reader for one connection.
func NewJimiReader() *JimiReader {
	return &JimiReader{buf: make([]byte, 0, 1024)}
}

// Push implements Reader.
func (r *JimiReader) Push(p []byte) ([][]byte, error) {
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
		lastErr = errf(true, "jimi: buffer exceeded %d bytes without a frame, reset", MaxBuffer)
	}

	if lastErr != nil {
		return frames, lastErr
	}
	return frames, nil
}

// tryExtract attempts to take one complete frame off the front of the
// buffer. A nil frame and nil error means more bytes are needed.
func (r *JimiReader) tryExtract() ([]byte, *Error) {
	if len(r.buf) < 5 {
		return nil, nil
	}

	start := uint16(r.buf[0])<<8 | uint16(r.buf[1])

	var lengthFieldSize, declared int
	switch start {
	case protocol.StartBitShort:
		lengthFieldSize = protocol.LengthFieldSizeShort
		declared = int(r.buf[2])
	case protocol.StartBitLong:
		lengthFieldSize = protocol.LengthFieldSizeLong
		declared = int(r.buf[2])<<8 | int(r.buf[3])
	default:
		// No marker means the stream is out of step; the only safe
		// recovery is to restart reassembly from empty.
		r.buf = r.buf[:0]
		return nil, errf(true, "jimi: invalid start marker 0x%04X, buffer dropped", start)
	}

	total := protocol.StartBitSize + lengthFieldSize + declared + protocol.StopBitSize
	if total > MaxBuffer {
		r.buf = r.buf[:0]
		return nil, errf(true, "jimi: declared frame size %d exceeds ceiling, buffer dropped", total)
	}

	if len(r.buf) < total {
		return nil, nil
	}

	frame := r.buf[:total]

	stop := uint16(frame[total-2])<<8 | uint16(frame[total-1])
	if stop != protocol.StopBit {
		r.consume(total)
		return nil, errf(true, "jimi: invalid stop marker 0x%04X, frame discarded", stop)
	}

	calculated := crc.ITU(frame[2 : total-4])
	received := uint16(frame[total-4])<<8 | uint16(frame[total-3])
	if calculated != received {
		r.consume(total)
		return nil, errf(true, "jimi: CRC mismatch (calculated 0x%04X, received 0x%04X), frame discarded",
			calculated, received)
	}

	out := make([]byte, total)
	copy(out, frame)
	r.consume(total)

	return out, nil
}

func (r *JimiReader) consume(n int) {
	r.buf = append(r.buf[:0], r.buf[n:]...)
}

// Buffered returns the number of bytes waiting for frame completion.
func (r *JimiReader) Buffered() int {
	return len(r.buf)
}
