package ruptela

import "github.com/intelcon-group/fleet-gateway/internal/crc"

// Encoder builds the server-to-terminal acknowledgement frames.
type Encoder struct{}

// NewEncoder creates a new encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// buildFrame wraps a command and payload in the length prefix and
// trailing CRC-16/Kermit. The checksum covers the command byte and the
// payload, not the length prefix.
func (e *Encoder) buildFrame(cmd byte, payload []byte) []byte {
	inner := make([]byte, 0, 1+len(payload))
	inner = append(inner, cmd)
	inner = append(inner, payload...)

	frame := make([]byte, 0, LengthFieldSize+len(inner)+CRCSize)
	frame = append(frame, byte(len(inner)>>8), byte(len(inner)))
	frame = append(frame, inner...)

	sum := crc.Kermit(inner)
	frame = append(frame, byte(sum>>8), byte(sum))

	return frame
}

// RecordsAck acknowledges a records batch. ok is true when at least one
// record survived validation; the device re-sends the batch on a negative
// acknowledgement.
func (e *Encoder) RecordsAck(ok bool) []byte {
	ack := byte(0)
	if ok {
		ack = 1
	}
	return e.buildFrame(RespRecords, []byte{ack})
}

// IdentificationAck acknowledges an identification frame. A rejected
// device receives a back-off delay in minutes before it may retry.
func (e *Encoder) IdentificationAck(authorized bool, delayMinutes uint8) []byte {
	if authorized {
		return e.buildFrame(RespIdentification, []byte{0x01})
	}
	return e.buildFrame(RespIdentification, []byte{0x02, delayMinutes})
}

// DynamicIdentificationAck acknowledges a dynamic identification frame.
func (e *Encoder) DynamicIdentificationAck(authorized bool, delayMinutes uint8) []byte {
	if authorized {
		return e.buildFrame(RespDynamicIdentification, []byte{0x01})
	}
	return e.buildFrame(RespDynamicIdentification, []byte{0x02, delayMinutes})
}

// HeartbeatAck acknowledges a keep-alive.
func (e *Encoder) HeartbeatAck() []byte {
	return e.buildFrame(RespHeartbeat, []byte{0x01})
}
