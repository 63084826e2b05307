package packet

import (
	"time"

	"github.com/intelcon-group/fleet-gateway/pkg/jimi/protocol"
)

// Packet is the base interface for all decoded packets.
type Packet interface {
	// ProtocolNumber returns the protocol number for this packet type.
	ProtocolNumber() byte

	// SerialNumber returns the information serial number. The device
	// increments it with each packet it sends; acknowledgements must echo
	// it back.
	SerialNumber() uint16

	// Timestamp returns the packet timestamp, or the zero time if the
	// packet carries none.
	Timestamp() time.Time

	// Raw returns the raw packet bytes.
	Raw() []byte

	// Type returns the human-readable packet type name.
	Type() string
}

// BasePacket contains fields common to all packets. Specific packet types
// embed it. It is also returned as-is for protocol numbers the decoder has
// no parser for.
type BasePacket struct {
	ProtocolNum byte
	SerialNum   uint16
	RawData     []byte
}

// ProtocolNumber implements Packet.
func (p *BasePacket) ProtocolNumber() byte {
	return p.ProtocolNum
}

// SerialNumber implements Packet.
func (p *BasePacket) SerialNumber() uint16 {
	return p.SerialNum
}

// Raw implements Packet.
func (p *BasePacket) Raw() []byte {
	return p.RawData
}

// Timestamp implements Packet. Packet types that carry a timestamp override it.
func (p *BasePacket) Timestamp() time.Time {
	return time.Time{}
}

// Type implements Packet.
func (p *BasePacket) Type() string {
	return GetProtocolName(p.ProtocolNum)
}

// GetProtocolName returns the human-readable protocol name.
func GetProtocolName(protocolNum byte) string {
	switch protocolNum {
	case protocol.ProtocolLogin:
		return "Login"
	case protocol.ProtocolGPSLocation:
		return "GPS Location"
	case protocol.ProtocolGPSLocation4G:
		return "GPS Location 4G"
	case protocol.ProtocolHeartbeat, protocol.ProtocolHeartbeatAlt:
		return "Heartbeat"
	case protocol.ProtocolTimeRequest:
		return "Time Request"
	case protocol.ProtocolRequestLocation:
		return "Request Location"
	default:
		return "Unknown"
	}
}
