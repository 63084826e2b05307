package parser

import (
	"fmt"

	"github.com/intelcon-group/fleet-gateway/pkg/jimi/packet"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/protocol"
)

// HeartbeatParser parses keep-alive packets (protocol 0x23).
type HeartbeatParser struct {
	BaseParser
}

// NewHeartbeatParser creates a new heartbeat parser.
func NewHeartbeatParser() *HeartbeatParser {
	return &HeartbeatParser{BaseParser: NewBaseParser(protocol.ProtocolHeartbeat, "Heartbeat")}
}

// Parse implements Parser. LL301 heartbeats carry no content; the serial
// is all the gateway needs for the ACK.
func (p *HeartbeatParser) Parse(data []byte) (packet.Packet, error) {
	return parseHeartbeat(data, protocol.ProtocolHeartbeat)
}

// HeartbeatAltParser parses the alternate keep-alive (protocol 0x36) some
// firmware revisions emit.
type HeartbeatAltParser struct {
	BaseParser
}

// NewHeartbeatAltParser creates a parser for the alternate heartbeat.
func NewHeartbeatAltParser() *HeartbeatAltParser {
	return &HeartbeatAltParser{BaseParser: NewBaseParser(protocol.ProtocolHeartbeatAlt, "Heartbeat")}
}

// Parse implements Parser.
func (p *HeartbeatAltParser) Parse(data []byte) (packet.Packet, error) {
	return parseHeartbeat(data, protocol.ProtocolHeartbeatAlt)
}

func parseHeartbeat(data []byte, protocolNum byte) (packet.Packet, error) {
	serialNum, err := ExtractSerialNumber(data)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}

	return &packet.HeartbeatPacket{
		BasePacket: packet.BasePacket{
			ProtocolNum: protocolNum,
			SerialNum:   serialNum,
			RawData:     data,
		},
	}, nil
}
