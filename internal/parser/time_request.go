package parser

import (
	"fmt"

	"github.com/intelcon-group/fleet-gateway/pkg/jimi/packet"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/protocol"
)

// TimeRequestParser parses time calibration requests (protocol 0x8A).
type TimeRequestParser struct {
	BaseParser
}

// NewTimeRequestParser creates a new time request parser.
func NewTimeRequestParser() *TimeRequestParser {
	return &TimeRequestParser{BaseParser: NewBaseParser(protocol.ProtocolTimeRequest, "Time Request")}
}

// Parse implements Parser. The request carries no content.
func (p *TimeRequestParser) Parse(data []byte) (packet.Packet, error) {
	serialNum, err := ExtractSerialNumber(data)
	if err != nil {
		return nil, fmt.Errorf("time request: %w", err)
	}

	return &packet.TimeRequestPacket{
		BasePacket: packet.BasePacket{
			ProtocolNum: protocol.ProtocolTimeRequest,
			SerialNum:   serialNum,
			RawData:     data,
		},
	}, nil
}
