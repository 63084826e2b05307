package parser

import (
	"fmt"

	"github.com/intelcon-group/fleet-gateway/internal/codec"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/packet"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/protocol"
)

// LoginParser parses login packets (protocol 0x01).
type LoginParser struct {
	BaseParser
}

// NewLoginParser creates a new login parser.
func NewLoginParser() *LoginParser {
	return &LoginParser{BaseParser: NewBaseParser(protocol.ProtocolLogin, "Login")}
}

// Parse implements Parser.
// Login packet content structure:
//   - IMEI: 8 bytes BCD (padding bytes carry non-decimal nibbles and are filtered)
//   - Type identification code: 2 bytes
//   - Timezone/Language: 2 bytes
func (p *LoginParser) Parse(data []byte) (packet.Packet, error) {
	content, err := ExtractContent(data)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if len(content) < 12 {
		return nil, fmt.Errorf("login: content too short: %d bytes (need 12)", len(content))
	}

	imei, err := codec.DecodeIMEI(content[0:8])
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	typeID := codec.ReadUint16BE(content[8:10])
	tzLang := codec.ReadUint16BE(content[10:12])
	serialNum, _ := ExtractSerialNumber(data)

	return &packet.LoginPacket{
		BasePacket: packet.BasePacket{
			ProtocolNum: protocol.ProtocolLogin,
			SerialNum:   serialNum,
			RawData:     data,
		},
		IMEI:         imei,
		TypeID:       typeID,
		TimezoneLang: tzLang,
	}, nil
}
