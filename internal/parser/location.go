package parser

import (
	"fmt"

	"github.com/intelcon-group/fleet-gateway/internal/codec"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/packet"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/protocol"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/types"
)

// LocationParser parses 2G GPS location packets (protocol 0x22).
type LocationParser struct {
	BaseParser
}

// NewLocationParser creates a new 2G location parser.
func NewLocationParser() *LocationParser {
	return &LocationParser{BaseParser: NewBaseParser(protocol.ProtocolGPSLocation, "GPS Location")}
}

// Parse implements Parser.
func (p *LocationParser) Parse(data []byte) (packet.Packet, error) {
	return parseLocation(data, protocol.ProtocolGPSLocation, false)
}

// Location4GParser parses 4G GPS location packets (protocol 0xA0).
type Location4GParser struct {
	BaseParser
}

// NewLocation4GParser creates a new 4G location parser.
func NewLocation4GParser() *Location4GParser {
	return &Location4GParser{BaseParser: NewBaseParser(protocol.ProtocolGPSLocation4G, "GPS Location 4G")}
}

// Parse implements Parser.
func (p *Location4GParser) Parse(data []byte) (packet.Packet, error) {
	return parseLocation(data, protocol.ProtocolGPSLocation4G, true)
}

// parseLocation decodes the shared location layout.
// Content structure:
//   - DateTime: 6 bytes YY MM DD HH MM SS
//   - GPS info: 1 byte, low nibble = satellite count
//   - Latitude: 4 bytes (degrees * 1,800,000)
//   - Longitude: 4 bytes (degrees * 1,800,000)
//   - Speed: 1 byte km/h
//   - Course/Status: 2 bytes (10-bit course, real-time, positioned, hemisphere bits)
//   - Cell: MCC(2) MNC(1|2) LAC(2|4) CellID(3|8), widths per generation
func parseLocation(data []byte, protocolNum byte, is4G bool) (packet.Packet, error) {
	content, err := ExtractContent(data)
	if err != nil {
		return nil, fmt.Errorf("location: %w", err)
	}

	minLen := 6 + 1 + 4 + 4 + 1 + 2
	if len(content) < minLen {
		return nil, fmt.Errorf("location: content too short: %d bytes (need at least %d)", len(content), minLen)
	}

	offset := 0

	dt, err := codec.DecodeDateTime(content[offset : offset+6])
	if err != nil {
		return nil, fmt.Errorf("location: bad datetime: %w", err)
	}
	offset += 6

	satellites := content[offset] & 0x0F
	offset++

	latRaw := codec.ReadUint32BE(content[offset : offset+4])
	offset += 4
	lonRaw := codec.ReadUint32BE(content[offset : offset+4])
	offset += 4

	speed := content[offset]
	offset++

	courseStatus, err := types.NewCourseStatusFromBytes(content[offset : offset+2])
	if err != nil {
		return nil, fmt.Errorf("location: bad course status: %w", err)
	}
	offset += 2

	coords := types.NewCoordinatesFromRaw(latRaw, lonRaw, courseStatus.IsNorth, !courseStatus.IsWest)

	// The cell block is mandatory on the wire but some firmware truncates
	// it on LBS-less reports; a missing block is not fatal.
	var cell types.CellInfo
	if offset < len(content) {
		if c, _, err := types.NewCellInfoFromBytes(content[offset:], is4G); err == nil {
			cell = c
		}
	}

	serialNum, _ := ExtractSerialNumber(data)

	return &packet.LocationPacket{
		BasePacket: packet.BasePacket{
			ProtocolNum: protocolNum,
			SerialNum:   serialNum,
			RawData:     data,
		},
		DateTime:     dt,
		Satellites:   satellites,
		Coordinates:  coords,
		Speed:        speed,
		CourseStatus: courseStatus,
		Cell:         cell,
		Is4G:         is4G,
	}, nil
}
