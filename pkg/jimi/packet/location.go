package packet

import (
	"time"

	"github.com/intelcon-group/fleet-gateway/pkg/jimi/types"
)

// LocationPacket is a GPS position report (protocols 0x22 and 0xA0).
type LocationPacket struct {
	BasePacket

	DateTime     time.Time
	Satellites   uint8
	Coordinates  types.Coordinates
	Speed        uint8 // km/h
	CourseStatus types.CourseStatus
	Cell         types.CellInfo
	Is4G         bool
}

// Timestamp implements Packet.
func (p *LocationPacket) Timestamp() time.Time {
	return p.DateTime
}

// IsPositioned reports whether the device had a valid fix when reporting.
func (p *LocationPacket) IsPositioned() bool {
	return p.CourseStatus.IsPositioned
}

// IsRealTime reports whether the position is a live report rather than a
// stored re-upload.
func (p *LocationPacket) IsRealTime() bool {
	return p.CourseStatus.IsRealTime
}
