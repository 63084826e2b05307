// Package telemetry defines the canonical position record the gateway
// emits and the validation, normalization and deduplication that stand
// between raw decoded frames and subscribers.
package telemetry

import (
	"time"

	"github.com/intelcon-group/fleet-gateway/pkg/jimi/types"
)

// Protocol family identifiers carried on emitted fixes.
const (
	ProtocolJimi    = "jimi"
	ProtocolRuptela = "ruptela"
)

// Fix is one validated position record in canonical form.
type Fix struct {
	IMEI       string
	Latitude   float64 // signed decimal degrees
	Longitude  float64 // signed decimal degrees
	Timestamp  time.Time
	Speed      float64 // km/h
	Course     float64 // degrees
	Altitude   float64 // metres, Ruptela only
	HDOP       float64 // Ruptela only
	Satellites int
	Positioned bool
	RealTime   bool
	Protocol   string
	Serial     uint16
	SourcePort int

	// Cell is the serving base station, Jimi only.
	Cell *types.CellInfo

	// IO carries Ruptela IO elements keyed by value width then element id.
	IO map[uint8]map[uint16]int64

	// EventID is the Ruptela record trigger.
	EventID uint16
}

// Key is the deduplication fingerprint: timestamp and coordinates
// quantized to six decimal places.
func (f Fix) Key() string {
	return dedupKey(f.Timestamp, f.Latitude, f.Longitude)
}
