// Package ruptela decodes and encodes the Ruptela framed-records protocol
// spoken by FM-series trackers (FMB/Pro5 and ECO5 share the wire format).
//
// A frame is length-prefixed: a 2-byte big-endian packet length, the
// payload (8-byte IMEI, 1-byte command, command body) and a trailing
// CRC-16/Kermit over the payload. There is no end marker.
package ruptela

// Command numbers of the terminal-to-server frames the gateway handles.
const (
	// CmdRecords is the position records batch.
	CmdRecords = 1

	// CmdIdentification is the device identification frame sent on connect.
	CmdIdentification = 15

	// CmdHeartbeat is the keep-alive frame.
	CmdHeartbeat = 16

	// CmdDynamicIdentification is the extended identification frame newer
	// firmware sends instead of CmdIdentification.
	CmdDynamicIdentification = 18

	// CmdExtendedRecords is the records batch with 2-byte IO ids.
	CmdExtendedRecords = 68
)

// Server response command numbers.
const (
	// RespRecords acknowledges a records batch (both record commands).
	RespRecords = 100

	// RespIdentification acknowledges an identification frame.
	RespIdentification = 115

	// RespHeartbeat acknowledges a heartbeat.
	RespHeartbeat = 116

	// RespDynamicIdentification acknowledges a dynamic identification frame.
	RespDynamicIdentification = 118
)

// Frame layout sizes.
const (
	// LengthFieldSize is the 2-byte packet length prefix.
	LengthFieldSize = 2

	// CRCSize is the trailing checksum.
	CRCSize = 2

	// HeaderSize is IMEI(8) + command(1), the fixed payload prefix.
	HeaderSize = 9

	// MinFrameSize is the smallest parseable frame:
	// length(2) + IMEI(8) + command(1) + CRC(2).
	MinFrameSize = LengthFieldSize + HeaderSize + CRCSize
)

// AckCommand returns the response command number for a received command,
// and whether the command expects a response at all.
func AckCommand(cmd byte) (byte, bool) {
	switch cmd {
	case CmdRecords, CmdExtendedRecords:
		return RespRecords, true
	case CmdIdentification:
		return RespIdentification, true
	case CmdHeartbeat:
		return RespHeartbeat, true
	case CmdDynamicIdentification:
		return RespDynamicIdentification, true
	}
	return 0, false
}
