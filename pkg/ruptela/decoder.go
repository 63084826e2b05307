package ruptela

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/intelcon-group/fleet-gateway/internal/codec"
	"github.com/intelcon-group/fleet-gateway/internal/crc"
)

// Common errors returned by the decoder.
var (
	// ErrFrameTooShort indicates the frame is smaller than the minimum.
	ErrFrameTooShort = errors.New("frame too short")

	// ErrLengthMismatch indicates the declared packet length disagrees
	// with the observed frame size.
	ErrLengthMismatch = errors.New("declared length does not match frame size")
)

// CRCError reports a checksum mismatch.
type CRCError struct {
	Calculated uint16
	Received   uint16
}

// Error implements the error interface.
func (e *CRCError) Error() string {
	return fmt.Sprintf("CRC mismatch: calculated 0x%04X, received 0x%04X", e.Calculated, e.Received)
}

// Message is the interface all decoded Ruptela frames implement.
type Message interface {
	// DeviceIMEI returns the IMEI carried in the frame header.
	DeviceIMEI() string

	// Command returns the command number.
	Command() byte
}

// Header holds the fields common to every frame.
type Header struct {
	IMEI      string
	CommandID byte
}

// DeviceIMEI implements Message.
func (h Header) DeviceIMEI() string { return h.IMEI }

// Command implements Message.
func (h Header) Command() byte { return h.CommandID }

// RecordsMessage is a batch of position records (commands 1 and 68).
type RecordsMessage struct {
	Header
	RecordsLeft uint8
	Records     []Record
}

// IdentificationMessage is the device identification frame (commands 15
// and 18). Fields beyond the header are device-reported metadata and may
// be zero when the firmware omits them.
type IdentificationMessage struct {
	Header
	DeviceType uint8
	Firmware   uint16
	IMSI       string
	Operator   uint32
}

// HeartbeatMessage is the keep-alive frame (command 16).
type HeartbeatMessage struct {
	Header
}

// UnknownMessage carries an unrecognized command and its raw body.
type UnknownMessage struct {
	Header
	Body []byte
}

// Decoder turns one complete frame into a typed message.
type Decoder struct{}

// NewDecoder creates a new decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a complete frame: length prefix, payload, trailing CRC.
// The CRC is verified before any field is read.
func (d *Decoder) Decode(data []byte) (Message, error) {
	if len(data) < MinFrameSize {
		return nil, ErrFrameTooShort
	}

	declared := int(codec.ReadUint16BE(data))
	if len(data) != declared+LengthFieldSize+CRCSize {
		return nil, ErrLengthMismatch
	}

	payload := data[LengthFieldSize : len(data)-CRCSize]
	calculated := crc.Kermit(payload)
	received := codec.ReadUint16BE(data[len(data)-CRCSize:])
	if calculated != received {
		return nil, &CRCError{Calculated: calculated, Received: received}
	}

	imei := strconv.FormatUint(codec.ReadUint64BE(payload), 10)
	cmd := payload[8]
	body := payload[HeaderSize:]

	header := Header{IMEI: imei, CommandID: cmd}

	switch cmd {
	case CmdRecords, CmdExtendedRecords:
		left, records := parseRecords(body, cmd == CmdExtendedRecords)
		return &RecordsMessage{Header: header, RecordsLeft: left, Records: records}, nil

	case CmdIdentification, CmdDynamicIdentification:
		return parseIdentification(header, body), nil

	case CmdHeartbeat:
		return &HeartbeatMessage{Header: header}, nil

	default:
		return &UnknownMessage{Header: header, Body: body}, nil
	}
}

// parseIdentification reads the identification body leniently: the frame
// is acknowledged whatever its contents, so truncated metadata downgrades
// to zero values rather than an error.
func parseIdentification(header Header, body []byte) *IdentificationMessage {
	msg := &IdentificationMessage{Header: header}

	if len(body) >= 1 {
		msg.DeviceType = body[0]
	}
	if len(body) >= 3 {
		msg.Firmware = codec.ReadUint16BE(body[1:3])
	}
	if len(body) >= 11 {
		msg.IMSI = codec.DecodeBCDFiltered(body[3:11])
	}
	if len(body) >= 15 {
		msg.Operator = codec.ReadUint32BE(body[11:15])
	}

	return msg
}
