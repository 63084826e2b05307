package jimi

import (
	"fmt"

	"github.com/intelcon-group/fleet-gateway/internal/crc"
	"github.com/intelcon-group/fleet-gateway/internal/parser"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/packet"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/protocol"
)

// Decoder turns one complete, framed packet into a typed packet.
type Decoder struct {
	opts     Options
	registry *parser.Registry
}

// NewDecoder creates a new decoder with optional configuration.
func NewDecoder(opts ...Option) *Decoder {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Decoder{
		opts:     options,
		registry: parser.DefaultRegistry(),
	}
}

// Decode decodes a single complete packet: start bit, length, protocol,
// content, serial, CRC, stop bit.
func (d *Decoder) Decode(data []byte) (packet.Packet, error) {
	if err := d.validateStructure(data); err != nil {
		return nil, err
	}

	if !d.opts.SkipCRCValidation {
		if err := d.validateCRC(data); err != nil {
			return nil, err
		}
	}

	protocolNum, err := PacketProtocol(data)
	if err != nil {
		return nil, err
	}

	if d.registry.Has(protocolNum) {
		pkt, err := d.registry.Parse(protocolNum, data)
		if err == nil {
			return pkt, nil
		}
		if !d.opts.AllowUnknownProtocols {
			return nil, fmt.Errorf("parse protocol 0x%02X: %w", protocolNum, err)
		}
		// Lenient mode: a payload shorter than its variant requires is
		// downgraded to a generic packet so the caller can still
		// acknowledge it.
	} else if !d.opts.AllowUnknownProtocols {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownProtocol, protocolNum)
	}

	serialNum, _ := parser.ExtractSerialNumber(data)
	return &packet.BasePacket{
		ProtocolNum: protocolNum,
		SerialNum:   serialNum,
		RawData:     data,
	}, nil
}

// validateStructure checks start bit, stop bit and the declared length.
func (d *Decoder) validateStructure(data []byte) error {
	if len(data) < protocol.MinPacketSize {
		return ErrInvalidPacketSize
	}
	if len(data) > d.opts.MaxPacketSize {
		return ErrInvalidPacketLength
	}

	startBit := uint16(data[0])<<8 | uint16(data[1])
	if startBit != protocol.StartBitShort && startBit != protocol.StartBitLong {
		return ErrInvalidStartBit
	}

	stopBit := uint16(data[len(data)-2])<<8 | uint16(data[len(data)-1])
	if stopBit != protocol.StopBit {
		return ErrInvalidStopBit
	}

	var lengthFieldSize, declaredLength int
	if startBit == protocol.StartBitShort {
		lengthFieldSize = protocol.LengthFieldSizeShort
		declaredLength = int(data[2])
	} else {
		lengthFieldSize = protocol.LengthFieldSizeLong
		declaredLength = int(data[2])<<8 | int(data[3])
	}

	expected := protocol.StartBitSize + lengthFieldSize + declaredLength + protocol.StopBitSize
	if len(data) != expected {
		return ErrInvalidPacketLength
	}

	return nil
}

// validateCRC checks the checksum over length field through serial number.
func (d *Decoder) validateCRC(data []byte) error {
	// CRC covers [2 : len-4); the received value sits at [len-4 : len-2).
	body := data[2 : len(data)-4]
	calculated := crc.ITU(body)
	received := uint16(data[len(data)-4])<<8 | uint16(data[len(data)-3])

	if calculated != received {
		return &CRCError{Calculated: calculated, Received: received}
	}
	return nil
}

// PacketProtocol returns the protocol number of a framed packet without
// decoding it.
func PacketProtocol(data []byte) (byte, error) {
	if len(data) < 4 {
		return 0, ErrInvalidPacketSize
	}

	startBit := uint16(data[0])<<8 | uint16(data[1])
	switch startBit {
	case protocol.StartBitShort:
		return data[3], nil
	case protocol.StartBitLong:
		if len(data) < 5 {
			return 0, ErrInvalidPacketSize
		}
		return data[4], nil
	default:
		return 0, ErrInvalidStartBit
	}
}
