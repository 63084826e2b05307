package jimi

import (
	"errors"
	"fmt"
)

// Common errors returned by the decoder.
var (
	// ErrInvalidPacketSize indicates the packet is smaller than the minimum.
	ErrInvalidPacketSize = errors.New("invalid packet size")

	// ErrInvalidStartBit indicates the packet does not begin with 0x7878 or 0x7979.
	ErrInvalidStartBit = errors.New("invalid start bit")

	// ErrInvalidStopBit indicates the packet does not end with 0x0D0A.
	ErrInvalidStopBit = errors.New("invalid stop bit")

	// ErrInvalidPacketLength indicates the declared length disagrees with
	// the observed length.
	ErrInvalidPacketLength = errors.New("declared length does not match packet size")

	// ErrUnknownProtocol indicates no parser is registered for the protocol
	// number and unknown protocols are not allowed.
	ErrUnknownProtocol = errors.New("unknown protocol number")
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

// IsCRCError reports whether err is a CRC mismatch.
func IsCRCError(err error) bool {
	var crcErr *CRCError
	return errors.As(err, &crcErr)
}
