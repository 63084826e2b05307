package jimi

import "github.com/intelcon-group/fleet-gateway/pkg/jimi/protocol"

// Options contains configuration for the decoder.
type Options struct {
	// SkipCRCValidation skips checksum validation. The gateway's frame
	// reader already rejects frames with bad checksums, so its decoder
	// runs with this set; standalone users should leave it off.
	SkipCRCValidation bool

	// AllowUnknownProtocols returns a BasePacket for protocol numbers
	// without a registered parser instead of an error.
	AllowUnknownProtocols bool

	// MaxPacketSize caps the accepted packet size in bytes.
	MaxPacketSize int
}

// Option is a functional option for configuring the Decoder.
type Option func(*Options)

// DefaultOptions returns the default decoder options.
func DefaultOptions() Options {
	return Options{
		SkipCRCValidation:     false,
		AllowUnknownProtocols: false,
		MaxPacketSize:         protocol.MaxPacketSize,
	}
}

// WithSkipCRC skips CRC validation.
func WithSkipCRC() Option {
	return func(o *Options) {
		o.SkipCRCValidation = true
	}
}

// WithAllowUnknownProtocols returns generic packets for unknown protocol numbers.
func WithAllowUnknownProtocols() Option {
	return func(o *Options) {
		o.AllowUnknownProtocols = true
	}
}

// WithMaxPacketSize sets the maximum allowed packet size.
func WithMaxPacketSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.MaxPacketSize = size
		}
	}
}
