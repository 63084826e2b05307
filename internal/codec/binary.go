package codec

import "encoding/binary"

// Big-endian field readers. Both tracker families put multi-byte integers
// on the wire most-significant byte first.

// ReadUint16BE reads a big-endian uint16 from 2 bytes.
func ReadUint16BE(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(data)
}

// ReadUint32BE reads a big-endian uint32 from 4 bytes.
func ReadUint32BE(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(data)
}

// ReadUint64BE reads a big-endian uint64 from 8 bytes.
func ReadUint64BE(data []byte) uint64 {
	if len(data) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// ReadUint24BE reads a 24-bit big-endian value (3 bytes) as uint32.
// Sized for the 3-byte 2G cell tower id.
func ReadUint24BE(data []byte) uint32 {
	if len(data) < 3 {
		return 0
	}
	return uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
}

// ReadUintBE reads an n-byte big-endian unsigned value, n <= 8.
// Ruptela IO elements come in widths of 1, 2, 4 and 8 bytes.
func ReadUintBE(data []byte, n int) uint64 {
	if n > len(data) || n > 8 {
		return 0
	}
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(data[i])
	}
	return v
}

// WriteUint16BE writes a uint16 as big-endian to 2 bytes.
func WriteUint16BE(value uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, value)
	return buf
}

// WriteUint32BE writes a uint32 as big-endian to 4 bytes.
func WriteUint32BE(value uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, value)
	return buf
}
