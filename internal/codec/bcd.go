package codec

import "fmt"

// BCD (Binary-Coded Decimal) decoding for numeric identity fields.
// The Jimi login packet carries the device IMEI as 8 BCD bytes.

// DecodeBCD converts BCD-encoded bytes to a decimal string.
// Each byte contains two decimal digits (high nibble and low nibble).
// Example: 0x12 0x34 -> "1234"
func DecodeBCD(data []byte) (string, error) {
	result := make([]byte, 0, len(data)*2)

	for i, b := range data {
		high := (b >> 4) & 0x0F
		low := b & 0x0F

		if high > 9 {
			return "", fmt.Errorf("invalid BCD digit at byte %d (high nibble): 0x%X", i, high)
		}
		if low > 9 {
			return "", fmt.Errorf("invalid BCD digit at byte %d (low nibble): 0x%X", i, low)
		}

		result = append(result, '0'+high, '0'+low)
	}

	return string(result), nil
}

// DecodeBCDFiltered decodes BCD bytes, skipping any byte that carries a
// non-decimal nibble. Tracker firmware pads short identities with 0xFF
// tails; filtering the padding bytes recovers the digits that are there.
func DecodeBCDFiltered(data []byte) string {
	result := make([]byte, 0, len(data)*2)

	for _, b := range data {
		high := (b >> 4) & 0x0F
		low := b & 0x0F
		if high > 9 || low > 9 {
			continue
		}
		result = append(result, '0'+high, '0'+low)
	}

	return string(result)
}

// EncodeBCD converts a decimal string to BCD-encoded bytes.
// The string must contain only digits 0-9; odd-length input is padded
// with a trailing zero nibble.
func EncodeBCD(str string) ([]byte, error) {
	for i, c := range str {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("invalid character at position %d: %q (must be 0-9)", i, c)
		}
	}

	if len(str)%2 != 0 {
		str += "0"
	}

	result := make([]byte, len(str)/2)
	for i := 0; i < len(str); i += 2 {
		result[i/2] = (str[i]-'0')<<4 | (str[i+1] - '0')
	}

	return result, nil
}

// DecodeIMEI decodes a device IMEI from 8 BCD bytes, filtering padding
// bytes. A fully populated IMEI decodes to 16 nibbles (a leading zero
// plus 15 digits); padded identities decode shorter and are returned
// as-is for the caller to judge.
func DecodeIMEI(data []byte) (string, error) {
	if len(data) != 8 {
		return "", fmt.Errorf("IMEI must be exactly 8 bytes, got %d", len(data))
	}

	imei := DecodeBCDFiltered(data)
	if imei == "" {
		return "", fmt.Errorf("IMEI bytes contain no decimal digits")
	}

	return imei, nil
}
