package codec

import (
	"fmt"
	"time"
)

// DateTime codec for the Jimi wire format: 6 bytes YY MM DD HH MM SS,
// each a plain decimal byte, YY offset from 2000. Devices are provisioned
// to report UTC; the fields are read as UTC components and no timezone
// adjustment is applied.

// DecodeDateTime decodes 6 bytes to a UTC time.Time.
func DecodeDateTime(data []byte) (time.Time, error) {
	if len(data) < 6 {
		return time.Time{}, fmt.Errorf("datetime requires 6 bytes, got %d", len(data))
	}

	year := 2000 + int(data[0])
	month := int(data[1])
	day := int(data[2])
	hour := int(data[3])
	minute := int(data[4])
	second := int(data[5])

	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid month: %d", month)
	}
	if day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid day: %d", day)
	}
	if hour > 23 {
		return time.Time{}, fmt.Errorf("invalid hour: %d", hour)
	}
	if minute > 59 {
		return time.Time{}, fmt.Errorf("invalid minute: %d", minute)
	}
	if second > 59 {
		return time.Time{}, fmt.Errorf("invalid second: %d", second)
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

// EncodeDateTime encodes a time.Time to the 6-byte wire form, in UTC.
func EncodeDateTime(t time.Time) []byte {
	t = t.UTC()

	year := t.Year() - 2000
	if year < 0 {
		year = 0
	} else if year > 255 {
		year = 255
	}

	return []byte{
		byte(year),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	}
}
