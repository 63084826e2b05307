package ruptela

import (
	"time"

	"github.com/intelcon-group/fleet-gateway/internal/codec"
)

// Record is one position record of a records batch.
type Record struct {
	Timestamp    time.Time
	TimestampExt uint8
	Priority     uint8
	Longitude    float64 // decimal degrees
	Latitude     float64 // decimal degrees
	Altitude     float64 // metres
	Angle        float64 // degrees
	Satellites   uint8
	Speed        uint16 // km/h
	HDOP         float64
	EventID      uint16

	// IO maps element value size (1, 2, 4 or 8 bytes) to the id->value
	// pairs reported at that width.
	IO map[uint8]map[uint16]int64
}

// record header sizes, excluding the per-width IO sections
const (
	recordHeaderSize    = 23 // command 1
	extRecordHeaderSize = 25 // command 68: +record extension, 2-byte event id
)

var ioSizes = [4]uint8{1, 2, 4, 8}

// parseRecords decodes the body of a records batch (commands 1 and 68).
// body starts after the command byte. Returns records left counter and the
// decoded records.
//
// Body layout: recordsLeft(1) numRecords(1) records...; each record is a
// fixed header followed by four IO sections keyed by value width. A
// section that overruns the payload ends parsing; records and elements
// decoded up to that point are preserved.
func parseRecords(body []byte, extended bool) (recordsLeft uint8, records []Record) {
	if len(body) < 2 {
		return 0, nil
	}

	recordsLeft = body[0]
	numRecords := int(body[1])
	offset := 2

	headerSize := recordHeaderSize
	if extended {
		headerSize = extRecordHeaderSize
	}

	records = make([]Record, 0, numRecords)

	for i := 0; i < numRecords; i++ {
		if offset+headerSize > len(body) {
			break
		}

		rec := Record{}
		h := body[offset:]

		rec.Timestamp = time.Unix(int64(codec.ReadUint32BE(h)), 0).UTC()
		rec.TimestampExt = h[4]
		pos := 5
		if extended {
			pos++ // record extension byte
		}
		rec.Priority = h[pos]
		pos++
		rec.Longitude = float64(int32(codec.ReadUint32BE(h[pos:]))) / 1e7
		pos += 4
		rec.Latitude = float64(int32(codec.ReadUint32BE(h[pos:]))) / 1e7
		pos += 4
		rec.Altitude = float64(codec.ReadUint16BE(h[pos:])) / 10
		pos += 2
		rec.Angle = float64(codec.ReadUint16BE(h[pos:])) / 100
		pos += 2
		rec.Satellites = h[pos]
		pos++
		rec.Speed = codec.ReadUint16BE(h[pos:])
		pos += 2
		rec.HDOP = float64(h[pos]) / 10
		pos++
		if extended {
			rec.EventID = codec.ReadUint16BE(h[pos:])
			pos += 2
		} else {
			rec.EventID = uint16(h[pos])
			pos++
		}
		offset += pos

		rec.IO = make(map[uint8]map[uint16]int64, len(ioSizes))
		complete := true
		for _, size := range ioSizes {
			consumed, elems, sectionComplete := parseIOSection(body[offset:], size, extended)
			offset += consumed
			if len(elems) > 0 {
				rec.IO[size] = elems
			}
			if !sectionComplete {
				complete = false
				break
			}
		}

		records = append(records, rec)
		if !complete {
			break
		}
	}

	return recordsLeft, records
}

// parseIOSection decodes one IO element section: count(1), then count
// (id, value) pairs. id is 1 byte for command 1 and 2 bytes for command
// 68; value width is the section's size. Returns bytes consumed, the
// decoded elements, and whether the section was complete; a truncated
// section returns what was decoded before the overrun.
func parseIOSection(body []byte, size uint8, extended bool) (int, map[uint16]int64, bool) {
	if len(body) < 1 {
		return 0, nil, false
	}

	count := int(body[0])
	offset := 1

	idSize := 1
	if extended {
		idSize = 2
	}

	elems := make(map[uint16]int64, count)
	for i := 0; i < count; i++ {
		if offset+idSize+int(size) > len(body) {
			return offset, elems, false
		}

		var id uint16
		if extended {
			id = codec.ReadUint16BE(body[offset:])
		} else {
			id = uint16(body[offset])
		}
		offset += idSize

		raw := codec.ReadUintBE(body[offset:], int(size))
		offset += int(size)

		value := int64(raw)
		if size == 8 && raw > uint64(1)<<63-1 {
			value = int64(uint64(1)<<63 - 1)
		}
		elems[id] = value
	}

	return offset, elems, true
}
