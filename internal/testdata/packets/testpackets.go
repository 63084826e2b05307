// Package packets contains captured-style test frames for both protocol
// families. Checksums are valid unless a fixture says otherwise.
package packets

// TestPacket is one wire fixture with metadata.
type TestPacket struct {
	Name        string // descriptive name
	Hex         string // hex-encoded frame
	Protocol    byte   // protocol / command number
	Description string // what this frame represents
	Valid       bool   // whether the frame should parse successfully
}

// JimiLoginPackets contains login frames (protocol 0x01).
var JimiLoginPackets = []TestPacket{
	{
		Name:        "login_padded_imei",
		Hex:         "787811010351123456789abc360036010001939c0d0a",
		Protocol:    0x01,
		Description: "Login with 0xFF-ish padded identity; BCD filter yields 035112345678, serial 1",
		Valid:       true,
	},
	{
		Name:        "login_full_imei",
		Hex:         "7878110103593390739305233608032000051ed50d0a",
		Protocol:    0x01,
		Description: "Login with full IMEI 0359339073930523, type 0x3608, serial 5",
		Valid:       true,
	},
	{
		Name:        "login_bad_crc",
		Hex:         "787811010351123456789abc360036010001939d0d0a",
		Protocol:    0x01,
		Description: "Valid login with the last CRC byte flipped",
		Valid:       false,
	},
}

// JimiLocationPackets contains GPS location frames.
var JimiLocationPackets = []TestPacket{
	{
		Name:        "gps_2g_positioned",
		Hex:         "78781f221802030e050609027b27c40c268b9c3c2cb401cc00123400abcd0003a7b70d0a",
		Protocol:    0x22,
		Description: "2G fix 2024-02-03 14:05:06, 9 sats, 23.1253N 113.2515E, 60 km/h, course 180, serial 3",
		Valid:       true,
	},
	{
		Name:        "gps_2g_not_positioned",
		Hex:         "78781f221802030e050609027b27c40c268b9c3c24b401cc00123400abcd0006faf60d0a",
		Protocol:    0x22,
		Description: "Same fix with the positioned bit clear, serial 6",
		Valid:       true,
	},
	{
		Name:        "gps_4g_west",
		Hex:         "787826a01802030e05060904fae45806170a24003c5a02cc060001234500000000abcdef010004b8420d0a",
		Protocol:    0xA0,
		Description: "4G fix with west bit set, 46.4174N 56.7629W, serial 4",
		Valid:       true,
	},
}

// JimiControlPackets contains heartbeat and time calibration frames.
var JimiControlPackets = []TestPacket{
	{
		Name:        "heartbeat",
		Hex:         "7878052300070a690d0a",
		Protocol:    0x23,
		Description: "Keep-alive, serial 7",
		Valid:       true,
	},
	{
		Name:        "time_request",
		Hex:         "7878058a000970de0d0a",
		Protocol:    0x8A,
		Description: "Time calibration request, serial 9",
		Valid:       true,
	},
}

// JimiAckPackets contains expected server-to-terminal frames.
var JimiAckPackets = []TestPacket{
	{
		Name:        "login_ack_serial_1",
		Hex:         "787805010001d9dc0d0a",
		Protocol:    0x01,
		Description: "Login ACK echoing serial 1; CRC over 05 01 00 01",
		Valid:       true,
	},
}
