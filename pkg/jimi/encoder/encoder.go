// Package encoder builds the server-to-terminal frames of the JM-LL301
// protocol: acknowledgements, the time calibration response and the
// request-location command.
//
//	enc := encoder.New()
//	conn.Write(enc.LoginAck(pkt.SerialNumber()))
package encoder

import (
	"time"

	"github.com/intelcon-group/fleet-gateway/internal/crc"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/protocol"
)

// Encoder creates response packets for the JM-LL301 protocol.
type Encoder struct{}

// New creates a new Encoder.
func New() *Encoder {
	return &Encoder{}
}

// buildPacket frames protocol number, content and serial into a complete
// short-format packet with CRC and stop bit. Every server-to-terminal
// frame the gateway emits fits the 0x7878 format.
func (e *Encoder) buildPacket(protocolNum byte, content []byte, serialNum uint16) []byte {
	// length field counts protocol(1) + content + serial(2) + crc(2)
	contentLen := 1 + len(content) + protocol.SerialNumSize + protocol.CRCSize

	// CRC covers length field through serial.
	body := make([]byte, 0, 1+contentLen)
	body = append(body, byte(contentLen))
	body = append(body, protocolNum)
	body = append(body, content...)
	body = append(body, byte(serialNum>>8), byte(serialNum))
	body = crc.AppendITU(body)

	pkt := make([]byte, 0, protocol.StartBitSize+len(body)+protocol.StopBitSize)
	pkt = append(pkt, 0x78, 0x78)
	pkt = append(pkt, body...)
	pkt = append(pkt, 0x0D, 0x0A)

	return pkt
}

// Ack builds the generic 10-byte acknowledgement echoing the protocol
// number and serial of the frame it acknowledges.
func (e *Encoder) Ack(protocolNum byte, serialNum uint16) []byte {
	return e.buildPacket(protocolNum, nil, serialNum)
}

// LoginAck acknowledges a login packet.
func (e *Encoder) LoginAck(serialNum uint16) []byte {
	return e.Ack(protocol.ProtocolLogin, serialNum)
}

// HeartbeatAck acknowledges a keep-alive. protocolNum distinguishes the
// 0x23 and 0x36 heartbeat variants; the ACK echoes whichever arrived.
func (e *Encoder) HeartbeatAck(protocolNum byte, serialNum uint16) []byte {
	return e.Ack(protocolNum, serialNum)
}

// TimeResponse answers a time calibration request with the given UTC
// wall-clock, as 6 content bytes YY MM DD HH MM SS.
func (e *Encoder) TimeResponse(serialNum uint16, t time.Time) []byte {
	t = t.UTC()
	content := []byte{
		byte(t.Year() - 2000),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	}
	return e.buildPacket(protocol.ProtocolTimeRequest, content, serialNum)
}

// RequestLocation builds the online command that prompts the device for an
// immediate position report. The serial is the server's own outbound
// counter, not an echo.
func (e *Encoder) RequestLocation(serialNum uint16) []byte {
	return e.buildPacket(protocol.ProtocolRequestLocation, nil, serialNum)
}
