package server

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intelcon-group/fleet-gateway/internal/config"
	"github.com/intelcon-group/fleet-gateway/internal/crc"
	"github.com/intelcon-group/fleet-gateway/internal/fanout"
	"github.com/intelcon-group/fleet-gateway/internal/metrics"
	"github.com/intelcon-group/fleet-gateway/internal/session"
	"github.com/intelcon-group/fleet-gateway/internal/telemetry"
	"github.com/intelcon-group/fleet-gateway/internal/testdata/packets"
)

// captureSubscriber collects every published message.
type captureSubscriber struct {
	mu   sync.Mutex
	msgs []fanout.Message
}

func (c *captureSubscriber) ID() string { return "capture" }

func (c *captureSubscriber) Send(msg fanout.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureSubscriber) Close() error { return nil }

func (c *captureSubscriber) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *captureSubscriber) messages() []fanout.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]fanout.Message(nil), c.msgs...)
}

func newTestServer(t *testing.T) (*Server, *captureSubscriber) {
	t.Helper()

	hub := fanout.NewHub(zap.NewNop())
	capture := &captureSubscriber{}
	hub.Attach(capture)
	hub.Authenticate(capture.ID())

	srv := New(config.Default(), zap.NewNop(), hub,
		session.NewRegistry(), telemetry.NewDedupWindow(telemetry.DefaultWindowSize), metrics.New())

	return srv, capture
}

func startHandler(t *testing.T, h handler, lst config.Listener) net.Conn {
	t.Helper()

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Handle(server, lst)
	}()

	t.Cleanup(func() {
		client.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("handler did not return after connection close")
		}
	})

	return client
}

func writeHex(t *testing.T, conn net.Conn, s string) {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	_, err = conn.Write(b)
	require.NoError(t, err)
}

func readFrame(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func TestJimiLoginAckRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	lst := config.Listener{Port: 7000, Family: config.FamilyJimi}
	client := startHandler(t, newJimiHandler(srv), lst)

	writeHex(t, client, packets.JimiLoginPackets[0].Hex)

	ack := readFrame(t, client, 10)
	assert.Equal(t, packets.JimiAckPackets[0].Hex, hex.EncodeToString(ack))

	// The login registered the filtered identity.
	assert.Eventually(t, func() bool {
		_, ok := srv.registry.Get("035112345678")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestJimiGPSFixEmission(t *testing.T) {
	srv, capture := newTestServer(t)
	lst := config.Listener{Port: 7000, Family: config.FamilyJimi}
	client := startHandler(t, newJimiHandler(srv), lst)

	writeHex(t, client, packets.JimiLoginPackets[1].Hex)
	readFrame(t, client, 10)

	// A positioned fix is emitted; no ACK is written for GPS frames.
	writeHex(t, client, packets.JimiLocationPackets[0].Hex)

	require.Eventually(t, func() bool { return capture.count() == 1 },
		time.Second, 5*time.Millisecond)

	msg := capture.messages()[0]
	assert.Equal(t, fanout.TypeJimiData, msg.Type)

	data := msg.Data.(fanout.FixData)
	assert.Equal(t, "0359339073930523", data.IMEI)
	assert.InDelta(t, 23.1253, data.Latitude, 1e-6)
	assert.InDelta(t, 113.2515, data.Longitude, 1e-6)
	assert.Equal(t, "2024-02-03T14:05:06Z", data.Timestamp)
	assert.Equal(t, 7000, data.SourcePort)
	require.NotNil(t, data.Cell)
	assert.Equal(t, uint16(460), data.Cell.MCC)
}

func TestJimiNotPositionedFixDropped(t *testing.T) {
	srv, capture := newTestServer(t)
	lst := config.Listener{Port: 7000, Family: config.FamilyJimi}
	client := startHandler(t, newJimiHandler(srv), lst)

	writeHex(t, client, packets.JimiLoginPackets[1].Hex)
	readFrame(t, client, 10)

	writeHex(t, client, packets.JimiLocationPackets[1].Hex)
	writeHex(t, client, packets.JimiControlPackets[0].Hex)

	// The heartbeat ACK arrives; the unpositioned fix produced nothing.
	ack := readFrame(t, client, 10)
	assert.Equal(t, "7878052300070a690d0a", hex.EncodeToString(ack))
	assert.Zero(t, capture.count())
}

func TestJimiHemisphereOverride(t *testing.T) {
	srv, capture := newTestServer(t)
	lst := config.Listener{Port: 7000, Family: config.FamilyJimi, HemisphereWest: true}
	client := startHandler(t, newJimiHandler(srv), lst)

	writeHex(t, client, packets.JimiLoginPackets[1].Hex)
	readFrame(t, client, 10)

	writeHex(t, client, packets.JimiLocationPackets[2].Hex)

	require.Eventually(t, func() bool { return capture.count() == 1 },
		time.Second, 5*time.Millisecond)

	data := capture.messages()[0].Data.(fanout.FixData)
	assert.Negative(t, data.Longitude)
	assert.InDelta(t, -56.7629, data.Longitude, 1e-6)
}

func TestJimiChecksumFailureKeepsConnection(t *testing.T) {
	srv, _ := newTestServer(t)
	lst := config.Listener{Port: 7000, Family: config.FamilyJimi}
	client := startHandler(t, newJimiHandler(srv), lst)

	// A corrupted login: no ACK, connection stays open.
	writeHex(t, client, packets.JimiLoginPackets[2].Hex)

	// The next valid frame still parses and is acknowledged.
	writeHex(t, client, packets.JimiLoginPackets[0].Hex)
	ack := readFrame(t, client, 10)
	assert.Equal(t, packets.JimiAckPackets[0].Hex, hex.EncodeToString(ack))
}

func TestJimiTimeResponse(t *testing.T) {
	srv, _ := newTestServer(t)
	lst := config.Listener{Port: 7000, Family: config.FamilyJimi}
	client := startHandler(t, newJimiHandler(srv), lst)

	writeHex(t, client, packets.JimiLoginPackets[1].Hex)
	readFrame(t, client, 10)

	writeHex(t, client, packets.JimiControlPackets[1].Hex)
	resp := readFrame(t, client, 16)

	// 78 78 0B 8A YY MM DD HH MM SS serial CRC 0D 0A with current UTC.
	assert.Equal(t, []byte{0x78, 0x78, 0x0B, 0x8A}, resp[:4])
	assert.Equal(t, []byte{0x0D, 0x0A}, resp[14:])
	now := time.Now().UTC()
	assert.Equal(t, byte(now.Year()-2000), resp[4])
	assert.Equal(t, byte(now.Month()), resp[5])
}

// buildRuptelaRecords assembles a command-1 frame with the given records.
func buildRuptelaRecords(t *testing.T, imei uint64, recs []ruptelaTestRecord) []byte {
	t.Helper()

	body := []byte{0, byte(len(recs))}
	for _, r := range recs {
		body = binary.BigEndian.AppendUint32(body, uint32(r.ts.Unix()))
		body = append(body, 0, 1) // timestamp extension, priority
		body = binary.BigEndian.AppendUint32(body, uint32(int32(r.lon*1e7)))
		body = binary.BigEndian.AppendUint32(body, uint32(int32(r.lat*1e7)))
		body = binary.BigEndian.AppendUint16(body, 1545) // altitude/10
		body = binary.BigEndian.AppendUint16(body, 18000)
		body = append(body, 9)
		body = binary.BigEndian.AppendUint16(body, r.speed)
		body = append(body, 12, 135)
		body = append(body, 0, 0, 0, 0) // empty IO sections
	}

	payload := make([]byte, 0, 9+len(body))
	payload = binary.BigEndian.AppendUint64(payload, imei)
	payload = append(payload, 1) // records command
	payload = append(payload, body...)

	frame := make([]byte, 0, 4+len(payload))
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	frame = binary.BigEndian.AppendUint16(frame, crc.Kermit(payload))
	return frame
}

type ruptelaTestRecord struct {
	ts    time.Time
	lat   float64
	lon   float64
	speed uint16
}

func TestRuptelaRecordsBatchAckAndEmission(t *testing.T) {
	srv, capture := newTestServer(t)
	lst := config.Listener{Port: 6000, Family: config.FamilyRuptelaFMB}
	client := startHandler(t, newRuptelaHandler(srv), lst)

	base := time.Date(2024, 2, 3, 14, 5, 6, 0, time.UTC)
	frame := buildRuptelaRecords(t, 356938035643809, []ruptelaTestRecord{
		{ts: base, lat: -12.046374, lon: -77.042793, speed: 60},
		{ts: base.Add(30 * time.Second), lat: -12.046474, lon: -77.042893, speed: 62},
	})

	_, err := client.Write(frame)
	require.NoError(t, err)

	// Positive ACK: 00 02 64 01 CRC(64 01).
	ack := readFrame(t, client, 6)
	assert.Equal(t, "0002640113bc", hex.EncodeToString(ack))

	require.Eventually(t, func() bool { return capture.count() == 2 },
		time.Second, 5*time.Millisecond)

	first := capture.messages()[0].Data.(fanout.FixData)
	assert.Equal(t, fanout.TypeGPSData, capture.messages()[0].Type)
	assert.Equal(t, "356938035643809", first.IMEI)
	assert.InDelta(t, -12.046374, first.Latitude, 1e-6)
	assert.InDelta(t, -77.042793, first.Longitude, 1e-6)
}

func TestRuptelaDuplicateRecordSuppressed(t *testing.T) {
	srv, capture := newTestServer(t)
	lst := config.Listener{Port: 6000, Family: config.FamilyRuptelaFMB}
	client := startHandler(t, newRuptelaHandler(srv), lst)

	base := time.Date(2024, 2, 3, 14, 5, 6, 0, time.UTC)
	frame := buildRuptelaRecords(t, 356938035643809, []ruptelaTestRecord{
		{ts: base, lat: -12.046374, lon: -77.042793, speed: 60},
	})

	_, err := client.Write(frame)
	require.NoError(t, err)
	assert.Equal(t, "0002640113bc", hex.EncodeToString(readFrame(t, client, 6)))

	require.Eventually(t, func() bool { return capture.count() == 1 },
		time.Second, 5*time.Millisecond)

	// The identical batch is acknowledged positively but not re-emitted.
	_, err = client.Write(frame)
	require.NoError(t, err)
	assert.Equal(t, "0002640113bc", hex.EncodeToString(readFrame(t, client, 6)))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, capture.count())
}

func TestRuptelaStationaryConsolidation(t *testing.T) {
	srv, capture := newTestServer(t)
	lst := config.Listener{Port: 6000, Family: config.FamilyRuptelaFMB}
	client := startHandler(t, newRuptelaHandler(srv), lst)

	base := time.Date(2024, 2, 3, 14, 5, 0, 0, time.UTC)
	recs := make([]ruptelaTestRecord, 5)
	for i := range recs {
		recs[i] = ruptelaTestRecord{
			ts:  base.Add(time.Duration(i) * 6 * time.Second),
			lat: -12.046374, lon: -77.042793, speed: 0,
		}
	}

	_, err := client.Write(buildRuptelaRecords(t, 356938035643809, recs))
	require.NoError(t, err)
	assert.Equal(t, "0002640113bc", hex.EncodeToString(readFrame(t, client, 6)))

	require.Eventually(t, func() bool { return capture.count() == 1 },
		time.Second, 5*time.Millisecond)

	data := capture.messages()[0].Data.(fanout.FixData)
	assert.Equal(t, base.Add(24*time.Second).Format(time.RFC3339), data.Timestamp)
}

func TestRuptelaAllRecordsRejectedNegativeAck(t *testing.T) {
	srv, capture := newTestServer(t)
	lst := config.Listener{Port: 6000, Family: config.FamilyRuptelaFMB}
	client := startHandler(t, newRuptelaHandler(srv), lst)

	// A batch whose only record sits at the origin is fully rejected.
	frame := buildRuptelaRecords(t, 356938035643809, []ruptelaTestRecord{
		{ts: time.Date(2024, 2, 3, 14, 5, 6, 0, time.UTC), lat: 0, lon: 0, speed: 0},
	})

	_, err := client.Write(frame)
	require.NoError(t, err)

	ack := readFrame(t, client, 6)
	assert.Equal(t, "000264000235", hex.EncodeToString(ack))
	assert.Zero(t, capture.count())
}

func TestRuptelaHeartbeatAck(t *testing.T) {
	srv, _ := newTestServer(t)
	lst := config.Listener{Port: 6001, Family: config.FamilyRuptelaECO}
	client := startHandler(t, newRuptelaHandler(srv), lst)

	payload := make([]byte, 0, 9)
	payload = binary.BigEndian.AppendUint64(payload, 356938035643809)
	payload = append(payload, 16)

	frame := make([]byte, 0, 13)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	frame = binary.BigEndian.AppendUint16(frame, crc.Kermit(payload))

	_, err := client.Write(frame)
	require.NoError(t, err)

	ack := readFrame(t, client, 6)
	assert.Equal(t, "00027401862d", hex.EncodeToString(ack))
}
