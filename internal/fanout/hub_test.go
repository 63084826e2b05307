package fanout

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intelcon-group/fleet-gateway/internal/telemetry"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/types"
)

// fakeSubscriber records delivered messages and can be made to fail.
type fakeSubscriber struct {
	id   string
	fail bool

	mu     sync.Mutex
	msgs   []Message
	closed bool
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return errors.New("broken pipe")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSubscriber) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.msgs...)
}

func testFix() telemetry.Fix {
	return telemetry.Fix{
		IMEI:       "356938035643809",
		Latitude:   -12.046374,
		Longitude:  -77.042793,
		Timestamp:  time.Date(2024, 2, 3, 14, 5, 6, 0, time.UTC),
		Speed:      60,
		Course:     180,
		Satellites: 9,
		Positioned: true,
		Protocol:   telemetry.ProtocolRuptela,
		SourcePort: 6000,
	}
}

func TestHubDeliversToAuthenticatedOnly(t *testing.T) {
	hub := NewHub(zap.NewNop())

	authed := &fakeSubscriber{id: "a"}
	pending := &fakeSubscriber{id: "b"}

	hub.Attach(authed)
	hub.Attach(pending)
	hub.Authenticate("a")

	hub.Publish(NewFixMessage(testFix()))

	assert.Len(t, authed.messages(), 1)
	assert.Empty(t, pending.messages())
}

func TestHubDetachesFailedSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())

	broken := &fakeSubscriber{id: "broken", fail: true}
	healthy := &fakeSubscriber{id: "healthy"}

	hub.Attach(broken)
	hub.Attach(healthy)
	hub.Authenticate("broken")
	hub.Authenticate("healthy")

	hub.Publish(NewFixMessage(testFix()))

	// The failed subscriber is gone; the healthy one got the message.
	assert.Equal(t, 1, hub.Count())
	assert.Len(t, healthy.messages(), 1)
	assert.True(t, broken.closed)

	// Producers keep going on subsequent publishes.
	hub.Publish(NewFixMessage(testFix()))
	assert.Len(t, healthy.messages(), 2)
}

func TestHubDetach(t *testing.T) {
	hub := NewHub(zap.NewNop())

	sub := &fakeSubscriber{id: "x"}
	hub.Attach(sub)
	assert.Equal(t, 1, hub.Count())

	hub.Detach("x")
	assert.Equal(t, 0, hub.Count())
	assert.True(t, sub.closed)

	hub.Detach("x") // unknown id is a no-op
}

func TestNewFixMessageJimi(t *testing.T) {
	f := testFix()
	f.Protocol = telemetry.ProtocolJimi
	f.Serial = 3
	f.SourcePort = 7000
	f.Cell = &types.CellInfo{MCC: 716, MNC: 6, LAC: 0x1234, CellID: 0xABCD}

	msg := NewFixMessage(f)
	assert.Equal(t, TypeJimiData, msg.Type)

	data, ok := msg.Data.(FixData)
	require.True(t, ok)
	assert.Equal(t, "356938035643809", data.IMEI)
	assert.Equal(t, "2024-02-03T14:05:06Z", data.Timestamp)
	assert.True(t, data.Valid)
	assert.Equal(t, uint16(3), data.Serial)
	assert.Equal(t, 7000, data.SourcePort)
	require.NotNil(t, data.Cell)
	assert.Equal(t, uint16(716), data.Cell.MCC)
	assert.Nil(t, data.IO)
}

func TestNewFixMessageRuptela(t *testing.T) {
	f := testFix()
	f.IO = map[uint8]map[uint16]int64{1: {239: 1}}

	msg := NewFixMessage(f)
	assert.Equal(t, TypeGPSData, msg.Type)

	data := msg.Data.(FixData)
	assert.Nil(t, data.Cell)
	assert.Equal(t, int64(1), data.IO[1][239])
}
