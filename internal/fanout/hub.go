// Package fanout delivers normalized fixes to the attached real-time
// subscribers. One hub exists per process; it is injected into the
// listener and admin surfaces at startup so tests can substitute it.
package fanout

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/intelcon-group/fleet-gateway/internal/telemetry"
	"github.com/intelcon-group/fleet-gateway/pkg/jimi/types"
)

// Message is the self-describing envelope pushed to subscribers.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Message type tags.
const (
	TypeJimiData = "jimi-data"
	TypeGPSData  = "gps-data"
)

// FixData is the wire shape of a normalized fix.
type FixData struct {
	IMEI       string          `json:"imei"`
	Latitude   float64         `json:"lat"`
	Longitude  float64         `json:"lon"`
	Timestamp  string          `json:"timestamp"`
	Speed      float64         `json:"speed"`
	Course     float64         `json:"course"`
	Satellites int             `json:"satellites"`
	Positioned bool            `json:"positioned"`
	Valid      bool            `json:"valid"`
	Protocol   string          `json:"protocol"`
	Serial     uint16          `json:"serial"`
	SourcePort int             `json:"source_port"`
	Cell       *CellData       `json:"cell,omitempty"`
	IO         map[uint8]map[uint16]int64 `json:"io,omitempty"`
}

// CellData is the serving base station in wire form.
type CellData struct {
	MCC    uint16 `json:"mcc"`
	MNC    uint16 `json:"mnc"`
	LAC    uint32 `json:"lac"`
	CellID uint64 `json:"cell_id"`
}

// NewFixMessage converts a canonical fix into its subscriber envelope.
func NewFixMessage(f telemetry.Fix) Message {
	msgType := TypeGPSData
	if f.Protocol == telemetry.ProtocolJimi {
		msgType = TypeJimiData
	}

	return Message{
		Type: msgType,
		Data: FixData{
			IMEI:       f.IMEI,
			Latitude:   f.Latitude,
			Longitude:  f.Longitude,
			Timestamp:  f.Timestamp.UTC().Format(time.RFC3339),
			Speed:      f.Speed,
			Course:     f.Course,
			Satellites: f.Satellites,
			Positioned: f.Positioned,
			Valid:      true,
			Protocol:   f.Protocol,
			Serial:     f.Serial,
			SourcePort: f.SourcePort,
			Cell:       cellData(f.Cell),
			IO:         f.IO,
		},
	}
}

func cellData(c *types.CellInfo) *CellData {
	if c == nil || !c.IsValid() {
		return nil
	}
	return &CellData{MCC: c.MCC, MNC: c.MNC, LAC: c.LAC, CellID: c.CellID}
}

// Hub is the process-wide subscriber set.
type Hub struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs map[string]*entry
}

type entry struct {
	sub           Subscriber
	authenticated bool
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:  log.Named("fanout"),
		subs: make(map[string]*entry),
	}
}

// Attach registers a subscriber. New subscribers are unauthenticated and
// receive nothing until Authenticate is called for them.
func (h *Hub) Attach(sub Subscriber) {
	h.mu.Lock()
	h.subs[sub.ID()] = &entry{sub: sub}
	h.mu.Unlock()

	h.log.Debug("subscriber attached", zap.String("id", sub.ID()))
}

// Authenticate flips the subscriber to authenticated. Unknown ids are a
// no-op: the subscriber may already have detached.
func (h *Hub) Authenticate(id string) {
	h.mu.Lock()
	if e, ok := h.subs[id]; ok {
		e.authenticated = true
	}
	h.mu.Unlock()

	h.log.Debug("subscriber authenticated", zap.String("id", id))
}

// Detach removes a subscriber and closes its transport.
func (h *Hub) Detach(id string) {
	h.mu.Lock()
	e, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		_ = e.sub.Close()
		h.log.Debug("subscriber detached", zap.String("id", id))
	}
}

// Publish delivers a message to every authenticated subscriber. A failed
// send detaches that subscriber and never blocks delivery to the rest.
func (h *Hub) Publish(msg Message) {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subs))
	for _, e := range h.subs {
		if e.authenticated {
			targets = append(targets, e.sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if err := sub.Send(msg); err != nil {
			h.log.Info("dropping subscriber on send error",
				zap.String("id", sub.ID()), zap.Error(err))
			h.Detach(sub.ID())
		}
	}
}

// Count returns the number of attached subscribers (authenticated or not).
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
