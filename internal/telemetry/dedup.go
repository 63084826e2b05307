package telemetry

import (
	"fmt"
	"sync"
	"time"
)

// DefaultWindowSize is the per-device count of recent record fingerprints
// retained for duplicate suppression.
const DefaultWindowSize = 100

// DedupWindow suppresses re-emission of recently seen records. One window
// exists per process; entries are keyed by IMEI and live for the process
// lifetime. Safe for concurrent use.
type DedupWindow struct {
	mu      sync.Mutex
	size    int
	devices map[string]*recentKeys
}

type recentKeys struct {
	seen  map[string]struct{}
	order []string
}

// NewDedupWindow creates a window retaining size fingerprints per device.
func NewDedupWindow(size int) *DedupWindow {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &DedupWindow{
		size:    size,
		devices: make(map[string]*recentKeys),
	}
}

// Observe records the fix's fingerprint and reports whether it was new.
// A duplicate is merged into the window (refreshing nothing; the window is
// insertion-ordered) and reported as already seen.
func (w *DedupWindow) Observe(f Fix) bool {
	key := f.Key()

	w.mu.Lock()
	defer w.mu.Unlock()

	dev, ok := w.devices[f.IMEI]
	if !ok {
		dev = &recentKeys{seen: make(map[string]struct{}, w.size)}
		w.devices[f.IMEI] = dev
	}

	if _, dup := dev.seen[key]; dup {
		return false
	}

	dev.seen[key] = struct{}{}
	dev.order = append(dev.order, key)
	if len(dev.order) > w.size {
		oldest := dev.order[0]
		dev.order = dev.order[1:]
		delete(dev.seen, oldest)
	}

	return true
}

// Devices returns the number of devices with a live window.
func (w *DedupWindow) Devices() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.devices)
}

func dedupKey(ts time.Time, lat, lon float64) string {
	return fmt.Sprintf("%d|%.6f|%.6f", ts.Unix(), lat, lon)
}
