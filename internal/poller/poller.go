// Package poller implements the per-device GPS poll scheduler for Jimi
// sessions. LL301 units do not report autonomously until prompted; after
// login the scheduler transmits request-location commands on a cadence
// that backs off as the device starts reporting on its own.
package poller

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase is the scheduler's polling cadence.
type Phase int

// Scheduler phases, in hand-off order.
const (
	// PhaseAggressive polls immediately and every 15 s, up to 6 fires,
	// to get a first fix out of a freshly connected device.
	PhaseAggressive Phase = iota

	// PhaseSteady polls every 60 s while the device is quiet for 90 s or
	// more; a device heard inside the threshold is autonomously
	// reporting and hands off to idle.
	PhaseSteady

	// PhaseIdle polls every 300 s, and only when the device has been
	// quiet that long.
	PhaseIdle
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseAggressive:
		return "aggressive"
	case PhaseSteady:
		return "steady"
	case PhaseIdle:
		return "idle"
	}
	return "unknown"
}

// Cadence constants.
const (
	// SettleDelay lets the login ACK reach the device before the first poll.
	SettleDelay = 500 * time.Millisecond

	aggressiveInterval = 15 * time.Second
	aggressiveFires    = 6

	steadyInterval  = 60 * time.Second
	steadyThreshold = 90 * time.Second

	idleInterval = 300 * time.Second
)

// SendFunc transmits one request-location frame. Implementations draw the
// outbound serial and perform the serialized socket write.
type SendFunc func() error

// Poller is the per-session scheduler. Exactly one exists per Jimi
// session; Stop is synchronous with session close and no fire happens
// after it returns.
type Poller struct {
	log  *zap.Logger
	send SendFunc

	mu      sync.Mutex
	phase   Phase
	lastFix time.Time

	cancel   chan struct{}
	stopOnce sync.Once
}

// New creates a poller. Start launches it.
func New(log *zap.Logger, send SendFunc) *Poller {
	return &Poller{
		log:    log.Named("poller"),
		send:   send,
		phase:  PhaseAggressive,
		cancel: make(chan struct{}),
	}
}

// Start launches the scheduler loop after the settle delay.
func (p *Poller) Start(settle time.Duration) {
	go p.run(settle)
}

// Stop cancels the scheduler. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.cancel) })
}

// NotifyFix records a received valid fix. A fix during the aggressive
// phase means the device is awake and responding; the scheduler
// down-shifts to steady immediately.
func (p *Poller) NotifyFix(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastFix = t
	if p.phase == PhaseAggressive {
		p.phase = PhaseSteady
	}
}

// Phase returns the current phase.
func (p *Poller) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *Poller) run(settle time.Duration) {
	if !p.sleep(settle) {
		return
	}

	// Aggressive: first fire immediately, then on the short interval.
	p.fire()
	for i := 1; i < aggressiveFires && p.Phase() == PhaseAggressive; i++ {
		if !p.sleep(aggressiveInterval) {
			return
		}
		if p.Phase() != PhaseAggressive {
			break
		}
		p.fire()
	}
	p.shiftFrom(PhaseAggressive, PhaseSteady)

	for p.Phase() == PhaseSteady {
		if !p.sleep(steadyInterval) {
			return
		}
		if p.sinceLastFix() >= steadyThreshold {
			p.fire()
		} else {
			// Device reported recently on its own; it no longer needs
			// prompting at this cadence.
			p.shiftFrom(PhaseSteady, PhaseIdle)
		}
	}

	for {
		if !p.sleep(idleInterval) {
			return
		}
		if p.sinceLastFix() >= idleInterval {
			p.fire()
		}
	}
}

// sleep waits d or returns false on cancellation.
func (p *Poller) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-p.cancel:
		return false
	case <-t.C:
		return true
	}
}

func (p *Poller) fire() {
	// A cancellation racing the timer must not reach the socket.
	select {
	case <-p.cancel:
		return
	default:
	}

	if err := p.send(); err != nil {
		p.log.Debug("request-location send failed", zap.Error(err))
	}
}

func (p *Poller) sinceLastFix() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastFix.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return time.Since(p.lastFix)
}

func (p *Poller) shiftFrom(from, to Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.phase == from {
		p.phase = to
		p.log.Debug("poll phase change",
			zap.String("from", from.String()), zap.String("to", to.String()))
	}
}
