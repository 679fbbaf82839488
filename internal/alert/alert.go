// Package alert decides when a detection becomes a user-visible alert and
// fans the alert out to snapshot and notification sinks.
package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/ayusman/catwatch/internal/detector"
)

// Status is the coordinator's position in its two-state cycle.
type Status int

const (
	// Idle means the next detection will fire an alert.
	Idle Status = iota
	// CoolingDown means detections are being dropped.
	CoolingDown
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case CoolingDown:
		return "cooling_down"
	default:
		return "unknown"
	}
}

// Clock returns the current time.
type Clock func() time.Time

// State is the bookkeeping carried across frames. It only changes when an
// alert fires and is never reset during a run.
type State struct {
	LastAlert time.Time
	Count     int
}

// Event describes one fired alert.
type Event struct {
	ID           string               `json:"id"`
	Time         time.Time            `json:"time"`
	Seq          int                  `json:"seq"`
	Detector     string               `json:"detector"`
	Candidates   []detector.Candidate `json:"candidates"`
	SnapshotPath string               `json:"snapshot_path,omitempty"`
	SnapshotErr  string               `json:"snapshot_error,omitempty"`
}

// BestConfidence returns the highest candidate confidence.
func (e Event) BestConfidence() float64 {
	var best float64
	for _, c := range e.Candidates {
		if c.Confidence > best {
			best = c.Confidence
		}
	}
	return best
}

// SnapshotSink persists the alert frame.
type SnapshotSink interface {
	Save(frame *gocv.Mat) (string, error)
}

// Notifier receives fired alerts. Implementations must return quickly;
// slow work belongs in a goroutine.
type Notifier interface {
	Notify(e Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(e Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Config configures a Coordinator.
type Config struct {
	Cooldown  time.Duration
	Detector  string
	Clock     Clock
	Snapshots SnapshotSink
	Notifiers []Notifier
}

// Coordinator owns the cooldown timer and alert counter. Handle is driven
// from the detection loop; State and Status may be read from any goroutine.
type Coordinator struct {
	cooldown  time.Duration
	detector  string
	clock     Clock
	snapshots SnapshotSink
	notifiers []Notifier

	mu    sync.RWMutex
	state State
}

// NewCoordinator creates a Coordinator starting in Idle.
func NewCoordinator(cfg Config) *Coordinator {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Coordinator{
		cooldown:  cfg.Cooldown,
		detector:  cfg.Detector,
		clock:     clock,
		snapshots: cfg.Snapshots,
		notifiers: cfg.Notifiers,
	}
}

// AddNotifier registers another sink. Call before the loop starts.
func (c *Coordinator) AddNotifier(n Notifier) {
	c.notifiers = append(c.notifiers, n)
}

// State returns a copy of the current bookkeeping.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Cooldown returns the configured cooldown period.
func (c *Coordinator) Cooldown() time.Duration {
	return c.cooldown
}

// Status reports whether an alert could fire at now.
func (c *Coordinator) Status(now time.Time) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status(now)
}

// status expects c.mu to be held.
func (c *Coordinator) status(now time.Time) Status {
	if c.state.Count == 0 {
		return Idle
	}
	if now.Sub(c.state.LastAlert) <= c.cooldown {
		return CoolingDown
	}
	return Idle
}

// Handle considers the validated candidates for one frame. It returns the
// fired event and true, or false when nothing fired because there were no
// candidates or the cooldown is still running.
//
// Snapshot and notifier failures never undo the bookkeeping: the cat was
// seen either way.
func (c *Coordinator) Handle(frame *gocv.Mat, candidates []detector.Candidate) (Event, bool) {
	if len(candidates) == 0 {
		return Event{}, false
	}

	now := c.clock()

	c.mu.Lock()
	if c.status(now) == CoolingDown {
		c.mu.Unlock()
		return Event{}, false
	}
	c.state.Count++
	c.state.LastAlert = now
	seq := c.state.Count
	c.mu.Unlock()

	// Sinks run unlocked so a notifier may read State.
	e := Event{
		ID:         uuid.NewString(),
		Time:       now,
		Seq:        seq,
		Detector:   c.detector,
		Candidates: candidates,
	}

	if c.snapshots != nil {
		path, err := c.snapshots.Save(frame)
		if err != nil {
			log.Error().Err(err).Int("alert", e.Seq).Msg("Failed to save snapshot")
			e.SnapshotErr = err.Error()
		} else {
			e.SnapshotPath = path
		}
	}

	log.Info().
		Int("total_detections", e.Seq).
		Int("candidates", len(candidates)).
		Str("snapshot", e.SnapshotPath).
		Msg("Cat detected")

	for _, n := range c.notifiers {
		n.Notify(e)
	}

	return e, true
}
