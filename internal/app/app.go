// Package app wires the frame source, detector, validator and alert
// coordinator into the single-goroutine detection loop.
package app

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/catwatch/internal/alert"
	"github.com/ayusman/catwatch/internal/capture"
	"github.com/ayusman/catwatch/internal/detector"
	"github.com/ayusman/catwatch/internal/display"
	"github.com/ayusman/catwatch/internal/validate"
)

// Loop defaults.
const (
	DefaultRetryDelay         = 100 * time.Millisecond
	DefaultMaxCaptureFailures = 100
)

// ErrCameraUnavailable is returned by Run when the camera keeps failing.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Config holds the loop's collaborators and tuning.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	// Validator is nil outside safe mode.
	Validator *validate.Validator
	Alerts    *alert.Coordinator
	// Display defaults to display.Headless.
	Display display.Display

	// FrameSkip runs detection on every Nth frame. Values below 1 mean 1.
	FrameSkip  int
	RetryDelay time.Duration
	// MaxCaptureFailures is the number of consecutive read failures
	// tolerated before Run gives up. Zero retries forever.
	MaxCaptureFailures int
}

// Stats counts loop activity.
type Stats struct {
	Frames    int
	Processed int
	Alerts    int
}

// App is the cat detection loop.
type App struct {
	config  Config
	enabled bool
	mu      sync.RWMutex
	stats   Stats

	closeOnce sync.Once
}

// New creates an App with detection enabled.
func New(config Config) *App {
	if config.FrameSkip < 1 {
		config.FrameSkip = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	if config.MaxCaptureFailures < 0 {
		config.MaxCaptureFailures = DefaultMaxCaptureFailures
	}
	if config.Display == nil {
		config.Display = display.Headless{}
	}

	return &App{
		config:  config,
		enabled: true,
	}
}

// SetEnabled pauses or resumes detection. Frames are still read and shown
// while paused so the camera stays live.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
	log.Info().Bool("enabled", enabled).Msg("Detection toggled")
}

// IsEnabled returns whether detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Stats returns a snapshot of the loop counters.
func (a *App) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Alerts returns the coordinator.
func (a *App) Alerts() *alert.Coordinator {
	return a.config.Alerts
}

// Close releases the camera, the detector and the display. It is called
// by Run on every exit path and is safe to call again.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		log.Info().Msg("Cleaning up")

		if a.config.Camera != nil {
			if err := a.config.Camera.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing camera")
			}
		}

		if a.config.Detector != nil {
			if err := a.config.Detector.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing detector")
			}
		}

		if err := a.config.Display.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing display")
		}
	})
}
