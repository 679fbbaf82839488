package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/ayusman/catwatch/internal/capture"
	"github.com/ayusman/catwatch/internal/display"
)

// Run drives the loop until ctx is cancelled, the user quits from the
// display, the frame source runs dry or the camera is declared
// unavailable. Only the last case is an error.
//
// Per frame:
//  1. read (failures are retried after RetryDelay)
//  2. skip unless this is every FrameSkip-th frame
//  3. detect, then validate when a validator is configured (either
//     failing pauses for RetryDelay and drops the frame)
//  4. draw boxes and hand the candidates to the alert coordinator
//  5. show the frame and poll for quit
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	if a.config.Camera == nil || a.config.Detector == nil || a.config.Alerts == nil {
		return errors.New("app: camera, detector and alerts are required")
	}

	if !a.config.Camera.IsOpen() {
		if err := a.config.Camera.Open(); err != nil {
			return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
		}
	}

	log.Info().
		Str("detector", a.config.Detector.Name()).
		Int("fps", a.config.Camera.FPS()).
		Int("frame_skip", a.config.FrameSkip).
		Dur("cooldown", a.config.Alerts.Cooldown()).
		Bool("validate", a.config.Validator != nil).
		Msg("Detection loop started")

	failures := 0
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping cat detector")
			return nil
		default:
		}

		frame, err := a.config.Camera.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrNoMoreFrames) {
				log.Info().Msg("Frame source exhausted")
				return nil
			}

			failures++
			log.Warn().Err(err).Int("consecutive", failures).Msg("Failed to capture frame")
			if a.config.MaxCaptureFailures > 0 && failures >= a.config.MaxCaptureFailures {
				return fmt.Errorf("%w: %d consecutive read failures: %w", ErrCameraUnavailable, failures, err)
			}
			if !sleep(ctx, a.config.RetryDelay) {
				return nil
			}
			continue
		}
		failures = 0

		quit := a.processFrame(ctx, frame)
		frame.Close()

		if quit {
			log.Info().Msg("Quit requested from display")
			return nil
		}
	}
}

// processFrame handles one captured frame and reports whether the user
// asked to quit.
func (a *App) processFrame(ctx context.Context, frame *gocv.Mat) bool {
	a.mu.Lock()
	a.stats.Frames++
	n := a.stats.Frames
	a.mu.Unlock()

	if n%a.config.FrameSkip != 0 {
		return false
	}

	if a.IsEnabled() {
		a.detect(ctx, frame)
	}

	return a.config.Display.Show(frame)
}

func (a *App) detect(ctx context.Context, frame *gocv.Mat) {
	a.mu.Lock()
	a.stats.Processed++
	a.mu.Unlock()

	candidates, err := a.config.Detector.Detect(frame)
	if err != nil {
		log.Warn().Err(err).Str("detector", a.config.Detector.Name()).Msg("Detection error")
		sleep(ctx, a.config.RetryDelay)
		return
	}

	if a.config.Validator != nil && len(candidates) > 0 {
		accepted, err := a.config.Validator.Filter(frame, candidates)
		if err != nil {
			log.Warn().Err(err).Msg("Validation error")
			sleep(ctx, a.config.RetryDelay)
			return
		}
		if len(accepted) < len(candidates) {
			log.Debug().
				Int("raw", len(candidates)).
				Int("accepted", len(accepted)).
				Msg("Validator rejected candidates")
		}
		candidates = accepted
	}

	if len(candidates) == 0 {
		return
	}

	// Boxes go on before the coordinator so the snapshot shows them.
	if err := display.Annotate(frame, candidates); err != nil {
		log.Debug().Err(err).Msg("Failed to draw detections")
	}

	if _, fired := a.config.Alerts.Handle(frame, candidates); fired {
		a.mu.Lock()
		a.stats.Alerts++
		a.mu.Unlock()
	}
}

// sleep waits for d or until ctx is done. It returns false if ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
