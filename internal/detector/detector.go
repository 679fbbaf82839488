// Package detector wraps the OpenCV object detectors used to find cats in
// camera frames.
package detector

import (
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

var (
	// ErrNoDetector is returned by Choose when no detector could be loaded.
	ErrNoDetector = errors.New("no usable detector")
	// ErrEmptyImage is returned when an image has no pixels to work on.
	ErrEmptyImage = errors.New("empty image")
)

// TargetLabel is the class name reported for cat detections.
const TargetLabel = "cat"

// Candidate is a region the detector believes contains the target.
type Candidate struct {
	Rect       image.Rectangle `json:"rect"`
	Confidence float64         `json:"confidence"`
	Label      string          `json:"label"`
}

// AspectRatio returns width/height, or 0 for a degenerate rectangle.
func (c Candidate) AspectRatio() float64 {
	if c.Rect.Dy() == 0 {
		return 0
	}
	return float64(c.Rect.Dx()) / float64(c.Rect.Dy())
}

// Detector defines the interface for cat detection implementations.
type Detector interface {
	// Detect analyzes a BGR frame and returns candidate regions.
	// Returns an empty slice if nothing is found.
	Detect(frame *gocv.Mat) ([]Candidate, error)

	// Name identifies the implementation in logs and alert records.
	Name() string

	// Close releases any resources held by the detector.
	Close() error
}

// Loader builds a detector from its model assets.
type Loader func() (Detector, error)

// Choose tries each loader in order and returns the first detector that
// loads. The choice is made once; callers keep it for the whole run.
func Choose(loaders ...Loader) (Detector, error) {
	var errs []error
	for _, load := range loaders {
		d, err := load()
		if err == nil {
			log.Info().Str("detector", d.Name()).Msg("Detector loaded")
			return d, nil
		}
		log.Warn().Err(err).Msg("Detector unavailable, trying next")
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrNoDetector
	}
	return nil, fmt.Errorf("%w: %w", ErrNoDetector, errors.Join(errs...))
}
