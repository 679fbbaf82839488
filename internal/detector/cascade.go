package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// CascadeParams tunes the Haar cascade multi-scale search.
type CascadeParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	// MaxSize of zero means unbounded.
	MaxSize image.Point
}

// Cascade presets for each run mode.
var (
	BasicCascade = CascadeParams{
		ScaleFactor:  1.1,
		MinNeighbors: 5,
		MinSize:      image.Pt(50, 50),
	}
	StrictCascade = CascadeParams{
		ScaleFactor:  1.1,
		MinNeighbors: 8,
		MinSize:      image.Pt(60, 60),
		MaxSize:      image.Pt(200, 200),
	}
	FallbackCascade = CascadeParams{
		ScaleFactor:  1.1,
		MinNeighbors: 5,
		MinSize:      image.Pt(30, 30),
	}
)

// CascadeDetector finds cat faces with a Haar cascade. Cascades give a
// yes/no answer, so every candidate carries confidence 1.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
	params     CascadeParams
	mu         sync.Mutex
	closed     bool
}

// NewCascadeDetector loads the cascade definition at path.
func NewCascadeDetector(path string, params CascadeParams) (*CascadeDetector, error) {
	if path == "" {
		return nil, fmt.Errorf("cascade file not configured")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cascade file: %w", err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("load cascade %s: classifier rejected file", path)
	}

	return &CascadeDetector{
		classifier: classifier,
		params:     params,
	}, nil
}

// CascadeLoader adapts NewCascadeDetector for Choose.
func CascadeLoader(path string, params CascadeParams) Loader {
	return func() (Detector, error) {
		return NewCascadeDetector(path, params)
	}
}

// Detect runs the cascade over an equalized grayscale copy of frame.
func (d *CascadeDetector) Detect(frame *gocv.Mat) ([]Candidate, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("detect: empty frame")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if err := EqualizedGray(*frame, &gray); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("detect: cascade closed")
	}

	rects := d.classifier.DetectMultiScaleWithParams(
		gray,
		d.params.ScaleFactor,
		d.params.MinNeighbors,
		0,
		d.params.MinSize,
		d.params.MaxSize,
	)

	candidates := make([]Candidate, 0, len(rects))
	for _, r := range rects {
		candidates = append(candidates, Candidate{
			Rect:       r,
			Confidence: 1,
			Label:      TargetLabel,
		})
	}
	return candidates, nil
}

func (d *CascadeDetector) Name() string { return "haar-cascade" }

func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.classifier.Close()
}

// EqualizedGray writes a histogram-equalized single-channel copy of src
// into dst.
func EqualizedGray(src gocv.Mat, dst *gocv.Mat) error {
	if src.Empty() {
		return ErrEmptyImage
	}
	if src.Channels() > 1 {
		if err := gocv.CvtColor(src, dst, gocv.ColorBGRToGray); err != nil {
			return fmt.Errorf("convert to gray: %w", err)
		}
	} else if err := src.CopyTo(dst); err != nil {
		return fmt.Errorf("copy gray: %w", err)
	}
	if err := gocv.EqualizeHist(*dst, dst); err != nil {
		return fmt.Errorf("equalize histogram: %w", err)
	}
	return nil
}
