// Package validate filters cascade detections with geometric and texture
// heuristics. Cascades fire on many flat or oddly shaped regions; these
// checks trade recall for precision.
package validate

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/catwatch/internal/detector"
)

// Bounds holds the acceptance limits. All ranges are inclusive.
type Bounds struct {
	MinAspect   float64
	MaxAspect   float64
	MinArea     float64
	MaxArea     float64
	MinVariance float64
}

// DefaultBounds returns the empirically chosen limits: near-square boxes
// covering 1%-25% of the frame with enough texture to be a face.
func DefaultBounds() Bounds {
	return Bounds{
		MinAspect:   0.8,
		MaxAspect:   1.2,
		MinArea:     0.01,
		MaxArea:     0.25,
		MinVariance: 500,
	}
}

// Validator applies Bounds to detector candidates.
type Validator struct {
	bounds Bounds
}

// New creates a Validator with the given bounds.
func New(bounds Bounds) *Validator {
	return &Validator{bounds: bounds}
}

// Bounds returns the limits in use.
func (v *Validator) Bounds() Bounds {
	return v.bounds
}

// AspectOK reports whether a width/height ratio lies within the aspect
// range. Degenerate boxes have ratio 0 and fail.
func (v *Validator) AspectOK(ratio float64) bool {
	if ratio <= 0 {
		return false
	}
	return ratio >= v.bounds.MinAspect && ratio <= v.bounds.MaxAspect
}

// AreaOK reports whether the box covers an acceptable share of the frame.
func (v *Validator) AreaOK(box image.Rectangle, frameWidth, frameHeight int) bool {
	if frameWidth <= 0 || frameHeight <= 0 {
		return false
	}
	rel := float64(box.Dx()*box.Dy()) / float64(frameWidth*frameHeight)
	return rel >= v.bounds.MinArea && rel <= v.bounds.MaxArea
}

// VarianceOK reports whether the region is textured enough.
func (v *Validator) VarianceOK(variance float64) bool {
	return variance >= v.bounds.MinVariance
}

// Accept checks a single candidate against an equalized grayscale frame.
// The cheap geometric checks run first so the variance is only computed
// for plausible boxes.
func (v *Validator) Accept(c detector.Candidate, gray gocv.Mat) bool {
	if !v.AspectOK(c.AspectRatio()) {
		return false
	}
	if !v.AreaOK(c.Rect, gray.Cols(), gray.Rows()) {
		return false
	}
	variance, ok := RegionVariance(gray, c.Rect)
	if !ok {
		return false
	}
	return v.VarianceOK(variance)
}

// Filter returns the candidates that pass every check. frame is the BGR
// camera frame; it is converted once for all candidates.
func (v *Validator) Filter(frame *gocv.Mat, candidates []detector.Candidate) ([]detector.Candidate, error) {
	if len(candidates) == 0 || frame == nil {
		return nil, nil
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if err := detector.EqualizedGray(*frame, &gray); err != nil {
		return nil, err
	}

	var accepted []detector.Candidate
	for _, c := range candidates {
		if v.Accept(c, gray) {
			accepted = append(accepted, c)
		}
	}
	return accepted, nil
}

// RegionVariance returns the pixel-intensity variance of a single-channel
// image inside box. ok is false when box does not fit inside the image or
// OpenCV cannot compute the statistics.
func RegionVariance(gray gocv.Mat, box image.Rectangle) (variance float64, ok bool) {
	bounds := image.Rect(0, 0, gray.Cols(), gray.Rows())
	box = box.Intersect(bounds)
	if box.Empty() {
		return 0, false
	}

	roi := gray.Region(box)
	defer roi.Close()

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()

	if err := gocv.MeanStdDev(roi, &mean, &stddev); err != nil {
		return 0, false
	}
	if stddev.Empty() {
		return 0, false
	}
	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd, true
}
