// Package display draws detections onto frames and shows them in a window.
package display

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/catwatch/internal/detector"
)

var (
	boxColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	textColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
)

const (
	boxThickness  = 2
	fontScale     = 0.7
	textThickness = 2
)

// Label returns the caption drawn above a candidate. Cascade hits carry no
// real score, so they are labelled without one.
func Label(c detector.Candidate) string {
	if c.Confidence >= 1 {
		return "Cat"
	}
	return fmt.Sprintf("Cat: %.2f", c.Confidence)
}

// Annotate draws a box and caption for every candidate onto frame in place.
// It stops at the first drawing error.
func Annotate(frame *gocv.Mat, candidates []detector.Candidate) error {
	if frame == nil || frame.Empty() {
		return nil
	}

	for _, c := range candidates {
		if err := gocv.Rectangle(frame, c.Rect, boxColor, boxThickness); err != nil {
			return fmt.Errorf("draw box: %w", err)
		}

		y := c.Rect.Min.Y - 10
		if y < 15 {
			y = c.Rect.Min.Y + 20
		}
		if err := gocv.PutText(frame, Label(c), image.Pt(c.Rect.Min.X, y),
			gocv.FontHersheySimplex, fontScale, textColor, textThickness); err != nil {
			return fmt.Errorf("draw label: %w", err)
		}
	}
	return nil
}
