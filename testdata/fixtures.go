// Package testdata builds synthetic camera frames for tests.
package testdata

import (
	"image"

	"gocv.io/x/gocv"
)

// Frame dimensions matching the capture resolution.
const (
	Width  = 640
	Height = 480
)

// Blank returns a uniform mid-grey BGR frame: nothing a detector or the
// texture check would accept.
func Blank(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), rows, cols, gocv.MatTypeCV8UC3)
}

// Textured returns a BGR frame that is flat grey except for a
// black-and-white checkerboard inside region. The checkerboard has a
// variance far above any texture threshold.
func Textured(rows, cols int, region image.Rectangle, cell int) gocv.Mat {
	if cell <= 0 {
		cell = 4
	}

	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC1)
	defer gray.Close()

	region = region.Intersect(image.Rect(0, 0, cols, rows))
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			var v uint8
			if ((x-region.Min.X)/cell+(y-region.Min.Y)/cell)%2 == 0 {
				v = 255
			}
			gray.SetUCharAt(y, x, v)
		}
	}

	bgr := gocv.NewMat()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)
	return bgr
}

// Sequence returns n clones of frame. The caller closes them.
func Sequence(frame gocv.Mat, n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		f := frame.Clone()
		frames[i] = &f
	}
	return frames
}

// CloseAll closes every frame in frames.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
