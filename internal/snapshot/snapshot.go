// Package snapshot writes alert frames to disk.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"
)

// DefaultDir is where snapshots land unless configured otherwise.
const DefaultDir = "detected_cats"

// TimeLayout names files with second resolution. Two alerts in the same
// second write the same file and the later one wins.
const TimeLayout = "20060102_150405"

// ErrEncode is returned when OpenCV refuses to write the image.
var ErrEncode = errors.New("failed to encode snapshot")

// Writer saves frames as JPEG files named by capture time.
type Writer struct {
	dir    string
	prefix string
	now    func() time.Time
}

// NewWriter creates a Writer for dir. now may be nil to use the wall clock.
func NewWriter(dir string, now func() time.Time) *Writer {
	if dir == "" {
		dir = DefaultDir
	}
	if now == nil {
		now = time.Now
	}
	return &Writer{dir: dir, prefix: "cat", now: now}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Filename returns the file name used for a snapshot taken at t.
func (w *Writer) Filename(t time.Time) string {
	return fmt.Sprintf("%s_%s.jpg", w.prefix, t.Format(TimeLayout))
}

// Save writes frame and returns its path. The directory is created on
// demand.
func (w *Writer) Save(frame *gocv.Mat) (string, error) {
	if frame == nil || frame.Empty() {
		return "", fmt.Errorf("save snapshot: empty frame")
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(w.dir, w.Filename(w.now()))
	if ok := gocv.IMWrite(path, *frame); !ok {
		return "", fmt.Errorf("%w: %s", ErrEncode, path)
	}
	return path, nil
}
