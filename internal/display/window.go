package display

import (
	"sync"

	"gocv.io/x/gocv"
)

// DefaultTitle is the window title.
const DefaultTitle = "Cat Detector"

// Keys that end the run from the preview window.
const (
	keyQuit   = 'q'
	keyEscape = 27
)

// Display presents processed frames. Show reports whether the user asked
// to quit. Close must be safe to call more than once.
type Display interface {
	Show(frame *gocv.Mat) (quit bool)
	Close() error
}

// Window is an OpenCV highgui window. It must be driven from the main
// OS thread on platforms that require it.
type Window struct {
	mu     sync.Mutex
	win    *gocv.Window
	closed bool
}

// NewWindow opens a preview window with the given title.
func NewWindow(title string) *Window {
	if title == "" {
		title = DefaultTitle
	}
	return &Window{win: gocv.NewWindow(title)}
}

// Show renders frame and polls the keyboard for 1ms.
func (w *Window) Show(frame *gocv.Mat) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return true
	}
	if frame != nil && !frame.Empty() {
		w.win.IMShow(*frame)
	}
	return IsQuitKey(w.win.WaitKey(1))
}

// Close destroys the window.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.win.Close()
}

// IsQuitKey reports whether key is q or ESC.
func IsQuitKey(key int) bool {
	key &= 0xFF
	return key == keyQuit || key == keyEscape
}

// Headless discards frames. It is used when no window is wanted or the
// main thread belongs to the system tray.
type Headless struct{}

func (Headless) Show(*gocv.Mat) bool { return false }
func (Headless) Close() error        { return nil }

type tee []Display

// Tee shows every frame on each of displays. It quits when any of them
// asks to, and Close closes all of them, returning the first error.
func Tee(displays ...Display) Display {
	switch len(displays) {
	case 0:
		return Headless{}
	case 1:
		return displays[0]
	}
	return tee(displays)
}

func (t tee) Show(frame *gocv.Mat) bool {
	quit := false
	for _, d := range t {
		if d.Show(frame) {
			quit = true
		}
	}
	return quit
}

func (t tee) Close() error {
	var first error
	for _, d := range t {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
