package app

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/catwatch/internal/alert"
	"github.com/ayusman/catwatch/internal/capture"
	"github.com/ayusman/catwatch/internal/detector"
	"github.com/ayusman/catwatch/internal/validate"
	"github.com/ayusman/catwatch/testdata"
)

// steppingClock advances by step on every call.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type fakeSnapshots struct {
	saves int
	err   error
}

func (s *fakeSnapshots) Save(*gocv.Mat) (string, error) {
	s.saves++
	if s.err != nil {
		return "", s.err
	}
	return "detected_cats/cat.jpg", nil
}

type eventLog struct {
	mu     sync.Mutex
	events []alert.Event
}

func (l *eventLog) Notify(e alert.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// fakeDisplay asks to quit on the quitAt-th Show (0 never quits).
type fakeDisplay struct {
	shows  int
	quitAt int
	closes int
}

func (d *fakeDisplay) Show(*gocv.Mat) bool {
	d.shows++
	return d.quitAt > 0 && d.shows >= d.quitAt
}

func (d *fakeDisplay) Close() error {
	d.closes++
	return nil
}

// brokenCamera opens but never yields a frame.
type brokenCamera struct {
	openErr error
	reads   int
	closes  int
	open    bool
}

func (c *brokenCamera) Open() error {
	if c.openErr != nil {
		return c.openErr
	}
	c.open = true
	return nil
}
func (c *brokenCamera) Close() error { c.closes++; c.open = false; return nil }
func (c *brokenCamera) ReadFrame() (*gocv.Mat, error) {
	c.reads++
	return nil, errors.New("device unplugged")
}
func (c *brokenCamera) SetFPS(int)   {}
func (c *brokenCamera) FPS() int     { return capture.DefaultFPS }
func (c *brokenCamera) IsOpen() bool { return c.open }

type harness struct {
	app     *App
	camera  *capture.MockCamera
	det     *detector.MockDetector
	alerts  *alert.Coordinator
	snaps   *fakeSnapshots
	events  *eventLog
	display *fakeDisplay
}

type harnessOpts struct {
	frames     []*gocv.Mat
	cooldown   time.Duration
	step       time.Duration
	frameSkip  int
	validator  *validate.Validator
	retryDelay time.Duration // defaults to a millisecond
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()

	if o.cooldown == 0 {
		o.cooldown = 5 * time.Second
	}
	if o.retryDelay == 0 {
		o.retryDelay = time.Millisecond
	}
	clock := &steppingClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), step: o.step}

	h := &harness{
		camera:  capture.NewMockCamera(o.frames, false),
		det:     detector.NewMockDetector(),
		snaps:   &fakeSnapshots{},
		events:  &eventLog{},
		display: &fakeDisplay{},
	}
	h.alerts = alert.NewCoordinator(alert.Config{
		Cooldown:  o.cooldown,
		Detector:  h.det.Name(),
		Clock:     clock.Now,
		Snapshots: h.snaps,
		Notifiers: []alert.Notifier{h.events},
	})
	h.app = New(Config{
		Camera:     h.camera,
		Detector:   h.det,
		Validator:  o.validator,
		Alerts:     h.alerts,
		Display:    h.display,
		FrameSkip:  o.frameSkip,
		RetryDelay: o.retryDelay,
	})
	return h
}

func blankFrames(t *testing.T, n int) []*gocv.Mat {
	t.Helper()
	blank := testdata.Blank(testdata.Height, testdata.Width)
	defer blank.Close()
	frames := testdata.Sequence(blank, n)
	t.Cleanup(func() { testdata.CloseAll(frames) })
	return frames
}

func TestApp_EmptyFramesNeverAlert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t, harnessOpts{frames: blankFrames(t, 10), step: time.Second})

	if err := h.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := h.app.Stats()
	if stats.Frames != 10 || stats.Processed != 10 {
		t.Errorf("Stats() = %+v, want 10 frames processed", stats)
	}
	if h.alerts.State().Count != 0 {
		t.Errorf("alert count = %d, want 0", h.alerts.State().Count)
	}
	if h.snaps.saves != 0 || h.events.Len() != 0 {
		t.Errorf("saves = %d, events = %d, want none", h.snaps.saves, h.events.Len())
	}
}

func TestApp_FrameSkip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t, harnessOpts{frames: blankFrames(t, 10), frameSkip: 2})

	if err := h.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if h.det.Calls() != 5 {
		t.Errorf("detector calls = %d, want 5", h.det.Calls())
	}
	if h.display.shows != 5 {
		t.Errorf("display shows = %d, want 5", h.display.shows)
	}
}

func TestApp_CooldownSuppressesSecondDetection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// Detections at t=0 and t=1s with a 5s cooldown.
	h := newHarness(t, harnessOpts{frames: blankFrames(t, 2), step: time.Second})
	h.det.SetCandidates([]detector.Candidate{detector.CatFace(200, 150, 120)})

	if err := h.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.alerts.State().Count; got != 1 {
		t.Errorf("alert count = %d, want 1", got)
	}
	if h.snaps.saves != 1 {
		t.Errorf("snapshots = %d, want 1", h.snaps.saves)
	}
	if h.app.Stats().Alerts != 1 {
		t.Errorf("Stats().Alerts = %d, want 1", h.app.Stats().Alerts)
	}
}

func TestApp_AlertsAgainAfterCooldown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// Twelve detections 1s apart with a 5s cooldown fire at t=0 and t=6.
	h := newHarness(t, harnessOpts{frames: blankFrames(t, 12), step: time.Second})
	h.det.SetCandidates([]detector.Candidate{detector.CatFace(200, 150, 120)})

	if err := h.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.alerts.State().Count; got != 2 {
		t.Errorf("alert count = %d, want 2", got)
	}
}

func TestApp_SafeModeRejectsWideBox(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	box := image.Rect(100, 100, 300, 200) // aspect 2.0
	frame := testdata.Textured(testdata.Height, testdata.Width, box, 4)
	defer frame.Close()
	frames := testdata.Sequence(frame, 3)
	defer testdata.CloseAll(frames)

	h := newHarness(t, harnessOpts{
		frames:    frames,
		step:      10 * time.Second,
		validator: validate.New(validate.DefaultBounds()),
	})
	h.det.SetCandidates([]detector.Candidate{{Rect: box, Confidence: 1, Label: "cat"}})

	if err := h.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.alerts.State().Count; got != 0 {
		t.Errorf("alert count = %d, want 0", got)
	}
}

func TestApp_SafeModeAcceptsTexturedSquare(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	box := image.Rect(200, 150, 320, 270)
	frame := testdata.Textured(testdata.Height, testdata.Width, box, 4)
	defer frame.Close()
	frames := testdata.Sequence(frame, 1)
	defer testdata.CloseAll(frames)

	h := newHarness(t, harnessOpts{
		frames:    frames,
		validator: validate.New(validate.DefaultBounds()),
	})
	h.det.SetCandidates([]detector.Candidate{{Rect: box, Confidence: 1, Label: "cat"}})

	if err := h.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.alerts.State().Count; got != 1 {
		t.Errorf("alert count = %d, want 1", got)
	}
}

func TestApp_SnapshotFailureStillCounts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t, harnessOpts{frames: blankFrames(t, 1)})
	h.snaps.err = errors.New("disk full")
	h.det.SetCandidates([]detector.Candidate{detector.CatFace(200, 150, 120)})

	if err := h.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.alerts.State().Count; got != 1 {
		t.Errorf("alert count = %d, want 1", got)
	}
	if h.events.Len() != 1 {
		t.Fatalf("notifier called %d times, want 1", h.events.Len())
	}
	if h.events.events[0].SnapshotErr == "" {
		t.Error("event should carry the snapshot error")
	}
}

func TestApp_DetectErrorIsTransient(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t, harnessOpts{frames: blankFrames(t, 3)})
	h.det.SetError(errors.New("inference failed"))

	if err := h.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if h.det.Calls() != 3 {
		t.Errorf("detector calls = %d, want 3", h.det.Calls())
	}
	if h.alerts.State().Count != 0 {
		t.Errorf("alert count = %d, want 0", h.alerts.State().Count)
	}
}

func TestApp_ValidationErrorPauses(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// Empty frames make the validator fail before any box is checked.
	empty := gocv.NewMat()
	defer empty.Close()
	frames := testdata.Sequence(empty, 3)
	defer testdata.CloseAll(frames)

	const delay = 25 * time.Millisecond
	h := newHarness(t, harnessOpts{
		frames:     frames,
		step:       10 * time.Second,
		validator:  validate.New(validate.DefaultBounds()),
		retryDelay: delay,
	})
	h.det.SetCandidates([]detector.Candidate{detector.CatFace(200, 150, 120)})

	start := time.Now()
	if err := h.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	elapsed := time.Since(start)

	if h.det.Calls() != 3 {
		t.Errorf("detector calls = %d, want 3", h.det.Calls())
	}
	if got := h.alerts.State().Count; got != 0 {
		t.Errorf("alert count = %d, want 0", got)
	}
	if elapsed < 3*delay {
		t.Errorf("Run() took %v, want at least %v of retry pauses", elapsed, 3*delay)
	}
}

func TestApp_Disabled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t, harnessOpts{frames: blankFrames(t, 4)})
	h.det.SetCandidates([]detector.Candidate{detector.CatFace(200, 150, 120)})
	h.app.SetEnabled(false)

	if err := h.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if h.det.Calls() != 0 {
		t.Errorf("detector calls = %d, want 0 while disabled", h.det.Calls())
	}
	if h.display.shows != 4 {
		t.Errorf("display shows = %d, want 4", h.display.shows)
	}
}

func TestApp_QuitFromDisplay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t, harnessOpts{frames: blankFrames(t, 10)})
	h.display.quitAt = 3

	if err := h.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if h.camera.Reads() != 3 {
		t.Errorf("camera reads = %d, want 3", h.camera.Reads())
	}
}

func TestApp_CleanupOnEveryExit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t, harnessOpts{frames: blankFrames(t, 2)})

	if err := h.app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// A second Close must not release anything twice.
	h.app.Close()

	if h.camera.Closes() != 1 {
		t.Errorf("camera closes = %d, want 1", h.camera.Closes())
	}
	if !h.det.Closed() {
		t.Error("detector should be closed")
	}
	if h.display.closes != 1 {
		t.Errorf("display closes = %d, want 1", h.display.closes)
	}
}

func TestApp_ContextCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	blank := testdata.Blank(testdata.Height, testdata.Width)
	defer blank.Close()
	frames := testdata.Sequence(blank, 1)
	defer testdata.CloseAll(frames)

	cam := capture.NewMockCamera(frames, true)
	det := detector.NewMockDetector()
	a := New(Config{
		Camera:   cam,
		Detector: det,
		Alerts:   alert.NewCoordinator(alert.Config{Cooldown: time.Second}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if cam.Closes() != 1 || !det.Closed() {
		t.Error("camera and detector should be released on cancel")
	}
}

func TestApp_CameraUnavailable(t *testing.T) {
	cam := &brokenCamera{}
	det := detector.NewMockDetector()
	a := New(Config{
		Camera:             cam,
		Detector:           det,
		Alerts:             alert.NewCoordinator(alert.Config{Cooldown: time.Second}),
		RetryDelay:         time.Millisecond,
		MaxCaptureFailures: 3,
	})

	err := a.Run(context.Background())
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("Run() error = %v, want ErrCameraUnavailable", err)
	}
	if cam.reads != 3 {
		t.Errorf("reads = %d, want 3", cam.reads)
	}
	if cam.closes != 1 || !det.Closed() {
		t.Error("resources should be released after a fatal error")
	}
}

func TestApp_CameraOpenFailure(t *testing.T) {
	cam := &brokenCamera{openErr: errors.New("no such device")}
	a := New(Config{
		Camera:   cam,
		Detector: detector.NewMockDetector(),
		Alerts:   alert.NewCoordinator(alert.Config{Cooldown: time.Second}),
	})

	if err := a.Run(context.Background()); !errors.Is(err, ErrCameraUnavailable) {
		t.Errorf("Run() error = %v, want ErrCameraUnavailable", err)
	}
	if cam.reads != 0 {
		t.Errorf("reads = %d, want 0", cam.reads)
	}
}

func TestApp_MissingCollaborators(t *testing.T) {
	a := New(Config{})
	if err := a.Run(context.Background()); err == nil {
		t.Error("Run() should fail without camera, detector and alerts")
	}
}

func TestNew_Defaults(t *testing.T) {
	a := New(Config{FrameSkip: 0, RetryDelay: 0, MaxCaptureFailures: -5})

	if a.config.FrameSkip != 1 {
		t.Errorf("FrameSkip = %d, want 1", a.config.FrameSkip)
	}
	if a.config.RetryDelay != DefaultRetryDelay {
		t.Errorf("RetryDelay = %v, want %v", a.config.RetryDelay, DefaultRetryDelay)
	}
	if a.config.MaxCaptureFailures != DefaultMaxCaptureFailures {
		t.Errorf("MaxCaptureFailures = %d", a.config.MaxCaptureFailures)
	}
	if !a.IsEnabled() {
		t.Error("detection should start enabled")
	}
}
