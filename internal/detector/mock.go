package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu         sync.Mutex
	candidates []Candidate
	err        error
	calls      int
	closed     bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetCandidates sets the candidates that will be returned by Detect.
func (m *MockDetector) SetCandidates(candidates []Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = candidates
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured candidates or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates, nil
}

func (m *MockDetector) Name() string { return "mock" }

func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls reports how many frames were passed to Detect.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CatFace returns a square candidate of the given side at (x, y).
func CatFace(x, y, side int) Candidate {
	return Candidate{
		Rect:       image.Rect(x, y, x+side, y+side),
		Confidence: 1,
		Label:      TargetLabel,
	}
}
