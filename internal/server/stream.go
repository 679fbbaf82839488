package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/ayusman/catwatch/internal/display"
)

// streamInterval caps both encoding and delivery at about 15 FPS.
const streamInterval = 66 * time.Millisecond

// FrameStream keeps the latest displayed frame as JPEG and serves it as
// MJPEG. It implements display.Display so the loop can feed it like a
// window.
type FrameStream struct {
	mu      sync.RWMutex
	jpeg    []byte
	seq     uint64
	encoded time.Time
	closed  bool
}

var _ display.Display = (*FrameStream)(nil)

// NewFrameStream creates an empty stream.
func NewFrameStream() *FrameStream {
	return &FrameStream{}
}

// Show encodes frame if enough time has passed since the last one. It
// never asks to quit.
func (s *FrameStream) Show(frame *gocv.Mat) bool {
	if frame == nil || frame.Empty() {
		return false
	}

	s.mu.RLock()
	skip := s.closed || time.Since(s.encoded) < streamInterval
	s.mu.RUnlock()
	if skip {
		return false
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to encode preview frame")
		return false
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	s.mu.Lock()
	s.jpeg = data
	s.seq++
	s.encoded = time.Now()
	s.mu.Unlock()

	return false
}

// Close stops accepting frames. Connected clients finish on their next tick.
func (s *FrameStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Latest returns the most recent JPEG and its sequence number.
func (s *FrameStream) Latest() ([]byte, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jpeg, s.seq
}

func (s *FrameStream) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// ServeHTTP streams MJPEG frames to connected clients.
func (s *FrameStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var sent uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		if s.isClosed() {
			return
		}

		data, seq := s.Latest()
		if data == nil || seq == sent {
			continue
		}
		sent = seq

		// Write MJPEG frame
		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data))
		if _, err := w.Write(data); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
