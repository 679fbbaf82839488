package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// NeuralConfig describes the YOLO model assets and filtering thresholds.
type NeuralConfig struct {
	WeightsPath string
	ConfigPath  string
	NamesPath   string
	Target      string
	// Confidence is the minimum class score kept before suppression.
	Confidence float64
	// NMSThreshold is the IoU above which overlapping boxes are merged.
	NMSThreshold float64
	InputSize    int
}

// DefaultNeuralConfig returns the thresholds tuned for yolov3-tiny.
func DefaultNeuralConfig() NeuralConfig {
	return NeuralConfig{
		Target:       TargetLabel,
		Confidence:   0.3,
		NMSThreshold: 0.4,
		InputSize:    416,
	}
}

// NeuralDetector runs a Darknet YOLO network and keeps boxes of a single
// class.
type NeuralDetector struct {
	net          gocv.Net
	outputLayers []string
	classID      int
	config       NeuralConfig
	mu           sync.Mutex
	closed       bool
}

// NewNeuralDetector loads the network. Missing files, a names list without
// the target class, or a network OpenCV refuses all produce an error so the
// caller can fall back to the cascade.
func NewNeuralDetector(cfg NeuralConfig) (*NeuralDetector, error) {
	for _, p := range []string{cfg.WeightsPath, cfg.ConfigPath, cfg.NamesPath} {
		if p == "" {
			return nil, fmt.Errorf("yolo model: asset path not configured")
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("yolo model: %w", err)
		}
	}

	labels, err := LoadLabels(cfg.NamesPath)
	if err != nil {
		return nil, err
	}
	classID := labelIndex(labels, cfg.Target)
	if classID < 0 {
		return nil, fmt.Errorf("yolo model: class %q not in %s", cfg.Target, cfg.NamesPath)
	}

	net := gocv.ReadNetFromDarknet(cfg.ConfigPath, cfg.WeightsPath)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("yolo model: failed to load network")
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("yolo model: set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("yolo model: set target: %w", err)
	}

	names := net.GetLayerNames()
	var outputs []string
	for _, idx := range net.GetUnconnectedOutLayers() {
		// Layer ids are 1-based.
		if idx-1 >= 0 && idx-1 < len(names) {
			outputs = append(outputs, names[idx-1])
		}
	}
	if len(outputs) == 0 {
		net.Close()
		return nil, fmt.Errorf("yolo model: no output layers")
	}

	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultNeuralConfig().InputSize
	}

	return &NeuralDetector{
		net:          net,
		outputLayers: outputs,
		classID:      classID,
		config:       cfg,
	}, nil
}

// NeuralLoader adapts NewNeuralDetector for Choose.
func NeuralLoader(cfg NeuralConfig) Loader {
	return func() (Detector, error) {
		return NewNeuralDetector(cfg)
	}
}

// Detect runs one forward pass and returns target-class boxes after
// non-maximum suppression.
func (d *NeuralDetector) Detect(frame *gocv.Mat) ([]Candidate, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("detect: empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("detect: network closed")
	}

	size := d.config.InputSize
	blob := gocv.BlobFromImage(*frame, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	outs := d.net.ForwardLayers(d.outputLayers)
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()

	width, height := frame.Cols(), frame.Rows()
	var boxes []image.Rectangle
	var scores []float32

	for _, out := range outs {
		cols := out.Cols()
		if cols <= 5 {
			continue
		}
		row := make([]float32, cols)
		for i := 0; i < out.Rows(); i++ {
			for j := 0; j < cols; j++ {
				row[j] = out.GetFloatAt(i, j)
			}
			classID, score := argmax(row[5:])
			if classID != d.classID || float64(score) <= d.config.Confidence {
				continue
			}
			boxes = append(boxes, boxFromYOLO(row[0], row[1], row[2], row[3], width, height))
			scores = append(scores, score)
		}
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, float32(d.config.Confidence), float32(d.config.NMSThreshold))

	candidates := make([]Candidate, 0, len(keep))
	for _, i := range keep {
		candidates = append(candidates, Candidate{
			Rect:       boxes[i],
			Confidence: float64(scores[i]),
			Label:      d.config.Target,
		})
	}
	return candidates, nil
}

func (d *NeuralDetector) Name() string { return "yolo" }

func (d *NeuralDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}

// argmax returns the index and value of the highest score.
func argmax(scores []float32) (int, float32) {
	best, bestScore := -1, float32(0)
	for i, s := range scores {
		if best < 0 || s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore
}

// boxFromYOLO converts a normalized centre/size box to pixel coordinates.
func boxFromYOLO(cx, cy, w, h float32, width, height int) image.Rectangle {
	bw := int(w * float32(width))
	bh := int(h * float32(height))
	x := int(cx*float32(width)) - bw/2
	y := int(cy*float32(height)) - bh/2
	return image.Rect(x, y, x+bw, y+bh)
}
