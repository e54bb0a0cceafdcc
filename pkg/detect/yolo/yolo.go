// Package yolo runs YOLOv8 ONNX models through OpenCV's DNN module.
package yolo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-wayfinder/pkg/detect"
	"github.com/teslashibe/go-wayfinder/pkg/vision"
	"github.com/teslashibe/go-wayfinder/pkg/vision/cv"
)

// ErrModelNotFound is returned when the ONNX file does not exist.
var ErrModelNotFound = errors.New("yolo: model file not found")

// Config holds YOLO detector configuration
type Config struct {
	ModelPath     string  `mapstructure:"model_path"`
	MinConfidence float64 `mapstructure:"confidence"`
	NMSThresh     float64 `mapstructure:"nms"`
	InputSize     int     `mapstructure:"input_size"`
}

// DefaultConfig returns defaults for YOLOv8n
func DefaultConfig() Config {
	return Config{
		ModelPath:     "models/yolov8n.onnx",
		MinConfidence: 0.35,
		NMSThresh:     0.45,
		InputSize:     640,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("yolo: model_path is required")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("yolo: confidence must be within [0,1], got %v", c.MinConfidence)
	}
	if c.NMSThresh <= 0 || c.NMSThresh > 1 {
		return fmt.Errorf("yolo: nms must be within (0,1], got %v", c.NMSThresh)
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		return fmt.Errorf("yolo: input_size must be a positive multiple of 32, got %d", c.InputSize)
	}
	return nil
}

// Detector uses YOLOv8 for general object detection. The DNN net is not safe
// for concurrent use, so inference is serialized.
type Detector struct {
	net    gocv.Net
	cfg    Config
	mu     sync.Mutex
	logger *slog.Logger
}

// New loads the model at cfg.ModelPath.
func New(cfg Config, logger *slog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("yolo: failed to load model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		net:    net,
		cfg:    cfg,
		logger: logger.With("component", "yolo"),
	}, nil
}

// Detect finds objects in the frame, in frame pixel coordinates.
func (d *Detector) Detect(ctx context.Context, frame vision.Frame) ([]detect.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := cv.AsMat(frame)
	if err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, vision.ErrEmptyFrame
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	size := image.Pt(d.cfg.InputSize, d.cfg.InputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dets, err := d.parse(output, img.Cols(), img.Rows())
	if err != nil {
		return nil, err
	}
	if len(dets) > 0 {
		d.logger.Debug("objects detected", "count", len(dets))
	}
	return dets, nil
}

// parse decodes a [1, 4+classes, anchors] YOLOv8 output tensor.
func (d *Detector) parse(output gocv.Mat, imgW, imgH int) ([]detect.Detection, error) {
	sizes := output.Size()
	if len(sizes) != 3 || sizes[1] <= 4 {
		return nil, fmt.Errorf("yolo: unexpected output shape %v", sizes)
	}
	features, anchors := sizes[1], sizes[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("yolo: read output: %w", err)
	}

	scaleX := float32(imgW) / float32(d.cfg.InputSize)
	scaleY := float32(imgH) / float32(d.cfg.InputSize)
	minConf := float32(d.cfg.MinConfidence)

	var boxes []image.Rectangle
	var scores []float32
	var classIDs []int

	for i := 0; i < anchors; i++ {
		best, bestID := float32(0), 0
		for c := 4; c < features; c++ {
			if s := data[c*anchors+i]; s > best {
				best, bestID = s, c-4
			}
		}
		if best < minConf {
			continue
		}

		cx, cy := data[i], data[anchors+i]
		w, h := data[2*anchors+i], data[3*anchors+i]

		box := image.Rect(
			int((cx-w/2)*scaleX), int((cy-h/2)*scaleY),
			int((cx+w/2)*scaleX), int((cy+h/2)*scaleY),
		).Intersect(image.Rect(0, 0, imgW, imgH))
		if box.Empty() {
			continue
		}

		boxes = append(boxes, box)
		scores = append(scores, best)
		classIDs = append(classIDs, bestID)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, minConf, float32(d.cfg.NMSThresh))
	dets := make([]detect.Detection, 0, len(keep))
	for _, idx := range keep {
		dets = append(dets, detect.Detection{
			Label:      detect.ClassName(classIDs[idx]),
			ClassID:    classIDs[idx],
			Confidence: float64(scores[idx]),
			Box:        boxes[idx],
		})
	}
	return detect.Filter(dets, d.cfg.MinConfidence, nil), nil
}

// Close releases the detector resources
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
