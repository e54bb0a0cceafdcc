// Package detect provides object detection types and the detector boundary
package detect

import (
	"context"
	"image"

	"github.com/teslashibe/go-wayfinder/pkg/vision"
)

// Detection is one object found in a frame, in pixel space.
type Detection struct {
	Label      string          // Class name, e.g. "person"
	ClassID    int             // Model class index
	Confidence float64         // 0-1
	Box        image.Rectangle // Min = (x1,y1), Max = (x2,y2)
}

// Width returns the box width in pixels
func (d Detection) Width() int {
	return d.Box.Dx()
}

// Valid reports whether the box honours x1<x2, y1<y2
func (d Detection) Valid() bool {
	return d.Box.Min.X < d.Box.Max.X && d.Box.Min.Y < d.Box.Max.Y
}

// Detector is the interface for object detection backends
type Detector interface {
	// Detect finds objects in the frame
	Detect(ctx context.Context, frame vision.Frame) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Filter keeps valid detections at or above minConfidence, optionally limited
// to the allowed labels (nil allows everything).
func Filter(dets []Detection, minConfidence float64, allowed map[string]bool) []Detection {
	out := dets[:0:0]
	for _, d := range dets {
		if !d.Valid() || d.Confidence < minConfidence {
			continue
		}
		if allowed != nil && !allowed[d.Label] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ClassName returns the COCO name for id, or "object" when out of range.
func ClassName(id int) string {
	if id < 0 || id >= len(COCOClasses) {
		return "object"
	}
	return COCOClasses[id]
}

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
