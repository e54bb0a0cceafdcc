// Package vision defines the frame, codec and overlay boundaries the pipeline
// talks to. Concrete OpenCV-backed implementations live in vision/cv.
package vision

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrEmptyFrame is returned when a payload decodes to an empty image.
var ErrEmptyFrame = errors.New("vision: empty frame")

// Frame is a decoded image. Callers must Close frames they own.
type Frame interface {
	Width() int
	Height() int
	Close() error
}

// Codec converts between compressed payloads and frames.
type Codec interface {
	Decode(data []byte) (Frame, error)
	Encode(f Frame) ([]byte, error)
}

// Overlay is one box and caption to draw onto a frame.
type Overlay struct {
	Box     image.Rectangle
	Caption string
}

// Annotator draws overlays. Annotate must not modify the input frame; it
// returns a new frame owned by the caller.
type Annotator interface {
	Annotate(f Frame, overlays []Overlay) (Frame, error)
}

// Caption renders the overlay text for a located object.
func Caption(label, direction string, distanceCM float64) string {
	return fmt.Sprintf("%s %s %dcm", label, direction, int(math.Round(distanceCM)))
}

// CaptionOrigin returns where the caption baseline goes for box, kept inside
// the top of the frame.
func CaptionOrigin(box image.Rectangle) image.Point {
	y := box.Min.Y - 10
	if y < 15 {
		y = 15
	}
	return image.Pt(box.Min.X, y)
}
