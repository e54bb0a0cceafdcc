// Package cv implements the vision boundaries on top of OpenCV (gocv).
package cv

import (
	"errors"
	"fmt"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-wayfinder/pkg/vision"
)

// ErrForeignFrame is returned when a frame did not come from this package.
var ErrForeignFrame = errors.New("cv: frame is not a gocv frame")

// MatFrame wraps a gocv.Mat as a vision.Frame.
type MatFrame struct {
	mat gocv.Mat
}

// NewMatFrame takes ownership of m.
func NewMatFrame(m gocv.Mat) *MatFrame {
	return &MatFrame{mat: m}
}

func (f *MatFrame) Width() int    { return f.mat.Cols() }
func (f *MatFrame) Height() int   { return f.mat.Rows() }
func (f *MatFrame) Mat() gocv.Mat { return f.mat }

// Close releases the underlying Mat.
func (f *MatFrame) Close() error {
	return f.mat.Close()
}

// AsMat extracts the Mat behind a frame produced by this package.
func AsMat(f vision.Frame) (gocv.Mat, error) {
	mf, ok := f.(interface{ Mat() gocv.Mat })
	if !ok {
		return gocv.Mat{}, ErrForeignFrame
	}
	return mf.Mat(), nil
}

// JPEGCodec decodes any format OpenCV reads and encodes JPEG.
type JPEGCodec struct {
	Quality int
}

// NewJPEGCodec returns a codec encoding at quality (1-100, default 80).
func NewJPEGCodec(quality int) *JPEGCodec {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &JPEGCodec{Quality: quality}
}

// Decode turns compressed image bytes into a frame.
func (c *JPEGCodec) Decode(data []byte) (vision.Frame, error) {
	if len(data) == 0 {
		return nil, vision.ErrEmptyFrame
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return nil, vision.ErrEmptyFrame
	}
	return NewMatFrame(img), nil
}

// Encode compresses a frame to JPEG.
func (c *JPEGCodec) Encode(f vision.Frame) ([]byte, error) {
	mat, err := AsMat(f)
	if err != nil {
		return nil, err
	}
	if mat.Empty() {
		return nil, vision.ErrEmptyFrame
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, c.Quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases C memory freed by Close.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// BoxAnnotator draws a rectangle and caption per overlay.
type BoxAnnotator struct {
	Color     color.RGBA
	Thickness int
	FontScale float64
}

// NewBoxAnnotator returns the default green box style.
func NewBoxAnnotator() *BoxAnnotator {
	return &BoxAnnotator{
		Color:     color.RGBA{0, 255, 0, 255},
		Thickness: 2,
		FontScale: 0.5,
	}
}

// Annotate draws onto a copy of f and returns it.
func (a *BoxAnnotator) Annotate(f vision.Frame, overlays []vision.Overlay) (vision.Frame, error) {
	src, err := AsMat(f)
	if err != nil {
		return nil, err
	}
	out := src.Clone()

	for _, o := range overlays {
		gocv.Rectangle(&out, o.Box, a.Color, a.Thickness)
		if o.Caption != "" {
			gocv.PutText(&out, o.Caption, vision.CaptionOrigin(o.Box), gocv.FontHersheySimplex, a.FontScale, a.Color, 1)
		}
	}
	return NewMatFrame(out), nil
}
