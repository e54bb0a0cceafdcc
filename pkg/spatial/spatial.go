// Package spatial turns a detection bounding box into a coarse direction and an
// approximate distance using the pinhole-camera width relation.
package spatial

import (
	"errors"
	"fmt"
	"image"
)

// Direction is the horizontal position of an object relative to the frame centre.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
	Ahead Direction = "ahead"
)

// TieBreak controls how boxes touching the centre line are classified.
type TieBreak string

const (
	// TieAhead keeps any box touching or straddling the centre "ahead".
	TieAhead TieBreak = "ahead"
	// TieSide assigns a box whose edge sits exactly on the centre to that side.
	TieSide TieBreak = "side"
)

// Estimate is the spatial reading for one detection.
type Estimate struct {
	Direction  Direction
	DistanceCM float64
	PixelWidth int
}

// Config holds the estimator calibration. Distances are in centimetres.
type Config struct {
	FocalLength   float64            `mapstructure:"focal_length"`    // Single calibrated focal length in pixels
	DefaultWidth  float64            `mapstructure:"default_width"`   // Real width for labels missing from Widths
	MinReliablePx int                `mapstructure:"min_reliable_px"` // Narrower boxes give no estimate
	MinDistance   float64            `mapstructure:"min_distance"`
	MaxDistance   float64            `mapstructure:"max_distance"`
	TieBreak      TieBreak           `mapstructure:"tie_break"`
	Widths        map[string]float64 `mapstructure:"widths"` // label -> real-world width
}

// DefaultWidths is the built-in real-world width table for common COCO labels.
func DefaultWidths() map[string]float64 {
	return map[string]float64{
		"person":        50,
		"bicycle":       60,
		"car":           180,
		"motorcycle":    80,
		"bus":           250,
		"truck":         250,
		"traffic light": 30,
		"fire hydrant":  30,
		"stop sign":     75,
		"bench":         150,
		"dog":           40,
		"cat":           25,
		"backpack":      30,
		"suitcase":      45,
		"bottle":        8,
		"cup":           8,
		"chair":         45,
		"couch":         200,
		"potted plant":  30,
		"bed":           160,
		"dining table":  120,
		"tv":            90,
		"laptop":        35,
		"cell phone":    7,
		"book":          15,
		"refrigerator":  75,
	}
}

// DefaultConfig returns the calibration used by the reference webcam setup.
func DefaultConfig() Config {
	return Config{
		FocalLength:   650,
		DefaultWidth:  20,
		MinReliablePx: 10,
		MinDistance:   30,
		MaxDistance:   400,
		TieBreak:      TieAhead,
		Widths:        DefaultWidths(),
	}
}

// Validate checks the calibration for values that would break the estimate.
func (c Config) Validate() error {
	if c.FocalLength <= 0 {
		return errors.New("spatial: focal length must be positive")
	}
	if c.DefaultWidth <= 0 {
		return errors.New("spatial: default width must be positive")
	}
	if c.MinReliablePx < 1 {
		return errors.New("spatial: min reliable pixel width must be at least 1")
	}
	if c.MinDistance <= 0 || c.MaxDistance < c.MinDistance {
		return fmt.Errorf("spatial: invalid distance bounds [%v, %v]", c.MinDistance, c.MaxDistance)
	}
	switch c.TieBreak {
	case TieAhead, TieSide:
	default:
		return fmt.Errorf("spatial: unknown tie break %q", c.TieBreak)
	}
	for label, w := range c.Widths {
		if w <= 0 {
			return fmt.Errorf("spatial: width for %q must be positive", label)
		}
	}
	return nil
}

// Estimator computes spatial estimates. It has no mutable state and is safe for
// concurrent use.
type Estimator struct {
	cfg Config
}

// NewEstimator creates an estimator. Missing widths fall back to DefaultWidth.
func NewEstimator(cfg Config) *Estimator {
	return &Estimator{cfg: cfg}
}

// Config returns the estimator calibration.
func (e *Estimator) Config() Config {
	return e.cfg
}

// Estimate returns the direction and distance for box in a frame frameWidth
// pixels wide. ok is false when the box is too narrow to trust; callers must
// skip such detections entirely.
func (e *Estimator) Estimate(box image.Rectangle, label string, frameWidth int) (est Estimate, ok bool) {
	px := box.Max.X - box.Min.X
	if px < e.cfg.MinReliablePx {
		return Estimate{}, false
	}

	return Estimate{
		Direction:  e.Direction(box, frameWidth/2),
		DistanceCM: e.Distance(label, px),
		PixelWidth: px,
	}, true
}

// RealWidth returns the real-world width for label.
func (e *Estimator) RealWidth(label string) float64 {
	if w, ok := e.cfg.Widths[label]; ok {
		return w
	}
	return e.cfg.DefaultWidth
}

// Distance converts a pixel width into a clamped distance. pixelWidth must be
// positive.
func (e *Estimator) Distance(label string, pixelWidth int) float64 {
	d := e.RealWidth(label) * e.cfg.FocalLength / float64(pixelWidth)
	return Clamp(d, e.cfg.MinDistance, e.cfg.MaxDistance)
}

// Direction classifies box against the centre column.
func (e *Estimator) Direction(box image.Rectangle, center int) Direction {
	x1, x2 := box.Min.X, box.Max.X

	if e.cfg.TieBreak == TieSide {
		switch {
		case x2 <= center:
			return Left
		case x1 >= center:
			return Right
		default:
			return Ahead
		}
	}

	switch {
	case x2 < center:
		return Left
	case x1 > center:
		return Right
	default:
		return Ahead
	}
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Proximity returns a human-readable distance category.
func Proximity(distanceCM float64) string {
	switch {
	case distanceCM <= 0:
		return "unknown"
	case distanceCM < 50:
		return "very close"
	case distanceCM < 100:
		return "close"
	case distanceCM < 200:
		return "nearby"
	default:
		return "far"
	}
}
