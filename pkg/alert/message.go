package alert

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-wayfinder/pkg/spatial"
)

// Message is one spoken alert. It is a value type with no identity.
type Message struct {
	Text       string
	Label      string
	Direction  spatial.Direction
	DistanceCM float64
}

// NewMessage builds the alert for a labelled estimate.
func NewMessage(label string, est spatial.Estimate) Message {
	return Message{
		Text:       FormatText(label, est.Direction, est.DistanceCM),
		Label:      label,
		Direction:  est.Direction,
		DistanceCM: est.DistanceCM,
	}
}

// TextMessage wraps free text, e.g. a manual announcement.
func TextMessage(text string) Message {
	return Message{Text: text}
}

// FormatText renders the spoken phrase.
func FormatText(label string, dir spatial.Direction, distanceCM float64) string {
	return fmt.Sprintf("%s %s, approximately %d centimeters away", label, dir, int(math.Round(distanceCM)))
}
