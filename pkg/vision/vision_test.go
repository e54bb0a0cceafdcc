package vision

import (
	"image"
	"testing"
)

func TestCaption(t *testing.T) {
	tests := []struct {
		label, dir string
		dist       float64
		want       string
	}{
		{"person", "left", 400, "person left 400cm"},
		{"dog", "ahead", 122.6, "dog ahead 123cm"},
		{"traffic light", "right", 30, "traffic light right 30cm"},
	}
	for _, tt := range tests {
		if got := Caption(tt.label, tt.dir, tt.dist); got != tt.want {
			t.Errorf("Caption(%q, %q, %v) = %q, want %q", tt.label, tt.dir, tt.dist, got, tt.want)
		}
	}
}

func TestCaptionOrigin(t *testing.T) {
	tests := []struct {
		box  image.Rectangle
		want image.Point
	}{
		{image.Rect(100, 200, 150, 300), image.Pt(100, 190)},
		{image.Rect(10, 20, 50, 60), image.Pt(10, 15)},
		{image.Rect(10, 0, 50, 60), image.Pt(10, 15)},
		{image.Rect(10, 25, 50, 60), image.Pt(10, 15)},
		{image.Rect(10, 26, 50, 60), image.Pt(10, 16)},
	}
	for _, tt := range tests {
		if got := CaptionOrigin(tt.box); got != tt.want {
			t.Errorf("CaptionOrigin(%v) = %v, want %v", tt.box, got, tt.want)
		}
	}
}
