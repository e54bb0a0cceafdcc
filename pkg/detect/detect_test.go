package detect

import (
	"image"
	"testing"
)

func TestDetection_Valid(t *testing.T) {
	tests := []struct {
		name string
		box  image.Rectangle
		want bool
	}{
		{"normal", image.Rectangle{Min: image.Pt(10, 10), Max: image.Pt(50, 80)}, true},
		{"zero width", image.Rectangle{Min: image.Pt(10, 10), Max: image.Pt(10, 80)}, false},
		{"inverted", image.Rectangle{Min: image.Pt(50, 10), Max: image.Pt(10, 80)}, false},
		{"zero height", image.Rectangle{Min: image.Pt(10, 10), Max: image.Pt(50, 10)}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Detection{Box: tc.box}
			if got := d.Valid(); got != tc.want {
				t.Errorf("Valid: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	dets := []Detection{
		{Label: "person", Confidence: 0.9, Box: image.Rect(0, 0, 10, 10)},
		{Label: "person", Confidence: 0.2, Box: image.Rect(0, 0, 10, 10)},
		{Label: "dog", Confidence: 0.5, Box: image.Rect(0, 0, 10, 10)},
		{Label: "car", Confidence: 0.99, Box: image.Rectangle{Min: image.Pt(5, 5), Max: image.Pt(5, 9)}},
	}

	got := Filter(dets, 0.35, nil)
	if len(got) != 2 {
		t.Fatalf("Filter: got %d detections, want 2", len(got))
	}

	got = Filter(dets, 0.35, map[string]bool{"dog": true})
	if len(got) != 1 || got[0].Label != "dog" {
		t.Errorf("Filter with allow list: got %+v", got)
	}

	if len(dets) != 4 || dets[1].Confidence != 0.2 {
		t.Error("Filter must not modify its input")
	}
}

func TestClassName(t *testing.T) {
	if len(COCOClasses) != 80 {
		t.Fatalf("expected 80 COCO classes, got %d", len(COCOClasses))
	}
	if ClassName(0) != "person" {
		t.Errorf("ClassName(0) = %q", ClassName(0))
	}
	if ClassName(-1) != "object" || ClassName(80) != "object" {
		t.Error("out of range ids should map to \"object\"")
	}
}
