package yolo

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-wayfinder/pkg/vision/cv"
)

// findModelPath looks for the YOLO model relative to the test location
func findModelPath() string {
	candidates := []string{
		"models/yolov8n.onnx",
		"../../../models/yolov8n.onnx",
		filepath.Join(os.Getenv("HOME"), "models/yolov8n.onnx"),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty path", func(c *Config) { c.ModelPath = "" }},
		{"confidence above 1", func(c *Config) { c.MinConfidence = 1.5 }},
		{"zero nms", func(c *Config) { c.NMSThresh = 0 }},
		{"odd input size", func(c *Config) { c.InputSize = 500 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// TestNewInvalidPath tests error handling for missing model
func TestNewInvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	_, err := New(cfg, nil)
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}

// TestDetect_BlankImage runs the real model on a blank frame
func TestDetect_BlankImage(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YOLO model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath
	det, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer det.Close()

	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)

	frame, err := cv.NewJPEGCodec(80).Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer frame.Close()

	dets, err := det.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	for _, d := range dets {
		if !d.Valid() || d.Confidence < cfg.MinConfidence {
			t.Errorf("detection violates contract: %+v", d)
		}
	}
}
