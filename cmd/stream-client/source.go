package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-wayfinder/pkg/vision/cv"
)

// source yields JPEG frames. Next returns io.EOF when exhausted.
type source interface {
	Next() ([]byte, error)
	Close() error
}

// cameraSource grabs frames from a webcam index or a stream URL.
type cameraSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	codec   *cv.JPEGCodec
}

func openCamera(device string, quality int) (*cameraSource, error) {
	var id any = device
	if n, err := strconv.Atoi(device); err == nil {
		id = n
	}
	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("camera %s is not opened", device)
	}
	return &cameraSource{
		capture: capture,
		mat:     gocv.NewMat(),
		codec:   cv.NewJPEGCodec(quality),
	}, nil
}

func (s *cameraSource) Next() ([]byte, error) {
	if ok := s.capture.Read(&s.mat); !ok {
		return nil, io.EOF
	}
	if s.mat.Empty() {
		return nil, errors.New("camera returned an empty frame")
	}
	// The frame wraps the reusable mat, so it is not closed here.
	return s.codec.Encode(cv.NewMatFrame(s.mat))
}

func (s *cameraSource) Close() error {
	s.mat.Close()
	return s.capture.Close()
}

// dirSource replays the JPEG files of a directory in name order.
type dirSource struct {
	files []string
	next  int
	loop  bool
}

func openDir(dir string, loop bool) (*dirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".jpg" && ext != ".jpeg") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .jpg files in %s", dir)
	}
	sort.Strings(files)
	return &dirSource{files: files, loop: loop}, nil
}

func (s *dirSource) Next() ([]byte, error) {
	if s.next == len(s.files) {
		if !s.loop {
			return nil, io.EOF
		}
		s.next = 0
	}
	path := s.files[s.next]
	s.next++
	return os.ReadFile(path)
}

func (s *dirSource) Close() error { return nil }
