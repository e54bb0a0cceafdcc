// stream-client: streams a webcam or a directory of JPEGs to a wayfinder
// server and optionally saves the annotated frames it sends back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
)

var (
	server  = flag.String("server", "ws://localhost:8001/ws/stream", "Stream endpoint")
	camera  = flag.String("camera", "0", "Webcam index or capture URL")
	dir     = flag.String("dir", "", "Replay JPEG files from this directory instead of a camera")
	loop    = flag.Bool("loop", false, "Repeat the directory forever")
	outDir  = flag.String("out", "", "Save annotated replies to this directory")
	fps     = flag.Float64("fps", 10, "Frames per second to send")
	useText = flag.Bool("base64", false, "Send base64 text frames instead of binary")
	quality = flag.Int("quality", 80, "JPEG quality for camera frames")
	debug   = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level, "text")

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if *fps <= 0 {
		return fmt.Errorf("fps must be positive")
	}

	var src source
	var err error
	if *dir != "" {
		src, err = openDir(*dir, *loop)
	} else {
		src, err = openCamera(*camera, *quality)
	}
	if err != nil {
		return err
	}
	defer src.Close()

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			return err
		}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.Dial(*server, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", *server, err)
	}
	defer ws.Close()
	log.Info("connected", "server", *server, "fps", *fps, "base64", *useText)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sent, received atomic.Uint64
	g, gctx := errgroup.WithContext(ctx)
	// Force the reader out if the server never answers our close frame.
	context.AfterFunc(gctx, func() {
		time.AfterFunc(2*time.Second, func() { ws.Close() })
	})

	g.Go(func() error {
		defer func() {
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		}()

		ticker := time.NewTicker(time.Duration(float64(time.Second) / *fps))
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}

			img, err := src.Next()
			if errors.Is(err, io.EOF) {
				log.Info("source exhausted", "sent", sent.Load())
				// Give the server a moment to answer the last frame.
				time.Sleep(500 * time.Millisecond)
				return nil
			}
			if err != nil {
				return err
			}

			msg := pipeline.EncodePayload(img, pipeline.Wire{Text: *useText})
			typ := websocket.BinaryMessage
			if msg.Text {
				typ = websocket.TextMessage
			}
			if err := ws.WriteMessage(typ, msg.Data); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			sent.Add(1)
		}
	})

	g.Go(func() error {
		for {
			typ, data, err := ws.ReadMessage()
			if err != nil {
				if gctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return fmt.Errorf("receive: %w", err)
			}
			n := received.Add(1)

			img, _, err := pipeline.DecodePayload(pipeline.Message{Data: data, Text: typ == websocket.TextMessage})
			if err != nil {
				log.Warn("bad reply", "error", err)
				continue
			}
			log.Debug("reply", "n", n, "bytes", len(img))
			if *outDir == "" {
				continue
			}
			path := filepath.Join(*outDir, fmt.Sprintf("frame-%06d.jpg", n))
			if err := os.WriteFile(path, img, 0o644); err != nil {
				return err
			}
		}
	})

	err = g.Wait()
	log.Info("done", "sent", sent.Load(), "received", received.Load())
	return err
}
