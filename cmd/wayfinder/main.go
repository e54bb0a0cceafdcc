// wayfinder: spoken obstacle alerts from a live camera stream.
// Clients stream JPEG frames over /ws/stream and receive annotated frames
// back while alerts are spoken on the host.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-wayfinder/internal/config"
	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/alert"
	"github.com/teslashibe/go-wayfinder/pkg/detect/yolo"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
	"github.com/teslashibe/go-wayfinder/pkg/spatial"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
	"github.com/teslashibe/go-wayfinder/pkg/vision/cv"
	"github.com/teslashibe/go-wayfinder/pkg/web"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Path to a YAML config file")
	addr       = flag.String("addr", "", "Listen address, overrides server.addr")
	model      = flag.String("model", "", "ONNX model path, overrides detector.model_path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

const (
	shutdownTimeout    = 5 * time.Second
	healthCheckTimeout = 5 * time.Second
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *model != "" {
		cfg.Detector.ModelPath = *model
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	log.Init(cfg.Log.Level, cfg.Log.Format)
	logger := log.L()

	fmt.Println()
	fmt.Println("🧭 Wayfinder v" + version)
	fmt.Println("   Spoken obstacle alerts from a camera stream")
	fmt.Println()

	detector, err := yolo.New(cfg.Detector, logger)
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	defer detector.Close()

	speaker, err := speech.New(cfg.Speech, logger)
	if err != nil {
		return fmt.Errorf("speech: %w", err)
	}
	if c, ok := speaker.(io.Closer); ok {
		defer c.Close()
	}
	checkCtx, cancelCheck := context.WithTimeout(context.Background(), healthCheckTimeout)
	if err := speech.Check(checkCtx, speaker); err != nil {
		logger.Warn("speech backend unhealthy, alerts may be silent", "backend", cfg.Speech.Backend, "error", err)
	}
	cancelCheck()

	metrics := pipeline.NewMetrics(256)

	dispatcher := alert.NewDispatcher(cfg.Dispatcher.Capacity, speaker, logger)
	dispatcher.SpeakTimeout = cfg.Speech.Timeout
	dispatcher.OnSpoken = func(_ alert.Message, took time.Duration, err error) {
		if err == nil {
			metrics.ObserveSpeech(took)
		}
	}

	publisher, err := events.New(cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer publisher.Close()

	viewers := hub.New("viewers", logger)

	server, err := web.New(cfg.Server, web.Options{
		Session: cfg.Pipeline(),
		Deps: pipeline.Deps{
			Detector:  detector,
			Codec:     cv.NewJPEGCodec(cfg.Codec.JPEGQuality),
			Annotator: cv.NewBoxAnnotator(),
			Estimator: spatial.NewEstimator(cfg.Spatial),
			Publisher: publisher,
			Metrics:   metrics,
			Logger:    logger,
		},
		Speech:  dispatcher,
		Viewers: viewers,
		Version: version,
	})
	if err != nil {
		return err
	}

	logger.Info("starting",
		"addr", cfg.Server.Addr,
		"model", cfg.Detector.ModelPath,
		"speech", cfg.Speech.Backend,
		"skip_policy", cfg.Session.SkipPolicy,
		"events", cfg.Events.Enabled,
	)
	fmt.Printf("   Stream:  ws://localhost%s/ws/stream\n", cfg.Server.Addr)
	fmt.Printf("   Viewer:  ws://localhost%s/ws/viewer\n", cfg.Server.Addr)
	fmt.Printf("   Health:  http://localhost%s/health\n", cfg.Server.Addr)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return viewers.Run(gctx) })
	g.Go(func() error {
		if err := server.Start(); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	st := dispatcher.Stats()
	logger.Info("stopped", "spoken", st.Spoken, "dropped", st.Dropped, "failed", st.Failed)
	fmt.Println("👋 Goodbye!")
	return nil
}
