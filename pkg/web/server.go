// Package web serves the wayfinder HTTP and websocket surface: the frame
// stream, the viewer feed, and the status API.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-wayfinder/pkg/alert"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
)

// Config holds listener settings.
type Config struct {
	Addr            string `mapstructure:"addr"`
	StaticDir       string `mapstructure:"static_dir"`
	MaxMessageBytes int64  `mapstructure:"max_message_bytes"`
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8001",
		MaxMessageBytes: 4 << 20,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("web: addr is required")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("web: max_message_bytes must be > 0, got %d", c.MaxMessageBytes)
	}
	return nil
}

// SpeechQueue is the shared alert queue as seen by the API.
type SpeechQueue interface {
	Enqueue(msg alert.Message) alert.Result
	Stats() alert.DispatcherStats
}

// Options wires the server to the pipeline.
type Options struct {
	Session pipeline.Config
	Deps    pipeline.Deps
	Speech  SpeechQueue
	Viewers *hub.Hub // optional
	Version string
}

// Server is the fiber app plus the registry of live sessions.
type Server struct {
	cfg     Config
	app     *fiber.App
	session pipeline.Config
	deps    pipeline.Deps
	speech  SpeechQueue
	viewers *hub.Hub
	metrics *pipeline.Metrics
	version string
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*pipeline.Session
}

// New builds the server and registers its routes.
func New(cfg Config, opts Options) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Session.Validate(); err != nil {
		return nil, err
	}
	if opts.Speech == nil {
		return nil, errors.New("web: speech queue is required")
	}

	deps := opts.Deps
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = pipeline.NewMetrics(0)
	}
	if deps.Alerts == nil {
		deps.Alerts = opts.Speech
	}
	if deps.Viewers == nil && opts.Viewers != nil {
		deps.Viewers = opts.Viewers
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		session:  opts.Session,
		deps:     deps,
		speech:   opts.Speech,
		viewers:  opts.Viewers,
		metrics:  deps.Metrics,
		version:  opts.Version,
		logger:   deps.Logger.With("component", "web"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*pipeline.Session),
	}

	app := fiber.New(fiber.Config{
		AppName:               "wayfinder",
		DisableStartupMessage: true,
		BodyLimit:             64 * 1024,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)
	app.Post("/tts", s.handleSpeak)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Get("/sessions", s.handleSessions)
	api.Get("/sessions/:id", s.handleSession)
	api.Post("/speak", s.handleSpeak)

	app.Use("/ws", hub.Upgrade)
	stream := websocket.New(s.handleStream)
	app.Get("/ws", stream)
	app.Get("/ws/stream", stream)
	if s.viewers != nil {
		app.Get("/ws/viewer", s.viewers.Handler())
	}

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown closes every session and then stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.app.ShutdownWithContext(ctx)
}
