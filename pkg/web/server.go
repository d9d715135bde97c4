// Package web serves the assistant's local status API and event stream.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-assistant/pkg/audio"
	"github.com/teslashibe/go-assistant/pkg/health"
	"github.com/teslashibe/go-assistant/pkg/hub"
	"github.com/teslashibe/go-assistant/pkg/session"
	"github.com/teslashibe/go-assistant/pkg/supervisor"
)

// ShutdownTimeout bounds how long in-flight requests may take on shutdown.
const ShutdownTimeout = 5 * time.Second

// Status is the assistant state reported by GET /api/status.
type Status struct {
	Enabled        bool              `json:"enabled"`
	DisabledReason string            `json:"disabled_reason,omitempty"`
	SpeakerName    string            `json:"speaker_name"`
	Speaker        supervisor.Health `json:"speaker"`
	Busy           bool              `json:"busy"`
	Current        *session.Session  `json:"current,omitempty"`
	LastSession    *session.Session  `json:"last_session,omitempty"`
	Health         health.Report     `json:"health"`
	Model          string            `json:"model"`
	APIKey         string            `json:"api_key,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	Uptime         string            `json:"uptime"`
}

// Backend is what the server exposes.
type Backend interface {
	Status() Status
	Sessions() []session.Session
	// Trigger requests a session and reports whether it was accepted.
	Trigger(source string) bool
	Speak(ctx context.Context, text string, route audio.Route) bool
}

// Server is the status HTTP server.
type Server struct {
	app     *fiber.App
	addr    string
	backend Backend
	events  *hub.Hub
	logger  *slog.Logger
}

// NewServer creates a server on addr. metrics may be nil.
func NewServer(addr string, backend Backend, events *hub.Hub, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:    addr,
		backend: backend,
		events:  events,
		logger:  logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-assistant",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/sessions", s.handleSessions)
	api.Post("/trigger", s.handleTrigger)
	api.Post("/speak", s.handleSpeak)

	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()
	s.logger.Info("status server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	if err := s.app.ShutdownWithTimeout(ShutdownTimeout); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
