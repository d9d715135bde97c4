package web

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-assistant/pkg/audio"
	"github.com/teslashibe/go-assistant/pkg/hub"
)

// SourceAPI marks sessions requested over HTTP.
const SourceAPI = "api"

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.backend.Status())
}

func (s *Server) handleSessions(c *fiber.Ctx) error {
	return c.JSON(s.backend.Sessions())
}

func (s *Server) handleTrigger(c *fiber.Ctx) error {
	if !s.backend.Trigger(SourceAPI) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"accepted": false,
			"error":    "a session is already pending or running",
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

// SpeakRequest is the body of POST /api/speak.
type SpeakRequest struct {
	Text  string `json:"text"`
	Route string `json:"route"` // "bluetooth" (default) or "local"
}

func (s *Server) handleSpeak(c *fiber.Ctx) error {
	var req SpeakRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text is required"})
	}

	route, ok := parseRoute(req.Route)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown route " + req.Route})
	}

	spoken := s.backend.Speak(c.UserContext(), req.Text, route)
	status := fiber.StatusOK
	if !spoken {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{"spoken": spoken, "route": route.String()})
}

func parseRoute(v string) (audio.Route, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "bluetooth", "bt":
		return audio.RouteBluetooth, true
	case "local":
		return audio.RouteLocal, true
	default:
		return 0, false
	}
}

// handleEventsWS sends the current status, then every published event.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	greeting, err := hub.NewEvent(hub.EventStatus, s.backend.Status())
	if err != nil {
		s.logger.Warn("encode status", "error", err)
		c.Close()
		return
	}
	s.events.Serve(c, greeting)
}
