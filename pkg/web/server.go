// Package web serves the Kinetic control API and live feeds: session
// control over REST, status/log/camera streams over WebSocket and
// Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-kinetic/internal/log"
	"github.com/teslashibe/go-kinetic/pkg/hub"
	"github.com/teslashibe/go-kinetic/pkg/kinetic"
	"github.com/teslashibe/go-kinetic/pkg/scenario"
)

// Controller is the session the server exposes. *kinetic.App satisfies it.
type Controller interface {
	Start(ctx context.Context, scenarioID string) error
	Stop() error
	Snapshot() kinetic.Snapshot
	Logs() []kinetic.LogEntry
	Scenarios() []scenario.Scenario
	Subscribe(fn func(kinetic.Update)) (cancel func())
}

// Offerer answers a browser's WebRTC offer. *rtcin.Receiver satisfies it.
type Offerer interface {
	HandleOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
}

// Config holds server options.
type Config struct {
	// Addr is the listen address, e.g. ":8090".
	Addr string

	// StaticDir, when set, is served at /.
	StaticDir string

	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler

	// RTC, when set, enables POST /api/rtc/offer.
	RTC Offerer
}

// LogEvent is one message on /ws/logs.
type LogEvent struct {
	Type  string            `json:"type"` // entry, cleared
	Entry *kinetic.LogEntry `json:"entry,omitempty"`
}

// Server is the HTTP front end.
type Server struct {
	app    *fiber.App
	cfg    Config
	ctrl   Controller
	logger *slog.Logger

	statusHub *hub.Hub
	logHub    *hub.Hub
	cameraHub *hub.Hub

	startOnce   sync.Once
	unsubscribe func()
}

// NewServer creates the server and its routes.
func NewServer(ctrl Controller, cfg Config) *Server {
	s := &Server{
		cfg:       cfg,
		ctrl:      ctrl,
		logger:    log.Component("web"),
		statusHub: hub.New("status"),
		logHub:    hub.New("logs"),
		cameraHub: hub.New("camera"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Kinetic",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/scenarios", s.handleScenarios)
	api.Get("/logs", s.handleLogs)
	api.Post("/session/start", s.handleStart)
	api.Post("/session/stop", s.handleStop)
	if cfg.RTC != nil {
		api.Post("/rtc/offer", s.handleOffer)
	}

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Run starts the hubs and forwards controller updates to them. Start
// calls it; tests that skip the listener call it directly.
func (s *Server) Run() {
	s.startOnce.Do(func() {
		go s.statusHub.Run()
		go s.logHub.Run()
		go s.cameraHub.Run()
		s.unsubscribe = s.ctrl.Subscribe(s.forward)
	})
}

// Start serves on cfg.Addr until Shutdown.
func (s *Server) Start() error {
	s.Run()
	s.logger.Info("web server listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// StartAsync runs Start in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server stopped", "error", err)
		}
	}()
}

// Shutdown stops the listener and the hubs.
func (s *Server) Shutdown() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.statusHub.Stop()
	s.logHub.Stop()
	s.cameraHub.Stop()
	return s.app.Shutdown()
}

// forward fans a controller update out to the matching hub.
func (s *Server) forward(u kinetic.Update) {
	switch u.Kind {
	case kinetic.UpdateStatus:
		if err := s.statusHub.BroadcastJSON(u.Status); err != nil {
			s.logger.Warn("encode status", "error", err)
		}
	case kinetic.UpdateLog:
		ev := LogEvent{Type: "entry"}
		if u.Cleared {
			ev.Type = "cleared"
		} else {
			entry := u.Log
			ev.Entry = &entry
		}
		if err := s.logHub.BroadcastJSON(ev); err != nil {
			s.logger.Warn("encode log", "error", err)
		}
	case kinetic.UpdateFrame:
		s.cameraHub.BroadcastBinary(u.Frame)
	}
}

func (s *Server) serve(h *hub.Hub, c *websocket.Conn, greet ...hub.Message) {
	client := hub.NewClient(h, c, greet...)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}

// handleStatusWS sends the current snapshot, then every change.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	data, err := json.Marshal(s.ctrl.Snapshot())
	if err != nil {
		s.logger.Warn("encode status", "error", err)
		c.Close()
		return
	}
	s.serve(s.statusHub, c, hub.NewJSONMessage(data))
}

// handleLogsWS replays the session log, then streams new entries.
func (s *Server) handleLogsWS(c *websocket.Conn) {
	entries := s.ctrl.Logs()
	greet := make([]hub.Message, 0, len(entries))
	for i := range entries {
		data, err := json.Marshal(LogEvent{Type: "entry", Entry: &entries[i]})
		if err != nil {
			continue
		}
		greet = append(greet, hub.NewJSONMessage(data))
	}
	s.serve(s.logHub, c, greet...)
}

// handleCameraWS streams the JPEG frames sent to the model.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	s.serve(s.cameraHub, c)
}
