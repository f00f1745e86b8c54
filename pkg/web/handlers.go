package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-kinetic/pkg/capture"
	"github.com/teslashibe/go-kinetic/pkg/kinetic"
	"github.com/teslashibe/go-kinetic/pkg/scenario"
)

// StartRequest is the body of POST /api/session/start.
type StartRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// handleStatus returns the current snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Snapshot())
}

// handleScenarios lists the scenarios a session can start with
func (s *Server) handleScenarios(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Scenarios())
}

// handleLogs returns the session log
func (s *Server) handleLogs(c *fiber.Ctx) error {
	logs := s.ctrl.Logs()
	if logs == nil {
		logs = []kinetic.LogEntry{}
	}
	return c.JSON(logs)
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	var req StartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := s.ctrl.Start(c.UserContext(), req.ScenarioID); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(s.ctrl.Snapshot())
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.ctrl.Stop(); err != nil {
		// The session is down either way; report what failed to release.
		s.logger.Warn("stop reported errors", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  err.Error(),
			"status": s.ctrl.Snapshot(),
		})
	}
	return c.JSON(s.ctrl.Snapshot())
}

// handleOffer answers a browser microphone offer
func (s *Server) handleOffer(c *fiber.Ctx) error {
	var offer webrtc.SessionDescription
	if err := c.BodyParser(&offer); err != nil || offer.SDP == "" {
		return fiber.NewError(fiber.StatusBadRequest, "invalid offer")
	}
	answer, err := s.cfg.RTC.HandleOffer(c.UserContext(), offer)
	if err != nil {
		s.logger.Warn("webrtc offer failed", "error", err)
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(answer)
}

// statusFor maps controller errors to HTTP status codes.
func statusFor(err error) int {
	var fe *fiber.Error
	var ce *kinetic.ConfigError
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &ce):
		return fiber.StatusBadRequest
	case errors.Is(err, scenario.ErrUnknown):
		return fiber.StatusNotFound
	case errors.Is(err, kinetic.ErrAlreadyRunning):
		return fiber.StatusConflict
	case errors.Is(err, capture.ErrPermissionDenied), errors.Is(err, capture.ErrNoDevice):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
