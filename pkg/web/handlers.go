package web

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-wayfinder/pkg/alert"
)

// SpeakRequest is the body of POST /api/speak.
type SpeakRequest struct {
	Text string `json:"text"`
}

// handleSpeak queues free text on the shared speech queue.
func (s *Server) handleSpeak(c *fiber.Ctx) error {
	var req SpeakRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false})
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false})
	}

	if s.speech.Enqueue(alert.TextMessage(text)) == alert.Dropped {
		s.logger.Debug("speak request dropped", "text", text)
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"ok":  false,
			"msg": "speech queue full",
		})
	}
	if s.viewers != nil {
		s.viewers.BroadcastText(text)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) viewerCount() int {
	if s.viewers == nil {
		return 0
	}
	return s.viewers.ClientCount()
}

// eventCounts reports broker results for publishers that track them.
func (s *Server) eventCounts() (published, failed uint64) {
	type counter interface {
		Published() uint64
		Failed() uint64
	}
	if c, ok := s.deps.Publisher.(counter); ok {
		return c.Published(), c.Failed()
	}
	return 0, 0
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"version":  s.version,
		"sessions": s.SessionCount(),
	})
}

// handleStatus reports what is connected right now.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	sp := s.speech.Stats()
	return c.JSON(fiber.Map{
		"version":         s.version,
		"sessions":        s.SessionCount(),
		"viewers":         s.viewerCount(),
		"viewer_hub":      s.viewers != nil && s.viewers.IsRunning(),
		"speech_queued":   sp.Queued,
		"speech_capacity": sp.Capacity,
	})
}

// handleStats returns pipeline, speech, event and viewer counters.
func (s *Server) handleStats(c *fiber.Ctx) error {
	var dropped uint64
	if s.viewers != nil {
		dropped = s.viewers.Dropped()
	}
	published, failed := s.eventCounts()
	return c.JSON(fiber.Map{
		"pipeline": s.metrics.Snapshot(),
		"speech":   s.speech.Stats(),
		"events": fiber.Map{
			"published": published,
			"failed":    failed,
		},
		"viewers": fiber.Map{
			"connected": s.viewerCount(),
			"dropped":   dropped,
		},
	})
}

func (s *Server) handleSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sessions": s.Sessions(),
		"count":    s.SessionCount(),
	})
}

func (s *Server) handleSession(c *fiber.Ctx) error {
	st, ok := s.Session(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	return c.JSON(st)
}

// handleMetrics renders the Prometheus text exposition format.
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	m := s.metrics.Snapshot()
	sp := s.speech.Stats()
	published, failed := s.eventCounts()

	var b strings.Builder
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(&b, "# HELP wayfinder_%s %s\n# TYPE wayfinder_%s %s\nwayfinder_%s %v\n\n", name, help, name, kind, name, value)
	}

	metric("sessions_active", "gauge", "Connected stream sessions", m.SessionsActive)
	metric("sessions_total", "counter", "Stream sessions opened", m.SessionsTotal)
	metric("viewers", "gauge", "Connected viewers", s.viewerCount())
	metric("frames_received_total", "counter", "Frames received from clients", m.FramesReceived)
	metric("frames_processed_total", "counter", "Frames run through the detector", m.FramesProcessed)
	metric("frames_skipped_total", "counter", "Frames not admitted by the sampler", m.FramesSkipped)
	metric("frames_sent_total", "counter", "Frames sent back to clients", m.FramesSent)
	metric("decode_failures_total", "counter", "Frames that could not be decoded", m.DecodeFailures)
	metric("encode_failures_total", "counter", "Annotated frames that could not be encoded", m.EncodeFailures)
	metric("detector_errors_total", "counter", "Detector calls that failed", m.DetectorErrors)
	metric("detections_total", "counter", "Objects detected", m.Detections)
	metric("alerts_announced_total", "counter", "Alerts admitted by the deduplicator", m.AlertsAnnounced)
	metric("alerts_dropped_total", "counter", "Alerts dropped because the speech queue was full", m.AlertsDropped)
	metric("speech_queued", "gauge", "Messages waiting to be spoken", sp.Queued)
	metric("speech_spoken_total", "counter", "Messages spoken", sp.Spoken)
	metric("speech_failed_total", "counter", "Messages the speech sink failed on", sp.Failed)
	metric("speech_latency_p50_ms", "gauge", "Median time to speak one alert over the recent window", m.Speech.P50Ms)
	metric("speech_latency_p95_ms", "gauge", "95th percentile time to speak one alert over the recent window", m.Speech.P95Ms)
	metric("events_published_total", "counter", "Alert events acknowledged by the brokers", published)
	metric("events_failed_total", "counter", "Alert events that could not be written", failed)
	metric("inference_latency_p50_ms", "gauge", "Median detector latency over the recent window", m.Inference.P50Ms)
	metric("inference_latency_p95_ms", "gauge", "95th percentile detector latency over the recent window", m.Inference.P95Ms)
	metric("uptime_seconds", "gauge", "Seconds since start", m.UptimeSeconds)

	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(b.String())
}
