package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/services"
)

// defaultKeepaliveInterval paces SSE keepalive comments when the config
// carries none. Keepalives defeat idle-connection timeouts in proxies.
const defaultKeepaliveInterval = 15 * time.Second

// streamHandler handles GET /api/stream/:request_id. The stream replays
// persisted events past the client's Last-Event-ID, then follows live
// delivery until the terminal event. Disconnecting only detaches the
// subscriber; the job keeps running.
func (s *Server) streamHandler(c *echo.Context) error {
	requestID := c.Param("request_id")
	if s.deps.Broker == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event broker unavailable")
	}

	var lastEventID int64
	if raw := c.Request().Header.Get("Last-Event-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			lastEventID = id
		}
	}

	w := http.ResponseWriter(c.Response())
	flusher, ok := w.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	sub, err := s.deps.Broker.Subscribe(c.Request().Context(), requestID, lastEventID)
	if err != nil {
		// The stream protocol reports subscription failures in-band: SSE
		// clients auto-reconnect on HTTP errors, which would loop forever
		// on an unknown or expired request id.
		w.WriteHeader(http.StatusOK)
		writeFrame(w, flusher, 0, map[string]any{
			"event": "error",
			"error": subscribeErrorMessage(err),
			"stage": "subscribe",
		})
		return nil
	}
	defer sub.Close()

	w.WriteHeader(http.StatusOK)
	writeFrame(w, flusher, 0, map[string]any{
		"event":      "connected",
		"request_id": requestID,
	})

	keepalive := defaultKeepaliveInterval
	if s.brokerCfg != nil && s.brokerCfg.KeepaliveInterval > 0 {
		keepalive = s.brokerCfg.KeepaliveInterval
	}
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	clientGone := c.Request().Context().Done()
	for {
		select {
		case <-clientGone:
			return nil

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return nil
			}
			flusher.Flush()

		case event, ok := <-sub.Events():
			if !ok {
				// Terminal event delivered (or subscriber dropped).
				return nil
			}
			writeFrame(w, flusher, event.ID, streamFrame(event))
		}
	}
}

// streamFrame converts a persisted event into its wire shape.
func streamFrame(event models.Event) map[string]any {
	switch event.Kind {
	case events.KindStateDelta:
		frame := map[string]any{"node": event.Payload["node"]}
		if delta, ok := event.Payload["delta"]; ok {
			frame["state"] = delta
		}
		return frame

	case events.KindComplete:
		return map[string]any{
			"event": "complete",
			"state": event.Payload,
		}

	case events.KindError:
		return map[string]any{
			"event": "error",
			"error": event.Payload["error"],
			"stage": event.Payload["stage"],
		}

	default:
		frame := map[string]any{"event": event.Kind}
		for k, v := range event.Payload {
			frame[k] = v
		}
		return frame
	}
}

// writeFrame writes one SSE frame. The id line feeds the client's
// Last-Event-ID for resume; synthetic frames pass zero and carry none.
func writeFrame(w http.ResponseWriter, flusher http.Flusher, id int64, frame map[string]any) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal SSE frame", "error", err)
		return
	}
	if id > 0 {
		fmt.Fprintf(w, "id: %d\n", id)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func subscribeErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return "unknown request id"
	case errors.Is(err, services.ErrStreamExpired):
		return "stream has expired"
	default:
		slog.Error("Stream subscription failed", "error", err)
		return "subscription failed"
	}
}
