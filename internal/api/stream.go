package api

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// terminal opens (or joins) the container's interactive session and streams
// its output as server-sent events until the process exits or the client
// goes away.
func (h *handler) terminal(c *fiber.Ctx) error {
	name := c.Params("name")
	s, reused, err := h.sessions.Open(c.UserContext(), name)
	if err != nil {
		return fail(c, name, err)
	}
	logger := h.logger.With().Str("name", name).Str("session_id", s.ID).Logger()
	logger.Debug().Bool("reused", reused).Msg("Terminal stream opened")

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	// The stream writer outlives the handler, so it must not touch c.
	ctx, cancel := context.WithCancel(h.baseCtx)
	lines := s.Subscribe(ctx)
	heartbeat := h.heartbeat
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		if err := writeEvent(w, "session", s.ID); err != nil {
			return
		}
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			var err error
			select {
			case line, ok := <-lines:
				if !ok {
					logger.Debug().Msg("Terminal stream ended")
					return
				}
				err = writeEvent(w, "", line)
			case <-ticker.C:
				err = writeComment(w, "ping")
			}
			if err != nil {
				logger.Debug().Err(err).Msg("Terminal client went away")
				return
			}
		}
	}))
	return nil
}

// writeEvent writes one SSE event and flushes it to the client.
func writeEvent(w *bufio.Writer, event, data string) error {
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	for _, part := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", part); err != nil {
			return err
		}
	}
	if _, err := w.WriteString("\n"); err != nil {
		return err
	}
	return w.Flush()
}

// writeComment writes an SSE comment line, which clients ignore.
func writeComment(w *bufio.Writer, text string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", text); err != nil {
		return err
	}
	return w.Flush()
}
