// Package api exposes the node daemon over HTTP to the control plane.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/config"
	"github.com/auto-dns/nodehostd/internal/metrics"
)

const (
	shutdownTimeout = 10 * time.Second
	// heartbeatInterval paces SSE comments on idle terminal streams so a
	// vanished client is noticed without waiting for output.
	heartbeatInterval = 15 * time.Second
)

type Server struct {
	app    *fiber.App
	h      *handler
	addr   string
	logger zerolog.Logger
}

// NewServer builds the fiber app. baseCtx bounds the lifetime of terminal
// streams.
func NewServer(baseCtx context.Context, cfg *config.AppConfig, lc lifecycle, sessions sessionStore, m *metrics.Metrics, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()
	app := fiber.New(fiber.Config{
		AppName:               "nodehostd",
		DisableStartupMessage: true,
		// Names from params and bodies become registry and cache keys that
		// outlive the request.
		Immutable:    true,
		ErrorHandler: errorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestLogger(logger))

	h := &handler{
		baseCtx:   baseCtx,
		node:      cfg.NodeName,
		lc:        lc,
		sessions:  sessions,
		heartbeat: heartbeatInterval,
		logger:    logger,
	}
	app.Post("/create", h.create)
	app.Get("/status", h.status)
	app.Post("/start", h.start)
	app.Post("/stop", h.stop)
	app.Post("/delete", h.destroy)
	app.Post("/terminal/:name", h.terminal)
	app.Post("/terminal/:name/input", h.terminalInput)
	app.Get("/instances", h.instances)
	app.Get("/healthz", h.healthz)
	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	return &Server{app: app, h: h, addr: cfg.ListenAddr, logger: logger}
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("HTTP server listening")
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info().Msg("HTTP server shutting down")
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	return <-errCh
}

func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		started := time.Now()
		err := c.Next()
		logger.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("took", time.Since(started)).
			Msg("Request handled")
		return err
	}
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		} else {
			logger.Error().Err(err).Str("path", c.Path()).Msg("Unhandled request error")
		}
		return c.Status(code).JSON(response{Status: statusError, Message: err.Error()})
	}
}
