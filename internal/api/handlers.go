package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/domain"
)

type handler struct {
	baseCtx   context.Context
	node      string
	lc        lifecycle
	sessions  sessionStore
	heartbeat time.Duration
	logger    zerolog.Logger
}

type createBody struct {
	Name string `json:"name"`
	Ram  string `json:"ram"`
	Disk string `json:"disk"`
	Node string `json:"node"`
}

type nameBody struct {
	Name      string `json:"name"`
	Suspended bool   `json:"suspended"`
}

type inputBody struct {
	Command string `json:"command"`
}

// bindBody parses the JSON body and checks that name is present. Failures
// are rendered by the error handler.
func bindBody(c *fiber.Ctx, out any, name *string) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body.")
	}
	*name = strings.TrimSpace(*name)
	if *name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Instance name is required.")
	}
	return nil
}

func (h *handler) create(c *fiber.Ctx) error {
	var body createBody
	if err := bindBody(c, &body, &body.Name); err != nil {
		return err
	}
	if strings.TrimSpace(body.Ram) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "RAM is required.")
	}
	req, err := domain.NewCreateRequest(body.Name, body.Ram, body.Disk, body.Node)
	if err != nil {
		return fail(c, body.Name, err)
	}
	if err := h.lc.Create(c.UserContext(), req); err != nil {
		return fail(c, req.Name, err)
	}
	return success(c, fiber.StatusCreated, "Container %s created successfully!", req.Name)
}

func (h *handler) status(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Instance name is required.")
	}
	st, err := h.lc.Status(name)
	if err != nil {
		return fail(c, name, err)
	}
	return c.JSON(response{Status: statusSuccess, InstanceStatus: st})
}

func (h *handler) start(c *fiber.Ctx) error {
	var body nameBody
	if err := bindBody(c, &body, &body.Name); err != nil {
		return err
	}
	if err := h.lc.Start(c.UserContext(), body.Name, body.Suspended); err != nil {
		return fail(c, body.Name, err)
	}
	return success(c, fiber.StatusOK, "Container %s started successfully!", body.Name)
}

func (h *handler) stop(c *fiber.Ctx) error {
	var body nameBody
	if err := bindBody(c, &body, &body.Name); err != nil {
		return err
	}
	res, err := h.lc.Stop(c.UserContext(), body.Name)
	var rErr *domain.RuntimeError
	switch {
	case errors.As(err, &rErr):
		return failure(c, fiber.StatusInternalServerError, "Failed to stop the container: "+rErr.Error())
	case err != nil:
		return fail(c, body.Name, err)
	case res.AlreadyStopped:
		return success(c, fiber.StatusOK, "Container %s is already stopped.", body.Name)
	}
	return success(c, fiber.StatusOK, "Container %s stopped successfully!", body.Name)
}

func (h *handler) destroy(c *fiber.Ctx) error {
	var body nameBody
	if err := bindBody(c, &body, &body.Name); err != nil {
		return err
	}
	if err := h.lc.Destroy(c.UserContext(), body.Name); err != nil {
		return fail(c, body.Name, err)
	}
	return success(c, fiber.StatusOK, "Container %s deleted successfully!", body.Name)
}

func (h *handler) terminalInput(c *fiber.Ctx) error {
	name := c.Params("name")
	var body inputBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body.")
	}
	if body.Command == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Command is required.")
	}
	s, ok := h.sessions.Get(name)
	if !ok {
		return failure(c, fiber.StatusNotFound, "No open terminal session.")
	}
	cmd := body.Command
	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	if _, err := s.Write([]byte(cmd)); err != nil {
		return failure(c, fiber.StatusInternalServerError, "Failed to send command: "+err.Error())
	}
	return success(c, fiber.StatusAccepted, "Command sent.")
}

func (h *handler) instances(c *fiber.Ctx) error {
	entries := h.lc.Instances()
	views := make([]instanceView, 0, len(entries))
	for _, e := range entries {
		views = append(views, instanceView{Name: e.Name, State: e.State, LastUpdated: e.LastUpdated})
	}
	return c.JSON(instancesResponse{Status: statusSuccess, Instances: views})
}

func (h *handler) healthz(c *fiber.Ctx) error {
	return c.JSON(healthView{
		Status:    statusSuccess,
		Node:      h.node,
		Driver:    h.lc.Driver(),
		Instances: len(h.lc.Instances()),
		Sessions:  h.sessions.Len(),
	})
}
