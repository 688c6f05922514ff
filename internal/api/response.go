package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/auto-dns/nodehostd/internal/domain"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type response struct {
	Status         string       `json:"status"`
	Message        string       `json:"message,omitempty"`
	InstanceStatus domain.State `json:"instance_status,omitempty"`
}

type instancesResponse struct {
	Status    string         `json:"status"`
	Instances []instanceView `json:"instances"`
}

type instanceView struct {
	Name        string       `json:"name"`
	State       domain.State `json:"state"`
	LastUpdated time.Time    `json:"last_updated"`
}

type healthView struct {
	Status    string `json:"status"`
	Node      string `json:"node"`
	Driver    string `json:"driver"`
	Instances int    `json:"instances"`
	Sessions  int    `json:"sessions"`
}

func success(c *fiber.Ctx, code int, format string, args ...any) error {
	return c.Status(code).JSON(response{Status: statusSuccess, Message: fmt.Sprintf(format, args...)})
}

func failure(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(response{Status: statusError, Message: message})
}

// fail maps a domain error to a status code and a message the control plane
// can show to its user.
func fail(c *fiber.Ctx, name string, err error) error {
	var vErr *domain.ValidationError
	var rErr *domain.RuntimeError
	switch {
	case errors.As(err, &vErr):
		return failure(c, fiber.StatusBadRequest, vErr.Message)
	case errors.Is(err, domain.ErrNotFound):
		return failure(c, fiber.StatusNotFound, "Instance not found.")
	case errors.Is(err, domain.ErrNotRunning):
		return failure(c, fiber.StatusBadRequest, fmt.Sprintf("Container %s must be running.", name))
	case errors.Is(err, domain.ErrSuspended):
		return failure(c, fiber.StatusForbidden, fmt.Sprintf("Instance %s is suspended.", name))
	case errors.Is(err, domain.ErrAlreadyExists):
		return failure(c, fiber.StatusConflict, fmt.Sprintf("Container %s already exists.", name))
	case errors.As(err, &rErr):
		return failure(c, fiber.StatusInternalServerError, rErr.Error())
	default:
		return failure(c, fiber.StatusInternalServerError, "An unexpected error occurred: "+err.Error())
	}
}
