package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Limits holds the resources requested for a container at creation time.
type Limits struct {
	MemoryMB int64
	Disk     string
}

// CreateRequest is what the control plane sends to provision an instance.
type CreateRequest struct {
	Name   string
	Limits Limits
	Node   string
}

// StopResult reports whether a stop actually reached the runtime.
type StopResult struct {
	AlreadyStopped bool
}

var nameRegexp = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,63}$`)

func ValidateName(name string) error {
	if name == "" {
		return NewValidationError("name", "instance name is required")
	}
	if !nameRegexp.MatchString(name) {
		return NewValidationError("name", fmt.Sprintf("invalid instance name %q", name))
	}
	return nil
}

// ParseMemory accepts "512", "512MB" or "512M" and returns megabytes.
func ParseMemory(raw string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, "MB")
	s = strings.TrimSuffix(s, "M")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, NewValidationError("ram", "ram is required")
	}
	mb, err := strconv.ParseInt(s, 10, 64)
	if err != nil || mb <= 0 {
		return 0, NewValidationError("ram", fmt.Sprintf("invalid ram value %q", raw))
	}
	return mb, nil
}

func NewCreateRequest(name, ram, disk, node string) (CreateRequest, error) {
	if err := ValidateName(name); err != nil {
		return CreateRequest{}, err
	}
	mb, err := ParseMemory(ram)
	if err != nil {
		return CreateRequest{}, err
	}
	return CreateRequest{
		Name:   name,
		Limits: Limits{MemoryMB: mb, Disk: strings.TrimSpace(disk)},
		Node:   strings.TrimSpace(node),
	}, nil
}
