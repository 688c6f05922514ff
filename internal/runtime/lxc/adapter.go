//go:build unix

// Package lxc implements the runtime adapter by invoking the lxc-* tools.
package lxc

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/auto-dns/nodehostd/internal/config"
	"github.com/auto-dns/nodehostd/internal/domain"
	"github.com/auto-dns/nodehostd/internal/runtime"
	"github.com/auto-dns/nodehostd/internal/util"
	"github.com/rs/zerolog"
)

// commandRunner runs a tool to completion and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Adapter struct {
	cfg    *config.LxcConfig
	run    commandRunner
	spawn  spawnFunc
	logger zerolog.Logger
}

var _ runtime.Runtime = (*Adapter)(nil)

func NewAdapter(cfg *config.LxcConfig, logger zerolog.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		run:    execRunner,
		spawn:  startAttached,
		logger: logger.With().Str("component", "lxc").Logger(),
	}
}

func (a *Adapter) Name() string { return config.DriverLXC }

func (a *Adapter) bin(tool string) string {
	if a.cfg.BinDir == "" {
		return tool
	}
	return filepath.Join(a.cfg.BinDir, tool)
}

// invoke runs one lxc tool, converting any failure into a RuntimeError.
func (a *Adapter) invoke(ctx context.Context, tool, name string, args ...string) (string, error) {
	a.logger.Debug().Str("tool", tool).Strs("args", args).Msg("Running lxc command")
	out, err := a.run(ctx, a.bin(tool), args...)
	output := strings.TrimSpace(string(out))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return output, domain.NewRuntimeError(tool, name, "timeout", domain.ErrTimeout)
			}
			return output, domain.NewRuntimeError(tool, name, ctxErr.Error(), ctxErr)
		}
		msg := output
		if msg == "" {
			msg = err.Error()
		}
		return output, domain.NewRuntimeError(tool, name, msg, err)
	}
	return output, nil
}

func (a *Adapter) Create(ctx context.Context, name string, limits domain.Limits) error {
	if _, err := a.invoke(ctx, "lxc-create", name, "-n", name, "-t", a.cfg.Template); err != nil {
		return err
	}
	if limits.MemoryMB > 0 {
		value := fmt.Sprintf("%dM", limits.MemoryMB)
		if _, err := a.invoke(ctx, "lxc-cgroup", name, "-n", name, a.cfg.MemoryKey, value); err != nil {
			return err
		}
	}
	if limits.Disk != "" {
		a.logger.Debug().Str("name", name).Str("disk", limits.Disk).Msg("Disk limit recorded but not enforced by lxc backend")
	}
	return nil
}

func (a *Adapter) Start(ctx context.Context, name string) error {
	_, err := a.invoke(ctx, "lxc-start", name, "-n", name)
	return err
}

func (a *Adapter) Stop(ctx context.Context, name string) error {
	_, err := a.invoke(ctx, "lxc-stop", name, "-n", name)
	return err
}

func (a *Adapter) Destroy(ctx context.Context, name string) error {
	_, err := a.invoke(ctx, "lxc-destroy", name, "-f", "-n", name)
	return err
}

func (a *Adapter) Info(ctx context.Context, name string) (domain.State, error) {
	out, err := a.invoke(ctx, "lxc-info", name, "-s", "-n", name)
	if err != nil {
		return domain.StateUnknown, err
	}
	return domain.ParseState(out), nil
}

func (a *Adapter) List(ctx context.Context) ([]string, error) {
	out, err := a.invoke(ctx, "lxc-ls", "", "-1")
	if err != nil {
		return nil, err
	}
	names := util.Map(strings.Split(out, "\n"), strings.TrimSpace)
	return util.Filter(names, func(s string) bool { return s != "" }), nil
}

func (a *Adapter) Attach(ctx context.Context, name string) (runtime.Process, error) {
	args := []string{"-n", name, "--", a.cfg.Shell}
	proc, err := a.spawn(ctx, a.bin("lxc-attach"), args...)
	if err != nil {
		return nil, domain.NewRuntimeError("lxc-attach", name, err.Error(), err)
	}
	a.logger.Info().Str("name", name).Int("pid", proc.Pid()).Msg("Attached interactive shell")
	return proc, nil
}
