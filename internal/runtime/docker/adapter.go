// Package docker implements the runtime adapter on top of the Docker Engine API.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/config"
	"github.com/auto-dns/nodehostd/internal/domain"
	"github.com/auto-dns/nodehostd/internal/runtime"
)

// Containers owned by this daemon carry LabelManagedBy=ManagedByValue.
const (
	LabelManagedBy = "nodehostd.managed-by"
	ManagedByValue = "nodehostd"
	labelMemoryMB  = "nodehostd.memory-mb"
	labelDisk      = "nodehostd.disk"
)

// The engine reports exec exit only through inspect. A detached TTY shell
// may keep running, so Wait gives up execKillGrace after Kill.
const (
	execPollInterval = 100 * time.Millisecond
	execKillGrace    = 5 * time.Second
)

type dockerClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	Close() error
}

// Adapter implements runtime.Runtime using the Docker Engine API.
type Adapter struct {
	cli    dockerClient
	cfg    *config.DockerConfig
	logger zerolog.Logger
}

var _ runtime.Runtime = (*Adapter)(nil)

// NewClient connects to the engine named by DOCKER_HOST or the default socket.
func NewClient() (*dockerclient.Client, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

func NewAdapter(cli dockerClient, cfg *config.DockerConfig, logger zerolog.Logger) *Adapter {
	return &Adapter{
		cli:    cli,
		cfg:    cfg,
		logger: logger.With().Str("component", "docker").Logger(),
	}
}

func (a *Adapter) Name() string { return config.DriverDocker }

func (a *Adapter) Close() error {
	return a.cli.Close()
}

func wrap(ctx context.Context, op, name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewRuntimeError(op, name, "timeout", domain.ErrTimeout)
	}
	return domain.NewRuntimeError(op, name, err.Error(), err)
}

func (a *Adapter) Create(ctx context.Context, name string, limits domain.Limits) error {
	labels := map[string]string{
		LabelManagedBy: ManagedByValue,
		labelMemoryMB:  fmt.Sprintf("%d", limits.MemoryMB),
	}
	if limits.Disk != "" {
		labels[labelDisk] = limits.Disk
	}
	cfg := &container.Config{
		Image:     a.cfg.Image,
		Cmd:       a.cfg.Command,
		Hostname:  name,
		Labels:    labels,
		OpenStdin: true,
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory: limits.MemoryMB * 1024 * 1024,
		},
	}
	resp, err := a.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return wrap(ctx, "create", name, err)
	}
	for _, w := range resp.Warnings {
		a.logger.Warn().Str("name", name).Msg(w)
	}
	a.logger.Debug().Str("name", name).Str("id", resp.ID).Msg("Created container")
	return nil
}

func (a *Adapter) Start(ctx context.Context, name string) error {
	return wrap(ctx, "start", name, a.cli.ContainerStart(ctx, name, container.StartOptions{}))
}

func (a *Adapter) Stop(ctx context.Context, name string) error {
	timeout := a.cfg.StopTimeout
	return wrap(ctx, "stop", name, a.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}))
}

func (a *Adapter) Destroy(ctx context.Context, name string) error {
	return wrap(ctx, "destroy", name, a.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}))
}

func (a *Adapter) Info(ctx context.Context, name string) (domain.State, error) {
	info, err := a.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return domain.StateUnknown, domain.NewRuntimeError("info", name, "no such container", err)
		}
		return domain.StateUnknown, wrap(ctx, "info", name, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return domain.StateUnknown, nil
	}
	return stateFromDocker(info.State.Running, info.State.Status), nil
}

func stateFromDocker(running bool, status string) domain.State {
	if running {
		return domain.StateRunning
	}
	switch status {
	case "created", "exited":
		return domain.StateStopped
	default:
		return domain.StateUnknown
	}
}

func (a *Adapter) List(ctx context.Context) ([]string, error) {
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManagedBy+"="+ManagedByValue)),
	})
	if err != nil {
		return nil, wrap(ctx, "list", "", err)
	}
	names := make([]string, 0, len(containers))
	for _, c := range containers {
		if len(c.Names) == 0 {
			continue
		}
		names = append(names, strings.TrimPrefix(c.Names[0], "/"))
	}
	return names, nil
}

func (a *Adapter) Attach(ctx context.Context, name string) (runtime.Process, error) {
	exec, err := a.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          []string{a.cfg.Shell},
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          true,
	})
	if err != nil {
		return nil, wrap(ctx, "exec", name, err)
	}
	resp, err := a.cli.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{Tty: true})
	if err != nil {
		return nil, wrap(ctx, "exec-attach", name, err)
	}
	a.logger.Info().Str("name", name).Str("exec_id", exec.ID).Msg("Attached interactive shell")
	return newExecProcess(a.cli, exec.ID, resp), nil
}

// execProcess is a TTY exec session; with a TTY the engine sends stdout and
// stderr as one raw stream.
type execProcess struct {
	cli    dockerClient
	execID string
	resp   types.HijackedResponse

	poll     time.Duration
	grace    time.Duration
	killed   chan struct{}
	killOnce sync.Once
}

func newExecProcess(cli dockerClient, execID string, resp types.HijackedResponse) *execProcess {
	return &execProcess{
		cli:    cli,
		execID: execID,
		resp:   resp,
		poll:   execPollInterval,
		grace:  execKillGrace,
		killed: make(chan struct{}),
	}
}

func (p *execProcess) Output() io.Reader { return p.resp.Reader }

func (p *execProcess) Input() io.Writer { return p.resp.Conn }

func (p *execProcess) Wait() error {
	var giveUp <-chan time.Time
	for {
		info, err := p.cli.ContainerExecInspect(context.Background(), p.execID)
		if err != nil {
			return err
		}
		if !info.Running {
			if info.ExitCode != 0 {
				return fmt.Errorf("exec %s exited with code %d", p.execID, info.ExitCode)
			}
			return nil
		}
		if giveUp == nil {
			select {
			case <-p.killed:
				giveUp = time.After(p.grace)
			default:
			}
		}
		select {
		case <-time.After(p.poll):
		case <-giveUp:
			return fmt.Errorf("exec %s still running after detach", p.execID)
		}
	}
}

func (p *execProcess) Kill() error {
	p.killOnce.Do(func() {
		close(p.killed)
		p.resp.Close()
	})
	return nil
}
