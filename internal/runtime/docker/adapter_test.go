package docker

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/config"
	"github.com/auto-dns/nodehostd/internal/domain"
)

type fakeDocker struct {
	created     *container.Config
	hostCfg     *container.HostConfig
	createdName string
	started     []string
	stopped     []string
	removed     []string
	removeOpts  container.RemoveOptions
	inspect     map[string]*container.State
	listFilter  container.ListOptions
	summaries   []container.Summary
	execOpts    container.ExecOptions
	hijack      net.Conn
	startErr    error

	mu           sync.Mutex
	execStates   []container.ExecInspect
	execInspects int
}

func (f *fakeDocker) ContainerCreate(_ context.Context, cfg *container.Config, hostCfg *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.created, f.hostCfg, f.createdName = cfg, hostCfg, name
	return container.CreateResponse{ID: "abc123"}, nil
}

func (f *fakeDocker) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.started = append(f.started, id)
	return f.startErr
}

func (f *fakeDocker) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeDocker) ContainerRemove(_ context.Context, id string, opts container.RemoveOptions) error {
	f.removed = append(f.removed, id)
	f.removeOpts = opts
	return nil
}

func (f *fakeDocker) ContainerInspect(_ context.Context, id string) (container.InspectResponse, error) {
	st, ok := f.inspect[id]
	if !ok {
		return container.InspectResponse{}, errdefs.NotFound(errors.New("No such container: " + id))
	}
	return container.InspectResponse{ContainerJSONBase: &container.ContainerJSONBase{State: st}}, nil
}

func (f *fakeDocker) ContainerList(_ context.Context, opts container.ListOptions) ([]container.Summary, error) {
	f.listFilter = opts
	return f.summaries, nil
}

func (f *fakeDocker) ContainerExecCreate(_ context.Context, _ string, opts container.ExecOptions) (container.ExecCreateResponse, error) {
	f.execOpts = opts
	return container.ExecCreateResponse{ID: "exec-1"}, nil
}

func (f *fakeDocker) ContainerExecAttach(_ context.Context, _ string, _ container.ExecAttachOptions) (types.HijackedResponse, error) {
	return types.HijackedResponse{Conn: f.hijack, Reader: bufio.NewReader(f.hijack)}, nil
}

// ContainerExecInspect serves execStates in order, repeating the last one.
func (f *fakeDocker) ContainerExecInspect(_ context.Context, _ string) (container.ExecInspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execInspects++
	if len(f.execStates) == 0 {
		return container.ExecInspect{ExitCode: 0}, nil
	}
	st := f.execStates[0]
	if len(f.execStates) > 1 {
		f.execStates = f.execStates[1:]
	}
	return st, nil
}

func (f *fakeDocker) Close() error { return nil }

func newTestAdapter(f *fakeDocker) *Adapter {
	return NewAdapter(f, &config.DockerConfig{
		Image:       "ubuntu:24.04",
		Command:     []string{"sleep", "infinity"},
		Shell:       "bash",
		StopTimeout: 10,
	}, zerolog.Nop())
}

func TestCreateSetsMemoryAndLabels(t *testing.T) {
	f := &fakeDocker{}
	a := newTestAdapter(f)
	if err := a.Create(context.Background(), "web1", domain.Limits{MemoryMB: 512, Disk: "10GB"}); err != nil {
		t.Fatal(err)
	}
	if f.createdName != "web1" || f.created.Image != "ubuntu:24.04" {
		t.Fatalf("unexpected create: name=%s cfg=%+v", f.createdName, f.created)
	}
	if f.hostCfg.Resources.Memory != 512*1024*1024 {
		t.Fatalf("memory = %d", f.hostCfg.Resources.Memory)
	}
	if f.created.Labels[LabelManagedBy] != ManagedByValue || f.created.Labels[labelDisk] != "10GB" {
		t.Fatalf("labels = %v", f.created.Labels)
	}
}

func TestStartFailureIsRuntimeError(t *testing.T) {
	f := &fakeDocker{startErr: errors.New("port is already allocated")}
	a := newTestAdapter(f)
	err := a.Start(context.Background(), "web1")
	var rErr *domain.RuntimeError
	if !errors.As(err, &rErr) || rErr.Message != "port is already allocated" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDestroyForces(t *testing.T) {
	f := &fakeDocker{}
	a := newTestAdapter(f)
	if err := a.Destroy(context.Background(), "web1"); err != nil {
		t.Fatal(err)
	}
	if !f.removeOpts.Force || !reflect.DeepEqual(f.removed, []string{"web1"}) {
		t.Fatalf("remove = %v %+v", f.removed, f.removeOpts)
	}
}

func TestInfoMapsStates(t *testing.T) {
	f := &fakeDocker{inspect: map[string]*container.State{
		"run":  {Running: true, Status: "running"},
		"new":  {Status: "created"},
		"dead": {Status: "exited"},
		"odd":  {Status: "paused"},
	}}
	a := newTestAdapter(f)
	want := map[string]domain.State{
		"run":  domain.StateRunning,
		"new":  domain.StateStopped,
		"dead": domain.StateStopped,
		"odd":  domain.StateUnknown,
	}
	for name, w := range want {
		got, err := a.Info(context.Background(), name)
		if err != nil || got != w {
			t.Errorf("Info(%s) = %s, %v; want %s", name, got, err, w)
		}
	}
	got, err := a.Info(context.Background(), "missing")
	if err == nil || got != domain.StateUnknown {
		t.Fatalf("Info(missing) = %s, %v", got, err)
	}
}

func TestListTrimsNamesAndFilters(t *testing.T) {
	f := &fakeDocker{summaries: []container.Summary{{Names: []string{"/web1"}}, {Names: nil}, {Names: []string{"/web2"}}}}
	a := newTestAdapter(f)
	names, err := a.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"web1", "web2"}) {
		t.Fatalf("names = %v", names)
	}
	if !f.listFilter.All || !f.listFilter.Filters.ExactMatch("label", LabelManagedBy+"="+ManagedByValue) {
		t.Fatalf("unexpected list options %+v", f.listFilter)
	}
}

func TestAttachStreamsOutput(t *testing.T) {
	client, server := net.Pipe()
	f := &fakeDocker{hijack: client}
	a := newTestAdapter(f)
	proc, err := a.Attach(context.Background(), "web1")
	if err != nil {
		t.Fatal(err)
	}
	if !f.execOpts.Tty || f.execOpts.Cmd[0] != "bash" {
		t.Fatalf("exec options %+v", f.execOpts)
	}

	go func() {
		_, _ = io.WriteString(server, "root@web1:~# \n")
		server.Close()
	}()
	line, err := bufio.NewReader(proc.Output()).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "root@web1:~# \n" {
		t.Fatalf("line = %q", line)
	}
	if err := proc.Kill(); err != nil {
		t.Fatal(err)
	}
	if err := proc.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestExecWaitBlocksUntilExit(t *testing.T) {
	f := &fakeDocker{execStates: []container.ExecInspect{
		{Running: true},
		{Running: true},
		{Running: false, ExitCode: 0},
	}}
	p := newExecProcess(f, "exec-1", types.HijackedResponse{})
	p.poll = time.Millisecond
	if err := p.Wait(); err != nil {
		t.Fatal(err)
	}
	if f.execInspects != 3 {
		t.Fatalf("inspected %d times, want 3", f.execInspects)
	}
}

func TestExecWaitReportsExitCode(t *testing.T) {
	f := &fakeDocker{execStates: []container.ExecInspect{{Running: false, ExitCode: 2}}}
	p := newExecProcess(f, "exec-1", types.HijackedResponse{})
	if err := p.Wait(); err == nil || !strings.Contains(err.Error(), "code 2") {
		t.Fatalf("Wait = %v, want exit code error", err)
	}
}

func TestExecWaitGivesUpAfterKill(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	f := &fakeDocker{execStates: []container.ExecInspect{{Running: true}}}
	p := newExecProcess(f, "exec-1", types.HijackedResponse{Conn: client, Reader: bufio.NewReader(client)})
	p.poll = time.Millisecond
	p.grace = 20 * time.Millisecond
	if err := p.Kill(); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- p.Wait() }()
	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "still running") {
			t.Fatalf("Wait = %v, want a still-running error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not give up after Kill")
	}
}
