// Package runtimetest provides an in-memory runtime.Runtime for tests.
package runtimetest

import (
	"bufio"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/auto-dns/nodehostd/internal/domain"
	"github.com/auto-dns/nodehostd/internal/runtime"
)

// Runtime is a fake container runtime. Containers live in a map; failures
// can be injected per operation.
type Runtime struct {
	mu         sync.Mutex
	containers map[string]domain.State
	failures   map[string]error
	calls      map[string]int
	processes  []*Process

	// AttachGate, when set, blocks Attach until it is closed.
	AttachGate chan struct{}
	// InfoHook, when set, runs after Info has read the state and before it
	// returns, simulating a slow answer.
	InfoHook func(name string)
}

var _ runtime.Runtime = (*Runtime)(nil)

func New() *Runtime {
	return &Runtime{
		containers: make(map[string]domain.State),
		failures:   make(map[string]error),
		calls:      make(map[string]int),
	}
}

func (r *Runtime) Name() string { return "fake" }

// Fail makes every subsequent call to op return err. A nil err clears it.
func (r *Runtime) Fail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, op)
		return
	}
	r.failures[op] = err
}

// SetState forces the live state of a container, creating it if needed.
func (r *Runtime) SetState(name string, st domain.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[name] = st
}

func (r *Runtime) State(name string) (domain.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.containers[name]
	return st, ok
}

func (r *Runtime) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *Runtime) Processes() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Process(nil), r.processes...)
}

func (r *Runtime) begin(op, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[op]++
	if err, ok := r.failures[op]; ok {
		return domain.NewRuntimeError(op, name, err.Error(), err)
	}
	return nil
}

func (r *Runtime) Create(_ context.Context, name string, _ domain.Limits) error {
	if err := r.begin("create", name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.containers[name]; exists {
		return domain.NewRuntimeError("create", name, "container already exists", nil)
	}
	r.containers[name] = domain.StateStopped
	return nil
}

func (r *Runtime) transition(op, name string, to domain.State) error {
	if err := r.begin(op, name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.containers[name]; !exists {
		return domain.NewRuntimeError(op, name, "container does not exist", nil)
	}
	r.containers[name] = to
	return nil
}

func (r *Runtime) Start(_ context.Context, name string) error {
	return r.transition("start", name, domain.StateRunning)
}

func (r *Runtime) Stop(_ context.Context, name string) error {
	return r.transition("stop", name, domain.StateStopped)
}

func (r *Runtime) Destroy(_ context.Context, name string) error {
	if err := r.begin("destroy", name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.containers[name]; !exists {
		return domain.NewRuntimeError("destroy", name, "container does not exist", nil)
	}
	delete(r.containers, name)
	for _, p := range r.processes {
		if p.Name == name {
			_ = p.Kill()
		}
	}
	return nil
}

func (r *Runtime) Info(_ context.Context, name string) (domain.State, error) {
	if err := r.begin("info", name); err != nil {
		return domain.StateUnknown, err
	}
	r.mu.Lock()
	st, exists := r.containers[name]
	r.mu.Unlock()
	if r.InfoHook != nil {
		r.InfoHook(name)
	}
	if !exists {
		return domain.StateUnknown, domain.NewRuntimeError("info", name, "container does not exist", nil)
	}
	return st, nil
}

func (r *Runtime) List(_ context.Context) ([]string, error) {
	if err := r.begin("list", ""); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.containers))
	for name := range r.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Runtime) Attach(ctx context.Context, name string) (runtime.Process, error) {
	if gate := r.AttachGate; gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := r.begin("attach", name); err != nil {
		return nil, err
	}
	p := NewProcess(name, "root@"+name+":~#")
	r.mu.Lock()
	r.processes = append(r.processes, p)
	r.mu.Unlock()
	return p, nil
}

// Process is a fake shell: it prints a prompt, then echoes every input line
// back on its output until killed.
type Process struct {
	Name string

	outR *io.PipeReader
	outW *io.PipeWriter
	inR  *io.PipeReader
	inW  *io.PipeWriter

	killOnce sync.Once
	exited   chan struct{}
}

func NewProcess(name, prompt string) *Process {
	outR, outW := io.Pipe()
	inR, inW := io.Pipe()
	p := &Process{
		Name:   name,
		outR:   outR,
		outW:   outW,
		inR:    inR,
		inW:    inW,
		exited: make(chan struct{}),
	}
	go p.loop(prompt)
	return p
}

func (p *Process) loop(prompt string) {
	defer close(p.exited)
	defer p.outW.Close()
	if prompt != "" {
		if _, err := io.WriteString(p.outW, prompt+"\n"); err != nil {
			return
		}
	}
	sc := bufio.NewScanner(p.inR)
	for sc.Scan() {
		line := sc.Text()
		if line == "exit" {
			return
		}
		if _, err := io.WriteString(p.outW, line+"\n"); err != nil {
			return
		}
	}
}

func (p *Process) Output() io.Reader { return p.outR }

func (p *Process) Input() io.Writer { return p.inW }

func (p *Process) Wait() error {
	<-p.exited
	return nil
}

func (p *Process) Kill() error {
	p.killOnce.Do(func() {
		p.inW.CloseWithError(io.ErrClosedPipe)
		p.inR.CloseWithError(io.ErrClosedPipe)
		p.outR.CloseWithError(io.ErrClosedPipe)
	})
	return nil
}

// Exited is closed once the fake shell loop has returned.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}
