//go:build unix

package lxc

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

type spawnFunc func(ctx context.Context, name string, args ...string) (*attachedProcess, error)

// attachedProcess is a child process whose stdout and stderr share one pipe.
type attachedProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output *os.File

	waitOnce sync.Once
	waitErr  error
}

// startAttached launches the command in its own process group so Kill can
// take down anything it forked.
func startAttached(ctx context.Context, name string, args ...string) (*attachedProcess, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	// The child holds its own copy of the write end; closing ours lets the
	// reader see EOF once the child exits.
	pw.Close()
	return &attachedProcess{cmd: cmd, stdin: stdin, output: pr}, nil
}

func (p *attachedProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *attachedProcess) Output() io.Reader { return p.output }

func (p *attachedProcess) Input() io.Writer { return p.stdin }

func (p *attachedProcess) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
	})
	return p.waitErr
}

func (p *attachedProcess) Kill() error {
	_ = p.stdin.Close()
	var err error
	if pid := p.Pid(); pid > 0 {
		if kerr := unix.Kill(-pid, unix.SIGKILL); kerr != nil && !errors.Is(kerr, unix.ESRCH) {
			err = kerr
		}
	}
	if cerr := p.output.Close(); cerr != nil && err == nil && !errors.Is(cerr, os.ErrClosed) {
		err = cerr
	}
	return err
}
