package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/auto-dns/nodehostd/internal/runtime"
)

// Session is one interactive process attached to a running container. Its
// combined output is read by a single producer and fanned out to any number
// of subscribers.
type Session struct {
	ID        string
	Name      string
	StartedAt time.Time

	proc   runtime.Process
	opts   Options
	logger zerolog.Logger
	hooks  hooks

	mu      sync.Mutex
	subs    map[uint64]chan string
	nextSub uint64
	backlog []string
	dropped uint64

	inputMu sync.Mutex

	done      chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
}

type hooks struct {
	lineDropped func()
	exited      func(*Session)
}

func newSession(id, name string, proc runtime.Process, opts Options, logger zerolog.Logger, h hooks) *Session {
	return &Session{
		ID:        id,
		Name:      name,
		StartedAt: time.Now(),
		proc:      proc,
		opts:      opts,
		logger:    logger,
		hooks:     h,
		subs:      make(map[uint64]chan string),
		done:      make(chan struct{}),
		closing:   make(chan struct{}),
	}
}

// Done is closed once the process output has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Subscribe returns a channel of output lines. Recent lines are replayed
// first. The channel is closed when ctx ends or the process exits.
func (s *Session) Subscribe(ctx context.Context) <-chan string {
	ch := make(chan string, s.opts.BufferSize)

	s.mu.Lock()
	select {
	case <-s.done:
		for _, line := range s.backlog {
			select {
			case ch <- line:
			default:
			}
		}
		s.mu.Unlock()
		close(ch)
		return ch
	default:
	}
	for _, line := range s.backlog {
		select {
		case ch <- line:
		default:
		}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.unsubscribe(id)
		case <-s.done:
		}
	}()
	return ch
}

func (s *Session) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Session) broadcast(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.Backlog > 0 {
		if len(s.backlog) >= s.opts.Backlog {
			s.backlog = s.backlog[1:]
		}
		s.backlog = append(s.backlog, line)
	}
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
			s.dropped++
			if s.hooks.lineDropped != nil {
				s.hooks.lineDropped()
			}
		}
	}
}

// Write forwards input to the process.
func (s *Session) Write(p []byte) (int, error) {
	select {
	case <-s.done:
		return 0, io.ErrClosedPipe
	default:
	}
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	return s.proc.Input().Write(p)
}

// run reads the process output until it ends, then releases every
// subscriber and reaps the process.
func (s *Session) run() {
	reader := bufio.NewReader(s.proc.Output())
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			s.broadcast(strings.TrimRight(line, "\r\n"))
		}
		if err == nil {
			continue
		}
		if isTerminal(err) {
			break
		}
		s.logger.Debug().Err(err).Str("session_id", s.ID).Msg("Transient read error, retrying")
		select {
		case <-time.After(s.opts.ReadRetryInterval):
		case <-s.closing:
			s.finish()
			return
		}
	}
	s.finish()
}

func (s *Session) finish() {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	close(s.done)
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	dropped := s.dropped
	s.mu.Unlock()

	if err := s.proc.Wait(); err != nil {
		s.logger.Debug().Err(err).Str("session_id", s.ID).Msg("Interactive process exited with error")
	}
	s.logger.Info().Str("name", s.Name).Str("session_id", s.ID).Uint64("dropped_lines", dropped).Msg("Session ended")
	if s.hooks.exited != nil {
		s.hooks.exited(s)
	}
}

func isTerminal(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed)
}

// Close kills the process and waits, bounded by the close timeout, for the
// producer to drain.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
		if err := s.proc.Kill(); err != nil {
			s.logger.Warn().Err(err).Str("session_id", s.ID).Msg("Failed to kill interactive process")
		}
		select {
		case <-s.done:
		case <-time.After(s.opts.CloseTimeout):
			s.logger.Warn().Str("session_id", s.ID).Msg("Session producer did not stop in time")
		}
	})
}
