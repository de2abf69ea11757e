package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sourceplane/cfdcase/internal/logging"
)

const (
	outputBuffer = 256
	maxLineSize  = 1 << 20
)

// Command describes one external program invocation
type Command struct {
	Executable string   `json:"executable" yaml:"executable"`
	Args       []string `json:"args,omitempty" yaml:"args,omitempty"`
	Dir        string   `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Env is appended to the current environment
	Env []string `json:"env,omitempty" yaml:"env,omitempty"`
	// Requires lists further executables the program calls; each must
	// resolve before launch.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`
}

func (c Command) String() string {
	return strings.TrimSpace(c.Executable + " " + strings.Join(c.Args, " "))
}

// Stream names the output stream a line came from
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Line is one line of process output. A line with Err set ends its stream.
type Line struct {
	Text   string
	Stream Stream
	Err    error
}

// ExitStatus is the outcome of a finished process
type ExitStatus struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
	Err    error  `json:"-"`
}

// Success reports a zero exit code
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Err == nil
}

func (s ExitStatus) String() string {
	switch {
	case s.Signal != "":
		return "killed by " + s.Signal
	case s.Err != nil:
		return "wait failed: " + s.Err.Error()
	}
	return fmt.Sprintf("exit code %d", s.Code)
}

// LaunchError means the program could not be started
type LaunchError struct {
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// IoError means an output stream was lost while the process kept running
type IoError struct {
	Stream Stream
	Err    error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Stream, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// Process supervises one running program. Output must be drained, or the
// process released with Close, for it to be reaped.
type Process struct {
	command Command
	cmd     *exec.Cmd
	pid     int
	logger  *slog.Logger

	lines   chan Line
	done    chan struct{}
	abandon chan struct{}
	reaped  atomic.Bool
	status  ExitStatus

	stopOnce  sync.Once
	closeOnce sync.Once
}

// Launch starts the command. An executable without a path separator is
// looked up in PATH.
func Launch(ctx context.Context, c Command) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LaunchError{Executable: c.Executable, Err: err}
	}
	if c.Executable == "" {
		return nil, &LaunchError{Executable: c.Executable, Err: errors.New("no executable given")}
	}
	path, err := exec.LookPath(c.Executable)
	if err != nil {
		return nil, &LaunchError{Executable: c.Executable, Err: fmt.Errorf("binary not found: %w", err)}
	}
	for _, req := range c.Requires {
		if _, err := exec.LookPath(req); err != nil {
			return nil, &LaunchError{Executable: req, Err: fmt.Errorf("binary not found: %w", err)}
		}
	}

	cmd := exec.Command(path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Executable: c.Executable, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Executable: c.Executable, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Executable: c.Executable, Err: err}
	}

	p := &Process{
		command: c,
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		logger:  logging.FromContext(ctx).With("pid", cmd.Process.Pid, "executable", c.Executable),
		lines:   make(chan Line, outputBuffer),
		done:    make(chan struct{}),
		abandon: make(chan struct{}),
	}
	p.logger.Debug("process started", "args", c.Args, "dir", c.Dir)

	var g errgroup.Group
	g.Go(func() error { return p.pump(stdout, Stdout) })
	g.Go(func() error { return p.pump(stderr, Stderr) })
	go p.reap(&g)

	return p, nil
}

// Pid returns the operating system process id
func (p *Process) Pid() int {
	return p.pid
}

// Command returns the command the process was started with
func (p *Process) Command() Command {
	return p.command
}

// Output delivers output lines in arrival order per stream. The channel is
// closed once both streams have ended.
func (p *Process) Output() <-chan Line {
	return p.lines
}

// Done is closed once the process has been reaped
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process has been reaped
func (p *Process) Wait() ExitStatus {
	<-p.done
	return p.status
}

// Stop asks the process group to interrupt and kills it if it is still
// running after grace. It returns immediately; later calls do nothing.
func (p *Process) Stop(grace time.Duration) {
	p.stopOnce.Do(func() {
		if p.reaped.Load() {
			return
		}
		p.logger.Info("stopping process", "grace", grace)
		if err := interruptGroup(p.cmd); err != nil {
			p.logger.Debug("interrupt failed", "error", err)
		}
		go func() {
			timer := time.NewTimer(grace)
			defer timer.Stop()
			select {
			case <-p.done:
			case <-timer.C:
				if p.reaped.Load() {
					return
				}
				p.logger.Warn("grace period expired, killing process group")
				if err := killGroup(p.cmd); err != nil {
					p.logger.Debug("kill failed", "error", err)
				}
			}
		}()
	})
}

// Close abandons the process: output is discarded, the process group is
// killed and Close returns once it has been reaped.
func (p *Process) Close() {
	p.closeOnce.Do(func() {
		close(p.abandon)
	})
	if !p.reaped.Load() {
		if err := killGroup(p.cmd); err != nil {
			p.logger.Debug("kill failed", "error", err)
		}
	}
	<-p.done
}

func (p *Process) pump(r io.Reader, stream Stream) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if !p.send(Line{Text: scanner.Text(), Stream: stream}) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("output stream lost", "stream", stream, "error", err)
		p.send(Line{Stream: stream, Err: &IoError{Stream: stream, Err: err}})
	}
	// keep the pipe empty so the child never blocks on a full buffer
	_, _ = io.Copy(io.Discard, r)
	return nil
}

func (p *Process) send(l Line) bool {
	select {
	case p.lines <- l:
		return true
	case <-p.abandon:
		return false
	}
}

func (p *Process) reap(g *errgroup.Group) {
	_ = g.Wait()
	err := p.cmd.Wait()
	p.reaped.Store(true)
	p.status = exitStatus(err)
	p.logger.Debug("process reaped", "status", p.status.String())
	close(p.lines)
	close(p.done)
}

func exitStatus(err error) ExitStatus {
	if err == nil {
		return ExitStatus{}
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ExitStatus{Code: ee.ExitCode(), Signal: signalName(ee)}
	}
	return ExitStatus{Code: -1, Err: err}
}
