// Package session aggregates everything that makes up one PTY session —
// the PTY itself, the output broker, the parser, overlay/panel stores,
// input routing, and activity tracking — plus the named registry that owns
// all sessions.
package session

import (
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// PTY wraps the master side of a pseudo-terminal running one child command.
type PTY struct {
	ptmx    *os.File
	cmd     *exec.Cmd
	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	usePgrp bool
}

// SpawnSpec configures a new PTY.
type SpawnSpec struct {
	Command string            // shell command; empty = login shell
	Cwd     string            // working directory; empty = inherit
	Env     map[string]string // environment overrides
	Cols    uint16
	Rows    uint16
}

// NewPTY spawns the configured command (or the user's shell) on a fresh
// pseudo-terminal sized to the given dimensions.
func NewPTY(spec SpawnSpec) (*PTY, error) {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	var cmd *exec.Cmd
	if spec.Command != "" {
		cmd = exec.Command(shell, "-c", spec.Command)
	} else {
		cmd = exec.Command(shell)
	}
	if spec.Cwd != "" {
		cmd.Dir = spec.Cwd
	}

	overridden := make(map[string]bool, len(spec.Env))
	for k := range spec.Env {
		overridden[k] = true
	}
	env := make([]string, 0, len(os.Environ())+len(spec.Env)+1)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				if !overridden[kv[:i]] {
					env = append(env, kv)
				}
				break
			}
		}
	}
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	env = append(env, "TERM=xterm-256color")
	cmd.Env = env

	// Process group for clean termination. Setpgid can fail in sandboxed
	// environments on macOS, so restrict to Linux.
	usePgrp := runtime.GOOS == "linux"
	if usePgrp {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: spec.Cols, Rows: spec.Rows})
	if err != nil {
		return nil, err
	}

	return &PTY{
		ptmx:    ptmx,
		cmd:     cmd,
		closeCh: make(chan struct{}),
		usePgrp: usePgrp,
	}, nil
}

// Read reads PTY output. Returns EIO once the child exits; callers treat
// any error as end of stream.
func (p *PTY) Read(buf []byte) (int, error) {
	return p.ptmx.Read(buf)
}

// Write writes input to the PTY.
func (p *PTY) Write(data []byte) (int, error) {
	return p.ptmx.Write(data)
}

// Resize changes the terminal size (TIOCSWINSZ on the master).
func (p *PTY) Resize(cols, rows uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return io.ErrClosedPipe
	}
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Pid returns the child process id.
func (p *PTY) Pid() int {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

// Wait blocks until the child exits and returns its exit code.
func (p *PTY) Wait() int {
	if p.cmd == nil {
		return 0
	}
	err := p.cmd.Wait()
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// Close terminates the session: closes the master (signalling EOF to
// readers) and kills the child, or the whole process group on Linux.
func (p *PTY) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.closeCh)

	if p.ptmx != nil {
		_ = p.ptmx.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		pid := p.cmd.Process.Pid
		if p.usePgrp {
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		} else {
			_ = p.cmd.Process.Kill()
		}
	}
	return nil
}

// Done is closed when the PTY has been closed.
func (p *PTY) Done() <-chan struct{} {
	return p.closeCh
}

// IsClosed reports whether Close has been called.
func (p *PTY) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
