// Package sysexec runs the operating system utilities the engine parses
// (arp, route, ip, traceroute) behind an interface so parsers can be tested
// against captured output.
package sysexec

//go:generate mockgen -source=runner.go -destination=mocks/mock_runner.go -package=mocks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// DefaultTimeout bounds a command when the caller's context has no deadline.
const DefaultTimeout = 10 * time.Second

// ErrDisabled is returned by DisabledRunner for every command.
var ErrDisabled = errors.New("command execution disabled")

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

// NewExecRunner creates a runner bounded by timeout, or DefaultTimeout when zero.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{Timeout: timeout}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// traceroute and tracert exit non-zero on partial paths; keep what they printed.
		if stdout.Len() > 0 && ctx.Err() == nil {
			return stdout.Bytes(), nil
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// DisabledRunner refuses to run anything. Strategies backed by commands
// degrade to their empty results when given this runner.
type DisabledRunner struct{}

// Run implements Runner.
func (DisabledRunner) Run(_ context.Context, name string, _ ...string) ([]byte, error) {
	return nil, fmt.Errorf("%s: %w", name, ErrDisabled)
}

// Available reports whether name resolves on PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Platform identifies the command dialect to use for parsing.
type Platform string

const (
	Linux   Platform = "linux"
	Darwin  Platform = "darwin"
	Windows Platform = "windows"
)

// CurrentPlatform maps runtime.GOOS onto a Platform. BSDs share the darwin
// dialect of route and netstat.
func CurrentPlatform() Platform {
	switch runtime.GOOS {
	case "windows":
		return Windows
	case "darwin", "freebsd", "openbsd", "netbsd", "dragonfly":
		return Darwin
	default:
		return Linux
	}
}
