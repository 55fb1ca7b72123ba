package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// CommandError is returned when a command exits non-zero or cannot be
// started. Output is never interpreted beyond the exit status.
type CommandError struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q failed (exit %d)", strings.Join(e.Argv, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Executor runs a command that may mutate host state.
type Executor interface {
	Run(ctx context.Context, argv []string) error
}

// Elevation controls when the wrapper is prefixed to commands.
type Elevation string

const (
	ElevateAuto   Elevation = "auto"
	ElevateAlways Elevation = "always"
	ElevateNever  Elevation = "never"
)

// ParseElevation validates an elevation setting. An empty string means auto.
func ParseElevation(s string) (Elevation, error) {
	switch e := Elevation(strings.ToLower(strings.TrimSpace(s))); e {
	case "":
		return ElevateAuto, nil
	case ElevateAuto, ElevateAlways, ElevateNever:
		return e, nil
	default:
		return "", fmt.Errorf("unknown elevation %q (want auto, always or never)", s)
	}
}

// Enabled reports whether commands must be wrapped for the given
// effective user id.
func (e Elevation) Enabled(euid int) bool {
	switch e {
	case ElevateAlways:
		return true
	case ElevateNever:
		return false
	default:
		return euid != 0
	}
}

// Observer is notified after every command with its final argv and error.
type Observer func(argv []string, err error)

// Privileged runs commands through a Runner, prefixing the elevation
// wrapper when required.
type Privileged struct {
	runner   Runner
	elevate  bool
	wrapper  []string
	logger   *slog.Logger
	observer Observer
}

// Option configures a Privileged executor.
type Option func(*Privileged)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(p *Privileged) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithElevation sets the elevation policy.
func WithElevation(e Elevation) Option {
	return func(p *Privileged) {
		p.elevate = e.Enabled(os.Geteuid())
	}
}

// WithWrapper replaces the elevation wrapper argv prefix.
func WithWrapper(wrapper []string) Option {
	return func(p *Privileged) {
		if len(wrapper) > 0 {
			p.wrapper = append([]string(nil), wrapper...)
		}
	}
}

// WithLogger configures the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Privileged) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithObserver registers a callback invoked after each command.
func WithObserver(o Observer) Option {
	return func(p *Privileged) {
		p.observer = o
	}
}

// New creates a Privileged executor. By default it runs through
// ExecRunner and wraps commands with sudo when not running as root.
func New(opts ...Option) *Privileged {
	p := &Privileged{
		runner:  ExecRunner{},
		elevate: ElevateAuto.Enabled(os.Geteuid()),
		wrapper: []string{"sudo"},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Elevated reports whether commands are being wrapped.
func (p *Privileged) Elevated() bool { return p.elevate }

// Argv returns the argv that Run would execute for argv.
func (p *Privileged) Argv(argv []string) []string {
	if !p.elevate {
		return append([]string(nil), argv...)
	}
	full := make([]string, 0, len(p.wrapper)+len(argv))
	full = append(full, p.wrapper...)
	return append(full, argv...)
}

// Run executes argv and blocks until it exits. It never retries.
func (p *Privileged) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return &CommandError{Err: errors.New("empty command")}
	}
	full := p.Argv(argv)

	p.logger.Info("running command", "argv", strings.Join(full, " "))
	out, err := p.runner.Run(ctx, full[0], full[1:]...)
	if p.observer != nil {
		p.observer(full, err)
	}
	if err != nil {
		cmdErr := &CommandError{
			Argv:     full,
			ExitCode: out.ExitCode,
			Stdout:   strings.TrimSpace(string(out.Stdout)),
			Stderr:   strings.TrimSpace(string(out.Stderr)),
			Err:      err,
		}
		p.logger.Error("command failed", "argv", strings.Join(full, " "), "exit", out.ExitCode, "stderr", cmdErr.Stderr)
		return cmdErr
	}
	if len(out.Stdout) > 0 {
		p.logger.Debug("command output", "argv", strings.Join(full, " "), "stdout", strings.TrimSpace(string(out.Stdout)))
	}
	return nil
}
