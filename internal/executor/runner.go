// Package executor runs external commands on the local host, elevating
// them when the process lacks root privileges.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrCommandNotFound is wrapped when the binary could not be started.
var ErrCommandNotFound = errors.New("command not found")

// Output is the captured result of a finished process.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner starts a process and blocks until it exits.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner executes commands on the local host via os/exec.
type ExecRunner struct{}

// Run starts the command unless ctx is already done. A started command
// is never killed on cancellation; it runs to its own completion.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{ExitCode: -1}, err
	}

	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, err
	}

	out.ExitCode = 1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		out.ExitCode = 127
		return out, fmt.Errorf("%w: %w", ErrCommandNotFound, err)
	}
	return out, err
}
