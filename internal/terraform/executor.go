// Package terraform drives the external infrastructure-as-code tool as a
// subprocess. The tool is an opaque dependency: this package invokes it,
// captures its output and classifies its failures, nothing more.
package terraform

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

// Result captures one subprocess invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor runs one external tool command in a working directory. Wrapping
// the subprocess behind this narrow interface lets tests substitute a mock
// and keeps the pipeline independent of the installed binary.
type Executor interface {
	Run(ctx context.Context, dir string, args ...string) (Result, error)
}

// ExecExecutor invokes the real binary via os/exec.
type ExecExecutor struct {
	// Binary is the executable name or path, e.g. "terraform".
	Binary string
}

// NewExecExecutor creates an ExecExecutor for the given binary.
func NewExecExecutor(binary string) *ExecExecutor {
	return &ExecExecutor{Binary: binary}
}

// Run executes the command with the working directory pinned to dir and the
// non-interactive automation flag set. A non-zero exit is reported through
// Result, not error; error is reserved for the process failing to run at all.
func (e *ExecExecutor) Run(ctx context.Context, dir string, args ...string) (Result, error) {
	// #nosec G204 -- arguments are fixed subcommands built by the pipeline
	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TF_IN_AUTOMATION=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, err
	}
}
