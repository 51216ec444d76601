// Package shell runs external tools (cargo, buck2, python3) on behalf of the
// harness. Every invocation goes through a Runner so the pipeline can be
// exercised in tests without the real toolchain installed.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes one external invocation.
type Command struct {
	// Name is the executable, resolved through PATH
	Name string

	// Args are passed verbatim
	Args []string

	// Dir is the working directory; empty means the current directory
	Dir string

	// Env is the complete child environment; nil inherits the parent's
	Env []string
}

// String renders the command line the way it is echoed to the console.
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	return strings.Join(parts, " ")
}

// Result holds captured output of a command run through Output.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands.
type Runner interface {
	// Run executes the command with inherited standard streams and blocks
	// until it exits. A non-zero exit is returned as *ExitError.
	Run(ctx context.Context, cmd Command) error

	// Output executes the command capturing stdout and stderr. A non-zero
	// exit is returned as *ExitError together with the captured Result.
	Output(ctx context.Context, cmd Command) (Result, error)
}

// ExitError reports an external command that could not be started or
// exited unsuccessfully.
type ExitError struct {
	Command string
	Code    int
	Err     error
}

func (e *ExitError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("command %q failed with exit code %d", e.Command, e.Code)
	}
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code carried by err, 1 for other non-nil errors
// and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		return exitErr.Code
	}
	return 1
}

// Exec is the Runner backed by os/exec.
type Exec struct {
	// Stdout and Stderr receive the child's streams for Run. They default
	// to the process streams.
	Stdout io.Writer
	Stderr io.Writer

	// Echo, if set, is called before every Run with the command about to
	// start.
	Echo func(Command)
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, c Command) error {
	if e.Echo != nil {
		e.Echo(c)
	}

	cmd := e.command(ctx, c)
	cmd.Stdin = os.Stdin
	cmd.Stdout = e.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = e.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		return wrapError(c, err)
	}
	return nil
}

// Output implements Runner.
func (e *Exec) Output(ctx context.Context, c Command) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := e.command(ctx, c)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		wrapped := wrapError(c, err)
		result.ExitCode = ExitCode(wrapped)
		return result, wrapped
	}
	return result, nil
}

func (e *Exec) command(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = c.Env
	}
	return cmd
}

func wrapError(c Command, err error) error {
	exitErr := &ExitError{Command: c.String(), Err: err}
	var osExit *exec.ExitError
	if errors.As(err, &osExit) {
		exitErr.Code = osExit.ExitCode()
	}
	return exitErr
}
