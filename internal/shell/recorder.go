package shell

import (
	"context"
	"strings"
	"sync"
)

// Handler produces the outcome of a recorded command.
type Handler func(cmd Command) (Result, error)

type route struct {
	prefix  string
	handler Handler
}

// Recorder is a Runner that records every command instead of executing it.
// Commands succeed with empty output unless a handler registered with On
// matches. It is used by tests across the harness packages.
type Recorder struct {
	mu       sync.Mutex
	commands []Command
	routes   []route
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// On registers handler for commands whose rendered command line starts with
// prefix. The first registered match wins.
func (r *Recorder) On(prefix string, handler Handler) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{prefix: prefix, handler: handler})
	return r
}

// Fail makes commands matching prefix exit with code.
func (r *Recorder) Fail(prefix string, code int) *Recorder {
	return r.On(prefix, func(cmd Command) (Result, error) {
		return Result{ExitCode: code}, &ExitError{Command: cmd.String(), Code: code}
	})
}

// Commands returns a copy of everything recorded so far.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Lines returns the recorded command lines.
func (r *Recorder) Lines() []string {
	var lines []string
	for _, cmd := range r.Commands() {
		lines = append(lines, cmd.String())
	}
	return lines
}

// Run implements Runner.
func (r *Recorder) Run(ctx context.Context, cmd Command) error {
	_, err := r.Output(ctx, cmd)
	return err
}

// Output implements Runner.
func (r *Recorder) Output(ctx context.Context, cmd Command) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &ExitError{Command: cmd.String(), Err: err}
	}

	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	var handler Handler
	line := cmd.String()
	for _, rt := range r.routes {
		if strings.HasPrefix(line, rt.prefix) {
			handler = rt.handler
			break
		}
	}
	r.mu.Unlock()

	if handler == nil {
		return Result{}, nil
	}
	return handler(cmd)
}
