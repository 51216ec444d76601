package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Console prints operator-facing status lines. Every line is also recorded
// in the structured run log at debug level.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	log *slog.Logger
}

// NewConsole returns a Console writing to out, or os.Stdout when out is nil.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out, log: slog.Default()}
}

// Discard returns a Console that prints nothing.
func Discard() *Console {
	return NewConsole(io.Discard)
}

// Printf prints an undecorated line.
func (c *Console) Printf(format string, args ...any) {
	c.line("", format, args...)
}

// OK prints a success line.
func (c *Console) OK(format string, args ...any) {
	c.line(color.GreenString("[ok]"), format, args...)
}

// Info prints an informational line.
func (c *Console) Info(format string, args ...any) {
	c.line(color.CyanString("[info]"), format, args...)
}

// Warn prints a warning line.
func (c *Console) Warn(format string, args ...any) {
	c.line(color.YellowString("[warn]"), format, args...)
}

// Command echoes an external invocation before it runs.
func (c *Console) Command(cmdline, dir string) {
	if dir == "" {
		c.line("+", "%s", cmdline)
		return
	}
	c.line("+", "%s (cwd=%s)", cmdline, dir)
}

func (c *Console) line(tag, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.log.Debug(msg, "tag", tag)

	c.mu.Lock()
	defer c.mu.Unlock()
	if tag == "" {
		fmt.Fprintln(c.out, msg)
		return
	}
	fmt.Fprintf(c.out, "%s %s\n", tag, msg)
}
