// Package daemon keeps the build tool's background daemon usable across
// workspaces. A daemon started for one copy of a sample keeps pointing at
// that copy after it is deleted, so it is probed and restarted when stale.
package daemon

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/buck2hub/buckal-harness/internal/envbuild"
	"github.com/buck2hub/buckal-harness/internal/logger"
	"github.com/buck2hub/buckal-harness/internal/shell"
)

// Health is the decoded subset of `buck2 status`.
type Health struct {
	// Probed is false when the status could not be obtained or parsed
	Probed bool

	// Stale is true when the daemon reported an invalid working directory
	// or buck-out mount
	Stale bool

	// Reason names the field that was reported invalid
	Reason string
}

// staleFields are status fields whose literal false means the daemon must
// be restarted.
var staleFields = []string{"valid_working_directory", "valid_buck_out_mount"}

// ParseStatus decodes `buck2 status` output. Anything that is not a JSON
// object is reported as not probed.
func ParseStatus(out string) Health {
	if !gjson.Valid(out) {
		return Health{}
	}
	parsed := gjson.Parse(out)
	if !parsed.IsObject() {
		return Health{}
	}
	h := Health{Probed: true}
	for _, field := range staleFields {
		if parsed.Get(field).Type == gjson.False {
			h.Stale = true
			h.Reason = field
			break
		}
	}
	return h
}

// Guard probes and restarts the daemon.
type Guard struct {
	Runner  shell.Runner
	Env     envbuild.Environment
	Console *logger.Console

	// Binary is the build tool executable; defaults to buck2
	Binary string
}

func (g *Guard) binary() string {
	if g.Binary == "" {
		return "buck2"
	}
	return g.Binary
}

// Ensure restarts the daemon for dir when it reports a stale working
// directory. Probe and restart failures are logged and never returned, so
// a broken status command cannot block the pipeline.
func (g *Guard) Ensure(ctx context.Context, dir string) Health {
	log := logger.WithComponent("daemon")
	console := g.Console
	if console == nil {
		console = logger.Discard()
	}

	res, err := g.Runner.Output(ctx, shell.Command{
		Name: g.binary(),
		Args: []string{"status"},
		Dir:  dir,
		Env:  g.Env.Environ(),
	})
	if err != nil {
		log.Debug("daemon status unavailable, proceeding", "dir", dir, "error", err)
		return Health{}
	}

	h := ParseStatus(res.Stdout)
	if !h.Probed {
		log.Debug("daemon status not parseable, proceeding", "dir", dir)
		return h
	}
	if !h.Stale {
		return h
	}

	console.Printf("Buck2 daemon reports stale working directory; restarting buckd.")
	log.Info("restarting stale daemon", "dir", dir, "reason", h.Reason)
	if err := g.Runner.Run(ctx, shell.Command{
		Name: g.binary(),
		Args: []string{"kill"},
		Dir:  dir,
		Env:  g.Env.Environ(),
	}); err != nil {
		log.Warn("daemon kill failed", "dir", dir, "error", err)
	}
	return h
}
