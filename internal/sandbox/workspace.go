// Package sandbox provisions the directory a harness run operates in.
// Sandboxed runs work on a deep copy under a temporary root so the sample
// checkout is never modified; in-place runs use the sample directly.
package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/otiai10/copy"

	"github.com/buck2hub/buckal-harness/internal/logger"
)

const (
	// TempPrefix starts every temporary root created by Provision.
	TempPrefix = "buckal-"

	// MarkerFile sits in every temporary root created by Provision and holds
	// the name of the sample copied next to it.
	MarkerFile = ".buckal-workspace"
)

// Provision returns the workspace for a run. Sandboxed runs copy
// cfg.SampleDir to <root>/buckal-<sample>-XXXX/<sample>; symlinks are copied
// as links so vendored trees keep their shape.
func Provision(cfg Config) (*Workspace, error) {
	if cfg.SampleDir == "" {
		return nil, fmt.Errorf("SampleDir cannot be empty")
	}
	info, err := os.Stat(cfg.SampleDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat sample directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sample path %s is not a directory", cfg.SampleDir)
	}

	name := cfg.SampleName
	if name == "" {
		name = filepath.Base(cfg.SampleDir)
	}

	if cfg.InPlace {
		return &Workspace{
			Path:    cfg.SampleDir,
			Sample:  name,
			Created: time.Now(),
			Status:  StatusActive,
		}, nil
	}

	if cfg.Root != "" {
		if err := os.MkdirAll(cfg.Root, 0755); err != nil {
			return nil, fmt.Errorf("failed to create sandbox root: %w", err)
		}
	}
	root, err := os.MkdirTemp(cfg.Root, TempPrefix+name+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(root, MarkerFile), []byte(name+"\n"), 0644); err != nil {
		_ = os.RemoveAll(root) // Best-effort cleanup
		return nil, fmt.Errorf("failed to mark workspace: %w", err)
	}

	dest := filepath.Join(root, name)
	if err := copy.Copy(cfg.SampleDir, dest, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Shallow },
	}); err != nil {
		_ = os.RemoveAll(root) // Best-effort cleanup
		return nil, fmt.Errorf("failed to copy sample %s: %w", cfg.SampleDir, err)
	}

	log().Debug("workspace provisioned", "sample", name, "path", dest)
	return &Workspace{
		Path:    dest,
		Root:    root,
		Sample:  name,
		Keep:    cfg.Keep,
		Created: time.Now(),
		Status:  StatusActive,
	}, nil
}

// Cleanup removes the temporary root unless the workspace is kept. It is a
// no-op for in-place workspaces and safe to call more than once.
func (w *Workspace) Cleanup() error {
	if w == nil || !w.Sandboxed() || w.Status != StatusActive {
		return nil
	}
	if w.Keep {
		w.Status = StatusKept
		return nil
	}
	if err := os.RemoveAll(w.Root); err != nil {
		return fmt.Errorf("failed to remove sandbox %s: %w", w.Root, err)
	}
	w.Status = StatusCleaned
	log().Debug("workspace removed", "root", w.Root)
	return nil
}

func log() *slog.Logger {
	return logger.WithComponent("sandbox")
}
