// Package patch applies targeted, idempotent rewrites to files produced by
// the generator. Each patch touches only the fragment it knows about and
// reports what it did as an Outcome.
package patch

import (
	"fmt"
	"os"
)

// Status is the result of applying one patch.
type Status string

const (
	// StatusApplied means the file was rewritten
	StatusApplied Status = "applied"

	// StatusSkipped means the patch was not needed or its target was absent
	StatusSkipped Status = "skipped"

	// StatusFailed means the input could not be patched
	StatusFailed Status = "failed"
)

// Outcome describes one patch application.
type Outcome struct {
	// Name identifies the patch
	Name string

	// Path is the file the patch targeted
	Path string

	Status Status

	// Detail is a human-readable explanation
	Detail string

	// Warning marks skips caused by unexpected generator output, as opposed
	// to skips because the patch was already applied
	Warning bool
}

func (o Outcome) String() string {
	return fmt.Sprintf("%s: %s (%s)", o.Name, o.Status, o.Detail)
}

// Failed reports whether the outcome should abort the run.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

func applied(name, path, detail string) Outcome {
	return Outcome{Name: name, Path: path, Status: StatusApplied, Detail: detail}
}

func skipped(name, path, detail string) Outcome {
	return Outcome{Name: name, Path: path, Status: StatusSkipped, Detail: detail}
}

func skippedWarn(name, path, detail string) Outcome {
	return Outcome{Name: name, Path: path, Status: StatusSkipped, Detail: detail, Warning: true}
}

func failed(name, path, detail string) Outcome {
	return Outcome{Name: name, Path: path, Status: StatusFailed, Detail: detail}
}

// readOptional reads path, reporting ok=false when it does not exist.
func readOptional(path string) (data []byte, mode os.FileMode, ok bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, false, nil
		}
		return nil, 0, false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, info.Mode().Perm(), true, nil
}

func writeFile(path string, content string, mode os.FileMode) error {
	if mode == 0 {
		mode = 0644
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
