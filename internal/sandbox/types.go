package sandbox

import "time"

// Workspace is the directory a run operates in. For sandboxed runs it is a
// throwaway copy of the sample; for in-place runs it is the sample itself.
type Workspace struct {
	// Path is the directory every pipeline step runs in
	Path string

	// Root is the temporary directory holding the copy; empty for in-place
	// workspaces
	Root string

	// Sample is the sample name the workspace was provisioned for
	Sample string

	// Keep preserves Root on Cleanup
	Keep bool

	// Created is when the workspace was provisioned
	Created time.Time

	// Status is the current status of this workspace
	Status Status
}

// Status represents the lifecycle state of a workspace
type Status string

const (
	// StatusActive indicates the workspace is in use
	StatusActive Status = "active"

	// StatusKept indicates Cleanup ran but the copy was preserved
	StatusKept Status = "kept"

	// StatusCleaned indicates the copy has been removed
	StatusCleaned Status = "cleaned"
)

// Config holds configuration for provisioning a workspace
type Config struct {
	// SampleDir is the sample project to operate on
	SampleDir string

	// SampleName names the copy inside the temporary root
	SampleName string

	// InPlace operates on SampleDir directly
	InPlace bool

	// Root is the parent of temporary directories; empty uses os.TempDir
	Root string

	// Keep preserves the copy after the run for inspection
	Keep bool
}

// Sandboxed reports whether the workspace is a copy.
func (w *Workspace) Sandboxed() bool {
	return w.Root != ""
}
