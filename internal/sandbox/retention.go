package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// KeptSandbox is a temporary root left behind by a run with keep enabled.
type KeptSandbox struct {
	Path    string
	ModTime time.Time
}

// ListKept returns the temporary roots under root, newest first. Only
// directories carrying the marker written by Provision, next to the sample
// copy it names, are considered.
func ListKept(root string) ([]KeptSandbox, error) {
	if root == "" {
		root = os.TempDir()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No sandbox directory yet
		}
		return nil, fmt.Errorf("failed to read sandbox root: %w", err)
	}

	var kept []KeptSandbox
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), TempPrefix) {
			continue
		}
		if !isWorkspaceRoot(filepath.Join(root, entry.Name())) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log().Warn("failed to stat sandbox", "name", entry.Name(), "error", err)
			continue
		}
		kept = append(kept, KeptSandbox{
			Path:    filepath.Join(root, entry.Name()),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].ModTime.After(kept[j].ModTime)
	})
	return kept, nil
}

// PruneKept removes kept sandboxes under root beyond the newest
// retentionCount. A retentionCount of 0 keeps everything. active is never
// removed. It returns the removed paths.
func PruneKept(root string, retentionCount int, active string) ([]string, error) {
	if retentionCount == 0 {
		return nil, nil
	}
	kept, err := ListKept(root)
	if err != nil {
		return nil, err
	}

	var candidates []KeptSandbox
	for _, k := range kept {
		if k.Path != active {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) <= retentionCount {
		return nil, nil
	}

	var removed []string
	var lastErr error
	for _, k := range candidates[retentionCount:] {
		if err := os.RemoveAll(k.Path); err != nil {
			lastErr = fmt.Errorf("failed to remove sandbox %s: %w", k.Path, err)
			log().Warn("prune failed", "path", k.Path, "error", err)
			continue
		}
		removed = append(removed, k.Path)
	}
	return removed, lastErr
}

// isWorkspaceRoot reports whether dir was created by Provision: it holds the
// marker, and the sample the marker names is copied next to it.
func isWorkspaceRoot(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	if err != nil {
		return false
	}
	sample := strings.TrimSpace(string(data))
	if sample == "" || sample != filepath.Base(sample) || !strings.HasPrefix(filepath.Base(dir), TempPrefix+sample+"-") {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, sample))
	return err == nil && info.IsDir()
}
