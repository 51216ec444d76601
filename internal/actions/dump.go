package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/buck2hub/buckal-harness/internal/logger"
)

const (
	// DefaultJobPrefix selects the build jobs whose logs are dumped
	DefaultJobPrefix = "b2"

	// DefaultDownloads bounds concurrent log downloads
	DefaultDownloads = 4
)

// DumpOptions configures DumpFailedLogs.
type DumpOptions struct {
	Repo string

	// OutDir receives one directory per run, named by DateSlug
	OutDir string

	// Prefix defaults to DefaultJobPrefix
	Prefix string

	// Concurrency defaults to DefaultDownloads
	Concurrency int
}

// JobDump is the outcome for one matched job.
type JobDump struct {
	Job Job

	// Succeeded jobs are not downloaded
	Succeeded bool

	// Path is the written log, or the error log when Err is set
	Path  string
	Bytes int
	Err   error
}

// DumpFailedLogs downloads the logs of every job of run whose name starts
// with the prefix and that did not succeed. Logs are written to
// <OutDir>/<DateSlug>/<SafeName>_<id>.log. A job whose logs cannot be
// fetched gets a .err.log file instead and does not abort the others.
// Results are in job order; an empty slice means no job matched.
func (c *Client) DumpFailedLogs(ctx context.Context, run *Run, opts DumpOptions) ([]JobDump, error) {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultJobPrefix
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultDownloads
	}

	jobs, err := c.ListJobs(ctx, opts.Repo, run.ID)
	if err != nil {
		return nil, err
	}
	var matched []Job
	for _, job := range jobs {
		if strings.HasPrefix(job.Name, prefix) {
			matched = append(matched, job)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	dir := filepath.Join(opts.OutDir, DateSlug(run.CreatedAt))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	log := logger.WithComponent("actions")
	results := make([]JobDump, len(matched))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, job := range matched {
		results[i].Job = job
		if job.Succeeded() {
			results[i].Succeeded = true
			continue
		}
		g.Go(func() error {
			result := &results[i]
			base := filepath.Join(dir, fmt.Sprintf("%s_%d", SafeName(job.Name), job.ID))

			files, err := c.JobLogs(gctx, opts.Repo, job.ID)
			if err != nil {
				result.Err = err
				result.Path = base + ".err.log"
				log.Warn("job log download failed", "job", job.ID, "error", err)
				msg := fmt.Sprintf("Error fetching logs for job %d: %v\n", job.ID, err)
				if werr := os.WriteFile(result.Path, []byte(msg), 0644); werr != nil {
					return fmt.Errorf("writing %s: %w", result.Path, werr)
				}
				return nil
			}

			combined := combineLogs(files)
			result.Path = base + ".log"
			result.Bytes = len(combined)
			if err := os.WriteFile(result.Path, []byte(combined), 0644); err != nil {
				return fmt.Errorf("writing %s: %w", result.Path, err)
			}
			log.Debug("job log written", "job", job.ID, "path", result.Path, "files", len(files))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func combineLogs(files []LogFile) string {
	parts := make([]string, 0, len(files))
	for _, f := range files {
		parts = append(parts, "# "+f.Name+"\n"+f.Text)
	}
	return strings.TrimRight(strings.Join(parts, "\n\n"), " \t\r\n") + "\n"
}
