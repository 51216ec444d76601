// Package actions queries the GitHub Actions REST API for the latest
// workflow run of a repository and downloads the logs of its failed jobs.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"golang.org/x/time/rate"

	"github.com/buck2hub/buckal-harness/internal/logger"
)

const (
	DefaultBaseURL = "https://api.github.com"
	DefaultRepo    = "yueneiqi/fd-test"
	UserAgent      = "buckal-actions-helper/1.0"

	// PlainLogName names the single log of a response that is not an archive
	PlainLogName = "job.log"
)

// ErrNoRuns is returned by LatestRun when the repository has no workflow runs.
var ErrNoRuns = errors.New("no workflow runs found")

// APIError is a non-success HTTP status from GitHub.
type APIError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *APIError) Error() string {
	reason := strings.TrimSpace(strings.TrimPrefix(e.Status, fmt.Sprint(e.StatusCode)))
	if reason == "" {
		reason = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("GitHub API error (%d): %s", e.StatusCode, reason)
}

// Run is a workflow run. Raw keeps the API payload for verbatim printing.
type Run struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	RunNumber  int    `json:"run_number"`
	Event      string `json:"event"`
	HeadBranch string `json:"head_branch"`
	HeadSHA    string `json:"head_sha"`
	HTMLURL    string `json:"html_url"`
	CreatedAt  string `json:"created_at"`
	HeadCommit *struct {
		Message string `json:"message"`
	} `json:"head_commit"`

	Raw json.RawMessage `json:"-"`
}

// Job is one job of a workflow run.
type Job struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
}

// Succeeded reports whether the job concluded successfully.
func (j Job) Succeeded() bool {
	return strings.EqualFold(j.Conclusion, "success")
}

// LogFile is one member of a job log archive.
type LogFile struct {
	Name string
	Text string
}

// Config holds client configuration
type Config struct {
	// BaseURL defaults to DefaultBaseURL
	BaseURL string

	// Token is sent as a bearer token to the API; optional
	Token string

	// HTTPClient defaults to a client with a 30 second timeout
	HTTPClient *http.Client

	// RequestsPerSecond paces API requests; zero disables pacing
	RequestsPerSecond float64
}

// Client talks to the GitHub Actions API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	// noRedirect stops at the log endpoint's redirect so the signed
	// location can be fetched without credentials
	noRedirect *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an Actions API client.
func NewClient(cfg Config) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	noRedirect := *httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	c := &Client{
		baseURL:    strings.TrimRight(base, "/"),
		token:      cfg.Token,
		http:       httpClient,
		noRedirect: &noRedirect,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// HasToken reports whether requests are authenticated.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// LatestRun returns the most recent workflow run, optionally filtered by
// branch.
func (c *Client) LatestRun(ctx context.Context, repo, branch string) (*Run, error) {
	params := url.Values{"per_page": {"1"}}
	if branch != "" {
		params.Set("branch", branch)
	}

	var page struct {
		WorkflowRuns []json.RawMessage `json:"workflow_runs"`
	}
	if err := c.getJSON(ctx, "/repos/"+repo+"/actions/runs?"+params.Encode(), &page); err != nil {
		return nil, err
	}
	if len(page.WorkflowRuns) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoRuns, repo)
	}

	raw := page.WorkflowRuns[0]
	run := &Run{Raw: raw}
	if err := json.Unmarshal(raw, run); err != nil {
		return nil, fmt.Errorf("decoding workflow run: %w", err)
	}
	return run, nil
}

// ListJobs returns the jobs of a run.
func (c *Client) ListJobs(ctx context.Context, repo string, runID int64) ([]Job, error) {
	var page struct {
		Jobs []Job `json:"jobs"`
	}
	path := fmt.Sprintf("/repos/%s/actions/runs/%d/jobs?per_page=100", repo, runID)
	if err := c.getJSON(ctx, path, &page); err != nil {
		return nil, err
	}
	return page.Jobs, nil
}

// JobLogs downloads the log archive of a job. Archive members are returned
// sorted by name; a response that is not an archive becomes a single
// PlainLogName entry.
func (c *Client) JobLogs(ctx context.Context, repo string, jobID int64) ([]LogFile, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/actions/jobs/%d/logs", c.baseURL, repo, jobID)
	req, err := c.newRequest(ctx, endpoint, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(c.noRedirect, req)
	if err != nil {
		return nil, fmt.Errorf("fetching job %d logs: %w", jobID, err)
	}
	defer resp.Body.Close()

	if isRedirect(resp.StatusCode) {
		location, err := resp.Location()
		if err != nil {
			return nil, fmt.Errorf("job %d logs redirect without location: %w", jobID, err)
		}
		logger.WithComponent("actions").Debug("following log redirect", "job", jobID, "host", location.Host)

		blobReq, err := c.newRequest(ctx, location.String(), false)
		if err != nil {
			return nil, err
		}
		blobReq.Header.Set("Accept", "*/*")
		blob, err := c.do(c.http, blobReq)
		if err != nil {
			return nil, fmt.Errorf("fetching job %d log blob: %w", jobID, err)
		}
		defer blob.Body.Close()
		resp = blob
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading job %d logs: %w", jobID, err)
	}
	return expandLogs(raw, resp.Header.Get("Content-Type"))
}

func expandLogs(raw []byte, contentType string) ([]LogFile, error) {
	archive, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		if strings.Contains(contentType, "zip") {
			return nil, fmt.Errorf("reading log archive: %w", err)
		}
		return []LogFile{{Name: PlainLogName, Text: text(raw)}}, nil
	}

	members := make([]*zip.File, 0, len(archive.File))
	for _, f := range archive.File {
		if f.FileInfo().IsDir() {
			continue
		}
		members = append(members, f)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].Name < members[j].Name
	})

	files := make([]LogFile, 0, len(members))
	for _, f := range members {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		files = append(files, LogFile{Name: f.Name, Text: text(content)})
	}
	return files, nil
}

func text(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	req, err := c.newRequest(ctx, c.baseURL+path, true)
	if err != nil {
		return err
	}
	resp, err := c.do(c.http, req)
	if err != nil {
		return fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, target string, auth bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", UserAgent)
	if auth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(httpClient *http.Client, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	return httpClient.Do(req)
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func apiError(resp *http.Response) error {
	return &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		URL:        resp.Request.URL.String(),
	}
}
