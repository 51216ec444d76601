package actions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatRun renders a run summary, one field per line, with timestamps in
// the local zone.
func FormatRun(run *Run) string {
	name := orDefault(run.Name, "unknown workflow")
	status := orDefault(run.Status, "unknown")
	conclusion := orDefault(run.Conclusion, "pending")
	number := "n/a"
	if run.RunNumber != 0 {
		number = fmt.Sprint(run.RunNumber)
	}
	sha := run.HeadSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}

	lines := []string{
		"workflow : " + name,
		fmt.Sprintf("run      : #%s (%s on %s)", number, orDefault(run.Event, "n/a"), orDefault(run.HeadBranch, "n/a")),
		fmt.Sprintf("status   : %s / %s", status, conclusion),
		"created  : " + formatTimestamp(run.CreatedAt),
		"sha      : " + sha,
	}
	if run.HeadCommit != nil && run.HeadCommit.Message != "" {
		first, _, _ := strings.Cut(run.HeadCommit.Message, "\n")
		lines = append(lines, "commit: "+strings.TrimRight(first, "\r"))
	}
	lines = append(lines, "url      : "+orDefault(run.HTMLURL, "n/a"))
	return strings.Join(lines, "\n")
}

// IndentRaw pretty-prints the API payload of a run.
func IndentRaw(run *Run) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, run.Raw, "", "  "); err != nil {
		return "", fmt.Errorf("formatting run JSON: %w", err)
	}
	return buf.String(), nil
}

func formatTimestamp(ts string) string {
	if ts == "" {
		return "unknown time"
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format("2006-01-02 15:04:05 MST"), humanize.Time(t))
}

// DateSlug names the log directory of a run after its creation minute.
func DateSlug(ts string) string {
	if ts == "" {
		return "unknown"
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "unknown"
	}
	return t.Local().Format("2006-01-02_15-04")
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// SafeName makes a job name usable as a file name.
func SafeName(name string) string {
	cleaned := unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if cleaned == "" {
		return "job"
	}
	return cleaned
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
