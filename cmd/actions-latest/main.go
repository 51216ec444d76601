package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/buck2hub/buckal-harness/internal/actions"
	"github.com/buck2hub/buckal-harness/internal/logger"
)

// errNoToken is returned when log download is requested without credentials.
var errNoToken = errors.New("log download requires authentication. Set --token, GITHUB_TOKEN, or GITHUB_ACCESS_TOKEN with actions:read scope")

var rootCmd = &cobra.Command{
	Use:   "actions-latest",
	Short: "Show the most recent GitHub Actions run of a repository",
	Long: `Fetch and print the most recent GitHub Actions workflow run for a repository.

Authentication is optional for the summary; set GITHUB_TOKEN (or put it in a
.env file) to raise rate limits or read private runs. --dump-log downloads the
logs of unsuccessful b2* jobs and requires a token with actions:read scope.

Examples:
  actions-latest
  actions-latest --repo owner/repo --branch main --json
  actions-latest --dump-log --out-dir log`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return run(ctx, cmd, os.Stdout, os.Stderr, os.Getenv)
	},
}

func init() {
	registerFlags(rootCmd)
}

func registerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("repo", actions.DefaultRepo, "owner/repo to query")
	flags.String("branch", "", "optional branch filter")
	flags.String("token", "", "GitHub token; falls back to GITHUB_TOKEN or GITHUB_ACCESS_TOKEN")
	flags.Bool("json", false, "print raw JSON for the latest run")
	flags.Bool("dump-log", false, "download logs of unsuccessful jobs whose name starts with --job-prefix")
	flags.String("job-prefix", actions.DefaultJobPrefix, "job name prefix selected by --dump-log")
	flags.String("out-dir", "log", "directory receiving dumped logs")
	flags.String("api-url", actions.DefaultBaseURL, "GitHub API base URL")
	flags.Float64("rate", 5, "maximum API requests per second")
	flags.Int("concurrency", actions.DefaultDownloads, "concurrent log downloads")
}

func run(ctx context.Context, cmd *cobra.Command, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := cmd.Flags()
	repo, _ := flags.GetString("repo")
	branch, _ := flags.GetString("branch")
	explicit, _ := flags.GetString("token")
	asJSON, _ := flags.GetBool("json")
	dumpLog, _ := flags.GetBool("dump-log")
	apiURL, _ := flags.GetString("api-url")
	perSecond, _ := flags.GetFloat64("rate")

	token := actions.ResolveToken(explicit, getenv)
	if dumpLog && token == "" {
		return errNoToken
	}

	client, err := actions.NewClient(actions.Config{BaseURL: apiURL, Token: token, RequestsPerSecond: perSecond})
	if err != nil {
		return err
	}

	latest, err := client.LatestRun(ctx, repo, branch)
	if err != nil {
		return err
	}

	if asJSON {
		out, err := actions.IndentRaw(latest)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, out)
	} else {
		fmt.Fprintln(stdout, actions.FormatRun(latest))
	}

	if !dumpLog {
		return nil
	}

	prefix, _ := flags.GetString("job-prefix")
	outDir, _ := flags.GetString("out-dir")
	concurrency, _ := flags.GetInt("concurrency")
	dumps, err := client.DumpFailedLogs(ctx, latest, actions.DumpOptions{
		Repo:        repo,
		OutDir:      outDir,
		Prefix:      prefix,
		Concurrency: concurrency,
	})
	if len(dumps) == 0 && err == nil {
		fmt.Fprintf(stderr, "No jobs with name starting with '%s' found.\n", prefix)
		return nil
	}
	for _, d := range dumps {
		switch {
		case d.Succeeded:
			fmt.Fprintf(stdout, "job '%s' succeeded; logs not fetched\n", d.Job.Name)
		case d.Err != nil:
			fmt.Fprintf(stderr, "%s Failed to fetch logs for job %d: %v (saved to %s)\n",
				color.YellowString("warning:"), d.Job.ID, d.Err, d.Path)
		case d.Path != "":
			fmt.Fprintf(stdout, "job '%s' failed; logs written to %s (%s)\n",
				d.Job.Name, d.Path, humanize.Bytes(uint64(d.Bytes)))
		}
	}
	return err
}

func main() {
	// Tokens may live in a .env file next to the invocation
	_ = godotenv.Load()

	if err := logger.Init(logger.Config{}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
