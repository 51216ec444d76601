package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/buck2hub/buckal-harness/internal/branch"
	"github.com/buck2hub/buckal-harness/internal/config"
	"github.com/buck2hub/buckal-harness/internal/git"
	"github.com/buck2hub/buckal-harness/internal/sandbox"
)

var pruneBranchesCmd = &cobra.Command{
	Use:   "prune-branches",
	Short: "Delete buckal-test-* branches left behind by in-place runs",
	Long: `Delete local buckal-test-<timestamp> branches of a git sample.

Every --inplace run creates a working branch in the sample repository. This
command removes those older than the retention period. The checked out
branch is never deleted.

Examples:
  buckal-test prune-branches --target fd
  buckal-test prune-branches --target libra --retention-days 0
  buckal-test prune-branches --dry-run`,
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		retentionDays, _ := cmd.Flags().GetInt("retention-days")
		ctx := context.Background()

		cfg, err := resolveSample(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !cfg.Sample.Git {
			fmt.Printf("Sample %s is not a git repository; nothing to prune\n", cfg.Sample.Name)
			return
		}

		gitOps, err := git.NewGit(ctx, git.Config{Env: startupEnv.Environ()})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to initialize git: %v\n", err)
			os.Exit(1)
		}
		manager, err := branch.NewManager(branch.Config{Git: gitOps})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if dryRun {
			fmt.Printf("%s\n", color.YellowString("DRY RUN MODE - No branches will be deleted"))
		}
		fmt.Printf("Scanning %s for harness branches (retention: %d days)...\n\n", cfg.SampleDir(), retentionDays)

		result, err := manager.Prune(ctx, branch.PruneOptions{
			RepoPath:  cfg.SampleDir(),
			Retention: time.Duration(retentionDays) * 24 * time.Hour,
			DryRun:    dryRun,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: branch cleanup failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(git.SummarizeStaleBranches(result.Found))
		for _, f := range result.Failures {
			fmt.Fprintf(os.Stderr, "%s %v\n", color.YellowString("warning:"), f)
		}
		deleted := result.Deleted

		fmt.Println()
		if dryRun {
			fmt.Printf("Would delete %d branch(es)\n", len(deleted))
			fmt.Printf("Run without --dry-run to perform cleanup\n")
		} else {
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s Deleted %d branch(es)\n", green("✓"), len(deleted))
		}
	},
}

var pruneTempCmd = &cobra.Command{
	Use:   "prune-temp",
	Short: "Remove temporary workspaces kept with --keep-temp",
	Long: `Remove temporary workspaces retained by earlier --keep-temp runs, keeping the
newest --keep of them.

Examples:
  buckal-test prune-temp              # keep the 3 newest
  buckal-test prune-temp --keep 0     # list only
  buckal-test prune-temp --keep 1 --sandbox-root /scratch`,
	Run: func(cmd *cobra.Command, args []string) {
		keep, _ := cmd.Flags().GetInt("keep")
		root, _ := cmd.Flags().GetString("sandbox-root")
		if root == "" {
			root, _ = startupEnv.Get(config.EnvSandboxRoot)
		}

		kept, err := sandbox.ListKept(root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(kept) == 0 {
			fmt.Println("No kept workspaces found.")
			return
		}
		for _, k := range kept {
			fmt.Printf("  %s (%s)\n", k.Path, humanize.Time(k.ModTime))
		}

		removed, err := sandbox.PruneKept(root, keep, "")
		for _, path := range removed {
			fmt.Printf("Removed %s\n", path)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Removed %d workspace(s)\n", green("✓"), len(removed))
	},
}

// resolveSample resolves --target against the catalog of the repository
// without the run-only validation.
func resolveSample(cmd *cobra.Command) (config.RunConfig, error) {
	name, _ := cmd.Flags().GetString("target")
	root, _ := cmd.Flags().GetString("repo-root")
	if root == "" {
		root, _ = startupEnv.Get(config.EnvRepoRoot)
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return config.RunConfig{}, fmt.Errorf("failed to get current directory: %w", err)
		}
		root = config.FindRepoRoot(cwd)
	}
	catalog, err := config.LoadCatalog(filepath.Join(root, config.DefaultCatalogFile))
	if err != nil {
		return config.RunConfig{}, err
	}
	return config.Resolve(config.Options{RepoRoot: root, Sample: name}, catalog)
}

func init() {
	pruneBranchesCmd.Flags().String("target", config.DefaultSample, "sample whose repository is pruned")
	pruneBranchesCmd.Flags().String("repo-root", "", "harness repository root")
	pruneBranchesCmd.Flags().Int("retention-days", 7, "only delete branches older than this many days")
	pruneBranchesCmd.Flags().Bool("dry-run", false, "show what would be deleted without deleting")

	pruneTempCmd.Flags().Int("keep", 3, "number of newest kept workspaces to retain (0 lists only)")
	pruneTempCmd.Flags().String("sandbox-root", "", "parent directory of temporary workspaces")

	rootCmd.AddCommand(pruneBranchesCmd)
	rootCmd.AddCommand(pruneTempCmd)
}
