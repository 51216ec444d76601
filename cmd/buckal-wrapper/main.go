package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buck2hub/buckal-harness/internal/config"
	"github.com/buck2hub/buckal-harness/internal/envbuild"
	"github.com/buck2hub/buckal-harness/internal/logger"
	"github.com/buck2hub/buckal-harness/internal/shell"
)

var rootCmd = &cobra.Command{
	Use:   "buckal-wrapper [buckal args...]",
	Short: "Run cargo-buckal from source with the Python library paths it links against",
	Long: `Build and run cargo-buckal from <repo>/cargo-buckal with PYO3_PYTHON,
CARGO_TARGET_DIR and the dynamic library search path set for the current
python3, so the binary finds libpython at run time.

Every argument is passed to "cargo buckal" unchanged, and the exit code of
the child is the exit code of the wrapper.

Examples:
  buckal-wrapper migrate --buck2
  buckal-wrapper migrate --fetch`,
	DisableFlagParsing: true,
	SilenceUsage:       true,
	SilenceErrors:      true,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		code := wrap(ctx, &shell.Exec{}, os.Environ(), args)
		stop()
		os.Exit(code)
	},
}

// wrap runs the generator with args and returns the exit code to report.
func wrap(ctx context.Context, runner shell.Runner, environ []string, args []string) int {
	console := logger.NewConsole(os.Stdout)
	base := envbuild.FromList(environ)

	root, ok := base.Get(config.EnvRepoRoot)
	if !ok || root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get current directory: %v\n", err)
			return 1
		}
		root = config.FindRepoRoot(cwd)
	}
	paths := config.RunConfig{RepoRoot: root}

	interpreter, ok := base.Get(config.EnvPython)
	if !ok || interpreter == "" {
		interpreter = "python3"
	}
	info, err := envbuild.SysconfigProbe{Runner: runner, Interpreter: interpreter, Env: environ}.Probe(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	env := envbuild.Build(base, envbuild.Options{
		Python:         info,
		CargoTargetDir: paths.CargoTargetDir(),
		GOOS:           runtime.GOOS,
	})

	cmd := shell.Command{
		Name: "cargo",
		Args: append([]string{"run", "--quiet", "--manifest-path", paths.GeneratorManifest(), "--", "buckal"}, args...),
		Env:  env.Environ(),
	}
	console.Command(cmd.String(), "")
	return shell.ExitCode(runner.Run(ctx, cmd))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
