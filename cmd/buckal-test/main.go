package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buck2hub/buckal-harness/internal/envbuild"
)

// startupEnv is the process environment captured once in main. Commands read
// variables from it and never from os.Getenv.
var startupEnv envbuild.Environment

var rootCmd = &cobra.Command{
	Use:   "buckal-test",
	Short: "Exercise cargo-buckal against a sample Rust workspace",
	Long: `Generate Buck2 build files for a sample workspace with cargo-buckal and verify
them with buck2.

By default the sample is copied to a temporary workspace which is removed when
the run ends. With --inplace the run happens in the sample directory itself on
a fresh buckal-test-<timestamp> branch, and the result is committed and pushed
unless --no-push is given.

Examples:
  buckal-test                                # fd, sandboxed, build //...
  buckal-test --target libra --multi-platform --cross
  buckal-test --target first_party_demo --skip-build --keep-temp
  buckal-test --target fd --inplace --test   # publish to the sample's remote`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run:           runHarness,
}

func main() {
	startupEnv = envbuild.FromList(os.Environ())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
