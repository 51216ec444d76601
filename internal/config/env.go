package config

import (
	"fmt"
	"strconv"
)

// LookupFunc resolves an environment variable. It is backed by the single
// environment snapshot taken at startup.
type LookupFunc func(key string) (string, bool)

// Environment variables consulted while resolving options.
const (
	EnvRepoRoot    = "BUCKAL_REPO_ROOT"
	EnvSandboxRoot = "BUCKAL_SANDBOX_ROOT"
	EnvKeepSandbox = "BUCKAL_KEEP_TEMP"
	EnvPython      = "BUCKAL_PYTHON"
)

// ApplyEnv fills options left unset on the command line from the
// environment.
func ApplyEnv(opts *Options, lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	if opts.RepoRoot == "" {
		parseEnvString(lookup, EnvRepoRoot, &opts.RepoRoot)
	}
	if opts.SandboxRoot == "" {
		parseEnvString(lookup, EnvSandboxRoot, &opts.SandboxRoot)
	}
	if !opts.KeepSandbox && !opts.InPlace {
		if err := parseEnvBool(lookup, EnvKeepSandbox, &opts.KeepSandbox); err != nil {
			return err
		}
	}
	return nil
}

func parseEnvBool(lookup LookupFunc, key string, dest *bool) error {
	value, ok := lookup(key)
	if !ok || value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvString(lookup LookupFunc, key string, dest *string) {
	if value, ok := lookup(key); ok && value != "" {
		*dest = value
	}
}
