// Package envbuild constructs the ExecutionEnvironment handed to every
// external invocation. The process environment is captured exactly once, at
// startup, and everything downstream works from the immutable value built
// here.
package envbuild

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/buck2hub/buckal-harness/internal/shell"
)

// Variables overridden by Build.
const (
	VarPython         = "PYO3_PYTHON"
	VarCargoTargetDir = "CARGO_TARGET_DIR"
	VarLibraryPath    = "LD_LIBRARY_PATH"
	VarDyldPath       = "DYLD_LIBRARY_PATH"
)

// Environment is an immutable set of environment variables.
type Environment struct {
	vars map[string]string
}

// FromList parses KEY=VALUE entries as returned by os.Environ. Later
// entries win.
func FromList(list []string) Environment {
	vars := make(map[string]string, len(list))
	for _, kv := range list {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		vars[key] = value
	}
	return Environment{vars: vars}
}

// Get returns the value of key.
func (e Environment) Get(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// With returns a copy of e with key set to value.
func (e Environment) With(key, value string) Environment {
	vars := make(map[string]string, len(e.vars)+1)
	for k, v := range e.vars {
		vars[k] = v
	}
	vars[key] = value
	return Environment{vars: vars}
}

// Environ returns the environment as sorted KEY=VALUE entries. The zero
// Environment returns nil, which child processes treat as inherit.
func (e Environment) Environ() []string {
	if e.vars == nil {
		return nil
	}
	out := make([]string, 0, len(e.vars))
	for k, v := range e.vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of variables.
func (e Environment) Len() int {
	return len(e.vars)
}

// PythonInfo describes the interpreter the generator binds to.
type PythonInfo struct {
	// Executable is the interpreter path exported as PYO3_PYTHON
	Executable string

	// LibDirs are directories holding libpython, in priority order
	LibDirs []string
}

// PythonProbe discovers PythonInfo.
type PythonProbe interface {
	Probe(ctx context.Context) (PythonInfo, error)
}

// sysconfigScript prints the interpreter path and its library directories.
const sysconfigScript = `import json, sys, sysconfig
print(json.dumps({"executable": sys.executable, "LIBDIR": sysconfig.get_config_var("LIBDIR") or "", "LIBPL": sysconfig.get_config_var("LIBPL") or ""}))`

// SysconfigProbe asks the interpreter itself through sysconfig.
type SysconfigProbe struct {
	Runner      shell.Runner
	Interpreter string
	Env         []string
}

// Probe implements PythonProbe.
func (p SysconfigProbe) Probe(ctx context.Context) (PythonInfo, error) {
	interpreter := p.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}

	res, err := p.Runner.Output(ctx, shell.Command{
		Name: interpreter,
		Args: []string{"-c", sysconfigScript},
		Env:  p.Env,
	})
	if err != nil {
		return PythonInfo{}, fmt.Errorf("probing %s: %w", interpreter, err)
	}
	return parseSysconfig(res.Stdout)
}

func parseSysconfig(out string) (PythonInfo, error) {
	out = strings.TrimSpace(out)
	if !gjson.Valid(out) {
		return PythonInfo{}, fmt.Errorf("unexpected sysconfig output: %q", out)
	}

	parsed := gjson.Parse(out)
	info := PythonInfo{Executable: parsed.Get("executable").String()}
	if info.Executable == "" {
		return PythonInfo{}, fmt.Errorf("sysconfig output has no executable")
	}

	for _, key := range []string{"LIBDIR", "LIBPL"} {
		if dir := parsed.Get(key).String(); dir != "" {
			info.LibDirs = append(info.LibDirs, dir)
		}
	}
	info.LibDirs = append(info.LibDirs, filepath.Join(filepath.Dir(filepath.Dir(info.Executable)), "lib"))
	return info, nil
}

// Options controls Build.
type Options struct {
	// Python is the interpreter the generator links against
	Python PythonInfo

	// CargoTargetDir is used unless the base environment already sets one
	CargoTargetDir string

	// GOOS selects the dynamic library search variable
	GOOS string
}

// Build derives the ExecutionEnvironment from base.
func Build(base Environment, opts Options) Environment {
	env := base

	if opts.Python.Executable != "" {
		env = env.With(VarPython, opts.Python.Executable)
	}

	if opts.CargoTargetDir != "" {
		if _, ok := env.Get(VarCargoTargetDir); !ok {
			env = env.With(VarCargoTargetDir, opts.CargoTargetDir)
		}
	}

	libVar := LibraryPathVar(opts.GOOS)
	var parts []string
	for _, dir := range opts.Python.LibDirs {
		if dir != "" {
			parts = append(parts, dir)
		}
	}
	if existing, ok := env.Get(libVar); ok && existing != "" {
		parts = append(parts, existing)
	}
	if len(parts) > 0 {
		env = env.With(libVar, strings.Join(parts, ":"))
	}

	return env
}

// LibraryPathVar returns the dynamic linker search variable for goos.
func LibraryPathVar(goos string) string {
	if goos == "darwin" {
		return VarDyldPath
	}
	return VarLibraryPath
}
