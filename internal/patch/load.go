package patch

import (
	"fmt"
	"strings"
)

// LoadPatchName identifies load statement edits in outcomes.
const LoadPatchName = "drop-load-symbol"

// DropLoadSymbol removes `, "symbol"` from the first line of the file at
// path that starts a load of bzl. Files without such a line are untouched.
func DropLoadSymbol(path, bzl, symbol string) (Outcome, error) {
	name := LoadPatchName + ":" + symbol
	data, mode, ok, err := readOptional(path)
	if err != nil {
		return failed(name, path, err.Error()), err
	}
	if !ok {
		return skipped(name, path, "file not found"), nil
	}

	prefix := fmt.Sprintf("load(%q", bzl)
	token := fmt.Sprintf(", %q", symbol)

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), prefix) {
			continue
		}
		if !strings.Contains(line, token) {
			return skipped(name, path, "symbol not loaded"), nil
		}
		lines[i] = strings.Replace(line, token, "", 1)
		if err := writeFile(path, strings.Join(lines, "\n"), mode); err != nil {
			return failed(name, path, err.Error()), err
		}
		return applied(name, path, fmt.Sprintf("dropped %s from load of %s", symbol, bzl)), nil
	}
	return skipped(name, path, "no load of "+bzl), nil
}
