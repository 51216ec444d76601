package patch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSections is returned when a config file has no section header.
var ErrNoSections = errors.New("no section headers found")

// CellsPatchName identifies the .buckconfig rewrite in outcomes.
const CellsPatchName = "buckconfig-cells"

// KeptSections are carried over from the generated file after the fixed
// blocks, in this order, when present. The bundle cell's own section is
// appended by Render.
var KeptSections = []string{"parser", "build", "project"}

// Sections is a parsed .buckconfig. Lines belong to the most recently seen
// header; repeated headers merge into one section.
type Sections struct {
	order  []string
	bodies map[string][]string
}

// ParseSections splits text into sections. Lines before the first header
// are dropped.
func ParseSections(text string) (*Sections, error) {
	s := &Sections{bodies: make(map[string][]string)}
	current := ""
	seen := false

	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) >= 2 && strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			current = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			seen = true
			if _, ok := s.bodies[current]; !ok {
				s.order = append(s.order, current)
				s.bodies[current] = nil
			}
			continue
		}
		if !seen {
			continue
		}
		s.bodies[current] = append(s.bodies[current], line)
	}

	if !seen {
		return nil, ErrNoSections
	}
	return s, nil
}

// Names returns section names in first-seen order.
func (s *Sections) Names() []string {
	return append([]string(nil), s.order...)
}

// Has reports whether the section was present.
func (s *Sections) Has(name string) bool {
	_, ok := s.bodies[name]
	return ok
}

// Body returns the section's lines without trailing blank lines.
func (s *Sections) Body(name string) []string {
	body := s.bodies[name]
	end := len(body)
	for end > 0 && strings.TrimSpace(body[end-1]) == "" {
		end--
	}
	return append([]string(nil), body[:end]...)
}

// Render emits the canonical file: the fixed [cells] block pointing
// toolchains and the bundle cell at bundleCell, [cell_aliases] if present,
// the fixed [external_cells] block, then KeptSections and the bundleCell
// section if present. Render(Parse(Render(x))) == Render(x).
func (s *Sections) Render(bundleCell string) string {
	var b strings.Builder
	block := func(name string, lines []string) {
		fmt.Fprintf(&b, "[%s]\n", name)
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	block("cells", []string{
		"  root = .",
		"  prelude = prelude",
		"  toolchains = " + bundleCell + "/config/toolchains",
		"  none = none",
		"  buckal = " + bundleCell,
	})
	if s.Has("cell_aliases") {
		block("cell_aliases", s.Body("cell_aliases"))
	}
	block("external_cells", []string{"  prelude = bundled"})

	for _, name := range keptSectionNames(bundleCell) {
		if s.Has(name) {
			block(name, s.Body(name))
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func keptSectionNames(bundleCell string) []string {
	names := append([]string(nil), KeptSections...)
	for _, n := range []string{"buckal", bundleCell} {
		dup := false
		for _, existing := range names {
			if existing == n {
				dup = true
				break
			}
		}
		if !dup && n != "" {
			names = append(names, n)
		}
	}
	return names
}

// RewriteCells rewrites the .buckconfig at path into canonical form. A
// missing file is skipped; a file without any section header fails.
func RewriteCells(path, bundleCell string) (Outcome, error) {
	data, mode, ok, err := readOptional(path)
	if err != nil {
		return failed(CellsPatchName, path, err.Error()), err
	}
	if !ok {
		return skippedWarn(CellsPatchName, path, "file not found"), nil
	}

	sections, err := ParseSections(string(data))
	if err != nil {
		return failed(CellsPatchName, path, err.Error()), nil
	}

	rendered := sections.Render(bundleCell)
	if rendered == string(data) {
		return skipped(CellsPatchName, path, "already canonical"), nil
	}
	if err := writeFile(path, rendered, mode); err != nil {
		return failed(CellsPatchName, path, err.Error()), err
	}
	return applied(CellsPatchName, path, "rewrote cells for bundle "+bundleCell), nil
}
