package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownSample is returned when a sample name is not in the catalog.
var ErrUnknownSample = errors.New("unknown sample")

// Sample describes one sample workspace the harness can drive.
type Sample struct {
	// Name is the identifier used on the command line
	Name string `yaml:"name"`

	// Dir is the sample directory relative to the repository root
	Dir string `yaml:"dir"`

	// Git marks samples that are git repositories supporting branch
	// isolation and publishing
	Git bool `yaml:"git"`

	// BaseBranch is the baseline branch the sample must be on before a run
	BaseBranch string `yaml:"base_branch"`

	// PublishRef is the remote branch the working branch is pushed to
	PublishRef string `yaml:"publish_ref"`

	// DefaultTarget is the Buck2 target built when none is given
	DefaultTarget string `yaml:"default_target"`

	// Compat lists sample-specific fixups applied after generation
	Compat Compat `yaml:"compat"`
}

// Compat holds the sample-specific compatibility steps.
type Compat struct {
	// OpenSSLI686 injects the i686 buildscript environment into the
	// generated openssl-sys BUCK file
	OpenSSLI686 bool `yaml:"openssl_i686"`

	// CrossPackagesWithArch are system packages installed for the foreign
	// architecture in Cross.toml (suffixed with :$CROSS_DEB_ARCH)
	CrossPackagesWithArch []string `yaml:"cross_packages_with_arch"`

	// CrossPackages are host-architecture packages installed in Cross.toml
	CrossPackages []string `yaml:"cross_packages"`
}

// NeedsCrossToml reports whether a Cross.toml should be written.
func (c Compat) NeedsCrossToml() bool {
	return len(c.CrossPackagesWithArch) > 0 || len(c.CrossPackages) > 0
}

// DefaultSamples returns the built-in sample catalog.
func DefaultSamples() []Sample {
	return []Sample{
		{
			Name:          "fd",
			Dir:           filepath.Join("test", "3rd", "fd"),
			Git:           true,
			BaseBranch:    "base",
			PublishRef:    "main",
			DefaultTarget: "//:fd",
		},
		{
			Name:          "libra",
			Dir:           filepath.Join("test", "3rd", "libra"),
			Git:           true,
			BaseBranch:    "main",
			PublishRef:    "main",
			DefaultTarget: "//...",
			Compat: Compat{
				OpenSSLI686:           true,
				CrossPackagesWithArch: []string{"libssl-dev", "zlib1g-dev"},
				CrossPackages:         []string{"pkg-config"},
			},
		},
		{
			Name:          "git-internal",
			Dir:           filepath.Join("test", "3rd", "git-internal"),
			DefaultTarget: "//...",
			Compat: Compat{
				CrossPackagesWithArch: []string{"zlib1g-dev"},
				CrossPackages:         []string{"pkg-config"},
			},
		},
		{
			Name:          "rust_test_workspace",
			Dir:           filepath.Join("test", "rust_test_workspace"),
			DefaultTarget: "//apps/demo:demo",
		},
		{
			Name:          "first_party_demo",
			Dir:           filepath.Join("test", "first-party-demo"),
			DefaultTarget: "//:demo-root",
		},
	}
}

// Catalog is the set of samples known to the harness.
type Catalog struct {
	samples map[string]Sample
}

// NewCatalog builds a catalog from samples, filling defaults.
func NewCatalog(samples []Sample) *Catalog {
	c := &Catalog{samples: make(map[string]Sample, len(samples))}
	for _, s := range samples {
		c.put(s)
	}
	return c
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(DefaultSamples())
}

func (c *Catalog) put(s Sample) {
	if s.Git && s.BaseBranch == "" {
		s.BaseBranch = "main"
	}
	if s.Git && s.PublishRef == "" {
		s.PublishRef = "main"
	}
	if s.DefaultTarget == "" {
		s.DefaultTarget = "//..."
	}
	c.samples[s.Name] = s
}

// Lookup returns the named sample.
func (c *Catalog) Lookup(name string) (Sample, error) {
	s, ok := c.samples[name]
	if !ok {
		return Sample{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownSample, name, c.Names())
	}
	return s, nil
}

// Names returns the sample names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.samples))
	for name := range c.samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// catalogFile is the on-disk override format.
type catalogFile struct {
	Samples []Sample `yaml:"samples"`
}

// LoadCatalog returns the built-in catalog merged with overrides from the
// YAML file at path. Entries replace built-in samples with the same name.
// A missing file yields the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return catalog, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sample catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing sample catalog %s: %w", path, err)
	}

	for i, s := range file.Samples {
		if s.Name == "" {
			return nil, fmt.Errorf("sample catalog %s: entry %d has no name", path, i)
		}
		if s.Dir == "" {
			if existing, ok := catalog.samples[s.Name]; ok {
				s.Dir = existing.Dir
			} else {
				return nil, fmt.Errorf("sample catalog %s: sample %q has no dir", path, s.Name)
			}
		}
		catalog.put(s)
	}

	return catalog, nil
}
