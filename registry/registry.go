// Package registry is the built-in interface adapter. It reads a YAML
// manifest declaring suite files and their tests, and yields pure, ordered
// test descriptors. The manifest only names tests; their bodies live in the
// worker binary the process spawner launches.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/testflow-dev/testflow/lister"
	"github.com/testflow-dev/testflow/types"
)

// Manifest is a lister.Adapter backed by a manifest file. Descriptors are
// loaded once, at construction, and never mutated afterwards.
type Manifest struct {
	config      Config
	descriptors []types.TestDescriptor
	mu          sync.RWMutex
}

// Config contains manifest adapter configuration.
type Config struct {
	Log            log.Logger
	ManifestFile   string
	DefaultTimeout time.Duration
}

// manifestFile mirrors the YAML manifest layout.
type manifestFile struct {
	Suites []suiteConfig `yaml:"suites"`
}

// suiteConfig declares one suite file. File-level hooks wrap every test in
// the file: before hooks outermost-first, after hooks appended after the
// test's own (inner-to-outer order).
type suiteConfig struct {
	File   string       `yaml:"file"`
	Before []string     `yaml:"before,omitempty"`
	After  []string     `yaml:"after,omitempty"`
	Tests  []testConfig `yaml:"tests"`
}

// testConfig declares one test inside a suite file.
type testConfig struct {
	Path    []string       `yaml:"path"`
	Skip    bool           `yaml:"skip,omitempty"`
	Timeout *time.Duration `yaml:"timeout,omitempty"`
	Before  []string       `yaml:"before,omitempty"`
	After   []string       `yaml:"after,omitempty"`
}

// NewManifest creates a manifest adapter and loads its descriptors.
func NewManifest(cfg Config) (*Manifest, error) {
	if cfg.ManifestFile == "" {
		return nil, fmt.Errorf("manifest file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	m := &Manifest{config: cfg}
	if err := m.load(cfg.ManifestFile); err != nil {
		return nil, err
	}

	cfg.Log.Debug("Manifest loaded", "len(descriptors)", len(m.descriptors))
	return m, nil
}

// Enumerate implements lister.Adapter. The descriptor list is already pure
// and ordered, so enumeration declares it directly.
func (m *Manifest) Enumerate(ctx context.Context, declare func([]types.TestDescriptor), cfg types.RunConfig, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	declare(m.Descriptors())
	return nil
}

// SuiteFiles returns the distinct suite file paths in declaration order.
func (m *Manifest) SuiteFiles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var files []string
	for _, desc := range m.descriptors {
		if !seen[desc.Path.File] {
			seen[desc.Path.File] = true
			files = append(files, desc.Path.File)
		}
	}
	return files
}

// Descriptors returns the declared tests in declaration order.
func (m *Manifest) Descriptors() []types.TestDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.TestDescriptor, len(m.descriptors))
	copy(out, m.descriptors)
	return out
}

func (m *Manifest) load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config.Log.Debug("Reading suite manifest", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading manifest file: %w", err)
	}

	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return &lister.RegistrationError{
			Message: fmt.Sprintf("malformed manifest %s", path),
			Trace:   err.Error(),
		}
	}

	descriptors, err := buildDescriptors(&mf, path)
	if err != nil {
		return err
	}

	m.descriptors = descriptors
	return nil
}

// buildDescriptors converts the manifest into descriptors, resolving suite
// files to absolute paths and preserving declaration order across files.
func buildDescriptors(mf *manifestFile, manifestPath string) ([]types.TestDescriptor, error) {
	base := filepath.Dir(manifestPath)

	var descriptors []types.TestDescriptor
	for _, suite := range mf.Suites {
		if suite.File == "" {
			return nil, &lister.RegistrationError{
				Message: "suite entry is missing a file",
				Trace:   fmt.Sprintf("manifest %s", manifestPath),
			}
		}

		file := suite.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(base, file)
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for suite file %q: %w", suite.File, err)
		}

		for _, tc := range suite.Tests {
			if len(tc.Path) == 0 {
				return nil, &lister.RegistrationError{
					Message: fmt.Sprintf("test in suite %s has an empty path", suite.File),
					Trace:   fmt.Sprintf("manifest %s", manifestPath),
				}
			}

			desc := types.TestDescriptor{
				Path:    types.TestPath{File: abs, Path: tc.Path},
				Skipped: tc.Skip,
			}
			if tc.Timeout != nil {
				desc.Timeout = *tc.Timeout
			}

			// File-level before hooks are outermost, so they come first.
			for _, name := range suite.Before {
				desc.BeforeHooks = append(desc.BeforeHooks, types.Hook{Name: name})
			}
			for _, name := range tc.Before {
				desc.BeforeHooks = append(desc.BeforeHooks, types.Hook{Name: name})
			}

			// After hooks run inner-to-outer: the test's own first, then the
			// file-level ones.
			for _, name := range tc.After {
				desc.AfterHooks = append(desc.AfterHooks, types.Hook{Name: name})
			}
			for _, name := range suite.After {
				desc.AfterHooks = append(desc.AfterHooks, types.Hook{Name: name})
			}

			descriptors = append(descriptors, desc)
		}
	}

	return descriptors, nil
}
