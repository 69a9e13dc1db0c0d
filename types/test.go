package types

import (
	"fmt"
	"strings"
	"time"
)

// TestPath identifies a test structurally: the absolute path of the suite
// file it was declared in plus the ordered sequence of name segments leading
// to it (outermost describe block first, test name last).
type TestPath struct {
	File string   `json:"file"`
	Path []string `json:"path"`
}

// NewTestPath creates a TestPath from a file and name segments.
func NewTestPath(file string, segments ...string) TestPath {
	return TestPath{File: file, Path: segments}
}

// Equal reports whether two paths identify the same test. Identity is
// structural: the file and the full segment sequence must both match.
func (p TestPath) Equal(other TestPath) bool {
	if p.File != other.File || len(p.Path) != len(other.Path) {
		return false
	}
	for i := range p.Path {
		if p.Path[i] != other.Path[i] {
			return false
		}
	}
	return true
}

// Name returns the innermost segment, the test's own name.
func (p TestPath) Name() string {
	if len(p.Path) == 0 {
		return ""
	}
	return p.Path[len(p.Path)-1]
}

// FullName returns the segments joined with " > ", without the file.
func (p TestPath) FullName() string {
	return strings.Join(p.Path, " > ")
}

// Key returns a string usable as a map key for this path.
func (p TestPath) Key() string {
	return p.File + "::" + strings.Join(p.Path, "/")
}

func (p TestPath) String() string {
	return fmt.Sprintf("%s: %s", p.File, p.FullName())
}

// Hook is a before- or after-hook binding on a test. The name is optional;
// unnamed hooks report with an empty name.
type Hook struct {
	Name string `yaml:"name,omitempty"`
}

// TestDescriptor is the immutable description of one declared test as
// produced by an interface adapter. BeforeHooks are ordered outer-to-inner,
// AfterHooks inner-to-outer, mirroring declaration nesting.
type TestDescriptor struct {
	Path        TestPath
	BeforeHooks []Hook
	AfterHooks  []Hook
	Skipped     bool
	Timeout     time.Duration // per-test override; zero means use the run default
}

// RunConfig is the run configuration handed to the interface adapter and
// carried through a suite run.
type RunConfig struct {
	SuiteFiles    []string      // ordered suite file paths
	Timeout       time.Duration // per-test timeout
	SlowThreshold time.Duration // diagnostic only
	Attempts      int           // max attempts per test, >= 1
}
