package driver

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Lockfile models the scenario.lock contents.
type Lockfile struct {
	Path      string
	Root      string
	Generated string
	Tool      string
	Suites    []*LockedSuite
}

// LockedSuite pins one shared suite to the commit that was installed.
type LockedSuite struct {
	Name     string
	Version  string
	Source   string
	Commit   string
	Path     string
	Checksum string
}

// NewLockfile constructs a lockfile with metadata seeded for the provided root.
func NewLockfile(root, tool string) *Lockfile {
	return &Lockfile{
		Root:      sanitizeSegment(root),
		Generated: time.Now().UTC().Format(time.RFC3339),
		Tool:      strings.TrimSpace(tool),
		Suites:    []*LockedSuite{},
	}
}

// LoadLockfile parses scenario.lock from disk.
func LoadLockfile(path string) (*Lockfile, error) {
	if path == "" {
		return nil, fmt.Errorf("lockfile: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("lockfile: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var raw lockfileDisk
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("lockfile: parse %s: %w", abs, err)
	}

	lock := raw.toLockfile()
	lock.Path = abs
	return lock, nil
}

// WriteLockfile serialises the lockfile back to disk, refreshing metadata.
func WriteLockfile(lock *Lockfile, path string) error {
	if lock == nil {
		return fmt.Errorf("lockfile: nil lockfile")
	}
	if path == "" {
		if lock.Path == "" {
			return fmt.Errorf("lockfile: missing path")
		}
		path = lock.Path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("lockfile: resolve %s: %w", path, err)
	}

	if lock.Generated == "" {
		lock.Generated = time.Now().UTC().Format(time.RFC3339)
	}
	lock.Path = abs
	lock.normalize()

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(lock.toDisk()); err != nil {
		return fmt.Errorf("lockfile: marshal %s: %w", abs, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("lockfile: encoder close: %w", err)
	}
	if err := os.WriteFile(abs, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("lockfile: write %s: %w", abs, err)
	}
	return nil
}

// Suite returns the pinned entry for name.
func (l *Lockfile) Suite(name string) (*LockedSuite, bool) {
	if l == nil {
		return nil, false
	}
	key := sanitizeSegment(name)
	for _, suite := range l.Suites {
		if suite != nil && suite.Name == key {
			return suite, true
		}
	}
	return nil, false
}

// Put adds or replaces the entry with suite's name.
func (l *Lockfile) Put(suite *LockedSuite) {
	if suite == nil {
		return
	}
	suite.Name = sanitizeSegment(suite.Name)
	for idx, existing := range l.Suites {
		if existing != nil && existing.Name == suite.Name {
			l.Suites[idx] = suite
			return
		}
	}
	l.Suites = append(l.Suites, suite)
	l.normalize()
}

// Prune drops entries whose names are not in keep.
func (l *Lockfile) Prune(keep []string) {
	wanted := make(map[string]bool, len(keep))
	for _, name := range keep {
		wanted[sanitizeSegment(name)] = true
	}
	kept := l.Suites[:0]
	for _, suite := range l.Suites {
		if suite != nil && wanted[suite.Name] {
			kept = append(kept, suite)
		}
	}
	l.Suites = kept
}

func (l *Lockfile) normalize() {
	if l == nil {
		return
	}
	l.Root = sanitizeSegment(l.Root)
	l.Tool = strings.TrimSpace(l.Tool)
	sort.SliceStable(l.Suites, func(i, j int) bool {
		return l.Suites[i].Name < l.Suites[j].Name
	})
	for _, suite := range l.Suites {
		if suite == nil {
			continue
		}
		suite.Name = sanitizeSegment(suite.Name)
		suite.Version = strings.TrimSpace(suite.Version)
		suite.Source = strings.TrimSpace(suite.Source)
		suite.Commit = strings.TrimSpace(suite.Commit)
		suite.Path = strings.TrimSpace(suite.Path)
		suite.Checksum = strings.TrimSpace(suite.Checksum)
	}
}

func (l *Lockfile) toDisk() lockfileDisk {
	suites := make([]lockfileSuite, 0, len(l.Suites))
	for _, suite := range l.Suites {
		if suite == nil {
			continue
		}
		suites = append(suites, lockfileSuite{
			Name:     suite.Name,
			Version:  suite.Version,
			Source:   suite.Source,
			Commit:   suite.Commit,
			Path:     suite.Path,
			Checksum: suite.Checksum,
		})
	}
	return lockfileDisk{
		Root:      l.Root,
		Generated: l.Generated,
		Tool:      l.Tool,
		Suites:    suites,
	}
}

type lockfileDisk struct {
	Root      string          `yaml:"root"`
	Generated string          `yaml:"generated"`
	Tool      string          `yaml:"tool"`
	Suites    []lockfileSuite `yaml:"suites"`
}

type lockfileSuite struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	Source   string `yaml:"source"`
	Commit   string `yaml:"commit"`
	Path     string `yaml:"path,omitempty"`
	Checksum string `yaml:"checksum"`
}

func (d lockfileDisk) toLockfile() *Lockfile {
	lock := &Lockfile{
		Root:      d.Root,
		Generated: strings.TrimSpace(d.Generated),
		Tool:      d.Tool,
		Suites:    make([]*LockedSuite, 0, len(d.Suites)),
	}
	for _, suite := range d.Suites {
		lock.Suites = append(lock.Suites, &LockedSuite{
			Name:     suite.Name,
			Version:  suite.Version,
			Source:   suite.Source,
			Commit:   suite.Commit,
			Path:     suite.Path,
			Checksum: suite.Checksum,
		})
	}
	lock.normalize()
	return lock
}
