// Package driver loads project configuration: the scenario.yml manifest, the
// scenario.lock suite lockfile, and the scenario files a run should execute.
package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fortio.org/log"
	"gopkg.in/yaml.v3"
)

const (
	ManifestName    = "scenario.yml"
	LockfileName    = "scenario.lock"
	DefaultNetwork  = "development"
	DefaultScripts  = "scenario/**/*.scen"
	DefaultStore    = ":memory:"
	DefaultLogLevel = "info"
)

// Manifest represents the parsed contents of scenario.yml.
type Manifest struct {
	Path           string
	Root           string
	Name           string
	Network        string
	LogLevel       string
	DefaultFrom    string
	Accounts       []string
	Aliases        map[string]string
	Scripts        []string
	Taxonomies     []string
	Store          string
	StrictOutcomes bool
	Env            map[string]string
	Suites         map[string]*SuiteSpec
}

// SuiteSpec describes a shared scenario suite fetched from git.
type SuiteSpec struct {
	Name   string
	Git    string
	Rev    string
	Tag    string
	Branch string
	Path   string
}

// ValidationError aggregates manifest validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "manifest: invalid configuration"
	}
	var b strings.Builder
	b.WriteString("manifest validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// DefaultManifest is used when a project has no scenario.yml.
func DefaultManifest(root string) *Manifest {
	return &Manifest{
		Root:           root,
		Name:           sanitizeSegment(filepath.Base(root)),
		Network:        DefaultNetwork,
		LogLevel:       DefaultLogLevel,
		Aliases:        map[string]string{},
		Scripts:        []string{DefaultScripts},
		Store:          DefaultStore,
		StrictOutcomes: true,
		Env:            map[string]string{},
		Suites:         map[string]*SuiteSpec{},
	}
}

// FindManifest walks up from dir looking for scenario.yml. It returns an empty
// path when none exists.
func FindManifest(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("manifest: resolve %s: %w", dir, err)
	}
	for {
		candidate := filepath.Join(abs, ManifestName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", nil
		}
		abs = parent
	}
}

// LoadManifest parses scenario.yml from disk, returning a validated manifest.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("manifest: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: resolve %s: %w", path, err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", absPath, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var raw manifestFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest: %s is empty", absPath)
		}
		return nil, fmt.Errorf("manifest: parse %s: %w", absPath, err)
	}

	manifest := raw.toManifest(absPath)
	if err := manifest.validate(); err != nil {
		return nil, err
	}
	return manifest, nil
}

func (m *Manifest) validate() error {
	var errs ValidationError
	if m.Name == "" {
		errs.Issues = append(errs.Issues, "name must be provided")
	}
	if _, err := log.ValidateLevel(m.LogLevel); err != nil {
		errs.Issues = append(errs.Issues, fmt.Sprintf("log_level %q is not a known level", m.LogLevel))
	}
	seen := make(map[string]int, len(m.Accounts))
	for idx, name := range m.Accounts {
		if name == "" {
			errs.Issues = append(errs.Issues, fmt.Sprintf("accounts[%d] must be a non-empty string", idx))
			continue
		}
		if prev, dup := seen[name]; dup {
			errs.Issues = append(errs.Issues, fmt.Sprintf("accounts[%d] repeats %q from accounts[%d]", idx, name, prev))
			continue
		}
		seen[name] = idx
		if _, clash := m.Aliases[name]; clash {
			errs.Issues = append(errs.Issues, fmt.Sprintf("%q is both an account and an alias", name))
		}
	}
	for name, addr := range m.Aliases {
		if addr == "" {
			errs.Issues = append(errs.Issues, fmt.Sprintf("aliases.%s must be an address", name))
		}
	}
	if m.DefaultFrom != "" {
		_, isAccount := seen[m.DefaultFrom]
		_, isAlias := m.Aliases[m.DefaultFrom]
		if !isAccount && !isAlias && !strings.HasPrefix(m.DefaultFrom, "0x") {
			errs.Issues = append(errs.Issues, fmt.Sprintf("default_from %q names no account or alias", m.DefaultFrom))
		}
	}
	for idx, pattern := range m.Scripts {
		if pattern == "" {
			errs.Issues = append(errs.Issues, fmt.Sprintf("scripts[%d] must be a non-empty pattern", idx))
		}
	}
	for _, name := range m.SuiteNames() {
		for _, issue := range m.Suites[name].validate() {
			errs.Issues = append(errs.Issues, fmt.Sprintf("suites.%s: %s", name, issue))
		}
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

// SuiteNames returns suite names in sorted order.
func (m *Manifest) SuiteNames() []string {
	names := make([]string, 0, len(m.Suites))
	for name := range m.Suites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SettingsBase is the directory holding networks/<network>-settings.yml.
func (m *Manifest) SettingsBase() string {
	return m.Root
}

// StorePath resolves the store DSN. File stores are relative to the project root.
func (m *Manifest) StorePath() string {
	if m.Store == "" || m.Store == DefaultStore || filepath.IsAbs(m.Store) || strings.HasPrefix(m.Store, "file:") {
		return m.Store
	}
	return filepath.Join(m.Root, m.Store)
}

// TaxonomyPaths resolves taxonomy files relative to the project root.
func (m *Manifest) TaxonomyPaths() []string {
	out := make([]string, len(m.Taxonomies))
	for idx, path := range m.Taxonomies {
		if filepath.IsAbs(path) {
			out[idx] = path
		} else {
			out[idx] = filepath.Join(m.Root, path)
		}
	}
	return out
}

func (s *SuiteSpec) validate() []string {
	var errs []string
	if s == nil {
		return []string{"must be a mapping"}
	}
	if s.Git == "" {
		errs = append(errs, "git must be provided")
	}
	pins := 0
	for _, pin := range []string{s.Rev, s.Tag, s.Branch} {
		if pin != "" {
			pins++
		}
	}
	switch {
	case pins == 0:
		errs = append(errs, "requires rev, tag, or branch")
	case pins > 1:
		errs = append(errs, "rev, tag, and branch are mutually exclusive")
	}
	if filepath.IsAbs(s.Path) || strings.HasPrefix(filepath.Clean(s.Path), "..") {
		errs = append(errs, fmt.Sprintf("path %q must stay inside the repository", s.Path))
	}
	return errs
}

type manifestFile struct {
	Name           string                `yaml:"name"`
	Network        string                `yaml:"network"`
	LogLevel       string                `yaml:"log_level"`
	DefaultFrom    string                `yaml:"default_from"`
	Accounts       []string              `yaml:"accounts"`
	Aliases        map[string]string     `yaml:"aliases"`
	Scripts        stringList            `yaml:"scripts"`
	Taxonomies     stringList            `yaml:"taxonomies"`
	Store          string                `yaml:"store"`
	StrictOutcomes *bool                 `yaml:"strict_outcomes"`
	Env            map[string]string     `yaml:"env"`
	Suites         map[string]*suiteYAML `yaml:"suites"`
}

type suiteYAML struct {
	Git    string `yaml:"git"`
	Rev    string `yaml:"rev"`
	Tag    string `yaml:"tag"`
	Branch string `yaml:"branch"`
	Path   string `yaml:"path"`
}

// stringList accepts either a single string or a sequence of strings.
type stringList []string

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = stringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("manifest: expected a string or list of strings")
	}
}

func (mf manifestFile) toManifest(path string) *Manifest {
	result := DefaultManifest(filepath.Dir(path))
	result.Path = path
	result.Name = sanitizeSegment(strings.TrimSpace(mf.Name))
	if network := strings.TrimSpace(mf.Network); network != "" {
		result.Network = network
	}
	if level := strings.TrimSpace(mf.LogLevel); level != "" {
		result.LogLevel = level
	}
	result.DefaultFrom = strings.TrimSpace(mf.DefaultFrom)
	for _, account := range mf.Accounts {
		result.Accounts = append(result.Accounts, strings.TrimSpace(account))
	}
	for name, addr := range mf.Aliases {
		result.Aliases[strings.TrimSpace(name)] = strings.TrimSpace(addr)
	}
	if scripts := trimAll(mf.Scripts); len(scripts) > 0 {
		result.Scripts = scripts
	}
	result.Taxonomies = trimAll(mf.Taxonomies)
	if store := strings.TrimSpace(mf.Store); store != "" {
		result.Store = store
	}
	if mf.StrictOutcomes != nil {
		result.StrictOutcomes = *mf.StrictOutcomes
	}
	for name, value := range mf.Env {
		result.Env[strings.TrimSpace(name)] = value
	}
	for name, suite := range mf.Suites {
		key := sanitizeSegment(name)
		if suite == nil {
			result.Suites[key] = nil
			continue
		}
		result.Suites[key] = &SuiteSpec{
			Name:   key,
			Git:    strings.TrimSpace(suite.Git),
			Rev:    strings.TrimSpace(suite.Rev),
			Tag:    strings.TrimSpace(suite.Tag),
			Branch: strings.TrimSpace(suite.Branch),
			Path:   strings.TrimSpace(suite.Path),
		}
	}
	return result
}

func trimAll(items []string) []string {
	var out []string
	for _, item := range items {
		out = append(out, strings.TrimSpace(item))
	}
	return out
}

func sanitizeSegment(segment string) string {
	segment = strings.TrimSpace(segment)
	var b strings.Builder
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			b.WriteRune(r)
		case r == '-' || r == ' ':
			b.WriteByte('_')
		}
	}
	return b.String()
}
