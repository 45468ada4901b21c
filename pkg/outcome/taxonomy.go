package outcome

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomies.yml
var defaultTaxonomies []byte

// Taxonomy maps a subsystem's numeric error and failure-info codes to names. A nil
// *Taxonomy knows no names and renders codes as numbers.
type Taxonomy struct {
	Name      string
	errors    codeTable
	info      codeTable
	rejection string
	detailRef string
	detail    *Taxonomy
}

type codeTable struct {
	byName map[string]int
	byCode map[int]string
}

func newCodeTable(entries map[string]int) (codeTable, error) {
	table := codeTable{byName: make(map[string]int, len(entries)), byCode: make(map[int]string, len(entries))}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		code := entries[name]
		if other, ok := table.byCode[code]; ok {
			return codeTable{}, fmt.Errorf("code %d is assigned to both %s and %s", code, other, name)
		}
		table.byName[name] = code
		table.byCode[code] = name
	}
	return table, nil
}

// ErrorName returns the error name for a numeric code.
func (t *Taxonomy) ErrorName(code int) (string, bool) {
	if t == nil {
		return "", false
	}
	name, ok := t.errors.byCode[code]
	return name, ok
}

// ErrorCode returns the numeric code for an error name.
func (t *Taxonomy) ErrorCode(name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	code, ok := t.errors.byName[name]
	return code, ok
}

// InfoName returns the failure-info name for a numeric code.
func (t *Taxonomy) InfoName(code int) (string, bool) {
	if t == nil {
		return "", false
	}
	name, ok := t.info.byCode[code]
	return name, ok
}

// DetailName renders a failure detail. When the error is this taxonomy's
// cross-subsystem rejection, the detail is an error code of the rejecting
// subsystem and is named through its table.
func (t *Taxonomy) DetailName(errorCode, detail int) string {
	if t != nil && t.rejection != "" && t.detail != nil {
		if name, ok := t.ErrorName(errorCode); ok && name == t.rejection {
			if detailName, ok := t.detail.ErrorName(detail); ok {
				return detailName
			}
		}
	}
	return strconv.Itoa(detail)
}

// FormatResult renders a numeric result as "Error=NAME" when it names a non-zero
// error, or "Result=n" otherwise.
func (t *Taxonomy) FormatResult(result int) string {
	if result != 0 {
		if name, ok := t.ErrorName(result); ok {
			return "Error=" + name
		}
	}
	return "Result=" + strconv.Itoa(result)
}

func (t *Taxonomy) String() string {
	if t == nil {
		return "<none>"
	}
	return t.Name
}

// Registry holds taxonomies by subsystem name.
type Registry struct {
	byName map[string]*Taxonomy
}

// Get returns the named taxonomy or nil.
func (r *Registry) Get(name string) *Taxonomy {
	if r == nil {
		return nil
	}
	return r.byName[strings.ToLower(strings.TrimSpace(name))]
}

// Names lists the registered taxonomies in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns the built-in taxonomies.
func DefaultRegistry() *Registry {
	reg, err := LoadRegistry(bytes.NewReader(defaultTaxonomies))
	if err != nil {
		panic(fmt.Sprintf("taxonomy: builtin tables: %v", err))
	}
	return reg
}

// LoadRegistry parses a taxonomy document.
func LoadRegistry(r io.Reader) (*Registry, error) {
	reg := &Registry{byName: map[string]*Taxonomy{}}
	if err := reg.merge(r); err != nil {
		return nil, err
	}
	return reg, nil
}

// MergeFile adds or replaces taxonomies from a YAML file.
func (r *Registry) MergeFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("taxonomy: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("taxonomy: open %s: %w", abs, err)
	}
	defer file.Close()
	if err := r.merge(file); err != nil {
		return fmt.Errorf("taxonomy: %s: %w", abs, err)
	}
	return nil
}

type taxonomyFile struct {
	Taxonomies []taxonomyDisk `yaml:"taxonomies"`
}

type taxonomyDisk struct {
	Name      string         `yaml:"name"`
	Errors    map[string]int `yaml:"errors"`
	Info      map[string]int `yaml:"info"`
	Rejection *rejectionDisk `yaml:"rejection"`
}

type rejectionDisk struct {
	Error    string `yaml:"error"`
	Taxonomy string `yaml:"taxonomy"`
}

func (r *Registry) merge(src io.Reader) error {
	var raw taxonomyFile
	decoder := yaml.NewDecoder(src)
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return fmt.Errorf("parse: %w", err)
	}
	for _, disk := range raw.Taxonomies {
		name := strings.ToLower(strings.TrimSpace(disk.Name))
		if name == "" {
			return fmt.Errorf("taxonomy without a name")
		}
		errs, err := newCodeTable(disk.Errors)
		if err != nil {
			return fmt.Errorf("%s errors: %w", name, err)
		}
		info, err := newCodeTable(disk.Info)
		if err != nil {
			return fmt.Errorf("%s info: %w", name, err)
		}
		tax := &Taxonomy{Name: name, errors: errs, info: info}
		if disk.Rejection != nil {
			tax.rejection = strings.TrimSpace(disk.Rejection.Error)
			if _, ok := errs.byName[tax.rejection]; !ok {
				return fmt.Errorf("%s rejection error %q is not in its error table", name, tax.rejection)
			}
			tax.detailRef = strings.ToLower(strings.TrimSpace(disk.Rejection.Taxonomy))
		}
		r.byName[name] = tax
	}
	return r.link()
}

func (r *Registry) link() error {
	for _, name := range r.Names() {
		tax := r.byName[name]
		if tax.detailRef == "" {
			continue
		}
		detail, ok := r.byName[tax.detailRef]
		if !ok {
			return fmt.Errorf("%s rejection refers to unknown taxonomy %q", tax.Name, tax.detailRef)
		}
		tax.detail = detail
	}
	return nil
}
