package world

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings are the per-network values persisted between runs.
type Settings struct {
	Path    string
	Network string
	Aliases map[string]string
}

// SettingsPath returns networks/<network>-settings.yml under base.
func SettingsPath(base, network string) string {
	return filepath.Join(base, "networks", network+"-settings.yml")
}

// LoadSettings reads settings from path. A missing file yields empty settings
// bound to that path.
func LoadSettings(path, network string) (*Settings, error) {
	settings := &Settings{Path: path, Network: network, Aliases: map[string]string{}}
	if path == "" {
		return settings, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return settings, nil
		}
		return nil, fmt.Errorf("settings: open %s: %w", path, err)
	}
	defer file.Close()

	var raw settingsDisk
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	if strings.TrimSpace(raw.Network) != "" {
		settings.Network = strings.TrimSpace(raw.Network)
	}
	for name, addr := range raw.Aliases {
		settings.Aliases[strings.TrimSpace(name)] = strings.TrimSpace(addr)
	}
	return settings, nil
}

// SaveSettings writes the world's aliases back to its settings file, when the
// world was created with one.
func (w *World) SaveSettings() error {
	if w.settings == nil || w.settings.Path == "" {
		return nil
	}
	disk := settingsDisk{Network: w.settings.Network, Aliases: map[string]string{}}
	for _, name := range w.AliasNames() {
		disk.Aliases[name] = w.aliases[name]
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(disk); err != nil {
		return fmt.Errorf("settings: marshal %s: %w", w.settings.Path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("settings: encoder close: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.settings.Path), 0o755); err != nil {
		return fmt.Errorf("settings: mkdir %s: %w", filepath.Dir(w.settings.Path), err)
	}
	if err := os.WriteFile(w.settings.Path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", w.settings.Path, err)
	}
	return nil
}

type settingsDisk struct {
	Network string            `yaml:"network,omitempty"`
	Aliases map[string]string `yaml:"aliases"`
}
