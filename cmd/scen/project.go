package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"fortio.org/log"

	"scenario/interpreter-go/pkg/contracts"
	"scenario/interpreter-go/pkg/driver"
	"scenario/interpreter-go/pkg/interpreter"
	"scenario/interpreter-go/pkg/ledger"
	"scenario/interpreter-go/pkg/outcome"
	"scenario/interpreter-go/pkg/world"
)

// project is the configuration a command runs under.
type project struct {
	manifest *driver.Manifest
	lock     *driver.Lockfile
	env      map[string]string
}

// loadProject finds scenario.yml above dir. Without one the defaults apply and
// dir is the project root.
func loadProject(dir string) (*project, error) {
	path, err := driver.FindManifest(dir)
	if err != nil {
		return nil, err
	}
	var manifest *driver.Manifest
	if path == "" {
		root, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		manifest = driver.DefaultManifest(root)
	} else {
		manifest, err = driver.LoadManifest(path)
		if err != nil {
			return nil, err
		}
	}
	lock, err := loadLockfileForManifest(manifest)
	if err != nil {
		return nil, err
	}
	env, err := mergeEnv(manifest.Env, os.Getenv(envScenEnv))
	if err != nil {
		return nil, err
	}
	return &project{manifest: manifest, lock: lock, env: env}, nil
}

func loadLockfileForManifest(manifest *driver.Manifest) (*driver.Lockfile, error) {
	if manifest.Path == "" {
		return nil, nil
	}
	path := filepath.Join(manifest.Root, driver.LockfileName)
	lock, err := driver.LoadLockfile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return lock, nil
}

// mergeEnv overlays SCEN_ENV (`k=v,k=v`) on the manifest env.
func mergeEnv(base map[string]string, overrides string) (map[string]string, error) {
	env := make(map[string]string, len(base))
	for k, v := range base {
		env[k] = v
	}
	for _, pair := range strings.Split(overrides, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%s: expected k=v, got %q", envScenEnv, pair)
		}
		env[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return env, nil
}

// sessionOptions vary how a session's world is built.
type sessionOptions struct {
	// store overrides the manifest store; tests use a fresh in-memory ledger.
	store string
	// persist loads and saves network settings.
	persist bool
	printer world.Printer
}

// session is one interpreter and world over one ledger.
type session struct {
	interp *interpreter.Interpreter
	world  *world.World
	ledger *ledger.Ledger
}

func (s *session) Close() error {
	return s.ledger.Close()
}

func newInterpreter() *interpreter.Interpreter {
	interp := interpreter.New()
	contracts.Register(interp)
	return interp
}

func (p *project) newSession(ctx context.Context, opts sessionOptions) (*session, error) {
	m := p.manifest
	store := opts.store
	if store == "" {
		store = m.StorePath()
	}
	accounts := ledger.DefaultAccounts
	if len(m.Accounts) > accounts {
		accounts = len(m.Accounts)
	}
	l, err := ledger.Open(ctx, store, accounts)
	if err != nil {
		return nil, err
	}

	taxonomies := outcome.DefaultRegistry()
	for _, path := range m.TaxonomyPaths() {
		if err := taxonomies.MergeFile(path); err != nil {
			l.Close()
			return nil, err
		}
	}

	aliases := make(map[string]string, len(m.Aliases)+len(m.Accounts))
	var settings *world.Settings
	if opts.persist && m.Path != "" {
		settings, err = world.LoadSettings(world.SettingsPath(m.SettingsBase(), m.Network), m.Network)
		if err != nil {
			l.Close()
			return nil, err
		}
	}
	for name, addr := range m.Aliases {
		aliases[name] = addr
	}
	for idx, name := range m.Accounts {
		aliases[name] = l.Accounts()[idx]
	}

	from := m.DefaultFrom
	if from == "" && len(m.Accounts) > 0 {
		from = m.Accounts[0]
	}
	printer := opts.printer
	if printer == nil {
		printer = world.NewConsolePrinter(os.Stdout, os.Stderr)
	}
	w := world.New(world.Config{
		Remote:         l,
		Printer:        printer,
		Taxonomies:     taxonomies,
		Aliases:        aliases,
		DefaultFrom:    from,
		Settings:       settings,
		StrictOutcomes: m.StrictOutcomes,
	})
	log.LogVf("session on %s: %d accounts, %d aliases", store, accounts, len(aliases))
	return &session{interp: newInterpreter(), world: w, ledger: l}, nil
}
