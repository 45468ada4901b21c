package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLockfileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockfileName)

	lock := NewLockfile("scen demo", "scen 0.1.0")
	lock.Put(&LockedSuite{Name: "tokens", Version: "v1.0.0@abc", Source: "git+https://example.com/tokens.git", Commit: "abc", Checksum: "sha256:01"})
	lock.Put(&LockedSuite{Name: "markets", Version: "main@def", Source: "git+https://example.com/markets.git", Commit: "def", Path: "scen", Checksum: "sha256:02"})
	if err := WriteLockfile(lock, path); err != nil {
		t.Fatalf("WriteLockfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lockfile: %v", err)
	}
	if !strings.Contains(string(data), "root: scen_demo") {
		t.Fatalf("lockfile missing sanitized root:\n%s", data)
	}

	loaded, err := LoadLockfile(path)
	if err != nil {
		t.Fatalf("LoadLockfile: %v", err)
	}
	var names []string
	for _, suite := range loaded.Suites {
		names = append(names, suite.Name)
	}
	if diff := cmp.Diff([]string{"markets", "tokens"}, names); diff != "" {
		t.Fatalf("suite order (-want +got):\n%s", diff)
	}
	markets, ok := loaded.Suite("markets")
	if !ok {
		t.Fatalf("Suite(markets) missing")
	}
	if markets.Path != "scen" || markets.Commit != "def" {
		t.Fatalf("markets = %#v", markets)
	}
	if loaded.Tool != "scen 0.1.0" {
		t.Fatalf("Tool = %q, want scen 0.1.0", loaded.Tool)
	}
}

func TestLockfilePutReplacesAndPrune(t *testing.T) {
	lock := NewLockfile("demo", "scen")
	lock.Put(&LockedSuite{Name: "tokens", Commit: "abc"})
	lock.Put(&LockedSuite{Name: "markets", Commit: "def"})
	lock.Put(&LockedSuite{Name: "tokens", Commit: "123"})

	if len(lock.Suites) != 2 {
		t.Fatalf("len(Suites) = %d, want 2", len(lock.Suites))
	}
	tokens, _ := lock.Suite("tokens")
	if tokens.Commit != "123" {
		t.Fatalf("tokens.Commit = %q, want 123", tokens.Commit)
	}

	lock.Prune([]string{"markets"})
	if _, ok := lock.Suite("tokens"); ok {
		t.Fatalf("tokens survived Prune")
	}
	if _, ok := lock.Suite("markets"); !ok {
		t.Fatalf("markets removed by Prune")
	}
}

func TestLoadLockfileRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, LockfileName, "root: demo\npackages: []\n")
	if _, err := LoadLockfile(path); err == nil || !strings.Contains(err.Error(), "lockfile: parse") {
		t.Fatalf("error = %v, want parse error", err)
	}
}
