package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"scenario/interpreter-go/pkg/driver"
)

func runDeps(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "scen deps requires a subcommand (install)")
		return exitUsage
	}
	switch args[0] {
	case "install":
		if len(args) > 1 {
			fmt.Fprintf(os.Stderr, "scen deps install does not take arguments (received %s)\n", strings.Join(args[1:], " "))
			return exitUsage
		}
		return runDepsInstall()
	default:
		fmt.Fprintf(os.Stderr, "unknown deps subcommand %q\n", args[0])
		return exitUsage
	}
}

func runDepsInstall() int {
	manifestPath, err := driver.FindManifest(".")
	if err != nil || manifestPath == "" {
		fmt.Fprintf(os.Stderr, "unable to locate %s\n", driver.ManifestName)
		return exitUsage
	}
	manifest, err := driver.LoadManifest(manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read manifest: %v\n", err)
		return exitUsage
	}
	home, err := scenHome()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve %s: %v\n", envHome, err)
		return exitUsage
	}

	fmt.Fprintf(os.Stdout, "Manifest: %s\n", manifest.Path)
	fmt.Fprintf(os.Stdout, "Suites: %d\n", len(manifest.Suites))
	fmt.Fprintf(os.Stdout, "Cache directory: %s\n", home)

	lockPath := filepath.Join(manifest.Root, driver.LockfileName)
	lock, err := driver.LoadLockfile(lockPath)
	lockCreated := false
	switch {
	case err == nil:
		if lock.Root != manifest.Name {
			fmt.Fprintf(os.Stderr, "lockfile root %q does not match manifest name %q\n", lock.Root, manifest.Name)
			return exitUsage
		}
	case errors.Is(err, fs.ErrNotExist):
		lock = driver.NewLockfile(manifest.Name, cliToolVersion)
		lockCreated = true
	default:
		fmt.Fprintf(os.Stderr, "failed to read lockfile: %v\n", err)
		return exitUsage
	}
	lock.Path = lockPath
	lock.Tool = cliToolVersion

	changed := false
	for _, name := range manifest.SuiteNames() {
		spec := manifest.Suites[name]
		if locked, ok := lock.Suite(name); ok && lockedMatches(home, locked, spec) {
			fmt.Fprintf(os.Stdout, "%s: %s (locked)\n", name, locked.Version)
			continue
		}
		locked, err := fetchSuite(home, spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to install suite %s: %v\n", name, err)
			return exitFailed
		}
		lock.Put(locked)
		changed = true
		fmt.Fprintf(os.Stdout, "%s: %s (installed)\n", name, locked.Version)
	}
	before := len(lock.Suites)
	lock.Prune(manifest.SuiteNames())
	changed = changed || len(lock.Suites) != before

	if changed || lockCreated {
		action := "Updated"
		if lockCreated {
			action = "Created"
		}
		if err := driver.WriteLockfile(lock, lockPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write lockfile: %v\n", err)
			return exitFailed
		}
		fmt.Fprintf(os.Stdout, "%s %s: %s\n", action, driver.LockfileName, lock.Path)
	} else {
		fmt.Fprintf(os.Stdout, "%s already up to date: %s\n", driver.LockfileName, lock.Path)
	}
	fmt.Fprintln(os.Stdout, "Suites installed.")
	return exitOK
}

// lockedMatches reports whether the locked entry still satisfies spec and its
// checkout is present.
func lockedMatches(home string, locked *driver.LockedSuite, spec *driver.SuiteSpec) bool {
	if locked.Source != "git+"+spec.Git || locked.Path != spec.Path {
		return false
	}
	_, descriptor, err := suiteRevision(spec)
	if err != nil || gitPinnedVersion(descriptor, locked.Commit) != locked.Version {
		return false
	}
	_, err = os.Stat(suiteCheckoutDir(home, locked.Name, locked.Commit))
	return err == nil
}

func fetchSuite(home string, spec *driver.SuiteSpec) (*driver.LockedSuite, error) {
	baseDir := filepath.Join(home, "suites", sanitizePathSegment(spec.Name))
	version, commit, err := ensureGitCheckout(baseDir, spec)
	if err != nil {
		return nil, err
	}
	scripts := filepath.Join(suiteCheckoutDir(home, spec.Name, commit), spec.Path)
	if info, err := os.Stat(scripts); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("path %q not found in %s@%s", spec.Path, spec.Git, commit)
	}
	checksum, err := dirChecksum(scripts)
	if err != nil {
		return nil, err
	}
	return &driver.LockedSuite{
		Name:     spec.Name,
		Version:  version,
		Source:   "git+" + spec.Git,
		Commit:   commit,
		Path:     spec.Path,
		Checksum: "sha256:" + checksum,
	}, nil
}

// ensureGitCheckout clones spec into baseDir/<commit> unless that checkout
// already exists.
func ensureGitCheckout(baseDir string, spec *driver.SuiteSpec) (string, string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", "", err
	}
	revision, descriptor, err := suiteRevision(spec)
	if err != nil {
		return "", "", err
	}

	tmpDir, err := os.MkdirTemp(baseDir, "git-fetch-*")
	if err != nil {
		return "", "", err
	}
	if err := os.RemoveAll(tmpDir); err != nil {
		return "", "", err
	}

	repo, err := git.PlainClone(tmpDir, false, &git.CloneOptions{URL: spec.Git})
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("git clone %s: %w", spec.Git, err)
	}
	hash, err := repo.ResolveRevision(revision)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("resolve revision %s: %w", revision, err)
	}

	version := gitPinnedVersion(descriptor, hash.String())
	targetDir := filepath.Join(baseDir, hash.String())
	if _, err := os.Stat(targetDir); err == nil {
		_ = os.RemoveAll(tmpDir)
		return version, hash.String(), nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("git checkout %s: %w", revision, err)
	}
	if err := os.Rename(tmpDir, targetDir); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", err
	}
	return version, hash.String(), nil
}

func suiteRevision(spec *driver.SuiteSpec) (plumbing.Revision, string, error) {
	if rev := strings.TrimSpace(spec.Rev); rev != "" {
		return plumbing.Revision(rev), rev, nil
	}
	if tag := strings.TrimSpace(spec.Tag); tag != "" {
		return plumbing.Revision("refs/tags/" + tag), tag, nil
	}
	if branch := strings.TrimSpace(spec.Branch); branch != "" {
		return plumbing.Revision("refs/heads/" + branch), branch, nil
	}
	return "", "", fmt.Errorf("git suites require rev, tag, or branch")
}

func gitPinnedVersion(descriptor, commit string) string {
	commit = strings.TrimSpace(commit)
	descriptor = strings.TrimSpace(descriptor)
	if commit == "" {
		return descriptor
	}
	if descriptor == "" || descriptor == commit {
		return commit
	}
	return fmt.Sprintf("%s@%s", descriptor, commit)
}

// dirChecksum hashes every file under path by relative name and contents,
// ignoring git metadata.
func dirChecksum(path string) (string, error) {
	h := sha256.New()
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		h.Write([]byte(filepath.ToSlash(rel)))
		h.Write(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func suiteCheckoutDir(home, name, commit string) string {
	return filepath.Join(home, "suites", sanitizePathSegment(name), commit)
}

// scenHome is SCEN_HOME, or ~/.scen.
func scenHome() (string, error) {
	if home := strings.TrimSpace(os.Getenv(envHome)); home != "" {
		abs, err := filepath.Abs(home)
		if err != nil {
			return "", fmt.Errorf("resolve %s %q: %w", envHome, home, err)
		}
		return abs, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(userHome, ".scen"), nil
}

func sanitizePathSegment(segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "head"
	}
	var b strings.Builder
	for _, r := range segment {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
