package main

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"

	"scenario/interpreter-go/pkg/driver"
	"scenario/interpreter-go/pkg/world"
)

const tokenScenarios = `
Test "transfer"
  Erc20 Deploy BAT BAT
  Erc20 BAT Faucet Geoff $AMOUNT
  Erc20 BAT Transfer Torrey 40
  Assert Equal (Erc20 BAT TokenBalance Torrey) 40

Pending "later"
  Erc20 BAT Transfer Torrey 1

Test "revert"
  Erc20 Deploy BAT BAT
  Erc20 BAT Transfer Torrey 1
  Assert RevertFailure INSUFFICIENT_BALANCE "revert"
`

const projectManifest = `
name: demo
accounts: [Geoff, Torrey]
env:
  AMOUNT: "100"
`

func TestRunInlineLine(t *testing.T) {
	chdirTemp(t)

	code, stdout, stderr := captureCLI(t, []string{"run", "-e", `Print "hello"`, "-e", "Read (Add 1 2)"})
	if code != exitOK {
		t.Fatalf("exit code = %d, want 0 (stderr=%q)", code, stderr)
	}
	if diff := cmp.Diff("hello\n3\n", stdout); diff != "" {
		t.Fatalf("stdout (-want +got):\n%s", diff)
	}
}

func TestRunScriptReportsLocatedFailure(t *testing.T) {
	dir := chdirTemp(t)
	writeFile(t, filepath.Join(dir, "demo.scen"), `
Print "first"
Assert Equal 1 2
`)

	code, _, stderr := captureCLI(t, []string{"run", "demo.scen"})
	if code != exitFailed {
		t.Fatalf("exit code = %d, want 1 (stderr=%q)", code, stderr)
	}
	if !strings.HasPrefix(stderr, "demo.scen:2:1: error: ") {
		t.Fatalf("stderr = %q, want located diagnostic", stderr)
	}
}

func TestRunRejectsBadLogLevel(t *testing.T) {
	chdirTemp(t)
	code, _, stderr := captureCLI(t, []string{"--log-level", "loud", "run", "-e", "Print 1"})
	if code != exitUsage {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr, "unknown --log-level") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestTestCommandReportsEmptyWorkspace(t *testing.T) {
	chdirTemp(t)
	code, stdout, stderr := captureCLI(t, []string{"test"})
	if code != exitOK {
		t.Fatalf("exit code = %d, want 0 (stderr=%q)", code, stderr)
	}
	if !strings.Contains(stdout, "scen test: no scenario files found") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestTestCommandListsAndRuns(t *testing.T) {
	dir := chdirTemp(t)
	writeFile(t, filepath.Join(dir, driver.ManifestName), projectManifest)
	writeFile(t, filepath.Join(dir, "scenario", "tokens.scen"), tokenScenarios)

	code, stdout, stderr := captureCLI(t, []string{"test", "--list"})
	if code != exitOK {
		t.Fatalf("--list exit code = %d (stderr=%q)", code, stderr)
	}
	for _, want := range []string{"tokens.scen: transfer [run]", "tokens.scen: later [pending]", "tokens.scen: revert [run]"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("--list output missing %q:\n%s", want, stdout)
		}
	}

	code, stdout, stderr = captureCLI(t, []string{"test", "--parallel", "2"})
	if code != exitOK {
		t.Fatalf("exit code = %d, want 0\nstdout=%s\nstderr=%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "2 passed, 0 failed, 1 pending, 0 skipped") {
		t.Fatalf("summary missing:\n%s", stdout)
	}

	code, stdout, _ = captureCLI(t, []string{"test", "--name", "revert"})
	if code != exitOK || !strings.Contains(stdout, "1 passed, 0 failed, 0 pending, 0 skipped") {
		t.Fatalf("--name run: code=%d\n%s", code, stdout)
	}
}

func TestTestCommandFailure(t *testing.T) {
	dir := chdirTemp(t)
	writeFile(t, filepath.Join(dir, driver.ManifestName), projectManifest)
	writeFile(t, filepath.Join(dir, "scenario", "broken.scen"), `
Test "unasserted revert"
  Erc20 Deploy BAT BAT
  Erc20 BAT Transfer Torrey 1
`)

	code, stdout, _ := captureCLI(t, []string{"test", "--fail-fast"})
	if code != exitFailed {
		t.Fatalf("exit code = %d, want 1\n%s", code, stdout)
	}
	if !strings.Contains(stdout, "FAIL") || !strings.Contains(stdout, "unhandled") {
		t.Fatalf("stdout missing failure report:\n%s", stdout)
	}
}

func TestCheckReportsParseErrors(t *testing.T) {
	dir := chdirTemp(t)
	writeFile(t, filepath.Join(dir, "good.scen"), tokenScenarios)
	writeFile(t, filepath.Join(dir, "bad.scen"), `Print (unclosed`)

	code, stdout, stderr := captureCLI(t, []string{"check", "good.scen", "bad.scen"})
	if code != exitFailed {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "ok good.scen (3 tests, 8 steps)") {
		t.Fatalf("stdout = %q", stdout)
	}
	if !strings.HasPrefix(stderr, "bad.scen:1:") {
		t.Fatalf("stderr = %q, want located parse error", stderr)
	}
}

func TestDocsFormats(t *testing.T) {
	code, stdout, _ := captureCLI(t, []string{"docs", "Erc20"})
	if code != exitOK || !strings.Contains(stdout, "Erc20") {
		t.Fatalf("docs Erc20: code=%d\n%s", code, stdout)
	}

	code, stdout, _ = captureCLI(t, []string{"docs", "--format", "html"})
	if code != exitOK {
		t.Fatalf("docs html exit code = %d", code)
	}
	for _, want := range []string{"<!DOCTYPE html>", "<h1>Scenario commands</h1>", "<code>"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("html output missing %q", want)
		}
	}

	if code, _, _ := captureCLI(t, []string{"docs", "--format", "pdf"}); code != exitUsage {
		t.Fatalf("docs pdf exit code = %d, want 2", code)
	}
}

func TestReplKeepsWorldAcrossErrors(t *testing.T) {
	manifest := driver.DefaultManifest(t.TempDir())
	manifest.Accounts = []string{"Geoff"}
	proj := &project{manifest: manifest, env: map[string]string{}}
	var out, errOut bytes.Buffer
	sess, err := proj.newSession(context.Background(), sessionOptions{printer: world.NewConsolePrinter(&out, &errOut)})
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	defer sess.Close()

	r := &repl{interp: sess.interp, world: sess.world.WithStrictOutcomes(false), env: proj.env, out: &out}
	input := strings.Join([]string{
		"Erc20 Deploy BAT BAT",
		"Bogus",
		"Erc20 BAT Faucet Geoff 5",
		"Read (Erc20 BAT TokenBalance Geoff)",
		":quit",
		`Print "never"`,
	}, "\n")
	if code := r.runLines(context.Background(), strings.NewReader(input)); code != exitOK {
		t.Fatalf("runLines = %d", code)
	}
	if !strings.Contains(out.String(), "Faucet 5 BAT to Geoff: Success(True)") || !strings.Contains(out.String(), "\n5\n") {
		t.Fatalf("stdout = %q", out.String())
	}
	if strings.Contains(out.String(), "never") {
		t.Fatalf("input after :quit was evaluated")
	}
	if !strings.Contains(errOut.String(), "Bogus") {
		t.Fatalf("stderr = %q, want error for Bogus", errOut.String())
	}
}

func TestReplCompletion(t *testing.T) {
	r := &repl{interp: newInterpreter()}
	got := r.complete("Erc20 BAT Tra")
	if diff := cmp.Diff([]string{"Erc20 BAT Transfer", "Erc20 BAT TransferFrom"}, got); diff != "" {
		t.Fatalf("complete (-want +got):\n%s", diff)
	}
}

func TestMergeEnv(t *testing.T) {
	env, err := mergeEnv(map[string]string{"A": "1", "B": "2"}, "B=3, C=4")
	if err != nil {
		t.Fatalf("mergeEnv: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"A": "1", "B": "3", "C": "4"}, env); diff != "" {
		t.Fatalf("env (-want +got):\n%s", diff)
	}
	if _, err := mergeEnv(nil, "novalue"); err == nil {
		t.Fatalf("expected error for pair without '='")
	}
}

func TestDepsInstallPinsSuite(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "suites-repo")
	writeFile(t, filepath.Join(repo, "scen", "shared.scen"), `
Test "shared"
  Assert True True
`)
	rev := initGitRepo(t, repo)

	app := filepath.Join(root, "app")
	writeFile(t, filepath.Join(app, driver.ManifestName), `
name: app
suites:
  shared:
    git: `+repo+`
    rev: `+rev+`
    path: scen
`)
	t.Setenv(envHome, filepath.Join(root, "home"))
	chdir(t, app)

	code, stdout, stderr := captureCLI(t, []string{"deps", "install"})
	if code != exitOK {
		t.Fatalf("deps install exit code = %d\nstdout=%s\nstderr=%s", code, stdout, stderr)
	}
	lock, err := driver.LoadLockfile(filepath.Join(app, driver.LockfileName))
	if err != nil {
		t.Fatalf("LoadLockfile: %v", err)
	}
	suite, ok := lock.Suite("shared")
	if !ok {
		t.Fatalf("lockfile missing suite: %#v", lock.Suites)
	}
	if suite.Commit != rev || suite.Version != rev || suite.Source != "git+"+repo {
		t.Fatalf("locked suite = %#v", suite)
	}
	if !strings.HasPrefix(suite.Checksum, "sha256:") {
		t.Fatalf("Checksum = %q", suite.Checksum)
	}

	code, stdout, _ = captureCLI(t, []string{"deps", "install"})
	if code != exitOK || !strings.Contains(stdout, "already up to date") {
		t.Fatalf("second install: code=%d\n%s", code, stdout)
	}

	code, stdout, _ = captureCLI(t, []string{"test"})
	if code != exitOK || !strings.Contains(stdout, "1 passed") {
		t.Fatalf("suite test run: code=%d\n%s", code, stdout)
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	return dir
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(oldWD); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)+"\n"), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

func initGitRepo(t *testing.T, dir string) string {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == filepath.Join(dir, ".git") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		_, err = worktree.Add(filepath.ToSlash(rel))
		return err
	}); err != nil {
		t.Fatalf("stage files: %v", err)
	}
	hash, err := worktree.Commit("init", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "scen",
			Email: "scen@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return hash.String()
}

func captureCLI(t *testing.T, args []string) (int, string, string) {
	t.Helper()

	stdout := os.Stdout
	stderr := os.Stderr

	rOut, wOut, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	rErr, wErr, err := os.Pipe()
	if err != nil {
		t.Fatalf("stderr pipe: %v", err)
	}

	os.Stdout = wOut
	os.Stderr = wErr

	outCh := make(chan []byte)
	errCh := make(chan []byte)
	go func() { data, _ := io.ReadAll(rOut); outCh <- data }()
	go func() { data, _ := io.ReadAll(rErr); errCh <- data }()

	code := run(args)

	if err := wOut.Close(); err != nil {
		t.Fatalf("stdout close: %v", err)
	}
	if err := wErr.Close(); err != nil {
		t.Fatalf("stderr close: %v", err)
	}
	os.Stdout = stdout
	os.Stderr = stderr

	outBytes := <-outCh
	errBytes := <-errCh
	_ = rOut.Close()
	_ = rErr.Close()
	return code, string(outBytes), string(errBytes)
}
