package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fortio.org/log"
	"golang.org/x/sync/errgroup"

	"scenario/interpreter-go/pkg/driver"
	"scenario/interpreter-go/pkg/interpreter"
	"scenario/interpreter-go/pkg/ledger"
	"scenario/interpreter-go/pkg/parser"
	"scenario/interpreter-go/pkg/world"
)

type testConfig struct {
	Targets  []string
	Names    []string
	Parallel int
	FailFast bool
	ListOnly bool
}

type testStatus string

const (
	statusPass    testStatus = "PASS"
	statusFail    testStatus = "FAIL"
	statusPending testStatus = "PENDING"
	statusSkip    testStatus = "SKIP"
)

// testCase is one Test block of one file.
type testCase struct {
	Path string
	Test parser.Test
}

type testResult struct {
	Status   testStatus
	Output   string
	Problem  string
	Duration time.Duration
}

var errFailFast = errors.New("fail-fast: stopping after first failure")

func runTest(args []string, flags globalFlags) int {
	config, err := parseTestArguments(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scen test: %v\n", err)
		return exitUsage
	}
	proj, err := loadProject(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "scen test: %v\n", err)
		return exitUsage
	}
	applyLogLevel(flags, proj.manifest.LogLevel)

	files, err := resolveTestFiles(proj, config.Targets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scen test: %v\n", err)
		return exitUsage
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stdout, "scen test: no scenario files found")
		return exitOK
	}

	var cases []testCase
	for _, path := range files {
		script, err := readScript(path, proj.env)
		if err != nil {
			reportScriptError(path, err)
			return exitUsage
		}
		for _, test := range script.Tests {
			if matchesNames(test.Name, config.Names) {
				cases = append(cases, testCase{Path: path, Test: test})
			}
		}
	}

	if config.ListOnly {
		for _, tc := range cases {
			fmt.Fprintf(os.Stdout, "%s: %s [%s]\n", displayPath(tc.Path), tc.Test.Name, tc.Test.Mode)
		}
		return exitOK
	}
	if len(cases) == 0 {
		fmt.Fprintln(os.Stdout, "scen test: no tests to run")
		return exitOK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	results := runTestCases(ctx, proj, cases, config)
	return reportResults(cases, results)
}

// runTestCases runs every case on its own ledger and world. Results line up
// with cases regardless of completion order.
func runTestCases(ctx context.Context, proj *project, cases []testCase, config testConfig) []testResult {
	results := make([]testResult, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Parallel)
	for idx := range cases {
		idx := idx
		tc := cases[idx]
		switch tc.Test.Mode {
		case parser.ModePending:
			results[idx] = testResult{Status: statusPending}
			continue
		case parser.ModeSkip:
			results[idx] = testResult{Status: statusSkip}
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				results[idx] = testResult{Status: statusSkip, Problem: "not started"}
				return nil
			}
			results[idx] = runTestCase(gctx, proj, tc)
			if results[idx].Status == statusFail && config.FailFast {
				return errFailFast
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errFailFast) {
		log.Warnf("scen test: %v", err)
	}
	return results
}

func runTestCase(ctx context.Context, proj *project, tc testCase) testResult {
	start := time.Now()
	var out bytes.Buffer
	sess, err := proj.newSession(ctx, sessionOptions{
		store:   ledger.MemoryDSN,
		printer: world.NewConsolePrinter(&out, &out),
	})
	if err != nil {
		return testResult{Status: statusFail, Problem: err.Error(), Duration: time.Since(start)}
	}
	defer sess.Close()

	log.LogVf("running %s: %s", tc.Path, tc.Test.Name)
	w, err := sess.interp.ProcessEvents(ctx, sess.world, tc.Test.Steps)
	if err == nil {
		err = sess.interp.Finish(w)
	}
	result := testResult{Status: statusPass, Output: out.String(), Duration: time.Since(start)}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		result.Status = statusSkip
		result.Problem = "cancelled"
	default:
		result.Status = statusFail
		result.Problem = interpreter.DescribeError(tc.Path, err)
	}
	return result
}

func reportResults(cases []testCase, results []testResult) int {
	counts := map[testStatus]int{}
	for idx, tc := range cases {
		res := results[idx]
		counts[res.Status]++
		fmt.Fprintf(os.Stdout, "%-7s %s: %s", res.Status, displayPath(tc.Path), tc.Test.Name)
		if res.Duration > 0 {
			fmt.Fprintf(os.Stdout, " (%s)", res.Duration.Round(time.Millisecond))
		}
		fmt.Fprintln(os.Stdout)
		if res.Status == statusFail {
			if res.Output != "" {
				fmt.Fprint(os.Stdout, indent(res.Output))
			}
			fmt.Fprint(os.Stdout, indent(res.Problem+"\n"))
		}
	}
	fmt.Fprintf(os.Stdout, "\n%d passed, %d failed, %d pending, %d skipped\n",
		counts[statusPass], counts[statusFail], counts[statusPending], counts[statusSkip])
	if counts[statusFail] > 0 {
		return exitFailed
	}
	return exitOK
}

// resolveTestFiles expands CLI targets, or the manifest scripts plus every
// installed suite when none are given.
func resolveTestFiles(proj *project, targets []string) ([]string, error) {
	if len(targets) > 0 {
		return driver.CollectScripts(".", targets)
	}
	files, err := driver.CollectScripts(proj.manifest.Root, proj.manifest.Scripts)
	if err != nil {
		return nil, err
	}
	if proj.lock == nil {
		return files, nil
	}
	home, err := scenHome()
	if err != nil {
		return nil, err
	}
	for _, suite := range proj.lock.Suites {
		dir := filepath.Join(suiteCheckoutDir(home, suite.Name, suite.Commit), suite.Path)
		if _, err := os.Stat(dir); err != nil {
			log.Warnf("suite %s is not installed; run `scen deps install`", suite.Name)
			continue
		}
		extra, err := driver.CollectScripts(dir, []string{dir})
		if err != nil {
			return nil, err
		}
		files = append(files, extra...)
	}
	return files, nil
}

func parseTestArguments(args []string) (testConfig, error) {
	config := testConfig{Parallel: 1}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--list":
			config.ListOnly = true
		case "--fail-fast":
			config.FailFast = true
		case "--name":
			val, err := expectFlagValue(arg, nextArg(args, &i))
			if err != nil {
				return testConfig{}, err
			}
			config.Names = append(config.Names, val)
		case "--parallel":
			val, err := expectFlagValue(arg, nextArg(args, &i))
			if err != nil {
				return testConfig{}, err
			}
			count, err := parsePositiveInt(val, arg, 1)
			if err != nil {
				return testConfig{}, err
			}
			config.Parallel = count
		default:
			if strings.HasPrefix(arg, "-") {
				return testConfig{}, fmt.Errorf("unknown scen test flag '%s'", arg)
			}
			config.Targets = append(config.Targets, arg)
		}
	}
	return config, nil
}

func matchesNames(name string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, filter := range filters {
		if strings.Contains(name, filter) {
			return true
		}
	}
	return false
}

func nextArg(args []string, index *int) string {
	*index = *index + 1
	if *index >= len(args) {
		return ""
	}
	return args[*index]
}

func expectFlagValue(flag string, value string) (string, error) {
	if value == "" || strings.HasPrefix(value, "-") {
		return "", fmt.Errorf("%s expects a value", flag)
	}
	return value, nil
}

func parsePositiveInt(value string, flag string, min int) (int, error) {
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < min {
		return 0, fmt.Errorf("%s expects an integer >= %d", flag, min)
	}
	return parsed, nil
}

func displayPath(path string) string {
	return driver.FormatLocation(driver.DiagnosticLocation{Path: path})
}

func indent(text string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		b.WriteString("    ")
		b.WriteString(line)
	}
	return b.String()
}
