package main

import (
	"fmt"
	"os"
	"strings"

	"fortio.org/log"
)

const cliToolVersion = "scen 0.0.0-dev"

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	envLogLevel = "SCEN_LOG_LEVEL"
	envHome     = "SCEN_HOME"
	envScenEnv  = "SCEN_ENV"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, remaining, err := parseGlobalFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scen: %v\n", err)
		return exitUsage
	}
	if len(remaining) == 0 {
		printUsage()
		return exitUsage
	}

	switch remaining[0] {
	case "--help", "-h", "help":
		printUsage()
		return exitOK
	case "--version", "-V", "version":
		fmt.Fprintln(os.Stdout, cliToolVersion)
		return exitOK
	case "run":
		return runScripts(remaining[1:], flags)
	case "test":
		return runTest(remaining[1:], flags)
	case "repl":
		return runRepl(remaining[1:], flags)
	case "check":
		return runCheck(remaining[1:])
	case "docs":
		return runDocs(remaining[1:])
	case "deps":
		return runDeps(remaining[1:])
	default:
		if strings.HasSuffix(remaining[0], ".scen") {
			return runScripts(remaining, flags)
		}
		fmt.Fprintf(os.Stderr, "scen: unknown command %q\n", remaining[0])
		printUsage()
		return exitUsage
	}
}

// globalFlags are accepted before the subcommand.
type globalFlags struct {
	LogLevel string
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			remaining = append(remaining, args[i+1:]...)
			break
		}
		switch {
		case arg == "--log-level":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("--log-level expects a value")
			}
			flags.LogLevel = args[i+1]
			i++
		case strings.HasPrefix(arg, "--log-level="):
			flags.LogLevel = strings.TrimPrefix(arg, "--log-level=")
		default:
			remaining = append(remaining, arg)
		}
	}
	if flags.LogLevel != "" {
		if _, err := log.ValidateLevel(flags.LogLevel); err != nil {
			return flags, nil, fmt.Errorf("unknown --log-level value %q (expected debug, verbose, info, warning, or error)", flags.LogLevel)
		}
	}
	return flags, remaining, nil
}

// applyLogLevel picks the first level set among the flag, SCEN_LOG_LEVEL and
// the manifest.
func applyLogLevel(flags globalFlags, manifestLevel string) {
	for _, candidate := range []string{flags.LogLevel, os.Getenv(envLogLevel), manifestLevel} {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		level, err := log.ValidateLevel(candidate)
		if err != nil {
			log.Warnf("ignoring log level %q: %v", candidate, err)
			continue
		}
		log.SetLogLevel(level)
		return
	}
	log.SetLogLevel(log.Info)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  scen [--log-level LEVEL] run <file.scen>... [-e line]...")
	fmt.Fprintln(os.Stderr, "  scen [--log-level LEVEL] test [targets] [--name N] [--parallel N] [--fail-fast] [--list]")
	fmt.Fprintln(os.Stderr, "  scen [--log-level LEVEL] repl")
	fmt.Fprintln(os.Stderr, "  scen check <file.scen>...")
	fmt.Fprintln(os.Stderr, "  scen docs [--format markdown|html] [command...]")
	fmt.Fprintln(os.Stderr, "  scen deps install")
}
