package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
)

const htmlTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>%s</title></head>
<body>
%s</body>
</html>
`

func runDocs(args []string) int {
	format := "markdown"
	var path []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--format":
			val, err := expectFlagValue(arg, nextArg(args, &i))
			if err != nil {
				fmt.Fprintf(os.Stderr, "scen docs: %v\n", err)
				return exitUsage
			}
			format = val
		case strings.HasPrefix(arg, "--format="):
			format = strings.TrimPrefix(arg, "--format=")
		case strings.HasPrefix(arg, "-"):
			fmt.Fprintf(os.Stderr, "scen docs: unknown flag '%s'\n", arg)
			return exitUsage
		default:
			path = append(path, arg)
		}
	}

	interp := newInterpreter()
	markdown := interp.Docs()
	title := "Scenario commands"
	if len(path) > 0 {
		markdown = interp.Help(path...) + "\n"
		title = strings.Join(path, " ")
	}

	switch format {
	case "markdown", "md":
		fmt.Fprint(os.Stdout, markdown)
		return exitOK
	case "html":
		html, err := renderHTML(title, markdown)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scen docs: %v\n", err)
			return exitFailed
		}
		fmt.Fprint(os.Stdout, html)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "scen docs: unknown --format value '%s' (expected markdown or html)\n", format)
		return exitUsage
	}
}

func renderHTML(title, markdown string) (string, error) {
	var body bytes.Buffer
	if err := goldmark.New().Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return fmt.Sprintf(htmlTemplate, title, body.String()), nil
}
