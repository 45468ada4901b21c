package driver

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// ScriptExt is the extension of scenario files.
const ScriptExt = ".scen"

// CollectScripts resolves targets to scenario files. A target naming a file is
// taken as is, a directory contributes every scenario file beneath it, and
// anything else is a gitignore-style pattern relative to root (`**` spans
// directories, a leading `!` excludes). The result is sorted and free of
// duplicates.
func CollectScripts(root string, targets []string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("scripts: resolve %s: %w", root, err)
	}
	seen := make(map[string]bool)
	var out []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}

	var patterns []gitignore.Pattern
	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		path := target
		if !filepath.IsAbs(path) {
			path = filepath.Join(absRoot, path)
		}
		if !strings.HasPrefix(target, "!") {
			if info, err := os.Stat(path); err == nil {
				if !info.IsDir() {
					add(path)
					continue
				}
				files, err := walkScripts(path, nil)
				if err != nil {
					return nil, err
				}
				for _, file := range files {
					add(file)
				}
				continue
			}
		}
		patterns = append(patterns, gitignore.ParsePattern(filepath.ToSlash(target), nil))
	}

	if len(patterns) > 0 {
		files, err := walkScripts(absRoot, gitignore.NewMatcher(patterns))
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			add(file)
		}
	}
	sort.Strings(out)
	return out, nil
}

// walkScripts lists scenario files under dir, keeping those matcher selects
// when one is given. Hidden directories are skipped.
func walkScripts(dir string, matcher gitignore.Matcher) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ScriptExt {
			return nil
		}
		if matcher != nil {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			if !matcher.Match(strings.Split(filepath.ToSlash(rel), "/"), false) {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scripts: walk %s: %w", dir, err)
	}
	return files, nil
}
