// Package fileset collects the files a source should read from a set of
// roots: directory traversal, extension filtering, ignore globs and
// symlink handling.
package fileset

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/waypoint/internal/apperr"
)

// DefaultIgnore lists directory and file names that are never traversed.
var DefaultIgnore = []string{".git", "node_modules", "__pycache__", ".venv", ".direnv", ".stversions"}

// Options controls Collect.
type Options struct {
	// Ext filters files by extension (".org"). Empty accepts every file.
	Ext string
	// Follow descends into symlinked directories. Symlinked files are
	// always resolved.
	Follow bool
	// Ignore holds fnmatch-style globs matched against absolute paths and
	// base names.
	Ignore []string
	Logger *slog.Logger
}

// Collect returns the resolved absolute paths of the files under root that
// match opts, in lexical traversal order without duplicates. root may be a
// directory or a single file.
func Collect(root string, opts Options) ([]string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := ExpandPath(root)
	if err != nil {
		return nil, err
	}
	matcher, err := NewMatcher(opts.Ignore)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("fileset: stat %s: %w", root, err)
	}

	c := &collector{
		opts:    opts,
		logger:  logger,
		matcher: matcher,
		seen:    make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
	switch {
	case info.IsDir():
		c.walk(abs)
	case !matcher.Match(abs):
		c.addFile(abs)
	}
	return c.files, nil
}

// Dedup returns paths without duplicates, keeping the first occurrence.
func Dedup(paths ...string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Glob expands "~" in pattern and returns the regular files it matches, in
// lexical order. No match is apperr.ErrNoFiles.
func Glob(pattern string) ([]string, error) {
	abs, err := ExpandPath(pattern)
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(abs)
	if err != nil {
		return nil, fmt.Errorf("fileset: glob %s: %w", pattern, err)
	}
	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("fileset: %s: %w", pattern, apperr.ErrNoFiles)
	}
	return files, nil
}

// ExpandPath expands a leading "~" and makes p absolute.
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("fileset: expand %s: %w", p, err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("fileset: abs %s: %w", p, err)
	}
	return abs, nil
}

type collector struct {
	opts    Options
	logger  *slog.Logger
	matcher *Matcher
	files   []string
	seen    map[string]struct{}
	visited map[string]struct{}
}

func (c *collector) walk(dir string) {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		c.logger.Debug("fileset: skip unresolvable dir",
			slog.String("path", dir), slog.String("error", err.Error()))
		return
	}
	if _, ok := c.visited[real]; ok {
		return
	}
	c.visited[real] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		c.logger.Debug("fileset: skip unreadable dir",
			slog.String("path", dir), slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if c.matcher.Match(p) {
			continue
		}
		switch typ := e.Type(); {
		case typ.IsDir():
			c.walk(p)
		case typ&fs.ModeSymlink != 0:
			target, err := os.Stat(p)
			if err != nil {
				c.logger.Debug("fileset: skip broken symlink",
					slog.String("path", p), slog.String("error", err.Error()))
				continue
			}
			if target.IsDir() {
				if c.opts.Follow {
					c.walk(p)
				}
				continue
			}
			if target.Mode().IsRegular() {
				c.addFile(p)
			}
		case typ.IsRegular():
			c.addFile(p)
		}
	}
}

func (c *collector) addFile(p string) {
	if c.opts.Ext != "" && !strings.EqualFold(filepath.Ext(p), c.opts.Ext) {
		return
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		c.logger.Debug("fileset: skip unresolvable file",
			slog.String("path", p), slog.String("error", err.Error()))
		return
	}
	if _, ok := c.seen[resolved]; ok {
		return
	}
	c.seen[resolved] = struct{}{}
	c.files = append(c.files, resolved)
}
