// Package watcher re-runs indexing when note, bibliography or notes-app
// database files change.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/waypoint/internal/fileset"
)

// DefaultExts are the file extensions whose changes trigger a re-index.
var DefaultExts = []string{".org", ".bib", ".sqlite"}

// Trigger runs a full re-index. changed holds the paths seen since the last
// trigger, sorted.
type Trigger func(ctx context.Context, changed []string)

// Options configures Watch.
type Options struct {
	// Roots are directories (watched recursively), single files, or glob
	// patterns expanded once at start.
	Roots    []string
	Exts     []string
	Ignore   []string
	Debounce time.Duration
	Logger   *slog.Logger
}

type watchSet struct {
	dirs    []string
	files   map[string]struct{}
	exts    []string
	matcher *fileset.Matcher
}

// relevant reports whether an event on path should schedule a re-index.
func (s *watchSet) relevant(path string) bool {
	if _, ok := s.files[path]; ok {
		return true
	}
	if s.matcher.Match(path) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(s.exts, ext) {
		return false
	}
	for _, d := range s.dirs {
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Watch starts an fsnotify watcher on opts.Roots and calls trigger after
// relevant changes have been quiet for opts.Debounce. It blocks until ctx
// is cancelled. New directories under a watched root are added as they
// appear. trigger runs on the watch goroutine, so changes made while it
// runs are batched into the next call.
func Watch(ctx context.Context, opts Options, trigger Trigger) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	exts := opts.Exts
	if len(exts) == 0 {
		exts = DefaultExts
	}
	matcher, err := fileset.NewMatcher(opts.Ignore)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	set := &watchSet{files: make(map[string]struct{}), exts: exts, matcher: matcher}
	for _, root := range opts.Roots {
		if err := set.add(w, root, logger); err != nil {
			logger.Warn("watcher: skip root", slog.String("root", root), slog.String("error", err.Error()))
		}
	}

	logger.Info("watcher: started",
		slog.Int("dirs", len(set.dirs)),
		slog.Int("files", len(set.files)),
		slog.Duration("debounce", debounce))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
		pending = make(map[string]struct{})
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			slices.Sort(changed)
			clear(pending)
			logger.Debug("watcher: triggering re-index", slog.Int("changed", len(changed)))
			trigger(ctx, changed)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() && set.underDir(ev.Name) {
					if matcher.Match(ev.Name) {
						continue
					}
					if addErr := addDirsRecursive(w, ev.Name, matcher); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					// Files may have landed before the watch was added.
					pending[ev.Name] = struct{}{}
					schedule()
					continue
				}
			}

			if !set.relevant(ev.Name) {
				continue
			}
			logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			pending[ev.Name] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (s *watchSet) underDir(path string) bool {
	for _, d := range s.dirs {
		if strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// add registers root. Directories are watched recursively; files and glob
// matches are watched through their parent directory.
func (s *watchSet) add(w *fsnotify.Watcher, root string, logger *slog.Logger) error {
	var paths []string
	if strings.ContainsAny(root, "*?[") {
		matches, err := fileset.Glob(root)
		if err != nil {
			return err
		}
		paths = matches
	} else {
		abs, err := fileset.ExpandPath(root)
		if err != nil {
			return err
		}
		paths = []string{abs}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := addDirsRecursive(w, p, s.matcher); err != nil {
				return err
			}
			s.dirs = append(s.dirs, p)
			continue
		}
		if err := w.Add(filepath.Dir(p)); err != nil {
			return err
		}
		s.files[p] = struct{}{}
		logger.Debug("watcher: watching file", slog.String("path", p))
	}
	return nil
}

// addDirsRecursive adds root and all its non-ignored subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string, matcher *fileset.Matcher) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && matcher.Match(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
