// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package docs

import (
	"context"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.astrophena.name/base/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/moby/patternmatcher"
)

var serveReadyHook func() // used in tests, called when Serve started serving the documentation

// rebuildDelay is how long the watcher waits for changes to settle, so that
// saving several files at once triggers a single build.
const rebuildDelay = 250 * time.Millisecond

// Serve builds the documentation and starts serving it on a provided
// host:port. It rebuilds the documentation when its sources change.
func Serve(ctx context.Context, c *Config, addr string) error {
	c.setDefaults()

	logger.Info(ctx, "performing an initial build")
	if err := Build(ctx, c); err != nil {
		logger.Error(ctx, "initial build failed", slog.Any("err", err))
	}

	filter, err := newWatchFilter(c)
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := watchRecursive(fw, c.Src, filter.dst); err != nil {
		return err
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer l.Close()
	logger.Info(ctx, "listening for HTTP requests", slog.String("addr", "http://"+l.Addr().String()))

	httpSrv := &http.Server{Handler: &staticHandler{fs: os.DirFS(c.Dst)}}
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(l); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	w := &rebuilder{
		events: fw.Events,
		errors: fw.Errors,
		filter: filter,
		delay:  rebuildDelay,
		build: func(ctx context.Context) error {
			return Build(ctx, c)
		},
		watchDir: func(dir string) error {
			return watchRecursive(fw, dir, filter.dst)
		},
	}
	watchCtx, stopWatch := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run(watchCtx)
	}()
	// The build in flight, if any, finishes before Serve returns.
	defer func() {
		stopWatch()
		<-done
	}()

	if serveReadyHook != nil {
		serveReadyHook()
	}

	select {
	case <-ctx.Done():
		logger.Info(ctx, "gracefully shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return httpSrv.Shutdown(shutdownCtx)
}

// rebuilder turns file system events into builds. Builds run on the
// goroutine calling run, one at a time; events arriving during a build
// schedule the next one.
type rebuilder struct {
	events   <-chan fsnotify.Event
	errors   <-chan error
	filter   *watchFilter
	delay    time.Duration
	build    func(context.Context) error
	watchDir func(dir string) error // called for created directories
}

func (w *rebuilder) run(ctx context.Context) {
	logger.Info(ctx, "started watching for new changes")

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.events:
			if !ok {
				return
			}
			if !w.filter.shouldRebuild(event.Name, event.Op) {
				continue
			}
			if event.Op.Has(fsnotify.Create) && w.watchDir != nil {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.watchDir(event.Name); err != nil {
						logger.Error(ctx, "failed to watch new directory", slog.String("name", event.Name), slog.Any("err", err))
					}
				}
			}
			logger.Info(ctx, "detected change, scheduling build",
				slog.String("name", event.Name),
				slog.Any("op", event.Op),
			)
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			logger.Info(ctx, "triggering build")
			if err := w.build(ctx); err != nil {
				logger.Error(ctx, "failed to rebuild the documentation", slog.Any("err", err))
			}
		case err, ok := <-w.errors:
			if !ok {
				return
			}
			logger.Error(ctx, "watcher error", slog.Any("err", err))
		case <-ctx.Done():
			return
		}
	}
}

// watchFilter decides which file system events affect the built
// documentation. It applies the same exclude patterns as Build.
type watchFilter struct {
	src, dst string // absolute
	exclude  *patternmatcher.PatternMatcher
}

func newWatchFilter(c *Config) (*watchFilter, error) {
	src, err := filepath.Abs(c.Src)
	if err != nil {
		return nil, err
	}
	dst, err := filepath.Abs(c.Dst)
	if err != nil {
		return nil, err
	}
	exclude, err := patternmatcher.New(c.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	return &watchFilter{src: src, dst: dst, exclude: exclude}, nil
}

func (f *watchFilter) shouldRebuild(name string, op fsnotify.Op) bool {
	// Chmod doesn't affect the output, and rename is followed by a create.
	if !op.Has(fsnotify.Create) && !op.Has(fsnotify.Write) && !op.Has(fsnotify.Remove) {
		return false
	}

	abs, err := filepath.Abs(name)
	if err != nil || isWithin(abs, f.dst) {
		return false
	}

	// Vim probes directories with a file named 4913 and leaves backups
	// ending with ~.
	base := filepath.Base(abs)
	if base == "4913" || strings.HasSuffix(base, "~") || strings.HasPrefix(base, ".") {
		return false
	}

	rel, err := filepath.Rel(f.src, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	excluded, err := f.exclude.MatchesOrParentMatches(filepath.ToSlash(rel))
	return err == nil && !excluded
}

// watchRecursive adds dir and its subdirectories to the watcher, skipping
// the output directory skip.
func watchRecursive(w *fsnotify.Watcher, dir, skip string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if isWithin(path, skip) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// isWithin reports whether path is dir or is inside it.
func isWithin(path, dir string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// staticHandler serves the built documentation. Paths ending with a slash
// serve index.html, and /foo serves foo.html when it exists. Missing files
// get 404.html if the documentation has one.
type staticHandler struct {
	fs fs.FS
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, ok := h.resolve(r.URL.Path)
	if !ok {
		h.serveNotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, h.fs, name)
}

func (h *staticHandler) resolve(urlPath string) (name string, ok bool) {
	name = strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if strings.HasSuffix(urlPath, "/") {
		name = path.Join(name, "index.html")
	}
	for _, candidate := range []string{name + ".html", name} {
		if fi, err := fs.Stat(h.fs, candidate); err == nil && !fi.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

func (h *staticHandler) serveNotFound(w http.ResponseWriter, r *http.Request) {
	b, err := fs.ReadFile(h.fs, "404.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write(b)
}
