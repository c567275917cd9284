package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"QAForge/internal/domain"
	"QAForge/internal/ports"
)

// Runner executes one batch.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (Result, error)
}

var inboxExtensions = map[string]bool{".txt": true, ".md": true, ".markdown": true}

// Watcher wires the interval driver with the pipeline: every tick it scans an
// inbox directory and runs one batch over the files it has not processed yet.
// With a source set, files are loaded one by one and a file that cannot be
// loaded is skipped until it changes.
type Watcher struct {
	driver ports.Scheduler
	runner Runner
	source ports.DocumentSource
	dir    string
	logger *slog.Logger

	mu   sync.Mutex
	done map[string]time.Time
}

// NewWatcher returns a helper to start/stop inbox scans.
func NewWatcher(driver ports.Scheduler, runner Runner, source ports.DocumentSource, dir string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		driver: driver,
		runner: runner,
		source: source,
		dir:    dir,
		logger: logger.With("component", "watch", "dir", dir),
		done:   make(map[string]time.Time),
	}
}

// Start registers the inbox scan with the provided scheduler.
func (w *Watcher) Start(ctx context.Context) error {
	if w.driver == nil || w.runner == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if _, _, err := w.Scan(ctx, trigger); err != nil {
			w.logger.Error("inbox run failed", "error", err)
		}
	}

	return w.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (w *Watcher) Stop(ctx context.Context) error {
	if w.driver == nil {
		return nil
	}

	return w.driver.Stop(ctx)
}

// Scan runs the pipeline over new or modified inbox files. It reports false
// when there was nothing to do. Files of a failed batch are picked up again on
// the next scan.
func (w *Watcher) Scan(ctx context.Context, trigger time.Time) (Result, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pending, err := w.pending()
	if err != nil {
		return Result{}, false, err
	}
	if len(pending) == 0 {
		w.logger.Debug("inbox empty")
		return Result{}, false, nil
	}

	req := RunRequest{Name: "inbox_" + trigger.UTC().Format("20060102_150405")}
	batch := pending
	if w.source != nil {
		batch = batch[:0:0]
		for _, f := range pending {
			doc, err := w.source.Load(ctx, f.path, domain.OriginFile)
			if err != nil {
				if ctx.Err() != nil {
					return Result{}, false, fmt.Errorf("load inbox: %w", ctx.Err())
				}
				w.logger.Warn("skipping inbox file", "file", f.path, "error", err)
				w.done[f.path] = f.modTime
				continue
			}
			req.Documents = append(req.Documents, doc)
			batch = append(batch, f)
		}
		if len(batch) == 0 {
			return Result{}, false, nil
		}
	} else {
		for _, f := range pending {
			req.Resources = append(req.Resources, Resource{Ref: f.path, Type: domain.OriginFile})
		}
	}
	w.logger.Info("inbox batch", "files", len(batch))

	res, err := w.runner.Run(ctx, req)
	if err != nil {
		return res, true, fmt.Errorf("run inbox batch: %w", err)
	}
	for _, f := range batch {
		w.done[f.path] = f.modTime
	}
	return res, true, nil
}

type inboxFile struct {
	path    string
	modTime time.Time
}

func (w *Watcher) pending() ([]inboxFile, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	var out []inboxFile
	for _, e := range entries {
		if e.IsDir() || !inboxExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		path := filepath.Join(w.dir, e.Name())
		if seen, ok := w.done[path]; ok && !info.ModTime().After(seen) {
			continue
		}
		out = append(out, inboxFile{path: path, modTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, nil
}
