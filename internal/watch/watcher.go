// Package watch ingests documents dropped into the corpus directory while
// the service runs.
package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dgallion1/medrag/internal/parser"
	"github.com/dgallion1/medrag/internal/rag"
)

// settleDelay gives the writer time to finish before the file is read.
const settleDelay = 500 * time.Millisecond

// Watcher monitors the corpus directory and ingests new or rewritten files.
type Watcher struct {
	fsw    *fsnotify.Watcher
	system *rag.System
	logger *slog.Logger
}

func New(system *rag.System, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{fsw: fsw, system: system, logger: logger}, nil
}

// Run watches dir until the context is canceled. Ingest failures are logged
// and never stop the watcher.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watching corpus directory", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !parser.IsSupportedExtension(event.Name) {
				continue
			}
			w.ingestSettled(ctx, event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

func (w *Watcher) ingestSettled(ctx context.Context, path string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(settleDelay):
	}

	report, err := w.system.IngestFile(ctx, path)
	if err != nil {
		w.logger.Error("watch ingest failed", "file", path, "error", err)
		return
	}
	if report.WasNew {
		w.logger.Info("watched document indexed", "title", report.Title, "chunks", report.ChunkCount)
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}
