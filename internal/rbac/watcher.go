// Copyright 2026 The QADeck Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/qadeck/qadeck/internal/observability/logger"
)

// ChangeFunc is notified after a successful catalog reload.
type ChangeFunc func(ctx context.Context, version uint64)

// Watcher reloads a catalog when its backing file changes.
type Watcher struct {
	path     string
	catalog  *Catalog
	onChange ChangeFunc
	debounce time.Duration
	fsw      *fsnotify.Watcher
}

// NewWatcher watches the directory holding path, so that editors which
// replace the file through a rename are picked up as well.
func NewWatcher(path string, catalog *Catalog, onChange ChangeFunc) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		catalog:  catalog,
		onChange: onChange,
		debounce: 250 * time.Millisecond,
		fsw:      fsw,
	}, nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Coalesce bursts of writes into one reload.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.Reload(ctx)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "catalog watcher error", logger.Component("rbac"), logger.Error(err))
		}
	}
}

// Reload re-reads the catalog file and notifies onChange on success.
// A broken file keeps the previous catalog in place.
func (w *Watcher) Reload(ctx context.Context) (uint64, error) {
	version, err := w.catalog.Reload(w.path)
	if err != nil {
		slog.ErrorContext(ctx, "catalog reload rejected",
			logger.Component("rbac"),
			logger.String("path", w.path),
			logger.Error(err),
		)
		return 0, err
	}

	slog.InfoContext(ctx, "catalog reloaded",
		logger.Component("rbac"),
		logger.CatalogVersion(version),
	)
	if w.onChange != nil {
		w.onChange(ctx, version)
	}
	return version, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
