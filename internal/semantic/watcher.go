package semantic

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the schema directory whenever a schema file changes, bumping
// the version (and so invalidating dependent cache entries) on every
// successful reload. Events are debounced because editors fire several per
// save. Blocks until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}

	const debounce = 250 * time.Millisecond
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isSchemaFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			pending = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("schema watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			if err := r.LoadDir(dir); err != nil {
				// Keep serving the last good snapshot.
				r.logger.Error("schema reload failed", zap.String("dir", dir), zap.Error(err))
				continue
			}
			r.logger.Info("schema reloaded", zap.Uint64("version", r.Version()))
		}
	}
}

func isSchemaFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
