package library

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDelay batches the burst of events an editor produces on save.
const reloadDelay = 250 * time.Millisecond

// Watch reloads dir whenever a puzzle file in it changes. It blocks until
// ctx is done.
func (l *Library) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	l.log.Info("watching puzzle dir", zap.String("dir", dir))

	reload := time.NewTimer(time.Hour)
	reload.Stop()
	defer reload.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isPuzzleFile(ev.Name) {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			l.log.Debug("puzzle file changed", zap.String("file", ev.Name), zap.Stringer("op", ev.Op))
			reload.Reset(reloadDelay)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.log.Warn("puzzle watcher error", zap.Error(err))

		case <-reload.C:
			if _, err := l.LoadDir(dir); err != nil {
				l.log.Warn("puzzle reload had errors", zap.Error(err))
			}
		}
	}
}
