package sessionstore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	. "github.com/gateward/gateward/internal/logging"
)

// Watch invokes fn whenever the store file changes on disk, until ctx is
// cancelled. Events are debounced so an atomic rename does not fire twice.
// The parent directory is watched rather than the file itself, since the
// rename in Save replaces the inode.
func (s *Store) Watch(ctx context.Context, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()

		var pending *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(100*time.Millisecond, fn)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				L_warn("session store watcher: %v", err)
			}
		}
	}()

	return nil
}
