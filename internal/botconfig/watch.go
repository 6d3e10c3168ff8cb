package botconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/replybot"
	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

// Watch reloads plugins when a YAML unit under the loader path changes and
// hands the new snapshot to onChange. It blocks until ctx is done.
func Watch(ctx context.Context, l *Loader, debounce time.Duration, onChange func([]*replybot.Plugin)) error {
	if l == nil || onChange == nil {
		return fmt.Errorf("loader and onChange are required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := l.path
	single := ""
	if info, err := os.Stat(l.path); err == nil && !info.IsDir() {
		dir = filepath.Dir(l.path)
		single = l.path
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	l.logger.Info("plugins_watch_started", "dir", dir)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, single) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("plugins_watch_error", "error", err.Error())
		case <-timer.C:
			res, err := l.Load(ctx)
			if err != nil {
				l.logger.Warn("plugins_reload_failed", "error", err.Error())
				continue
			}
			onChange(res.Plugins)
		}
	}
}

func relevant(event fsnotify.Event, single string) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if single != "" {
		return filepath.Clean(event.Name) == filepath.Clean(single)
	}
	return isYAML(event.Name)
}
