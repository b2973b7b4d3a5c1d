package threshold

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// Watch reports edits to the threshold file until ctx is cancelled.
// The parent directory is watched so atomic renames are seen. A file that
// fails to load is logged and onChange is not called.
func (s *Store) Watch(ctx context.Context, onChange func(model.Thresholds)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}

	s.logger.Info("watching thresholds", "path", s.path)
	name := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			th, err := s.Load()
			if err != nil {
				s.logger.Error("reload thresholds failed, keeping previous", "path", s.path, "error", err)
				continue
			}

			s.mu.Lock()
			s.last = th
			s.mu.Unlock()

			s.logger.Info("thresholds reloaded", "path", s.path)
			onChange(th)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("threshold watcher error", "error", err)
		}
	}
}
