package config

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors produce on save.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads a domain whenever its file changes and calls onChange with a
// fresh snapshot. It blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, onChange func(Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return err
	}
	s.logger.Info("watching config directory", "dir", s.dir)

	pending := make(map[Domain]bool)
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if d, ok := domainForFile(event.Name); ok {
				pending[d] = true
				timer.Reset(reloadDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("config watcher error", "error", err)

		case <-timer.C:
			for d := range pending {
				if err := s.ReloadDomain(d); err != nil {
					s.logger.Warn("config reload failed", "domain", d, "error", err)
				} else {
					s.logger.Info("config reloaded", "domain", d)
				}
			}
			clear(pending)
			if onChange != nil {
				onChange(s.Settings())
			}
		}
	}
}

func domainForFile(path string) (Domain, bool) {
	base := filepath.Base(path)
	for _, d := range Domains {
		if strings.EqualFold(base, FileName(d)) {
			return d, true
		}
	}
	return "", false
}
