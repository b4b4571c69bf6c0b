package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Watch reloads c whenever the file at path is written or replaced, and calls
// onChange after each successful reload. A failed reload keeps the previous
// values. It blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file, so editors that save
// by rename and a file created after startup are both picked up.
func Watch(ctx context.Context, path string, c Config, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create config watcher")
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return pkgerrors.Wrapf(err, "failed to watch %s", dir)
	}

	logrus.WithField("path", path).Debug("watching config for changes")

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if err := c.Load(); err != nil {
				logrus.WithError(err).Error("failed to reload config, keeping previous values")
				continue
			}

			logrus.WithFields(c.LogrusFields()).Info("config reloaded")
			if onChange != nil {
				onChange()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Error("config watcher error")
		}
	}
}
