package server

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// cleanupUploads is the janitor task.
func (s *Server) cleanupUploads() error {
	removed, err := removeStaleUploads(s.conf.UploadDir(), s.conf.UploadRetention(), time.Now())
	if removed > 0 {
		logrus.WithFields(logrus.Fields{
			"dir":     s.conf.UploadDir(),
			"removed": removed,
		}).Info("removed stale uploads")
	}
	return err
}

// checkUploadDir makes sure the janitor has a directory to look at.
func (s *Server) checkUploadDir() error {
	fi, err := os.Stat(s.conf.UploadDir())
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return pkgerrors.Errorf("%s is not a directory", s.conf.UploadDir())
	}
	return nil
}

// removeStaleUploads deletes regular files in dir last modified before
// now-retention. Hidden files and subdirectories are left alone. A zero
// retention keeps everything.
func removeStaleUploads(dir string, retention time.Duration, now time.Time) (int, error) {
	if retention <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, pkgerrors.Wrapf(err, "failed to list %s", dir)
	}

	cutoff := now.Add(-retention)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
