// Package picker describes a file chosen by the user: its name, size, type
// and, for photos, the pixel dimensions used to render a preview.
package picker

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	pkgerrors "github.com/pkg/errors"

	// Same decoders the gauge reader accepts.
	_ "github.com/gaugeread/gaugeread/pkg/gauge"
)

// ErrCancelled is returned when no file was chosen.
var ErrCancelled = errors.New("no file was selected")

// UnknownName is shown when a file has no usable base name.
const UnknownName = "Unknown"

// FileInfo is what the picker shows after a selection.
type FileInfo struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	MIME      string `json:"mime"`
	Extension string `json:"extension"`
	IsImage   bool   `json:"isImage"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// Inspect describes the file at path. Any file type is accepted; image
// dimensions are filled in when the content decodes as an image.
func Inspect(path string) (*FileInfo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrCancelled
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to stat %s", path)
	}
	if st.IsDir() {
		return nil, pkgerrors.Errorf("%s is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to detect type of %s", path)
	}

	info := &FileInfo{
		Name:      displayName(path),
		Path:      path,
		Size:      st.Size(),
		MIME:      mt.String(),
		Extension: mt.Extension(),
		IsImage:   strings.HasPrefix(mt.String(), "image/"),
	}

	if info.IsImage {
		if w, h, err := dimensions(path); err == nil {
			info.Width, info.Height = w, h
		}
	}

	return info, nil
}

func displayName(path string) string {
	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return UnknownName
	}
	return name
}

func dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
