package gauge

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gaugeread/gaugeread/pkg/reading"
)

// Result is a reading taken from a gauge photo.
type Result struct {
	Reading   reading.Reading `json:"reading"`
	Format    string          `json:"format"`
	Detection *Detection      `json:"detection"`
}

// Read decodes a gauge photo and converts the needle position into a reading
// inside rng.
func (a *Analyzer) Read(r io.Reader, rng reading.CalibrationRange) (*Result, error) {
	// The header is read twice: once for the size check, once by the decoder.
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to decode image")
	}
	if a.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > a.MaxPixels {
		return nil, pkgerrors.Wrapf(ErrImageTooLarge, "%dx%d exceeds %d pixels", cfg.Width, cfg.Height, a.MaxPixels)
	}

	img, format, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to decode image")
	}

	det, err := a.Analyze(img)
	if err != nil {
		return nil, err
	}

	return &Result{
		Reading:   rng.Scale(det.Fraction(a)),
		Format:    format,
		Detection: det,
	}, nil
}

// ReadFile is Read on the file at path.
func (a *Analyzer) ReadFile(path string, rng reading.CalibrationRange) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	return a.Read(f, rng)
}
