package client

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"

	"github.com/gaugeread/gaugeread/pkg/config"
	"github.com/gaugeread/gaugeread/pkg/reading"
)

// Upload posts a gauge photo with the calibration text exactly as the user
// typed it and returns the server's reading.
func (c *Client) Upload(ctx context.Context, filename string, body io.Reader, minText, maxText string) (reading.Reading, error) {
	req := c.rc.R().
		SetContext(ctx).
		SetFileReader(FieldFile, filename, body).
		SetFormData(map[string]string{
			FieldMin: minText,
			FieldMax: maxText,
		})

	var resp UploadResponse
	if err := c.Send(req, http.MethodPost, "/upload", &resp); err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to upload %s", filename)
	}
	if resp.Reading == nil {
		return 0, pkgerrors.Errorf("server response for %s has no reading", filename)
	}
	return reading.Reading(*resp.Reading), nil
}

// UploadFile is Upload for a file on disk.
func (c *Client) UploadFile(ctx context.Context, path, minText, maxText string) (reading.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	return c.Upload(ctx, filepath.Base(path), f, minText, maxText)
}

// Estimate asks the server for a simulated reading inside the range.
func (c *Client) Estimate(ctx context.Context, minText, maxText string) (*EstimateResponse, error) {
	var resp EstimateResponse
	err := c.Post(ctx, "/estimate", EstimateRequest{Min: minText, Max: maxText}, &resp)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to estimate reading")
	}
	return &resp, nil
}

func (c *Client) GetVersion(ctx context.Context) (*VersionResponse, error) {
	var v VersionResponse
	if err := c.Get(ctx, "/version", &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get version")
	}
	return &v, nil
}

func (c *Client) GetConfig(ctx context.Context) (*config.RawFileConfig, error) {
	var conf config.RawFileConfig
	if err := c.Get(ctx, "/config", &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}
	return &conf, nil
}

// GetRecentReadings returns the server's history, oldest first.
func (c *Client) GetRecentReadings(ctx context.Context) ([]reading.Record, error) {
	var records []reading.Record
	if err := c.Get(ctx, "/readings", &records); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get recent readings")
	}
	return records, nil
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var h HealthResponse
	if err := c.Get(ctx, "/health", &h); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to check server health")
	}
	return &h, nil
}

// SetMode switches how the server answers /upload. The server persists it.
func (c *Client) SetMode(ctx context.Context, m config.Mode) (string, error) {
	var msg string
	if err := c.Put(ctx, "/mode", ModeRequest{Mode: string(m)}, &msg); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to set mode")
	}
	return msg, nil
}
