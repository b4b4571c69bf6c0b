package client

import "github.com/gaugeread/gaugeread/pkg/reading"

// Wire types of the reading HTTP contract, shared with pkg/server.

// ErrorResponse is the body of every failed request. Code is only set for
// calibration failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// UploadResponse is the body of a successful POST /upload.
type UploadResponse struct {
	Reading *float64 `json:"reading"`
}

type EstimateRequest struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

type EstimateResponse struct {
	Reading reading.Reading          `json:"reading"`
	Range   reading.CalibrationRange `json:"range"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

type HealthResponse struct {
	Status           string `json:"status"`
	Mode             string `json:"mode"`
	Subscribers      int    `json:"subscribers"`
	ReadingsLastHour int    `json:"readingsLastHour"`
	// NextCleanup is RFC 3339, empty when the janitor is off.
	NextCleanup string `json:"nextCleanup,omitempty"`
}

// Upload form field names.
const (
	FieldFile = "file"
	FieldMin  = "min_value"
	FieldMax  = "max_value"
)
