package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Mode selects how the server answers /upload.
type Mode string

const (
	// ModeLocal reads the needle from the uploaded photo.
	ModeLocal Mode = "local"
	// ModeSimulate ignores the photo and returns a random reading inside the range.
	ModeSimulate Mode = "simulate"
	// ModeProxy forwards the upload to a remote inference server.
	ModeProxy Mode = "proxy"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeLocal, ModeSimulate, ModeProxy:
		return Mode(s), true
	}
	return "", false
}

type Config interface {
	Mode() Mode
	InferenceURL() string
	UploadDir() string
	MaxUploadBytes() int64
	UploadRetention() time.Duration
	CleanupSchedule() string
	ScaleStartDeg() float64
	ScaleEndDeg() float64
	RecentReadings() int
	AllowedOrigins() []string

	SetMode(Mode)
	SetInferenceURL(string)
	SetScale(start, end float64)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error

	LogrusFields() logrus.Fields
}
