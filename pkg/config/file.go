package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/gaugeread/gaugeread/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		Mode:            ptr.To(string(ModeLocal)),
		InferenceURL:    ptr.To(""),
		UploadDir:       ptr.To("uploads"),
		MaxUploadBytes:  ptr.To(int64(10 << 20)),
		UploadRetention: ptr.To("24h"),
		CleanupSchedule: ptr.To("@every 1h"),
		// A 270 degree dial with min at 7:30 and max at 4:30.
		ScaleStartDeg:  ptr.To(45.0),
		ScaleEndDeg:    ptr.To(315.0),
		RecentReadings: ptr.To(50),
		AllowedOrigins: []string{"*"},
	}
)

var _ Config = &File{}

// File is a Config backed by a JSON file, or a YAML file when the path ends
// in .yaml or .yml. Unset keys fall back to defaults.
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	Mode            *string  `json:"mode,omitempty" yaml:"mode,omitempty"`
	InferenceURL    *string  `json:"inferenceURL,omitempty" yaml:"inferenceURL,omitempty"`
	UploadDir       *string  `json:"uploadDir,omitempty" yaml:"uploadDir,omitempty"`
	MaxUploadBytes  *int64   `json:"maxUploadBytes,omitempty" yaml:"maxUploadBytes,omitempty"`
	UploadRetention *string  `json:"uploadRetention,omitempty" yaml:"uploadRetention,omitempty"`
	CleanupSchedule *string  `json:"cleanupSchedule,omitempty" yaml:"cleanupSchedule,omitempty"`
	ScaleStartDeg   *float64 `json:"scaleStartDeg,omitempty" yaml:"scaleStartDeg,omitempty"`
	ScaleEndDeg     *float64 `json:"scaleEndDeg,omitempty" yaml:"scaleEndDeg,omitempty"`
	RecentReadings  *int     `json:"recentReadings,omitempty" yaml:"recentReadings,omitempty"`
	AllowedOrigins  []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		Mode:            ptr.To(string(c.Mode())),
		InferenceURL:    ptr.To(c.InferenceURL()),
		UploadDir:       ptr.To(c.UploadDir()),
		MaxUploadBytes:  ptr.To(c.MaxUploadBytes()),
		UploadRetention: ptr.To(c.UploadRetention().String()),
		CleanupSchedule: ptr.To(c.CleanupSchedule()),
		ScaleStartDeg:   ptr.To(c.ScaleStartDeg()),
		ScaleEndDeg:     ptr.To(c.ScaleEndDeg()),
		RecentReadings:  ptr.To(c.RecentReadings()),
		AllowedOrigins:  c.AllowedOrigins(),
	}

	return rawConfig, nil
}

// Validate checks the values that are set.
func (c *RawFileConfig) Validate() error {
	if c.Mode != nil {
		if _, ok := ParseMode(*c.Mode); !ok {
			return pkgerrors.Errorf("mode %q unknown: want local|simulate|proxy", *c.Mode)
		}
	}
	if c.MaxUploadBytes != nil && *c.MaxUploadBytes <= 0 {
		return pkgerrors.Errorf("maxUploadBytes must be positive, got %d", *c.MaxUploadBytes)
	}
	if c.UploadRetention != nil {
		d, err := time.ParseDuration(*c.UploadRetention)
		if err != nil {
			return pkgerrors.Wrapf(err, "invalid uploadRetention %q", *c.UploadRetention)
		}
		if d < 0 {
			return pkgerrors.Errorf("uploadRetention must not be negative, got %s", d)
		}
	}
	if c.CleanupSchedule != nil && *c.CleanupSchedule != "" {
		if _, err := cronParser.Parse(*c.CleanupSchedule); err != nil {
			return pkgerrors.Wrapf(err, "invalid cleanupSchedule %q", *c.CleanupSchedule)
		}
	}
	start := ptr.Deref(c.ScaleStartDeg, *defaultFileConfig.ScaleStartDeg)
	end := ptr.Deref(c.ScaleEndDeg, *defaultFileConfig.ScaleEndDeg)
	if start < 0 || end > 360 || start >= end {
		return pkgerrors.Errorf("scale must satisfy 0 <= start < end <= 360, got %g..%g", start, end)
	}
	if c.RecentReadings != nil && *c.RecentReadings < 1 {
		return pkgerrors.Errorf("recentReadings must be at least 1, got %d", *c.RecentReadings)
	}
	return nil
}

// cronParser accepts the same expressions as the upload janitor.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (f *File) raw() *RawFileConfig {
	if f.c == nil {
		panic("config is nil")
	}
	return f.c
}

func (f *File) Mode() Mode {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return Mode(ptr.Deref(f.raw().Mode, *defaultFileConfig.Mode))
}

func (f *File) InferenceURL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().InferenceURL, *defaultFileConfig.InferenceURL)
}

func (f *File) UploadDir() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().UploadDir, *defaultFileConfig.UploadDir)
}

func (f *File) MaxUploadBytes() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().MaxUploadBytes, *defaultFileConfig.MaxUploadBytes)
}

func (f *File) UploadRetention() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()

	d, err := time.ParseDuration(ptr.Deref(f.raw().UploadRetention, *defaultFileConfig.UploadRetention))
	if err != nil {
		// Load rejects bad durations; this only guards hand-built configs.
		d, _ = time.ParseDuration(*defaultFileConfig.UploadRetention)
	}
	return d
}

func (f *File) CleanupSchedule() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().CleanupSchedule, *defaultFileConfig.CleanupSchedule)
}

func (f *File) ScaleStartDeg() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().ScaleStartDeg, *defaultFileConfig.ScaleStartDeg)
}

func (f *File) ScaleEndDeg() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().ScaleEndDeg, *defaultFileConfig.ScaleEndDeg)
}

func (f *File) RecentReadings() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().RecentReadings, *defaultFileConfig.RecentReadings)
}

func (f *File) AllowedOrigins() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.raw().AllowedOrigins) == 0 {
		return append([]string(nil), defaultFileConfig.AllowedOrigins...)
	}
	return append([]string(nil), f.raw().AllowedOrigins...)
}

func (f *File) SetMode(m Mode) {
	if _, ok := ParseMode(string(m)); !ok {
		panic("mode must be one of local, simulate, proxy")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().Mode = ptr.To(string(m))
}

func (f *File) SetInferenceURL(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().InferenceURL = &u
}

func (f *File) SetScale(start, end float64) {
	if start < 0 || end > 360 || start >= end {
		panic("scale must satisfy 0 <= start < end <= 360")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().ScaleStartDeg = &start
	f.raw().ScaleEndDeg = &end
}

func (f *File) isYAML() bool {
	switch strings.ToLower(filepath.Ext(f.filepath)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if len(bytes.TrimSpace(b)) == 0 {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if f.isYAML() {
		err = yaml.Unmarshal(b, &conf)
	} else {
		err = json.Unmarshal(b, &conf)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := conf.Validate(); err != nil {
		return pkgerrors.Wrapf(err, "invalid config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	var (
		b   []byte
		err error
	)
	if f.isYAML() {
		b, err = yaml.Marshal(f.c)
	} else {
		b, err = json.MarshalIndent(f.c, "", "  ")
		b = append(b, '\n')
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config for file %s", f.filepath)
	}

	if err := os.WriteFile(f.filepath, b, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"mode":            f.Mode(),
		"inferenceURL":    f.InferenceURL(),
		"uploadDir":       f.UploadDir(),
		"maxUploadBytes":  f.MaxUploadBytes(),
		"uploadRetention": f.UploadRetention(),
		"cleanupSchedule": f.CleanupSchedule(),
		"scale":           []float64{f.ScaleStartDeg(), f.ScaleEndDeg()},
		"recentReadings":  f.RecentReadings(),
		"allowedOrigins":  f.AllowedOrigins(),
	}
}
