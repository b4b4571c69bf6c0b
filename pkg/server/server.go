// Package server implements the reading HTTP contract: POST /upload with a
// gauge photo and a calibration range answers {"reading": n}.
package server

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/gaugeread/gaugeread/pkg/config"
	"github.com/gaugeread/gaugeread/pkg/events"
	"github.com/gaugeread/gaugeread/pkg/gauge"
	"github.com/gaugeread/gaugeread/pkg/metrics"
	"github.com/gaugeread/gaugeread/pkg/reading"
)

// Server answers reading requests according to the configured mode.
type Server struct {
	conf      config.Config
	hub       *events.Hub
	recorder  *Recorder
	metrics   *metrics.Registry
	estimator reading.Estimator
	janitor   *Scheduler

	router *gin.Engine
	cors   atomic.Pointer[cors.Cors]
}

func New(conf config.Config) *Server {
	s := &Server{
		conf:     conf,
		hub:      events.NewHub(),
		recorder: NewRecorder(conf.RecentReadings()),
		metrics:  metrics.NewRegistry(),
	}
	s.janitor = NewScheduler(s.cleanupUploads, s.checkUploadDir, func(data any) {
		logrus.Errorf("upload cleanup: %v", data)
	})
	s.router = s.setupRoutes()
	s.applyConfig()
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.POST("/upload", s.upload)
	router.POST("/estimate", s.estimate)
	router.GET("/readings", s.getReadings)
	router.GET("/events", s.streamEvents)
	router.GET("/config", s.getConfig)
	router.PUT("/mode", s.setMode)
	router.GET("/version", getVersion)
	router.GET("/health", s.getHealth)
	router.GET("/metrics", s.getMetrics)

	return router
}

// ServeHTTP runs the router behind the CORS policy of the current config.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.cors.Load().ServeHTTP(w, r, s.router.ServeHTTP)
}

// applyConfig pushes config values into the long-lived parts of the server.
// Called at startup and after every reload.
func (s *Server) applyConfig() {
	s.recorder.Resize(s.conf.RecentReadings())

	s.cors.Store(cors.New(cors.Options{
		AllowedOrigins: s.conf.AllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Content-Type", "Accept"},
	}))

	if err := s.janitor.Schedule(s.conf.CleanupSchedule()); err != nil {
		// Load validates the schedule, so this only fires for hand-built configs.
		logrus.Errorf("invalid cleanup schedule %q: %v", s.conf.CleanupSchedule(), err)
	}
}

// Reload re-reads the config source and applies it.
func (s *Server) Reload() error {
	if err := s.conf.Load(); err != nil {
		return err
	}
	s.applyConfig()
	return nil
}

func (s *Server) analyzer() *gauge.Analyzer {
	a := gauge.NewAnalyzer()
	a.ScaleStartDeg = s.conf.ScaleStartDeg()
	a.ScaleEndDeg = s.conf.ScaleEndDeg()
	return a
}

// sourceFor maps the upload mode to what produces the reading.
func sourceFor(m config.Mode) reading.Source {
	switch m {
	case config.ModeSimulate:
		return reading.SourceSimulated
	case config.ModeProxy:
		return reading.SourceRemote
	default:
		return reading.SourceImage
	}
}
