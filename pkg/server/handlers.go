package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gaugeread/gaugeread/pkg/client"
	"github.com/gaugeread/gaugeread/pkg/config"
	"github.com/gaugeread/gaugeread/pkg/events"
	"github.com/gaugeread/gaugeread/pkg/gauge"
	"github.com/gaugeread/gaugeread/pkg/metrics"
	"github.com/gaugeread/gaugeread/pkg/reading"
	"github.com/gaugeread/gaugeread/pkg/version"
)

const (
	msgNoFile = "No file uploaded"

	// multipartOverhead is allowed on top of maxUploadBytes for boundaries
	// and the range fields.
	multipartOverhead = 64 << 10

	proxyTimeout   = 60 * time.Second
	eventKeepalive = 15 * time.Second
)

// Failure kinds that are not calibration kinds.
const (
	kindNoFile     = "no_file"
	kindTooLarge   = "too_large"
	kindNotImage   = "not_image"
	kindBadRequest = "bad_request"
	kindNoDial     = "no_dial"
	kindNoNeedle   = "no_needle"
	kindFailed     = "failed"
)

// fail answers with the error body and counts the rejection. code is only
// sent to the caller for calibration failures.
func (s *Server) fail(c *gin.Context, status int, source reading.Source, kind string, err error) {
	resp := client.ErrorResponse{Error: err.Error()}

	var ve *reading.ValidationError
	if errors.As(err, &ve) {
		resp.Error = ve.Kind.UserMessage()
		resp.Code = string(ve.Kind)
		kind = string(ve.Kind)
	}

	s.metrics.ObserveRejection(string(source), kind)
	s.hub.Publish(events.ReadingRejected, events.ReadingRejectedEvent{
		Source:  string(source),
		Kind:    kind,
		Message: resp.Error,
		Ts:      time.Now().Unix(),
	})

	c.IndentedJSON(status, resp)
	_ = c.AbortWithError(status, err)
}

// produced records a reading everywhere it is observed.
func (s *Server) produced(rec reading.Record) {
	s.recorder.Add(rec)
	s.metrics.ObserveReading(string(rec.Source))
	s.hub.Publish(events.ReadingProduced, events.ReadingProducedEvent{
		Source:   string(rec.Source),
		Min:      rec.Range.Min,
		Max:      rec.Range.Max,
		Reading:  float64(rec.Value),
		Filename: rec.Filename,
		Ts:       time.Now().Unix(),
	})
	logrus.WithFields(logrus.Fields{
		"source":  rec.Source,
		"range":   rec.Range.String(),
		"reading": rec.Value.String(),
	}).Info("reading produced")
}

func (s *Server) upload(c *gin.Context) {
	mode := s.conf.Mode()
	source := sourceFor(mode)
	limit := s.conf.MaxUploadBytes()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	fh, err := c.FormFile(client.FieldFile)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(c, http.StatusRequestEntityTooLarge, source, kindTooLarge, fmt.Errorf("upload exceeds %d bytes", limit))
			return
		}
		s.fail(c, http.StatusBadRequest, source, kindNoFile, errors.New(msgNoFile))
		return
	}
	if fh.Size > limit {
		s.fail(c, http.StatusRequestEntityTooLarge, source, kindTooLarge, fmt.Errorf("upload exceeds %d bytes", limit))
		return
	}

	minText, maxText := c.PostForm(client.FieldMin), c.PostForm(client.FieldMax)
	rng, err := reading.ParseRange(minText, maxText)
	if err != nil {
		s.fail(c, http.StatusBadRequest, source, "", err)
		return
	}

	mtype, err := sniff(fh)
	if err != nil {
		s.fail(c, http.StatusBadRequest, source, kindBadRequest, err)
		return
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		s.fail(c, http.StatusBadRequest, source, kindNotImage, fmt.Errorf("uploaded file is not an image (%s)", mtype.String()))
		return
	}

	dir := s.conf.UploadDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.fail(c, http.StatusInternalServerError, source, kindFailed, err)
		return
	}
	saved := filepath.Join(dir, uuid.NewString()+mtype.Extension())
	if err := c.SaveUploadedFile(fh, saved); err != nil {
		s.fail(c, http.StatusInternalServerError, source, kindFailed, err)
		return
	}
	s.metrics.ObserveUpload(fh.Size)

	logrus.WithFields(logrus.Fields{
		"filename": fh.Filename,
		"savedAs":  saved,
		"mime":     mtype.String(),
		"size":     fh.Size,
		"mode":     mode,
	}).Debug("upload saved")

	var value reading.Reading
	switch mode {
	case config.ModeSimulate:
		value = s.estimator.EstimateRange(rng)
	case config.ModeProxy:
		value, err = s.forward(c.Request.Context(), saved, fh.Filename, minText, maxText)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) {
				remote := errors.New(apiErr.Message)
				if k, ok := reading.ParseKind(apiErr.Code); ok {
					remote = &reading.ValidationError{Kind: k}
				}
				s.fail(c, apiErr.StatusCode, source, kindFailed, remote)
				return
			}
			s.fail(c, http.StatusBadGateway, source, kindFailed, err)
			return
		}
	default:
		res, err := s.analyzer().ReadFile(saved, rng)
		if err != nil {
			status, kind := http.StatusInternalServerError, kindFailed
			switch {
			case errors.Is(err, gauge.ErrImageTooLarge):
				status, kind = http.StatusRequestEntityTooLarge, kindTooLarge
			case errors.Is(err, gauge.ErrNoDialDetected):
				kind = kindNoDial
			case errors.Is(err, gauge.ErrNoNeedleDetected):
				kind = kindNoNeedle
			}
			s.fail(c, status, source, kind, err)
			return
		}
		value = res.Reading
		logrus.WithFields(logrus.Fields{
			"angle":      res.Detection.AngleDeg,
			"confidence": res.Detection.Confidence,
			"format":     res.Format,
		}).Debug("needle detected")
	}

	s.produced(reading.Record{
		Source:   source,
		Range:    rng,
		Value:    value,
		Filename: filepath.Base(saved),
	})

	v := float64(value)
	c.IndentedJSON(http.StatusOK, client.UploadResponse{Reading: &v})
}

// sniff detects the content type from the first bytes of the upload.
func sniff(fh *multipart.FileHeader) (*mimetype.MIME, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return mimetype.DetectReader(f)
}

// forward sends the saved upload to the configured inference server.
func (s *Server) forward(ctx context.Context, path, filename, minText, maxText string) (reading.Reading, error) {
	url := s.conf.InferenceURL()
	if url == "" {
		return 0, errors.New("proxy mode needs inferenceURL")
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, proxyTimeout)
	defer cancel()

	return client.NewClient(url).Upload(ctx, filename, f, minText, maxText)
}

func (s *Server) estimate(c *gin.Context) {
	var req client.EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, reading.SourceSimulated, kindBadRequest, err)
		return
	}

	rng, err := reading.ParseRange(req.Min, req.Max)
	if err != nil {
		s.fail(c, http.StatusBadRequest, reading.SourceSimulated, "", err)
		return
	}

	value := s.estimator.EstimateRange(rng)
	s.produced(reading.Record{Source: reading.SourceSimulated, Range: rng, Value: value})

	c.IndentedJSON(http.StatusOK, client.EstimateResponse{Reading: value, Range: rng})
}

func (s *Server) getReadings(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.recorder.Records())
}

func (s *Server) streamEvents(c *gin.Context) {
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	// Send headers now so clients see the stream open before the first event.
	c.Writer.Flush()

	keepalive := time.NewTicker(eventKeepalive)
	defer keepalive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-keepalive.C:
			_, err := io.WriteString(w, ": keepalive\n\n")
			return err == nil
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (s *Server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (s *Server) setMode(c *gin.Context) {
	var req client.ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	m, ok := config.ParseMode(req.Mode)
	if !ok {
		err := fmt.Errorf("mode must be one of local, simulate, proxy, got %q", req.Mode)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if m == config.ModeProxy && s.conf.InferenceURL() == "" {
		err := errors.New("set inferenceURL in the config before switching to proxy mode")
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	s.conf.SetMode(m)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set mode to %s", m)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("mode set to %s", m))
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, client.VersionResponse{
		Version:   version.Version,
		GitCommit: version.GitCommit,
	})
}

func (s *Server) getHealth(c *gin.Context) {
	resp := client.HealthResponse{
		Status:           "ok",
		Mode:             string(s.conf.Mode()),
		Subscribers:      s.hub.Subscribers(),
		ReadingsLastHour: s.recorder.CountIn(time.Hour),
	}
	if next, running := s.janitor.Status(); running && !next.IsZero() {
		resp.NextCleanup = next.Format(time.RFC3339)
	}
	c.IndentedJSON(http.StatusOK, resp)
}

func (s *Server) getMetrics(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.metrics.WriteText(&buf); err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, metrics.ContentType, buf.Bytes())
}
