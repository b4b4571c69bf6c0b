package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gaugeread/gaugeread/pkg/config"
	"github.com/gaugeread/gaugeread/pkg/events"
	"github.com/gaugeread/gaugeread/pkg/reading"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile(FieldFile)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "No file uploaded"})
			return
		}
		b, _ := io.ReadAll(f)
		if hdr.Filename != "gauge.jpg" || string(b) != "jpeg bytes" {
			t.Errorf("file = %q %q", hdr.Filename, b)
		}
		if r.FormValue(FieldMin) != "0" || r.FormValue(FieldMax) != "100abc" {
			t.Errorf("range = %q..%q", r.FormValue(FieldMin), r.FormValue(FieldMax))
		}
		writeJSON(w, http.StatusOK, map[string]float64{"reading": 42.5})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.Upload(context.Background(), "gauge.jpg", strings.NewReader("jpeg bytes"), "0", "100abc")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got != 42.5 {
		t.Fatalf("reading = %v, want 42.5", got)
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		message string
	}{
		{"processing failure", http.StatusInternalServerError, ErrorResponse{Error: "No circles detected in the image."}, "No circles detected in the image."},
		{"bare string", http.StatusBadRequest, "limit must be set", "limit must be set"},
		{"missing reading", http.StatusOK, map[string]string{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Upload(context.Background(), "g.png", strings.NewReader("x"), "0", "1")
			if err == nil {
				t.Fatalf("expected an error")
			}
			if tt.message == "" {
				return
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %v is not an *APIError", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Message != tt.message {
				t.Fatalf("APIError = %+v", apiErr)
			}
		})
	}
}

func TestEstimateCarriesValidationKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req EstimateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Min == req.Max {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: reading.KindRangeOrderInvalid.UserMessage(),
				Code:  string(reading.KindRangeOrderInvalid),
			})
			return
		}
		writeJSON(w, http.StatusOK, EstimateResponse{Reading: 2, Range: reading.CalibrationRange{Min: 1, Max: 3}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	_, err := c.Estimate(context.Background(), "5", "5")
	if !errors.Is(err, reading.ErrRangeOrderInvalid) {
		t.Fatalf("got %v, want RangeOrderInvalid", err)
	}
	if errors.Is(err, reading.ErrNotANumber) {
		t.Fatalf("error should not match another kind")
	}

	resp, err := c.Estimate(context.Background(), "1", "3")
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if resp.Reading != 2 || resp.Range.Max != 3 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewClient(srv.URL).GetVersion(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestServerNotRunning(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "missing.sock")
	_, err := NewClient(UnixPrefix+sock).Health(context.Background())
	if !errors.Is(err, ErrServerNotRunning) {
		t.Fatalf("missing socket: got %v, want ErrServerNotRunning", err)
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()
	_, err = NewClient(addr).Health(context.Background())
	if !errors.Is(err, ErrServerNotRunning) {
		t.Fatalf("closed port: got %v, want ErrServerNotRunning", err)
	}
}

func TestUnixSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "g.sock")
	l, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Mode: "simulate"})
		case "/mode":
			var req ModeRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			writeJSON(w, http.StatusCreated, "mode set to "+req.Mode)
		case "/config":
			writeJSON(w, http.StatusOK, map[string]any{"mode": "simulate", "recentReadings": 5})
		case "/readings":
			writeJSON(w, http.StatusOK, []reading.Record{{Source: reading.SourceSimulated, Value: 1.5}})
		default:
			http.NotFound(w, r)
		}
	})}
	go func() { _ = srv.Serve(l) }()
	defer srv.Close()

	c := NewClient(UnixPrefix + sock)
	ctx := context.Background()

	h, err := c.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "ok" || h.Mode != "simulate" {
		t.Fatalf("health = %+v", h)
	}

	msg, err := c.SetMode(ctx, config.ModeProxy)
	if err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if msg != "mode set to proxy" {
		t.Fatalf("SetMode message = %q", msg)
	}

	conf, err := c.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if conf.Mode == nil || *conf.Mode != "simulate" || conf.RecentReadings == nil || *conf.RecentReadings != 5 {
		t.Fatalf("config = %+v", conf)
	}

	records, err := c.GetRecentReadings(ctx)
	if err != nil {
		t.Fatalf("GetRecentReadings: %v", err)
	}
	if len(records) != 1 || records[0].Value != 1.5 {
		t.Fatalf("records = %+v", records)
	}
}

func TestReadEvents(t *testing.T) {
	stream := "event:reading.produced\ndata:{\"reading\":4.2,\"source\":\"image\"}\n\n" +
		": comment\n\n" +
		"event: reading.rejected\ndata: {\"kind\":\"NotANumber\"}\n\n"

	ch := make(chan events.Event, 4)
	if err := readEvents(context.Background(), bufio.NewScanner(strings.NewReader(stream)), ch); err != nil {
		t.Fatalf("readEvents: %v", err)
	}
	close(ch)

	var got []events.Event
	for ev := range ch {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	p, err := events.DecodeAs[events.ReadingProducedEvent](got[0])
	if err != nil || got[0].Name != events.ReadingProduced || p.Reading != 4.2 {
		t.Fatalf("first event = %s %+v %v", got[0].Name, p, err)
	}
	r, err := events.DecodeAs[events.ReadingRejectedEvent](got[1])
	if err != nil || got[1].Name != events.ReadingRejected || r.Kind != "NotANumber" {
		t.Fatalf("second event = %s %+v %v", got[1].Name, r, err)
	}
}

func TestSubscribeEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event:reading.produced\ndata:{\"reading\":7}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := NewClient(srv.URL).SubscribeEvents(ctx)

	select {
	case ev := <-ch:
		if ev.Name != events.ReadingProduced {
			t.Fatalf("event = %q", ev.Name)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no event received")
	}

	cancel()
	for range ch {
	}
}
