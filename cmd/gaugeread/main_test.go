package main

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gaugeread/gaugeread/pkg/events"
	"github.com/gaugeread/gaugeread/pkg/picker"
	"github.com/gaugeread/gaugeread/pkg/reading"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEstimateCommand(t *testing.T) {
	estimator = reading.Estimator{Rand: func() float64 { return 0.5 }}
	defer func() { estimator = reading.Estimator{} }()

	out, err := run(t, "estimate", "--min", "1", "--max", "3")
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if strings.TrimSpace(out) != "2.00" {
		t.Fatalf("output = %q, want 2.00", out)
	}

	tests := []struct {
		min, max string
		want     *reading.ValidationError
	}{
		{"", "3", reading.ErrMissingInput},
		{"abc", "10", reading.ErrNotANumber},
		{"5", "5", reading.ErrRangeOrderInvalid},
	}
	for _, tt := range tests {
		_, err := run(t, "estimate", "--min", tt.min, "--max", tt.max)
		if !errors.Is(err, tt.want) {
			t.Errorf("estimate %q %q: got %v, want %s", tt.min, tt.max, err, tt.want.Kind)
		}
	}
}

func TestReadCommand(t *testing.T) {
	dir := t.TempDir()
	blank := filepath.Join(dir, "blank.png")
	f, err := os.Create(blank)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	img := image.NewGray(image.Rect(0, 0, 50, 50))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	_ = png.Encode(f, img)
	_ = f.Close()

	out, err := run(t, "read", "--min", "0", "--max", "10", blank, filepath.Join(dir, "missing.png"))
	if err == nil {
		t.Fatalf("unreadable photos should fail the command")
	}
	if !strings.Contains(err.Error(), "2 of 2") {
		t.Fatalf("error = %v", err)
	}
	if !strings.Contains(out, "No circles detected in the image.") {
		t.Fatalf("output should carry the per-photo error:\n%s", out)
	}

	if _, err := run(t, "read", "--min", "9", "--max", "1", blank); !errors.Is(err, reading.ErrRangeOrderInvalid) {
		t.Fatalf("reversed range: got %v", err)
	}
}

func TestPickCommand(t *testing.T) {
	p := filepath.Join(t.TempDir(), "dial.png")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = png.Encode(f, image.NewGray(image.Rect(0, 0, 30, 20)))
	_ = f.Close()

	out, err := run(t, "pick", p)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	for _, want := range []string{"dial.png", "image/png", "30x20"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "pick"); !errors.Is(err, picker.ErrCancelled) {
		t.Fatalf("no file: got %v, want ErrCancelled", err)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("GAUGEREAD_TEST_ADDR", "unix:///tmp/g.sock")
	if got := envOr("GAUGEREAD_TEST_ADDR", defaultAddr); got != "unix:///tmp/g.sock" {
		t.Fatalf("envOr = %q", got)
	}
	if got := envOr("GAUGEREAD_TEST_UNSET", defaultAddr); got != defaultAddr {
		t.Fatalf("envOr default = %q", got)
	}
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name  string
		ev    events.Event
		wants []string
		err   bool
	}{
		{
			name:  "produced",
			ev:    events.Event{Name: events.ReadingProduced, Data: []byte(`{"source":"image","min":0,"max":10,"reading":4.5,"ts":1}`)},
			wants: []string{"image", "4.50", "[0, 10]"},
		},
		{
			name:  "rejected",
			ev:    events.Event{Name: events.ReadingRejected, Data: []byte(`{"source":"simulated","kind":"NotANumber","message":"bad range","ts":1}`)},
			wants: []string{"simulated", "rejected", "bad range", "(NotANumber)"},
		},
		{
			name: "unknown",
			ev:   events.Event{Name: "something.else", Data: []byte(`{}`)},
		},
		{
			name: "malformed",
			ev:   events.Event{Name: events.ReadingProduced, Data: []byte(`{"reading":`)},
			err:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatEvent(tt.ev)
			if (err != nil) != tt.err {
				t.Fatalf("err = %v, want error %v", err, tt.err)
			}
			if len(tt.wants) == 0 && got != "" {
				t.Fatalf("got %q, want an empty line", got)
			}
			for _, want := range tt.wants {
				if !strings.Contains(got, want) {
					t.Errorf("line %q missing %q", got, want)
				}
			}
		})
	}
}

func TestWatchCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/version":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"version":"test","gitCommit":"none"}`)
		case "/events":
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, "event:reading.produced\ndata:{\"source\":\"image\",\"min\":0,\"max\":100,\"reading\":42,\"ts\":1}\n\n")
			_, _ = io.WriteString(w, "event:reading.rejected\ndata:{\"source\":\"image\",\"kind\":\"no_dial\",\"message\":\"No circles detected in the image.\",\"ts\":2}\n\n")
			w.(http.Flusher).Flush()
			<-r.Context().Done()
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out, err := run(t, "--server", srv.URL, "watch", "-n", "2")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	for _, want := range []string{"42.00", "[0, 100]", "rejected", "No circles detected in the image."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
