package metrics

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestWriteTextRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.ObserveReading("simulated")
	r.ObserveReading("simulated")
	r.ObserveReading("image")
	r.ObserveRejection("simulated", "RangeOrderInvalid")
	r.ObserveUpload(2048)
	r.ObserveUpload(-1)

	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("parse exposition: %v", err)
	}

	readings := mfs[ReadingsTotal]
	if readings == nil || len(readings.GetMetric()) != 2 {
		t.Fatalf("readings family = %v", readings)
	}
	// sorted by label value: image < simulated
	if got := labelValue(readings.GetMetric()[0], "source"); got != "image" {
		t.Fatalf("first series source = %q, want image", got)
	}
	if got := readings.GetMetric()[1].GetCounter().GetValue(); got != 2 {
		t.Fatalf("simulated readings = %v, want 2", got)
	}

	rej := mfs[RejectionsTotal]
	if rej == nil || len(rej.GetMetric()) != 1 {
		t.Fatalf("rejections family = %v", rej)
	}
	if got := labelValue(rej.GetMetric()[0], "kind"); got != "RangeOrderInvalid" {
		t.Fatalf("rejection kind = %q", got)
	}

	if got := mfs[UploadBytesTotal].GetMetric()[0].GetCounter().GetValue(); got != 2048 {
		t.Fatalf("upload bytes = %v, want 2048", got)
	}
}

func TestEmptyRegistry(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRegistry().WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if !strings.Contains(buf.String(), UploadBytesTotal+" 0") {
		t.Fatalf("expected a zero upload counter, got:\n%s", buf.String())
	}
}

func TestConcurrentObserve(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.ObserveReading("image")
			}
		}()
	}
	wg.Wait()

	for _, mf := range r.Gather() {
		if mf.GetName() != ReadingsTotal {
			continue
		}
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 800 {
			t.Fatalf("readings = %v, want 800", got)
		}
	}
}
