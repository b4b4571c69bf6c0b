// Package metrics keeps the reading server's counters and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"io"
	"sort"
	"strings"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

const (
	ReadingsTotal    = "gaugeread_readings_total"
	RejectionsTotal  = "gaugeread_rejections_total"
	UploadBytesTotal = "gaugeread_upload_bytes_total"
)

// ContentType is the Content-Type of WriteText output.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

type Registry struct {
	mu          sync.Mutex
	readings    map[string]float64
	rejections  map[[2]string]float64
	uploadBytes float64
}

func NewRegistry() *Registry {
	return &Registry{
		readings:   make(map[string]float64),
		rejections: make(map[[2]string]float64),
	}
}

// ObserveReading counts a reading returned to a caller.
func (r *Registry) ObserveReading(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings[source]++
}

// ObserveRejection counts a request that did not produce a reading. kind is a
// validation kind or a short failure label such as "no_dial".
func (r *Registry) ObserveRejection(source, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections[[2]string{source, kind}]++
}

func (r *Registry) ObserveUpload(n int64) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploadBytes += float64(n)
}

// Gather snapshots the counters as metric families. Series inside a family
// are sorted by label values.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	defer r.mu.Unlock()

	readings := make([]*dto.Metric, 0, len(r.readings))
	for source, v := range r.readings {
		readings = append(readings, counter(v, "source", source))
	}
	sortMetrics(readings)

	rejections := make([]*dto.Metric, 0, len(r.rejections))
	for k, v := range r.rejections {
		rejections = append(rejections, counter(v, "source", k[0], "kind", k[1]))
	}
	sortMetrics(rejections)

	all := []*dto.MetricFamily{
		family(ReadingsTotal, "Readings returned, by source.", readings),
		family(RejectionsTotal, "Requests that did not produce a reading, by source and kind.", rejections),
		family(UploadBytesTotal, "Bytes of gauge photos accepted by /upload.", []*dto.Metric{counter(r.uploadBytes)}),
	}
	// The text format has no representation for a family without samples.
	out := all[:0]
	for _, mf := range all {
		if len(mf.Metric) > 0 {
			out = append(out, mf)
		}
	}
	return out
}

// WriteText writes every family in the text exposition format.
func (r *Registry) WriteText(w io.Writer) error {
	for _, mf := range r.Gather() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func family(name, help string, metrics []*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: metrics,
	}
}

// counter builds a counter sample; labels are name/value pairs.
func counter(v float64, labels ...string) *dto.Metric {
	m := &dto.Metric{Counter: &dto.Counter{Value: proto.Float64(v)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	return m
}

func sortMetrics(ms []*dto.Metric) {
	key := func(m *dto.Metric) string {
		vals := make([]string, 0, len(m.GetLabel()))
		for _, l := range m.GetLabel() {
			vals = append(vals, l.GetValue())
		}
		return strings.Join(vals, "\x00")
	}
	sort.Slice(ms, func(i, j int) bool { return key(ms[i]) < key(ms[j]) })
}
