package server

import (
	"sync"
	"time"

	"github.com/gaugeread/gaugeread/pkg/reading"
)

// Recorder keeps the last MaxRecordCount readings, oldest first.
type Recorder struct {
	MaxRecordCount int
	records        []reading.Record
	mu             *sync.Mutex
}

func NewRecorder(maxRecordCount int) *Recorder {
	return &Recorder{
		MaxRecordCount: max(maxRecordCount, 1),
		records:        make([]reading.Record, 0, maxRecordCount),
		mu:             &sync.Mutex{},
	}
}

// Add appends a record, dropping the oldest when full. A zero Time is set to
// now.
func (r *Recorder) Add(rec reading.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	// Strip the monotonic reading so JSON and time.Since agree after sleep.
	rec.Time = rec.Time.Round(0)

	r.records = append(r.records, rec)
	r.trim()
}

// Resize changes the capacity, keeping the newest records.
func (r *Recorder) Resize(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.MaxRecordCount = max(n, 1)
	r.trim()
}

func (r *Recorder) trim() {
	if over := len(r.records) - r.MaxRecordCount; over > 0 {
		r.records = append(r.records[:0:0], r.records[over:]...)
	}
}

// Records returns a copy of the history.
func (r *Recorder) Records() []reading.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]reading.Record{}, r.records...)
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = r.records[:0]
}

// CountIn returns how many of the kept records are newer than last.
func (r *Recorder) CountIn(last time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for i := len(r.records) - 1; i >= 0; i-- {
		if time.Since(r.records[i].Time) > last {
			break
		}
		count++
	}
	return count
}
