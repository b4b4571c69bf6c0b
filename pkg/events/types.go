package events

import "encoding/json"

// Event name constants
const (
	ReadingProduced = "reading.produced"
	ReadingRejected = "reading.rejected"
)

// Event is a generic SSE event from the reading server.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// ReadingProducedEvent is the typed payload for reading.produced.
type ReadingProducedEvent struct {
	Source   string  `json:"source"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Reading  float64 `json:"reading"`
	Filename string  `json:"filename,omitempty"`
	Ts       int64   `json:"ts"`
}

// ReadingRejectedEvent is the typed payload for reading.rejected.
type ReadingRejectedEvent struct {
	Source  string `json:"source"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into T. An empty payload yields the
// zero value of T.
//
//	payload, err := events.DecodeAs[events.ReadingProducedEvent](ev)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
