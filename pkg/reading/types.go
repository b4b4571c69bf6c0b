package reading

import (
	"fmt"
	"time"
)

// Kind classifies why a calibration range was rejected.
type Kind string

const (
	KindMissingInput      Kind = "MissingInput"
	KindNotANumber        Kind = "NotANumber"
	KindRangeOrderInvalid Kind = "RangeOrderInvalid"
)

const (
	msgMissingInput = "Please enter both min and max values."
	msgInvalidRange = "Invalid min or max value. Ensure min < max and both are numbers."
)

// UserMessage returns the text shown to a user for this kind of failure.
func (k Kind) UserMessage() string {
	if k == KindMissingInput {
		return msgMissingInput
	}
	return msgInvalidRange
}

// ParseKind maps a wire code back to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindMissingInput, KindNotANumber, KindRangeOrderInvalid:
		return Kind(s), true
	}
	return "", false
}

// ValidationError is returned when the calibration input cannot form a range.
// Two errors are equal under errors.Is when their kinds match.
type ValidationError struct {
	Kind Kind
	// Field is "min", "max" or empty when the failure concerns both.
	Field string
	Input string
}

var (
	ErrMissingInput      = &ValidationError{Kind: KindMissingInput}
	ErrNotANumber        = &ValidationError{Kind: KindNotANumber}
	ErrRangeOrderInvalid = &ValidationError{Kind: KindRangeOrderInvalid}
)

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindMissingInput:
		return "both min and max values are required"
	case KindNotANumber:
		return fmt.Sprintf("%s value %q is not a number", e.Field, e.Input)
	case KindRangeOrderInvalid:
		return fmt.Sprintf("min must be less than max, got %s", e.Input)
	default:
		return string(e.Kind)
	}
}

func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

// CalibrationRange is the labelled scale of a gauge. Min < Max and both are
// finite for every value produced by ParseRange or NewRange.
type CalibrationRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Reading is a gauge value rounded to two decimal places.
type Reading float64

func (r Reading) String() string {
	return fmt.Sprintf("%.2f", float64(r))
}

// Source identifies what produced a reading.
type Source string

const (
	SourceSimulated Source = "simulated"
	SourceImage     Source = "image"
	SourceRemote    Source = "remote"
)

// Record is a produced reading as kept by the server's history.
type Record struct {
	Time     time.Time        `json:"time"`
	Source   Source           `json:"source"`
	Range    CalibrationRange `json:"range"`
	Value    Reading          `json:"value"`
	Filename string           `json:"filename,omitempty"`
}
