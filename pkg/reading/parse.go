package reading

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// numericPrefix matches the longest decimal literal at the start of a string.
// An exponent is only consumed when it carries digits, so "1e" reads as 1.
var numericPrefix = regexp.MustCompile(`^[+-]?(?:Infinity|(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?)`)

// ParseFloatPrefix parses the leading numeric part of s and ignores whatever
// follows it: "12abc" is 12, " 3.5e2 kPa" is 350. Leading whitespace is
// skipped. It reports false when s does not start with a number.
func ParseFloatPrefix(s string) (float64, bool) {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})

	m := numericPrefix.FindString(s)
	if m == "" {
		return math.NaN(), false
	}

	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		// Out of range literals still carry the correctly signed Inf or 0.
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return v, true
		}
		return math.NaN(), false
	}

	return v, true
}

// ParseRange validates raw min/max text. Checks run in order: missing input,
// then numeric parsing, then ordering.
func ParseRange(minText, maxText string) (CalibrationRange, error) {
	if minText == "" || maxText == "" {
		return CalibrationRange{}, &ValidationError{Kind: KindMissingInput}
	}

	lo, ok := ParseFloatPrefix(minText)
	if !ok || math.IsInf(lo, 0) {
		return CalibrationRange{}, &ValidationError{Kind: KindNotANumber, Field: "min", Input: minText}
	}
	hi, ok := ParseFloatPrefix(maxText)
	if !ok || math.IsInf(hi, 0) {
		return CalibrationRange{}, &ValidationError{Kind: KindNotANumber, Field: "max", Input: maxText}
	}

	return NewRange(lo, hi)
}

// NewRange builds a range from already parsed bounds.
func NewRange(lo, hi float64) (CalibrationRange, error) {
	if math.IsNaN(lo) || math.IsInf(lo, 0) {
		return CalibrationRange{}, &ValidationError{Kind: KindNotANumber, Field: "min", Input: strconv.FormatFloat(lo, 'g', -1, 64)}
	}
	if math.IsNaN(hi) || math.IsInf(hi, 0) {
		return CalibrationRange{}, &ValidationError{Kind: KindNotANumber, Field: "max", Input: strconv.FormatFloat(hi, 'g', -1, 64)}
	}
	if lo >= hi {
		return CalibrationRange{}, &ValidationError{
			Kind:  KindRangeOrderInvalid,
			Input: fmt.Sprintf("min=%g max=%g", lo, hi),
		}
	}
	return CalibrationRange{Min: lo, Max: hi}, nil
}

// Scale maps fraction, clamped to [0, 1], onto the range and rounds the result.
func (r CalibrationRange) Scale(fraction float64) Reading {
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	// Weighting the bounds stays finite where Max-Min would overflow.
	v := Round2(r.Min*(1-fraction) + r.Max*fraction)
	// Rounding can step just outside a bound that has more than two decimals.
	if math.IsNaN(v) || v < r.Min {
		v = r.Min
	}
	if v > r.Max {
		v = r.Max
	}
	return Reading(v)
}

func (r CalibrationRange) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}
