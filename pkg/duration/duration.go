// Package duration parses human-readable interval strings ("10ms", "5s")
// into time.Duration values.
//
// Accepted form: a non-negative decimal numeral immediately followed by a
// unit suffix. Supported units: "us" (or "µs"), "ms", "s", "m", "h".
// Compound values ("1m30s") and fractional numerals ("1.5s") are accepted.
package duration

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid is the base error for all parse failures.
// Use errors.Is(err, ErrInvalid) to classify; the concrete error is always
// *InvalidDurationError.
var ErrInvalid = errors.New("invalid duration")

// InvalidDurationError reports a malformed duration string.
type InvalidDurationError struct {
	Input  string
	Reason string
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid duration %q: %s", e.Input, e.Reason)
}

func (e *InvalidDurationError) Is(target error) bool { return target == ErrInvalid }

func invalid(input, reason string) error {
	return &InvalidDurationError{Input: input, Reason: reason}
}

// Parse converts s into a non-negative duration.
//
// Parse is strict about shape: no surrounding whitespace, no sign, and the
// numeral must carry a unit ("10" alone is rejected). Negative values are
// rejected even when they would parse.
func Parse(s string) (time.Duration, error) {
	if s == "" {
		return 0, invalid(s, "empty string")
	}
	if s != strings.TrimSpace(s) {
		return 0, invalid(s, "surrounding whitespace")
	}
	if s[0] == '-' || s[0] == '+' {
		return 0, invalid(s, "sign not allowed")
	}
	if s[0] < '0' || s[0] > '9' {
		return 0, invalid(s, "missing numeral")
	}
	// time.ParseDuration special-cases "0"; we still require a unit.
	if strings.Trim(s, "0123456789.") == "" {
		return 0, invalid(s, "missing unit")
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		// time.ParseDuration's own message mentions the input already;
		// keep ours short.
		return 0, invalid(s, "missing or unknown unit")
	}
	if d < 0 {
		return 0, invalid(s, "negative value")
	}
	return d, nil
}

// MustParse is Parse for static strings; it panics on error.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}
