// Package validate contains the pure configuration checks that run before
// any stage touches the filesystem: path sanity, date grammar and calendar
// validity, and simulation period construction. Validators never perform
// I/O and never terminate the process; callers decide whether to abort.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Error kinds, matchable with errors.Is. Every returned error also echoes
// the offending input value so that operators can spot the misconfigured
// entry in the job log.
var (
	ErrEmptyPath           = errors.New("path is empty")
	ErrWhitespaceInPath    = errors.New("path contains whitespace")
	ErrBadFormat           = errors.New("date has invalid format")
	ErrInvalidCalendarDate = errors.New("date does not exist in the calendar")
	ErrWrongArity          = errors.New("a period needs exactly two dates")
	ErrInvalidDate         = errors.New("invalid date in period")
	ErrNonPositiveDuration = errors.New("period end must be after start")
)

// SimulationPeriod is a validated, strictly non-empty UTC time interval.
// Instances are only created by CheckPeriod and never mutated afterwards.
type SimulationPeriod struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the period.
func (p SimulationPeriod) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

func (p SimulationPeriod) String() string {
	return fmt.Sprintf("%s/%s",
		p.Start.Format("2006-01-02T15:04:05Z"),
		p.End.Format("2006-01-02T15:04:05Z"),
	)
}

// CheckPath verifies that a configured path value is usable downstream.
// Whitespace is rejected because these values end up unquoted in the shell
// bodies of scheduled jobs.
func CheckPath(p string) error {
	if p == "" {
		return fmt.Errorf("%w", ErrEmptyPath)
	}
	for _, r := range p {
		if unicode.IsSpace(r) {
			return fmt.Errorf("%w: %q", ErrWhitespaceInPath, p)
		}
	}
	return nil
}

// dateRe matches the accepted grammar: YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS,
// each optionally followed by the explicit UTC marker `Z`. Whether the
// named date exists is checked separately with real calendar semantics.
var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2})?Z?$`)

// CheckDate parses a configured date string. The string is always
// interpreted in UTC; no ambient-timezone reading ever happens here, so the
// same string yields the same instant on every execution host. Zone
// suffixes other than `Z` do not match the grammar and fail with
// ErrBadFormat; strings matching the grammar but naming a day that does not
// exist (2026-02-29, say) fail with ErrInvalidCalendarDate.
func CheckDate(s string) (time.Time, error) {
	if !dateRe.MatchString(s) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadFormat, s)
	}

	v := strings.TrimSuffix(s, "Z")
	layout := "2006-01-02"
	if strings.ContainsRune(v, 'T') {
		layout = "2006-01-02T15:04:05"
	}

	// The grammar already matched, so a parse failure here means the
	// components are out of calendar range.
	dt, err := time.ParseInLocation(layout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidCalendarDate, s)
	}
	return dt, nil
}

// CheckPeriod builds a SimulationPeriod from exactly two date strings.
// Equal instants are rejected along with reversed ones: an empty period
// would make every stage a silent no-op.
func CheckPeriod(dates ...string) (SimulationPeriod, error) {
	if len(dates) != 2 {
		return SimulationPeriod{}, fmt.Errorf("%w: got %d", ErrWrongArity, len(dates))
	}

	start, err := CheckDate(dates[0])
	if err != nil {
		return SimulationPeriod{}, fmt.Errorf("%w: %s", ErrInvalidDate, err)
	}
	end, err := CheckDate(dates[1])
	if err != nil {
		return SimulationPeriod{}, fmt.Errorf("%w: %s", ErrInvalidDate, err)
	}

	if !end.After(start) {
		return SimulationPeriod{}, fmt.Errorf("%w: start %q, end %q", ErrNonPositiveDuration, dates[0], dates[1])
	}

	return SimulationPeriod{Start: start, End: end}, nil
}
