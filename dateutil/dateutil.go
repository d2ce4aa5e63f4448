// Package dateutil renders dates for scheduled batch runs. Every instant
// that enters a namelist, a directory name or a log line goes through ToUTC,
// the single place where the execution host's ambient timezone is cancelled
// out. Batch nodes are not configured by the user, so any rendering that
// consulted the local zone would make runs nondeterministic across hosts.
package dateutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wrfinfra/wrfchem-runner/validate"
)

// ErrInvalidDate reports a date argument that failed validation. No
// formatting is performed when it is returned.
var ErrInvalidDate = errors.New("invalid date argument")

// ErrBadDirective reports an unsupported argument or format directive.
var ErrBadDirective = errors.New("unsupported directive")

// offsetUnits maps the accepted offset vocabulary to durations.
var offsetUnits = map[string]time.Duration{
	"second": time.Second, "seconds": time.Second,
	"minute": time.Minute, "minutes": time.Minute,
	"hour": time.Hour, "hours": time.Hour,
	"day": 24 * time.Hour, "days": 24 * time.Hour,
}

// directives is the supported strftime subset, mapped onto Go layouts.
var directives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
	'j': "002",
	'F': "2006-01-02",
	'T': "15:04:05",
	'%': "%",
}

// DefaultLayout is used when no format directive is given.
const DefaultLayout = "2006-01-02T15:04:05Z"

// ToUTC scans args for a date-bearing argument (`-d VALUE` or
// `--date=VALUE`), validates it, applies any offset arguments
// (`+1 day`, `-6 hours`) and renders the result with an optional `+FORMAT`
// strftime-style directive. Everything is computed and rendered in UTC.
// Without a date argument the current instant is used.
func ToUTC(args []string) (string, error) {
	instant := time.Now().UTC()
	layout := DefaultLayout

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-d" || arg == "--date":
			if i+1 >= len(args) {
				return "", fmt.Errorf("%w: %s needs a value", ErrBadDirective, arg)
			}
			i++
			dt, err := validate.CheckDate(args[i])
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrInvalidDate, err)
			}
			instant = dt

		case strings.HasPrefix(arg, "--date="):
			dt, err := validate.CheckDate(strings.TrimPrefix(arg, "--date="))
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrInvalidDate, err)
			}
			instant = dt

		case strings.HasPrefix(arg, "+%"):
			l, err := toLayout(arg[1:])
			if err != nil {
				return "", err
			}
			layout = l

		case strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-"):
			// Offset arithmetic, value and unit as one or two tokens.
			spec := arg
			if !strings.ContainsRune(arg, ' ') && i+1 < len(args) {
				if _, ok := offsetUnits[args[i+1]]; ok {
					spec = arg + " " + args[i+1]
					i++
				}
			}
			off, err := parseOffset(spec)
			if err != nil {
				return "", err
			}
			instant = instant.Add(off)

		default:
			return "", fmt.Errorf("%w: %q", ErrBadDirective, arg)
		}
	}

	return instant.UTC().Format(layout), nil
}

// parseOffset parses a "+N unit" / "-N unit" offset specification.
func parseOffset(spec string) (time.Duration, error) {
	fields := strings.Fields(spec)
	if len(fields) != 2 {
		return 0, fmt.Errorf("%w: offset %q", ErrBadDirective, spec)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("%w: offset value %q", ErrBadDirective, fields[0])
	}
	unit, ok := offsetUnits[fields[1]]
	if !ok {
		return 0, fmt.Errorf("%w: offset unit %q", ErrBadDirective, fields[1])
	}
	return time.Duration(n) * unit, nil
}

// toLayout converts a strftime-style format string to a Go time layout.
func toLayout(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		i++
		if i >= len(format) {
			return "", fmt.Errorf("%w: trailing %% in %q", ErrBadDirective, format)
		}
		layout, ok := directives[format[i]]
		if !ok {
			return "", fmt.Errorf("%w: %%%c in %q", ErrBadDirective, format[i], format)
		}
		b.WriteString(layout)
	}
	return b.String(), nil
}
