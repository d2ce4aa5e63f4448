package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wrfinfra/wrfchem-runner/validate"
)

func TestToUTCDefaults(t *testing.T) {
	out, err := ToUTC([]string{"-d", "2025-03-01T06:30:00Z"})
	assert.NoError(t, err)
	assert.Equal(t, "2025-03-01T06:30:00Z", out)

	out, err = ToUTC([]string{"--date=2025-03-01"})
	assert.NoError(t, err)
	assert.Equal(t, "2025-03-01T00:00:00Z", out)
}

func TestToUTCFormatDirectives(t *testing.T) {
	out, err := ToUTC([]string{"-d", "2025-03-01T06:30:15Z", "+%Y%m%d%H"})
	assert.NoError(t, err)
	assert.Equal(t, "2025030106", out)

	out, err = ToUTC([]string{"-d", "2025-03-01Z", "+%F %T"})
	assert.NoError(t, err)
	assert.Equal(t, "2025-03-01 00:00:00", out)

	out, err = ToUTC([]string{"-d", "2025-12-31Z", "+%j"})
	assert.NoError(t, err)
	assert.Equal(t, "365", out)

	_, err = ToUTC([]string{"-d", "2025-03-01Z", "+%Q"})
	assert.ErrorIs(t, err, ErrBadDirective)
}

func TestToUTCOffsets(t *testing.T) {
	out, err := ToUTC([]string{"-d", "2025-03-01Z", "+1 day", "+%F"})
	assert.NoError(t, err)
	assert.Equal(t, "2025-03-02", out)

	out, err = ToUTC([]string{"-d", "2025-03-01Z", "-6 hours", "+%FT%T"})
	assert.NoError(t, err)
	assert.Equal(t, "2025-02-28T18:00:00", out)

	_, err = ToUTC([]string{"-d", "2025-03-01Z", "+1 fortnight"})
	assert.ErrorIs(t, err, ErrBadDirective)
}

func TestToUTCRejectsInvalidDates(t *testing.T) {
	_, err := ToUTC([]string{"-d", "2026-02-29"})
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.ErrorIs(t, err, validate.ErrInvalidCalendarDate)

	_, err = ToUTC([]string{"-d", "01/03/2025"})
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ToUTC([]string{"-d"})
	assert.ErrorIs(t, err, ErrBadDirective)
}

func TestToUTCIgnoresAmbientTimezone(t *testing.T) {
	args := []string{"-d", "2025-06-15T12:00:00Z", "+%F %H:%M"}

	prev := time.Local
	defer func() { time.Local = prev }()

	time.Local = time.FixedZone("UTC+9", 9*3600)
	east, err := ToUTC(args)
	assert.NoError(t, err)

	time.Local = time.FixedZone("UTC-7", -7*3600)
	west, err := ToUTC(args)
	assert.NoError(t, err)

	assert.Equal(t, east, west)
	assert.Equal(t, "2025-06-15 12:00", east)
}
