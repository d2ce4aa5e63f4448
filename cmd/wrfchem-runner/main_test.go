package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrfinfra/wrfchem-runner/dateutil"
)

func runDates(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"dates"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDatesCommandPassesArgumentsThrough(t *testing.T) {
	out, err := runDates(t, "-d", "2025-03-01Z", "+%F")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01\n", out)

	out, err = runDates(t, "--date=2025-03-01T06:30:00Z", "+%Y%m%d%H")
	require.NoError(t, err)
	assert.Equal(t, "2025030106\n", out)
}

func TestDatesCommandNegativeOffset(t *testing.T) {
	out, err := runDates(t, "-d", "2025-03-01Z", "-6", "hours", "+%FT%T")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-28T18:00:00\n", out)
}

func TestDatesCommandRejectsInvalidDate(t *testing.T) {
	_, err := runDates(t, "-d", "2026-02-29")
	assert.ErrorIs(t, err, dateutil.ErrInvalidDate)
}
