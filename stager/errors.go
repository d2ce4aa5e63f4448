package stager

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrScratchCollision reports a scratch directory already owned by a
// non-stale prior run.
var ErrScratchCollision = errors.New("scratch directory already exists")

// ErrOutputExists reports pre-existing content in the output directory
// when the configured policy is to treat that as an error.
var ErrOutputExists = errors.New("output directory already contains results")

// MissingInputError reports a required time-varying input absent from the
// input directory. It aborts the stage before any executable is invoked;
// partial periods are never silently accepted.
type MissingInputError struct {
	Date time.Time
	Kind string
	Path string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing %s input for %s: %s",
		e.Kind, e.Date.UTC().Format("2006-01-02T15:04:05Z"), e.Path)
}

// StagingError wraps any failure between Init and Staged. The scratch
// directory is left in place for inspection.
type StagingError struct {
	Stage string
	Err   error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("staging %s: %s", e.Stage, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

// ExecutionError reports a subprocess that exited with a non-whitelisted
// status or without its success marker. LogTail echoes the end of the
// executable's log so the operator sees the failure without opening files.
type ExecutionError struct {
	Stage      string
	Phase      string
	Executable string
	ExitCode   int
	LogTail    string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s/%s: %s exited with status %d\n--- log tail ---\n%s",
		e.Stage, e.Phase, e.Executable, e.ExitCode, e.LogTail)
}

// FinalizationError reports expected artifact classes absent from scratch
// after a successful execution. Nothing is moved when it is returned: the
// output directory is exactly as it was before the run.
type FinalizationError struct {
	Stage   string
	Missing []string
}

func (e *FinalizationError) Error() string {
	return fmt.Sprintf("finalizing %s: no artifacts for class(es) %s, output directory left untouched",
		e.Stage, strings.Join(e.Missing, ", "))
}
