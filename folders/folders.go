// Package folders computes every directory and file name the pipeline
// uses. Names are deterministic functions of the run id, the stage and the
// simulation dates, so stages submitted days apart still find each other's
// output directories. All roots come in as arguments; there is no ambient
// state to misconfigure.
package folders

import (
	"time"

	"github.com/wrfinfra/wrfchem-runner/fsutil"
)

// StageOutputDir is where a stage publishes its artifacts. The next stage
// in the chain uses it as input directory.
func StageOutputDir(outputRoot fsutil.Path, runID, stage string) fsutil.Path {
	return outputRoot.JoinF("%s/%s", runID, stage)
}

// ScratchDir names the exclusively-owned working directory of one stage
// execution. Stage id, scheduler job id and timestamp together keep
// concurrent submissions from colliding.
func ScratchDir(workRoot fsutil.Path, stage, jobID string, t time.Time) fsutil.Path {
	return workRoot.JoinF("%s-%s-%s", stage, jobID, t.UTC().Format("20060102T150405Z"))
}

// BoundaryFile names one time-varying meteorological input inside the
// driving-data archive.
func BoundaryFile(inputArchive fsutil.Path, dt time.Time) fsutil.Path {
	return inputArchive.JoinF("%s/gfs_%s.grib2", dt.UTC().Format("2006/01/02"), dt.UTC().Format("2006010215"))
}

// MetgridFile names one met_em intermediate produced by WPS and consumed
// by real.exe.
func MetgridFile(dt time.Time) string {
	return "met_em.d01." + NamelistDate(dt) + ".nc"
}

// NamelistDate renders an instant the way WRF namelists expect it.
func NamelistDate(dt time.Time) string {
	return dt.UTC().Format("2006-01-02_15:04:05")
}
