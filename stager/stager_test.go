package stager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wrfinfra/wrfchem-runner/fsutil"
	"github.com/wrfinfra/wrfchem-runner/namelist"
	"github.com/wrfinfra/wrfchem-runner/validate"
)

func testPeriod(t *testing.T) validate.SimulationPeriod {
	t.Helper()
	p, err := validate.CheckPeriod("2025-03-01Z", "2025-03-08Z")
	require.NoError(t, err)
	return p
}

// newStage builds a minimal runnable stage over temp directories: one
// daily boundary input per period day, one phase running a shell command
// that fabricates the artifact.
func newStage(t *testing.T) (*Stage, string) {
	t.Helper()
	root := t.TempDir()
	archive := filepath.Join(root, "archive")
	require.NoError(t, os.MkdirAll(archive, 0o755))

	period := testPeriod(t)
	for dt := period.Start; !dt.After(period.End); dt = dt.Add(24 * time.Hour) {
		name := "bdy_" + dt.Format("20060102") + ".grib2"
		require.NoError(t, os.WriteFile(filepath.Join(archive, name), []byte("grib"), 0o644))
	}

	st := &Stage{
		Name:      "wps",
		JobID:     "42",
		Period:    period,
		Scratch:   fsutil.Path(filepath.Join(root, "scratch", "wps-42-t0")),
		OutputDir: fsutil.Path(filepath.Join(root, "out", "wps")),
		TimeInputs: []TimeVaryingInput{{
			Kind:     "boundary",
			Interval: 24 * time.Hour,
			Source: func(dt time.Time) fsutil.Path {
				return fsutil.Path(archive).Join("bdy_" + dt.Format("20060102") + ".grib2")
			},
			Target: func(dt time.Time) string {
				return "bdy_" + dt.Format("20060102") + ".grib2"
			},
		}},
		Phases: []Phase{{
			Name: "metgrid",
			Commands: []Command{{
				Name: "metgrid",
				Path: "/bin/sh",
				Args: []string{"-c", "touch met_em.d01.2025-03-01_00:00:00.nc"},
			}},
			Produces: []string{"met_em.*"},
		}},
		Artifacts: []ArtifactClass{{Name: "met_em", Pattern: "met_em.*"}},
	}
	return st, root
}

func TestStageHappyPath(t *testing.T) {
	st, root := newStage(t)

	err := st.Run(zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, Finalized, st.State())

	assert.FileExists(t, filepath.Join(root, "out", "wps", "met_em.d01.2025-03-01_00:00:00.nc"))
	// Scratch is gone after success.
	assert.NoDirExists(t, st.Scratch.String())
}

func TestStageKeepScratch(t *testing.T) {
	st, _ := newStage(t)
	st.KeepScratch = true

	require.NoError(t, st.Run(nil))
	assert.DirExists(t, st.Scratch.String())
	assert.FileExists(t, st.Scratch.Join("metgrid.log").String())
}

func TestMissingInputAbortsBeforeExecution(t *testing.T) {
	st, root := newStage(t)

	// A 3-day gap in the middle of the period.
	for _, day := range []string{"20250303", "20250304", "20250305"} {
		require.NoError(t, os.Remove(filepath.Join(root, "archive", "bdy_"+day+".grib2")))
	}

	err := st.Run(nil)
	require.Error(t, err)
	assert.Equal(t, Aborted, st.State())

	var missing *MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "boundary", missing.Kind)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), missing.Date)
	assert.Contains(t, err.Error(), "2025-03-03")

	// The executable never ran and nothing reached the output directory.
	assert.NoFileExists(t, st.Scratch.Join("metgrid.log").String())
	entries, readErr := os.ReadDir(st.OutputDir.String())
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestNonPositiveIntervalAborts(t *testing.T) {
	st, _ := newStage(t)
	st.TimeInputs[0].Interval = 0

	err := st.Run(nil)
	require.Error(t, err)
	assert.Equal(t, Aborted, st.State())

	var staging *StagingError
	require.ErrorAs(t, err, &staging)
	assert.Contains(t, err.Error(), "non-positive interval")
	assert.NoFileExists(t, st.Scratch.Join("metgrid.log").String())
}

func TestWhitelistedExitProceedsToFinalized(t *testing.T) {
	st, _ := newStage(t)
	st.Phases[0].Commands = []Command{{
		Name:        "megan_bio_emiss",
		Path:        "/bin/sh",
		Args:        []string{"-c", "touch met_em.d01.2025-03-01_00:00:00.nc; exit 37"},
		BenignCodes: []int{37},
	}}

	err := st.Run(nil)
	require.NoError(t, err)
	assert.Equal(t, Finalized, st.State())
}

func TestNonWhitelistedExitAborts(t *testing.T) {
	st, _ := newStage(t)
	st.KeepScratch = true
	st.Phases[0].Commands = []Command{{
		Name: "metgrid",
		Path: "/bin/sh",
		Args: []string{"-c", "echo FATAL CALLED FROM FILE; exit 1"},
	}}

	err := st.Run(nil)
	require.Error(t, err)
	assert.Equal(t, Aborted, st.State())

	var exec *ExecutionError
	require.ErrorAs(t, err, &exec)
	assert.Equal(t, 1, exec.ExitCode)
	assert.Equal(t, "metgrid", exec.Executable)
	assert.Contains(t, exec.LogTail, "FATAL CALLED FROM FILE")

	// Scratch is preserved for inspection on failure.
	assert.DirExists(t, st.Scratch.String())
}

func TestSuccessMarkerRequired(t *testing.T) {
	st, _ := newStage(t)
	st.Phases[0].Commands = []Command{{
		Name:          "wrf",
		Path:          "/bin/sh",
		Args:          []string{"-c", "echo 'd01 2025-03-01 Timing for main' > rsl.out.0000; touch met_em.d01.x.nc; exit 0"},
		FollowLog:     "rsl.out.0000",
		SuccessMarker: "SUCCESS COMPLETE WRF",
	}}

	err := st.Run(nil)
	require.Error(t, err)

	var exec *ExecutionError
	require.ErrorAs(t, err, &exec)
	assert.Equal(t, 0, exec.ExitCode)
	assert.Contains(t, exec.LogTail, "Timing for main")
}

func TestFinalizationShortfallLeavesOutputUntouched(t *testing.T) {
	st, _ := newStage(t)
	st.Phases[0].Commands = []Command{{
		Name: "real",
		Path: "/bin/sh",
		Args: []string{"-c", "touch met_em.d01.x.nc wrfinput_d01"},
	}}
	st.Phases[0].Produces = nil
	st.Artifacts = []ArtifactClass{
		{Name: "met_em", Pattern: "met_em.*"},
		{Name: "wrfinput", Pattern: "wrfinput_d*"},
		{Name: "wrfbdy", Pattern: "wrfbdy_d*"}, // never produced
	}

	err := st.Run(nil)
	require.Error(t, err)
	assert.Equal(t, Aborted, st.State())

	var fin *FinalizationError
	require.ErrorAs(t, err, &fin)
	assert.Equal(t, []string{"wrfbdy"}, fin.Missing)

	// No partial move: even the classes that were present stayed put.
	entries, readErr := os.ReadDir(st.OutputDir.String())
	require.NoError(t, readErr)
	assert.Empty(t, entries)
	assert.FileExists(t, st.Scratch.Join("met_em.d01.x.nc").String())
}

func TestOptionalArtifactClassMayBeAbsent(t *testing.T) {
	st, _ := newStage(t)
	st.Artifacts = append(st.Artifacts,
		ArtifactClass{Name: "wrfrst", Pattern: "wrfrst_d*", Optional: true})

	require.NoError(t, st.Run(nil))
	assert.Equal(t, Finalized, st.State())
	assert.FileExists(t, st.OutputDir.Join("met_em.d01.2025-03-01_00:00:00.nc").String())
}

func TestScratchCollision(t *testing.T) {
	st, _ := newStage(t)

	// A fresh marker from another live run.
	require.NoError(t, os.MkdirAll(st.Scratch.String(), 0o755))
	require.NoError(t, os.WriteFile(st.Scratch.Join(ownerMarker).String(), []byte("wps 41\n"), 0o644))

	err := st.Run(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScratchCollision)
	assert.Equal(t, Aborted, st.State())
}

func TestStaleScratchIsReplaced(t *testing.T) {
	st, _ := newStage(t)
	st.StaleAfter = time.Hour

	require.NoError(t, os.MkdirAll(st.Scratch.String(), 0o755))
	marker := st.Scratch.Join(ownerMarker).String()
	require.NoError(t, os.WriteFile(marker, []byte("wps 41\n"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(marker, old, old))
	require.NoError(t, os.WriteFile(st.Scratch.Join("leftover").String(), []byte("x"), 0o644))

	require.NoError(t, st.Run(nil))
	assert.Equal(t, Finalized, st.State())
}

func TestExistingOutputPolicy(t *testing.T) {
	st, _ := newStage(t)
	require.NoError(t, os.MkdirAll(st.OutputDir.String(), 0o755))
	require.NoError(t, os.WriteFile(st.OutputDir.Join("met_em.old.nc").String(), []byte("old"), 0o644))

	err := st.Run(nil)
	assert.ErrorIs(t, err, ErrOutputExists)

	st2, _ := newStage(t)
	require.NoError(t, os.MkdirAll(st2.OutputDir.String(), 0o755))
	require.NoError(t, os.WriteFile(st2.OutputDir.Join("met_em.old.nc").String(), []byte("old"), 0o644))
	st2.PurgeExistingOutput = true

	require.NoError(t, st2.Run(nil))
	assert.NoFileExists(t, st2.OutputDir.Join("met_em.old.nc").String())
	assert.FileExists(t, st2.OutputDir.Join("met_em.d01.2025-03-01_00:00:00.nc").String())
}

func TestPhaseNamelistRendering(t *testing.T) {
	st, root := newStage(t)
	st.KeepScratch = true

	tmplPath := filepath.Join(root, "namelist.wps.tmpl")
	require.NoError(t, os.WriteFile(tmplPath,
		[]byte("start_date = '__START_DATE__'\n"), 0o644))

	st.Phases[0].Namelist = &NamelistSpec{
		Template: fsutil.Path(tmplPath),
		Target:   "namelist.wps",
		Style:    namelist.DoubleUnderscore,
		Values:   map[string]string{"START_DATE": "2025-03-01_00:00:00"},
	}
	st.LogArtifacts = []string{"namelist.wps", "*.log"}

	require.NoError(t, st.Run(nil))

	rendered, err := os.ReadFile(st.Scratch.Join("namelist.wps").String())
	require.NoError(t, err)
	assert.Equal(t, "start_date = '2025-03-01_00:00:00'\n", string(rendered))

	// Rendered namelist and the command log are copied for reproducibility.
	assert.FileExists(t, st.OutputDir.Join("namelist.wps").String())
	assert.FileExists(t, st.OutputDir.Join("metgrid.log").String())
	assert.FileExists(t, st.Scratch.Join("namelist.wps").String())
}

func TestPhaseUnresolvedPlaceholderAborts(t *testing.T) {
	st, root := newStage(t)

	tmplPath := filepath.Join(root, "namelist.wps.tmpl")
	require.NoError(t, os.WriteFile(tmplPath,
		[]byte("start = '__START_DATE__', stop = '__END_DATE__'\n"), 0o644))

	st.Phases[0].Namelist = &NamelistSpec{
		Template: fsutil.Path(tmplPath),
		Target:   "namelist.wps",
		Style:    namelist.DoubleUnderscore,
		Values:   map[string]string{"START_DATE": "2025-03-01_00:00:00"},
	}

	err := st.Run(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, namelist.ErrUnresolvedPlaceholder)
	assert.Equal(t, Aborted, st.State())
	// Aborted during phase staging: the executable never ran.
	assert.NoFileExists(t, st.Scratch.Join("metgrid.log").String())
}

func TestJobIDPrefersScheduler(t *testing.T) {
	t.Setenv("SLURM_JOB_ID", "918273")
	assert.Equal(t, "918273", JobID())

	t.Setenv("SLURM_JOB_ID", "")
	id := JobID()
	assert.Len(t, id, 8)
}
