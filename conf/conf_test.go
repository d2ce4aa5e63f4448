package conf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrfinfra/wrfchem-runner/validate"
)

const validConf = `
[Folders]
WPSPrg = "/opt/wps"
WRFPrg = "/opt/wrfchem"
ChemPrg = "/opt/wrfchem/chem"
NamelistsDir = "namelists"
GeogDataDir = "/data/geog"
InputArchive = "/archive/gfs"
ChemInputDir = "/archive/chem"
WorkRoot = "/scratch/wrf"
OutputRoot = "/data/wrf-runs"

[Procs]
GeogridProcCount = "10"
MetgridProcCount = "10"
RealProcCount = "36"
WrfProcCount = "84"

[MPI]
AdditionalOptions = ["--oversubscribe"]

[Env]
WRF_CHEM = "1"

[Staging]
RunID = "arctic-2025"
OnExistingOutput = "error"
StaleAfter = "24h"
PlaceholderStyle = "double-underscore"
BoundaryIntervalHours = 24

[[BenignExits]]
Executable = "megan_bio_emiss"
Codes = [134]
`

func writeConf(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "wrfchem-runner.cfg")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	return file
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConf(t, validConf))
	require.NoError(t, err)

	assert.Equal(t, "arctic-2025", cfg.Staging.RunID)
	assert.Equal(t, 24*time.Hour, cfg.Staging.StaleAfter.Duration)
	assert.Equal(t, []int{134}, cfg.BenignCodes("megan_bio_emiss"))
	assert.Nil(t, cfg.BenignCodes("wrf.exe"))
	assert.Equal(t, []string{"WRF_CHEM=1"}, cfg.Env.ToSlice())
	assert.Equal(t,
		[]string{"--oversubscribe", "-n", "36", "./real.exe"},
		cfg.MkMPIOptions("-n", "36", "./real.exe"),
	)
}

func TestLoadOceanScripts(t *testing.T) {
	withScripts := replaceLine(validConf, `WorkRoot = "/scratch/wrf"`,
		"WorkRoot = \"/scratch/wrf\"\n"+
			`OceanScripts = ["scripts/add_chloroa_wps.py", "/opt/wrfinfra/add_dmsocean_wps.py"]`)
	file := writeConf(t, withScripts)
	cfg, err := Load(file)
	require.NoError(t, err)

	// Relative script paths resolve against the config dir, like folders.
	assert.Equal(t,
		filepath.Join(filepath.Dir(file), "scripts/add_chloroa_wps.py"),
		cfg.Folders.OceanScripts[0].String())
	assert.Equal(t, "/opt/wrfinfra/add_dmsocean_wps.py", cfg.Folders.OceanScripts[1].String())

	bad := replaceLine(withScripts, `"/opt/wrfinfra/add_dmsocean_wps.py"`, `"/opt/my scripts/add.py"`)
	_, err = Load(writeConf(t, bad))
	assert.ErrorIs(t, err, validate.ErrWhitespaceInPath)
}

func TestLoadDefaultsStaleAfter(t *testing.T) {
	bare := replaceLine(validConf, `StaleAfter = "24h"`, ``)
	cfg, err := Load(writeConf(t, bare))
	require.NoError(t, err)

	// Unset staleness would make every leftover scratch a permanent
	// collision, so a default applies.
	assert.Equal(t, DefaultStaleAfter, cfg.Staging.StaleAfter.Duration)

	explicit := replaceLine(validConf, `StaleAfter = "24h"`, `StaleAfter = "90m"`)
	cfg, err = Load(writeConf(t, explicit))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.Staging.StaleAfter.Duration)
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	file := writeConf(t, validConf)
	cfg, err := Load(file)
	require.NoError(t, err)

	// NamelistsDir is relative in the file, so it hangs off the config dir.
	assert.Equal(t, filepath.Join(filepath.Dir(file), "namelists"), cfg.Folders.NamelistsDir.String())
	// Absolute paths are untouched.
	assert.Equal(t, "/opt/wps", cfg.Folders.WPSPrg.String())
}

func TestLoadRejectsBadPaths(t *testing.T) {
	bad := replaceLine(validConf, `WorkRoot = "/scratch/wrf"`, `WorkRoot = "/scratch/my runs"`)
	_, err := Load(writeConf(t, bad))
	assert.ErrorIs(t, err, validate.ErrWhitespaceInPath)

	bad = replaceLine(validConf, `RunID = "arctic-2025"`, `RunID = ""`)
	_, err = Load(writeConf(t, bad))
	assert.ErrorIs(t, err, validate.ErrEmptyPath)
}

func TestLoadRejectsBadPolicies(t *testing.T) {
	bad := replaceLine(validConf, `OnExistingOutput = "error"`, `OnExistingOutput = "ignore"`)
	_, err := Load(writeConf(t, bad))
	assert.ErrorContains(t, err, "OnExistingOutput")

	bad = replaceLine(validConf, `PlaceholderStyle = "double-underscore"`, `PlaceholderStyle = "curly"`)
	_, err = Load(writeConf(t, bad))
	assert.ErrorContains(t, err, "PlaceholderStyle")

	bad = replaceLine(validConf, `Codes = [134]`, `Codes = [0]`)
	_, err = Load(writeConf(t, bad))
	assert.ErrorContains(t, err, "exit 0")
}

func replaceLine(content, old, repl string) string {
	if !strings.Contains(content, old) {
		panic("line not found: " + old)
	}
	return strings.Replace(content, old, repl, 1)
}
