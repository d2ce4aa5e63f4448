package conf

import (
	"fmt"
	"time"

	"github.com/wrfinfra/wrfchem-runner/fsutil"
)

// FoldersConf contains the paths of all files and directories somehow
// needed by the command.
type FoldersConf struct {
	// WPSPrg is the WPS installation (geogrid, ungrib, metgrid).
	WPSPrg fsutil.Path
	// WRFPrg is the WRF-Chem installation (real.exe, wrf.exe, run tables).
	WRFPrg fsutil.Path
	// ChemPrg holds the chemistry preprocessors (megan_bio_emiss, mozbc).
	ChemPrg fsutil.Path
	// NamelistsDir contains the namelist templates.
	NamelistsDir fsutil.Path
	// GeogDataDir is the static geographical dataset consumed by geogrid.
	GeogDataDir fsutil.Path
	// InputArchive holds the downloaded meteorological driving data.
	InputArchive fsutil.Path
	// ChemInputDir holds chemistry inputs (MEGAN fields, boundary species).
	ChemInputDir fsutil.Path
	// OceanScripts are optional executables run after metgrid that rewrite
	// the met_em files in place with ocean surface fields (chlorophyll-a,
	// DMS concentration), in listed order.
	OceanScripts []fsutil.Path
	// WorkRoot hosts the per-stage scratch directories.
	WorkRoot fsutil.Path
	// OutputRoot hosts the per-run output directories.
	OutputRoot fsutil.Path
}

// ProcsConf holds the mpirun process counts per executable.
type ProcsConf struct {
	GeogridProcCount string
	MetgridProcCount string
	RealProcCount    string
	WrfProcCount     string
}

// MPIConf contains additional options to use in mpirun calls.
type MPIConf struct {
	AdditionalOptions []string
}

// EnvVars are extra environment variables exported to the executables.
type EnvVars map[string]string

// ToSlice converts variables to a slice of strings, each one in the
// format NAME=VALUE.
func (vars EnvVars) ToSlice() []string {
	res := make([]string, 0, len(vars))
	for name, val := range vars {
		res = append(res, fmt.Sprintf("%s=%s", name, val))
	}
	return res
}

// Duration wraps time.Duration so it can be written as "24h" in the
// configuration file.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// StagingConf controls scratch and output directory policy.
type StagingConf struct {
	// RunID names the run; output directories of every stage derive
	// from it, which is what links independently submitted stages.
	RunID string
	// OnExistingOutput is "error" or "purge": what to do when the output
	// directory already holds results from a prior run of the same RunID.
	OnExistingOutput string
	// KeepScratch preserves scratch directories after the stage, for
	// debugging.
	KeepScratch bool
	// StaleAfter is the age past which a leftover scratch directory is
	// considered abandoned and may be removed instead of reported as a
	// collision.
	StaleAfter Duration
	// PlaceholderStyle selects the namelist token convention:
	// "double-underscore" or "angle-brackets".
	PlaceholderStyle string
	// BoundaryIntervalHours is the spacing of time-varying boundary
	// inputs inside the simulation period.
	BoundaryIntervalHours int
}

// BenignExit whitelists non-zero exit statuses of one executable that are
// known not to indicate failure. The list is explicit and per-executable;
// there is deliberately no way to ignore all errors of a stage.
type BenignExit struct {
	Executable string
	Codes      []int
}

// Configuration contains all configuration sub structures.
type Configuration struct {
	Folders     FoldersConf
	Procs       ProcsConf
	MPI         MPIConf
	Env         EnvVars
	Staging     StagingConf
	BenignExits []BenignExit
}

// MkMPIOptions builds an array of command arguments merging given options
// with `AdditionalOptions` as read from the configuration file.
func (c *Configuration) MkMPIOptions(options ...string) []string {
	var res []string
	res = append(res, c.MPI.AdditionalOptions...)
	res = append(res, options...)
	return res
}

// BenignCodes returns the whitelisted exit statuses for an executable.
func (c *Configuration) BenignCodes(executable string) []int {
	for _, b := range c.BenignExits {
		if b.Executable == executable {
			return b.Codes
		}
	}
	return nil
}
