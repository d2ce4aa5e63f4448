package runner

import (
	"os"
	"path/filepath"

	"github.com/parro-it/fileargs"

	"github.com/wrfinfra/wrfchem-runner/validate"
)

// ReadTimes reads an arguments file listing the configuration file to use
// and the periods to run, one `YYYYMMDDHH HOURS` line each. Batch
// campaigns submit many periods this way instead of repeating dates on the
// command line.
func ReadTimes(file string) (*fileargs.FileArguments, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	fsys := os.DirFS(filepath.Dir(abs))
	return fileargs.ReadFile(fsys, filepath.Base(abs))
}

// PeriodOf converts a fileargs entry into a validated SimulationPeriod.
func PeriodOf(p *fileargs.Period) (validate.SimulationPeriod, error) {
	return validate.CheckPeriod(
		p.Start.UTC().Format("2006-01-02T15:04:05")+"Z",
		p.Start.Add(p.Duration).UTC().Format("2006-01-02T15:04:05")+"Z",
	)
}
