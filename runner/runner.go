// Package runner wires the concrete pipeline stages: WPS pre-processing,
// real initialization (with the chemistry preprocessing sub-cycles) and the
// WRF-Chem main run. The chain is a pure data-flow dependency: each stage's
// input directory is the previous stage's output directory, both named
// deterministically from the run id, so stages submitted as independent
// scheduler jobs days apart still link up. The scheduler's job-dependency
// ordering must guarantee a stage is Finalized before the next one starts;
// this layer only documents that precondition.
package runner

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wrfinfra/wrfchem-runner/conf"
	"github.com/wrfinfra/wrfchem-runner/folders"
	"github.com/wrfinfra/wrfchem-runner/stager"
	"github.com/wrfinfra/wrfchem-runner/validate"
)

// Stage names, also the per-stage output directory names under the run id.
const (
	WPSName     = "wps"
	RealName    = "real"
	WRFChemName = "wrfchem"
)

// Stages builds the full chain for one period, in execution order.
func Stages(cfg *conf.Configuration, period validate.SimulationPeriod, jobID string, now time.Time) []*stager.Stage {
	return []*stager.Stage{
		WPSStage(cfg, period, jobID, now),
		RealStage(cfg, period, jobID, now),
		WRFChemStage(cfg, period, jobID, now),
	}
}

// StageByName builds a single stage of the chain.
func StageByName(name string, cfg *conf.Configuration, period validate.SimulationPeriod, jobID string, now time.Time) (*stager.Stage, error) {
	switch name {
	case WPSName:
		return WPSStage(cfg, period, jobID, now), nil
	case RealName:
		return RealStage(cfg, period, jobID, now), nil
	case WRFChemName:
		return WRFChemStage(cfg, period, jobID, now), nil
	}
	return nil, fmt.Errorf("unknown stage `%s`: expecting one of %s, %s, %s", name, WPSName, RealName, WRFChemName)
}

// Run executes a list of stages in order, stopping at the first abort.
func Run(stages []*stager.Stage, log *zap.SugaredLogger) error {
	for _, st := range stages {
		if err := st.Run(log); err != nil {
			return err
		}
	}
	return nil
}

// newStage fills the stage fields every constructor shares.
func newStage(name string, cfg *conf.Configuration, period validate.SimulationPeriod, jobID string, now time.Time) *stager.Stage {
	return &stager.Stage{
		Name:                name,
		JobID:               jobID,
		Period:              period,
		Scratch:             folders.ScratchDir(cfg.Folders.WorkRoot, name, jobID, now),
		OutputDir:           folders.StageOutputDir(cfg.Folders.OutputRoot, cfg.Staging.RunID, name),
		PurgeExistingOutput: cfg.Staging.OnExistingOutput == "purge",
		KeepScratch:         cfg.Staging.KeepScratch,
		StaleAfter:          cfg.Staging.StaleAfter.Duration,
	}
}

// boundaryInterval falls back to daily driving data when unconfigured.
func boundaryInterval(cfg *conf.Configuration) time.Duration {
	if cfg.Staging.BoundaryIntervalHours > 0 {
		return time.Duration(cfg.Staging.BoundaryIntervalHours) * time.Hour
	}
	return 24 * time.Hour
}

// Substitution is symmetric (every key must appear in the template), so
// each stage passes exactly the map its template convention uses:
// namelist.wps takes whole date strings, namelist.input the split
// components plus run length.

func dateStringPlaceholders(prefix string, dt time.Time) map[string]string {
	return map[string]string{
		prefix + "_DATE": folders.NamelistDate(dt),
	}
}

func dateComponentPlaceholders(prefix string, dt time.Time) map[string]string {
	return map[string]string{
		prefix + "_YEAR":   dt.Format("2006"),
		prefix + "_MONTH":  dt.Format("01"),
		prefix + "_DAY":    dt.Format("02"),
		prefix + "_HOUR":   dt.Format("15"),
		prefix + "_MINUTE": dt.Format("04"),
		prefix + "_SECOND": dt.Format("05"),
	}
}

func mergePlaceholders(maps ...map[string]string) map[string]string {
	res := map[string]string{}
	for _, m := range maps {
		for k, v := range m {
			res[k] = v
		}
	}
	return res
}

func runLengthPlaceholders(period validate.SimulationPeriod) map[string]string {
	d := period.Duration()
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return map[string]string{
		"RUN_DAYS":  fmt.Sprintf("%d", days),
		"RUN_HOURS": fmt.Sprintf("%d", hours),
	}
}

func intervalPlaceholder(cfg *conf.Configuration) map[string]string {
	return map[string]string{
		"INTERVAL_SECONDS": fmt.Sprintf("%d", int(boundaryInterval(cfg).Seconds())),
	}
}
