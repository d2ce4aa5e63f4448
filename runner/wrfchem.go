package runner

import (
	"time"

	"github.com/wrfinfra/wrfchem-runner/conf"
	"github.com/wrfinfra/wrfchem-runner/folders"
	"github.com/wrfinfra/wrfchem-runner/stager"
	"github.com/wrfinfra/wrfchem-runner/validate"
)

// wrfSuccess is the marker wrf.exe prints in rsl.out.0000 on a clean run;
// its exit code does not reliably report failure.
const wrfSuccess = "SUCCESS COMPLETE WRF"

// wrfRunTables are the lookup tables wrf.exe expects in its working
// directory, linked from the installation's run directory.
var wrfRunTables = []string{
	"LANDUSE.TBL",
	"VEGPARM.TBL",
	"SOILPARM.TBL",
	"GENPARM.TBL",
	"RRTMG_LW_DATA",
	"RRTMG_SW_DATA",
	"ozone.formatted",
	"ozone_lat.formatted",
	"ozone_plev.formatted",
}

// WRFChemStage runs the main time integration, consuming the real stage's
// initial and boundary conditions.
func WRFChemStage(cfg *conf.Configuration, period validate.SimulationPeriod, jobID string, now time.Time) *stager.Stage {
	st := newStage(WRFChemName, cfg, period, jobID, now)
	wrfPrg := cfg.Folders.WRFPrg
	inputDir := folders.StageOutputDir(cfg.Folders.OutputRoot, cfg.Staging.RunID, RealName)

	st.StaticInputs = []stager.StaticInput{
		{From: wrfPrg.Join("main/wrf.exe"), To: "wrf.exe"},
		// wrf.exe updates the boundary file in place, so it travels by
		// copy; the prior stage's output stays append-only.
		{From: inputDir.Join("wrfbdy_d01"), To: "wrfbdy_d01", Copy: true},
		{From: inputDir.Join("wrfinput_d01"), To: "wrfinput_d01", Copy: true},
	}
	for _, tbl := range wrfRunTables {
		st.StaticInputs = append(st.StaticInputs,
			stager.StaticInput{From: wrfPrg.Join("run/" + tbl), To: tbl})
	}
	if cfg.Folders.ChemPrg != "" {
		st.StaticInputs = append(st.StaticInputs,
			stager.StaticInput{From: inputDir.Join("wrfbiochemi_d01"), To: "wrfbiochemi_d01", Copy: true})
	}

	st.Phases = []stager.Phase{{
		Name: "wrf",
		Namelist: &stager.NamelistSpec{
			Template: cfg.NamelistFile("namelist.wrf"),
			Target:   "namelist.input",
			Style:    cfg.PlaceholderStyle(),
			Values: mergePlaceholders(
				dateComponentPlaceholders("START", period.Start),
				dateComponentPlaceholders("END", period.End),
				runLengthPlaceholders(period),
				intervalPlaceholder(cfg),
			),
		},
		Commands: []stager.Command{{
			Name:          "wrf",
			Path:          "mpirun",
			Args:          cfg.MkMPIOptions("-n", cfg.Procs.WrfProcCount, "./wrf.exe"),
			FollowLog:     "rsl.out.0000",
			SuccessMarker: wrfSuccess,
			BenignCodes:   cfg.BenignCodes("wrf"),
			Env:           cfg.Env.ToSlice(),
		}},
		Produces: []string{"wrfout_d*"},
	}}

	st.Artifacts = []stager.ArtifactClass{
		{Name: "wrfout", Pattern: "wrfout_d*"},
		{Name: "wrfrst", Pattern: "wrfrst_d*", Optional: true},
	}
	st.LogArtifacts = []string{"namelist.input", "*.log", "rsl.out.0000", "rsl.error.0000"}

	return st
}
