package runner

import (
	"time"

	"github.com/wrfinfra/wrfchem-runner/conf"
	"github.com/wrfinfra/wrfchem-runner/folders"
	"github.com/wrfinfra/wrfchem-runner/fsutil"
	"github.com/wrfinfra/wrfchem-runner/stager"
	"github.com/wrfinfra/wrfchem-runner/validate"
)

const realSuccess = "SUCCESS COMPLETE REAL_EM INIT"

// RealStage produces the initial and boundary conditions. The meteo-only
// part is a single real.exe pass over the met_em files from the WPS stage.
// When a chemistry installation is configured, the pass is followed by the
// two preprocessing sub-cycles and a second real.exe pass that folds their
// fields in: megan_bio_emiss for biogenic emissions, mozbc for the chemical
// boundary conditions. The second pass is a deliberate two-phase protocol,
// not a retry.
func RealStage(cfg *conf.Configuration, period validate.SimulationPeriod, jobID string, now time.Time) *stager.Stage {
	st := newStage(RealName, cfg, period, jobID, now)
	wrfPrg := cfg.Folders.WRFPrg
	style := cfg.PlaceholderStyle()
	inputDir := folders.StageOutputDir(cfg.Folders.OutputRoot, cfg.Staging.RunID, WPSName)

	st.StaticInputs = []stager.StaticInput{
		{From: wrfPrg.Join("main/real.exe"), To: "real.exe"},
	}

	st.TimeInputs = []stager.TimeVaryingInput{{
		Kind:     "met_em",
		Interval: boundaryInterval(cfg),
		Source: func(dt time.Time) fsutil.Path {
			return inputDir.Join(folders.MetgridFile(dt))
		},
		Target: func(dt time.Time) string {
			return folders.MetgridFile(dt)
		},
	}}

	realNamelist := &stager.NamelistSpec{
		Template: cfg.NamelistFile("namelist.real"),
		Target:   "namelist.input",
		Style:    style,
		Values: mergePlaceholders(
			dateComponentPlaceholders("START", period.Start),
			dateComponentPlaceholders("END", period.End),
			runLengthPlaceholders(period),
			intervalPlaceholder(cfg),
		),
	}

	realCommand := stager.Command{
		Name:          "real",
		Path:          "mpirun",
		Args:          cfg.MkMPIOptions("-n", cfg.Procs.RealProcCount, "./real.exe"),
		FollowLog:     "rsl.out.0000",
		SuccessMarker: realSuccess,
		BenignCodes:   cfg.BenignCodes("real"),
		Env:           cfg.Env.ToSlice(),
	}

	st.Phases = []stager.Phase{{
		Name:     "real",
		Namelist: realNamelist,
		Commands: []stager.Command{realCommand},
		Produces: []string{"wrfinput_d*", "wrfbdy_d01"},
	}}

	st.Artifacts = []stager.ArtifactClass{
		{Name: "wrfinput", Pattern: "wrfinput_d*"},
		{Name: "wrfbdy", Pattern: "wrfbdy_d01"},
	}
	st.LogArtifacts = []string{"namelist.input", "*.inp", "*.log", "rsl.out.0000", "rsl.error.0000"}

	if cfg.Folders.ChemPrg == "" {
		return st
	}

	chemPrg := cfg.Folders.ChemPrg

	st.Phases = append(st.Phases,
		stager.Phase{
			Name: "bio_emiss",
			StaticInputs: []stager.StaticInput{
				{From: chemPrg.Join("megan_bio_emiss"), To: "megan_bio_emiss"},
				{From: cfg.Folders.ChemInputDir.Join("megan"), To: "megan"},
			},
			Namelist: &stager.NamelistSpec{
				Template: cfg.NamelistFile("namelist.megan"),
				Target:   "megan_bio_emiss.inp",
				Style:    style,
				Values: mergePlaceholders(
					dateStringPlaceholders("START", period.Start),
					dateStringPlaceholders("END", period.End),
				),
			},
			Commands: []stager.Command{{
				Name:  "megan_bio_emiss",
				Path:  "./megan_bio_emiss",
				Stdin: "megan_bio_emiss.inp",
				// Documented crash-on-exit after the output files are
				// complete; the whitelisted statuses come from
				// configuration, never inferred.
				BenignCodes: cfg.BenignCodes("megan_bio_emiss"),
				Env:         cfg.Env.ToSlice(),
			}},
			Produces: []string{"wrfbiochemi_d*"},
		},
		stager.Phase{
			Name: "mozbc",
			StaticInputs: []stager.StaticInput{
				{From: chemPrg.Join("mozbc"), To: "mozbc"},
				{From: cfg.Folders.ChemInputDir.Join("mozart4geos5.nc"), To: "mozart4geos5.nc"},
			},
			Namelist: &stager.NamelistSpec{
				Template: cfg.NamelistFile("namelist.mozbc"),
				Target:   "mozbc.inp",
				Style:    style,
				Values: mergePlaceholders(
					dateStringPlaceholders("START", period.Start),
					dateStringPlaceholders("END", period.End),
				),
			},
			Commands: []stager.Command{{
				Name:        "mozbc",
				Path:        "./mozbc",
				Stdin:       "mozbc.inp",
				BenignCodes: cfg.BenignCodes("mozbc"),
				Env:         cfg.Env.ToSlice(),
			}},
		},
		// Second real pass folds the chemistry fields into the initial
		// and boundary conditions.
		stager.Phase{
			Name:     "real-chem",
			Commands: []stager.Command{realCommand},
			Produces: []string{"wrfinput_d*", "wrfbdy_d01"},
		},
	)

	st.Artifacts = append(st.Artifacts,
		stager.ArtifactClass{Name: "wrfbiochemi", Pattern: "wrfbiochemi_d*"})

	return st
}
