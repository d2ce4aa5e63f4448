package runner

import (
	"time"

	"github.com/wrfinfra/wrfchem-runner/conf"
	"github.com/wrfinfra/wrfchem-runner/folders"
	"github.com/wrfinfra/wrfchem-runner/fsutil"
	"github.com/wrfinfra/wrfchem-runner/stager"
	"github.com/wrfinfra/wrfchem-runner/validate"
)

// wpsSuccess is printed by geogrid, ungrib and metgrid at the end of a
// clean run; their exit codes alone are not a reliable signal.
const wpsSuccess = "Successful completion"

// WPSStage prepares the gridded meteorological fields: geogrid for the
// static grids, ungrib for the driving data, metgrid for the met_em
// intermediates consumed by real.exe.
func WPSStage(cfg *conf.Configuration, period validate.SimulationPeriod, jobID string, now time.Time) *stager.Stage {
	st := newStage(WPSName, cfg, period, jobID, now)
	wpsPrg := cfg.Folders.WPSPrg
	style := cfg.PlaceholderStyle()

	st.StaticInputs = []stager.StaticInput{
		{From: wpsPrg.Join("geogrid.exe"), To: "geogrid.exe"},
		{From: wpsPrg.Join("ungrib.exe"), To: "ungrib.exe"},
		{From: wpsPrg.Join("metgrid.exe"), To: "metgrid.exe"},
		{From: wpsPrg.Join("link_grib.csh"), To: "link_grib.csh"},
		{From: wpsPrg.Join("ungrib/Variable_Tables/Vtable.GFS"), To: "Vtable"},
		{From: wpsPrg.Join("geogrid/GEOGRID.TBL"), To: "GEOGRID.TBL"},
		{From: wpsPrg.Join("metgrid/METGRID.TBL"), To: "METGRID.TBL"},
	}
	if cfg.Folders.GeogDataDir != "" {
		st.StaticInputs = append(st.StaticInputs,
			stager.StaticInput{From: cfg.Folders.GeogDataDir, To: "geog"})
	}

	st.TimeInputs = []stager.TimeVaryingInput{{
		Kind:     "boundary",
		Interval: boundaryInterval(cfg),
		Source: func(dt time.Time) fsutil.Path {
			return folders.BoundaryFile(cfg.Folders.InputArchive, dt)
		},
		Target: func(dt time.Time) string {
			return "gfs_" + dt.UTC().Format("2006010215") + ".grib2"
		},
	}}

	st.Phases = []stager.Phase{
		{
			Name: "geogrid",
			Namelist: &stager.NamelistSpec{
				Template: cfg.NamelistFile("namelist.wps"),
				Target:   "namelist.wps",
				Style:    style,
				Values: mergePlaceholders(
					dateStringPlaceholders("START", period.Start),
					dateStringPlaceholders("END", period.End),
					intervalPlaceholder(cfg),
				),
			},
			Commands: []stager.Command{{
				Name:          "geogrid",
				Path:          "mpirun",
				Args:          cfg.MkMPIOptions("-n", cfg.Procs.GeogridProcCount, "./geogrid.exe"),
				FollowLog:     "geogrid.log.0000",
				SuccessMarker: wpsSuccess,
				BenignCodes:   cfg.BenignCodes("geogrid"),
				Env:           cfg.Env.ToSlice(),
			}},
			Produces: []string{"geo_em.d*"},
		},
		{
			Name: "ungrib",
			Commands: []stager.Command{
				{
					Name: "link_grib",
					Path: "./link_grib.csh",
					Args: []string{"gfs_"},
					Env:  cfg.Env.ToSlice(),
				},
				{
					Name:          "ungrib",
					Path:          "./ungrib.exe",
					SuccessMarker: wpsSuccess,
					BenignCodes:   cfg.BenignCodes("ungrib"),
					Env:           cfg.Env.ToSlice(),
				},
			},
			Produces: []string{"FILE:*"},
		},
		{
			Name: "metgrid",
			Commands: []stager.Command{{
				Name:          "metgrid",
				Path:          "mpirun",
				Args:          cfg.MkMPIOptions("-n", cfg.Procs.MetgridProcCount, "./metgrid.exe"),
				FollowLog:     "metgrid.log.0000",
				SuccessMarker: wpsSuccess,
				BenignCodes:   cfg.BenignCodes("metgrid"),
				Env:           cfg.Env.ToSlice(),
			}},
			Produces: []string{"met_em.d*"},
		},
	}

	// Ocean-field augmentation rewrites the met_em files in place before
	// real consumes them. Each script takes the met_em directory and the
	// period bounds.
	if scripts := cfg.Folders.OceanScripts; len(scripts) > 0 {
		phase := stager.Phase{Name: "ocean-fields", Produces: []string{"met_em.d*"}}
		for _, script := range scripts {
			name := script.Base()
			phase.StaticInputs = append(phase.StaticInputs,
				stager.StaticInput{From: script, To: name})
			phase.Commands = append(phase.Commands, stager.Command{
				Name: name,
				Path: "./" + name,
				Args: []string{
					".",
					period.Start.UTC().Format("2006-01-02"),
					period.End.UTC().Format("2006-01-02"),
				},
				BenignCodes: cfg.BenignCodes(name),
				Env:         cfg.Env.ToSlice(),
			})
		}
		st.Phases = append(st.Phases, phase)
	}

	st.Artifacts = []stager.ArtifactClass{
		{Name: "met_em", Pattern: "met_em.d*"},
		{Name: "geo_em", Pattern: "geo_em.d*"},
	}
	st.LogArtifacts = []string{"namelist.wps", "*.log", "*.log.0000"}

	return st
}
