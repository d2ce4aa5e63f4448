package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wrfinfra/wrfchem-runner/conf"
	"github.com/wrfinfra/wrfchem-runner/dateutil"
	"github.com/wrfinfra/wrfchem-runner/runner"
	"github.com/wrfinfra/wrfchem-runner/stager"
	"github.com/wrfinfra/wrfchem-runner/validate"
)

// Version of the command.
var Version = "development"

var (
	configFile  string
	runID       string
	datesFile   string
	keepScratch bool
	debug       bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "wrfchem-runner",
	Short: "Stage and run the WPS → real → WRF-Chem pipeline",
	Long: `wrfchem-runner prepares scratch directories, renders namelists and
invokes the WPS, real and WRF-Chem executables, publishing each stage's
artifacts into a run directory the next stage consumes.

Dates are given as 'YYYY-MM-DD' or 'YYYY-MM-DDTHH:MM:SS', optionally with a
trailing Z; they are always interpreted as UTC. Instead of dates, -f reads
an arguments file listing many periods to run in sequence.

Each stage runs as one scheduled job; ordering across stages is the
scheduler's job-dependency responsibility.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.Encoding = "console"
		if debug {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of wrfchem-runner",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wrfchem-runner ver. %s\n", Version)
	},
}

var datesCmd = &cobra.Command{
	Use:   "dates [args...]",
	Short: "Validate and render a date in UTC",
	Long: `dates validates a date argument (-d VALUE or --date=VALUE), applies
offsets ('+1 day', '-6 hours') and renders the result in UTC with an
optional '+FORMAT' strftime-style directive. The ambient timezone of the
execution host never influences the output.`,
	Args: cobra.ArbitraryArgs,
	// The argument vocabulary (`-d`, `--date=`, `-6 hours`) is ToUTC's to
	// interpret, not cobra's.
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := dateutil.ToUTC(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func stageCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [startdate enddate]",
		Short: short,
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(args, func(cfg *conf.Configuration, period validate.SimulationPeriod, jobID string, now time.Time) ([]*stager.Stage, error) {
				st, err := runner.StageByName(name, cfg, period, jobID, now)
				if err != nil {
					return nil, err
				}
				return []*stager.Stage{st}, nil
			})
		},
	}
}

var allCmd = &cobra.Command{
	Use:   "all [startdate enddate]",
	Short: "Run the whole chain (wps, real, wrfchem) in sequence",
	Args:  cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(args, func(cfg *conf.Configuration, period validate.SimulationPeriod, jobID string, now time.Time) ([]*stager.Stage, error) {
			return runner.Stages(cfg, period, jobID, now), nil
		})
	},
}

// runStages loads configuration, resolves the periods to run and executes
// the selected stages for each period. Any abort surfaces as a non-zero
// process exit; success is the implicit zero.
func runStages(args []string, build func(*conf.Configuration, validate.SimulationPeriod, string, time.Time) ([]*stager.Stage, error)) error {
	periods, cfgPath, err := resolvePeriods(args)
	if err != nil {
		return err
	}
	if cfgPath == "" {
		cfgPath = configFile
	}

	cfg, err := conf.Load(cfgPath)
	if err != nil {
		return err
	}
	if runID != "" {
		if err := validate.CheckPath(runID); err != nil {
			return fmt.Errorf("run id: %w", err)
		}
		cfg.Staging.RunID = runID
	}
	if keepScratch {
		cfg.Staging.KeepScratch = true
	}

	log := logger.Sugar()
	jobID := stager.JobID()

	for _, period := range periods {
		log.Infof("run %s: period %s", cfg.Staging.RunID, period)
		stages, err := build(&cfg, period, jobID, time.Now())
		if err != nil {
			return err
		}
		if err := runner.Run(stages, log); err != nil {
			return err
		}
	}
	return nil
}

// resolvePeriods takes the periods either from the two date arguments or
// from the arguments file given with -f. An arguments file also names the
// configuration file to use, resolved relative to its own directory unless
// --config was given explicitly.
func resolvePeriods(args []string) ([]validate.SimulationPeriod, string, error) {
	if datesFile == "" {
		period, err := validate.CheckPeriod(args...)
		if err != nil {
			return nil, "", err
		}
		return []validate.SimulationPeriod{period}, "", nil
	}

	if len(args) != 0 {
		return nil, "", fmt.Errorf("give either dates or -f %s, not both", datesFile)
	}
	fa, err := runner.ReadTimes(datesFile)
	if err != nil {
		return nil, "", err
	}
	periods := make([]validate.SimulationPeriod, len(fa.Periods))
	for i, p := range fa.Periods {
		period, err := runner.PeriodOf(p)
		if err != nil {
			return nil, "", err
		}
		periods[i] = period
	}

	cfgPath := ""
	if !rootCmd.PersistentFlags().Changed("config") && fa.CfgPath != "" {
		cfgPath = filepath.Join(filepath.Dir(datesFile), fa.CfgPath)
	}
	return periods, cfgPath, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./wrfchem-runner.cfg", "configuration file location")
	rootCmd.PersistentFlags().StringVar(&runID, "run-id", "", "override the run identifier from the configuration")
	rootCmd.PersistentFlags().StringVarP(&datesFile, "dates-file", "f", "", "arguments file with the periods to run")
	rootCmd.PersistentFlags().BoolVar(&keepScratch, "keep-scratch", false, "preserve scratch directories for debugging")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		stageCmd(runner.WPSName, "Run the WPS pre-processing stage"),
		stageCmd(runner.RealName, "Run the real initialization stage"),
		stageCmd(runner.WRFChemName, "Run the WRF-Chem main integration stage"),
		allCmd,
		datesCmd,
		versionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
