// Package stager runs one pipeline stage as an explicit state machine:
//
//	Init → Staged → Executing → Verifying → Finalized
//
// with Aborted reachable from every state. A stage owns a uniquely named
// scratch directory, stages its inputs there, renders its namelists,
// invokes the external executables, verifies their outcome and publishes
// the artifacts to the stage output directory. Publication is atomic in
// effect: either every expected artifact class reaches the output
// directory, or the stage reports failure and the output directory is not
// touched at all.
package stager

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wrfinfra/wrfchem-runner/fsutil"
	"github.com/wrfinfra/wrfchem-runner/namelist"
	"github.com/wrfinfra/wrfchem-runner/validate"
)

// State is the position of a stage in its lifecycle.
type State int

const (
	Init State = iota
	Staged
	Executing
	Verifying
	Finalized
	Aborted
)

var stateNames = [...]string{"Init", "Staged", "Executing", "Verifying", "Finalized", "Aborted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ownerMarker is the file that records which execution owns a scratch
// directory; its mtime decides staleness of leftovers.
const ownerMarker = ".stage-owner"

// logTailLines is how much of a failing executable's log is echoed into
// the error report.
const logTailLines = 20

// ArtifactClass is a named category of output file selected by a glob
// pattern, relative to scratch. A required class with no matches fails
// finalization; an Optional one is published only when present (restart
// files exist only when the namelist asks for them).
type ArtifactClass struct {
	Name     string
	Pattern  string
	Optional bool
}

// StaticInput is a file staged into scratch before execution: linked by
// default (executables, lookup tables), copied when the executable
// rewrites it in place.
type StaticInput struct {
	From fsutil.Path
	To   string
	Copy bool
}

// TimeVaryingInput describes the per-date files a stage consumes across
// the simulation period. Source resolves a date to the file in the input
// directory, Target to its name inside scratch.
type TimeVaryingInput struct {
	Kind     string
	Interval time.Duration
	Source   func(time.Time) fsutil.Path
	Target   func(time.Time) string
}

// NamelistSpec is a template to render into scratch.
type NamelistSpec struct {
	Template fsutil.Path
	Target   string
	Style    namelist.Style
	Values   map[string]string
}

// Command is one external executable invocation.
type Command struct {
	// Name identifies the executable in logs and in the benign-exit
	// whitelist.
	Name string
	Path string
	Args []string
	// Stdin, when set, is a file in scratch fed on standard input.
	Stdin string
	// FollowLog is an executable-owned log (rsl.out.0000 and friends),
	// tailed during the run and consulted for SuccessMarker.
	FollowLog string
	// SuccessMarker, when set, must appear in the log for the run to
	// count as successful. Some of these binaries report success only
	// there, not via exit code.
	SuccessMarker string
	// BenignCodes are non-zero exit statuses documented as harmless for
	// this executable. Never a blanket ignore: codes are per-command.
	BenignCodes []int
	Env         []string
}

// Phase is a named Staged→Executing→Verifying sub-cycle inside a stage,
// sharing the stage's scratch directory. The two-phase protocols of this
// pipeline (a second real.exe pass after the chemistry preprocessors) are
// modeled as explicit phases, not as retries.
type Phase struct {
	Name         string
	StaticInputs []StaticInput
	Namelist     *NamelistSpec
	Commands     []Command
	// Produces lists glob patterns that must match in scratch after the
	// phase's commands ran.
	Produces []string
}

// Stage describes one pipeline stage run.
type Stage struct {
	Name   string
	JobID  string
	Period validate.SimulationPeriod

	Scratch   fsutil.Path
	OutputDir fsutil.Path

	StaticInputs []StaticInput
	TimeInputs   []TimeVaryingInput
	Phases       []Phase
	Artifacts    []ArtifactClass
	// LogArtifacts are copied (not moved) alongside the artifacts for
	// reproducibility: diagnostics, logs, the rendered namelists.
	LogArtifacts []string

	// PurgeExistingOutput clears prior same-run-id results instead of
	// failing on them.
	PurgeExistingOutput bool
	// KeepScratch preserves the scratch directory after success.
	KeepScratch bool
	// StaleAfter is the age past which a leftover scratch directory is
	// removed instead of reported as a collision.
	StaleAfter time.Duration

	state State
	log   *zap.SugaredLogger
}

// JobID returns the scheduler's job identifier, or a generated one when
// running outside the scheduler.
func JobID() string {
	if id := os.Getenv("SLURM_JOB_ID"); id != "" {
		return id
	}
	return uuid.NewString()[:8]
}

// State returns the stage's current lifecycle state.
func (st *Stage) State() State {
	return st.state
}

// Run drives the stage through its whole lifecycle. On any error the stage
// is Aborted, the error echoes the offending value or log tail, and the
// scratch directory is left in place for inspection.
func (st *Stage) Run(log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	st.log = log
	st.state = Init

	log.Infof("stage %s: job %s, period %s", st.Name, st.JobID, st.Period)

	if err := st.stage(); err != nil {
		st.state = Aborted
		return &StagingError{Stage: st.Name, Err: err}
	}
	st.state = Staged

	st.state = Executing
	for i := range st.Phases {
		if err := st.runPhase(&st.Phases[i]); err != nil {
			st.state = Aborted
			return err
		}
	}

	st.state = Verifying
	if err := st.finalize(); err != nil {
		st.state = Aborted
		return err
	}

	if !st.KeepScratch {
		tr := st.transaction("")
		tr.RmDir(st.Scratch)
		if tr.Err != nil {
			log.Warnf("stage %s: cannot remove scratch: %s", st.Name, tr.Err)
		}
	}

	st.state = Finalized
	log.Infof("stage %s: finalized into %s", st.Name, st.OutputDir)
	return nil
}

func (st *Stage) transaction(root fsutil.Path) *fsutil.Transaction {
	return &fsutil.Transaction{Root: root, Log: st.log}
}

// stage is the Init→Staged transition: directories, inputs, namelists.
func (st *Stage) stage() error {
	for name, p := range map[string]string{
		"scratch directory": st.Scratch.String(),
		"output directory":  st.OutputDir.String(),
	} {
		if err := validate.CheckPath(p); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	// The per-date loops step by Interval; a non-positive one would never
	// terminate.
	for _, ti := range st.TimeInputs {
		if ti.Interval <= 0 {
			return fmt.Errorf("%s input: non-positive interval %s", ti.Kind, ti.Interval)
		}
	}

	if err := st.prepareOutputDir(); err != nil {
		return err
	}
	if err := st.prepareScratch(); err != nil {
		return err
	}

	// Every required time-varying input must exist before anything is
	// copied or any executable runs.
	missing, total := st.scanTimeInputs()
	if missing != nil {
		return missing
	}
	st.log.Infof("stage %s: %d time-varying input(s) available", st.Name, total)

	tr := st.transaction(st.Scratch)
	for _, in := range st.StaticInputs {
		st.stageInput(tr, in)
	}
	for _, ti := range st.TimeInputs {
		for dt := st.Period.Start; !dt.After(st.Period.End); dt = dt.Add(ti.Interval) {
			tr.CopyAbs(ti.Source(dt), fsutil.Path(ti.Target(dt)))
		}
	}
	return tr.Err
}

func (st *Stage) prepareOutputDir() error {
	tr := st.transaction("")
	if tr.Exists(st.OutputDir) {
		entries := tr.Readdir(st.OutputDir)
		if tr.Err != nil {
			return tr.Err
		}
		if len(entries) > 0 {
			if !st.PurgeExistingOutput {
				return fmt.Errorf("%w: %s (%d entries)", ErrOutputExists, st.OutputDir, len(entries))
			}
			st.log.Infof("stage %s: purging %d entries from %s", st.Name, len(entries), st.OutputDir)
			tr.RmDir(st.OutputDir)
		}
	}
	tr.MkDir(st.OutputDir)
	return tr.Err
}

func (st *Stage) prepareScratch() error {
	tr := st.transaction("")
	if tr.Exists(st.Scratch) {
		marker := tr.Stat(st.Scratch.Join(ownerMarker))
		if tr.Err != nil {
			return tr.Err
		}
		stale := marker == nil ||
			(st.StaleAfter > 0 && time.Since(marker.ModTime()) > st.StaleAfter)
		if !stale {
			return fmt.Errorf("%w: %s", ErrScratchCollision, st.Scratch)
		}
		st.log.Infof("stage %s: removing stale scratch %s", st.Name, st.Scratch)
		tr.RmDir(st.Scratch)
	}
	tr.MkDir(st.Scratch)
	tr.Save(st.Scratch.Join(ownerMarker), []byte(fmt.Sprintf("%s %s\n", st.Name, st.JobID)))
	return tr.Err
}

// scanTimeInputs verifies presence of every per-date input over the period
// and returns the first gap found.
func (st *Stage) scanTimeInputs() (*MissingInputError, int) {
	total := 0
	for _, ti := range st.TimeInputs {
		for dt := st.Period.Start; !dt.After(st.Period.End); dt = dt.Add(ti.Interval) {
			src := ti.Source(dt)
			if _, err := os.Stat(src.String()); err != nil {
				return &MissingInputError{Date: dt, Kind: ti.Kind, Path: src.String()}, total
			}
			total++
		}
	}
	return nil, total
}

func (st *Stage) stageInput(tr *fsutil.Transaction, in StaticInput) {
	if in.Copy {
		tr.CopyAbs(in.From, fsutil.Path(in.To))
	} else {
		tr.LinkAbs(in.From, fsutil.Path(in.To))
	}
}

// runPhase executes one Staged→Executing→Verifying sub-cycle in the
// stage's scratch directory.
func (st *Stage) runPhase(ph *Phase) error {
	st.log.Infof("stage %s: phase %s", st.Name, ph.Name)

	tr := st.transaction(st.Scratch)
	for _, in := range ph.StaticInputs {
		st.stageInput(tr, in)
	}
	if ph.Namelist != nil {
		st.renderNamelist(tr, ph.Namelist)
	}
	if tr.Err != nil {
		return &StagingError{Stage: st.Name, Err: fmt.Errorf("phase %s: %w", ph.Name, tr.Err)}
	}

	for i := range ph.Commands {
		if err := st.runCommand(ph, &ph.Commands[i]); err != nil {
			return err
		}
	}

	var missing []string
	for _, pattern := range ph.Produces {
		if len(tr.Glob(fsutil.Path(pattern))) == 0 {
			missing = append(missing, pattern)
		}
	}
	if tr.Err != nil {
		return &StagingError{Stage: st.Name, Err: tr.Err}
	}
	if missing != nil {
		return &ExecutionError{
			Stage:      st.Name,
			Phase:      ph.Name,
			Executable: ph.Name,
			ExitCode:   0,
			LogTail:    fmt.Sprintf("expected output(s) %s not produced", strings.Join(missing, ", ")),
		}
	}
	return nil
}

func (st *Stage) renderNamelist(tr *fsutil.Transaction, spec *NamelistSpec) {
	if tr.Err != nil {
		return
	}
	tmplText := (&fsutil.Transaction{Log: st.log}).ReadString(spec.Template)
	if tmplText == "" {
		tr.Err = fmt.Errorf("namelist template `%s`: empty or unreadable", spec.Template)
		return
	}

	tmpl := namelist.Tmpl{Style: spec.Style}
	if err := tmpl.ReadTemplateFrom(strings.NewReader(tmplText)); err != nil {
		tr.Err = err
		return
	}
	rendered, err := tmpl.Render(spec.Values)
	if err != nil {
		tr.Err = fmt.Errorf("namelist `%s`: %w", spec.Template, err)
		return
	}
	tr.Save(fsutil.Path(spec.Target), []byte(rendered))
}

func (st *Stage) runCommand(ph *Phase, cmd *Command) error {
	logFile := cmd.Name + ".log"
	tr := st.transaction(st.Scratch)

	status := tr.Run(fsutil.RunOptions{
		Cwd:       "",
		LogFile:   fsutil.Path(logFile),
		FollowLog: fsutil.Path(cmd.FollowLog),
		Stdin:     fsutil.Path(cmd.Stdin),
		Env:       cmd.Env,
	}, cmd.Path, cmd.Args...)

	if tr.Err != nil {
		return &StagingError{Stage: st.Name, Err: fmt.Errorf("phase %s: %w", ph.Name, tr.Err)}
	}

	if status != 0 && !benign(status, cmd.BenignCodes) {
		return &ExecutionError{
			Stage:      st.Name,
			Phase:      ph.Name,
			Executable: cmd.Name,
			ExitCode:   status,
			LogTail:    st.tailOf(cmd, logFile),
		}
	}
	if status != 0 {
		st.log.Infof("stage %s: %s exited with whitelisted status %d", st.Name, cmd.Name, status)
	}

	if cmd.SuccessMarker != "" && !st.markerPresent(cmd, logFile) {
		return &ExecutionError{
			Stage:      st.Name,
			Phase:      ph.Name,
			Executable: cmd.Name,
			ExitCode:   status,
			LogTail:    st.tailOf(cmd, logFile),
		}
	}
	return nil
}

// tailOf picks the most informative log of a command: the executable's own
// log when it has one, the captured stdout/stderr otherwise.
func (st *Stage) tailOf(cmd *Command, logFile string) string {
	source := logFile
	if cmd.FollowLog != "" {
		source = cmd.FollowLog
	}
	return fsutil.LastLines(st.Scratch.Join(source).String(), logTailLines)
}

func (st *Stage) markerPresent(cmd *Command, logFile string) bool {
	tr := st.transaction(st.Scratch)
	source := logFile
	if cmd.FollowLog != "" {
		source = cmd.FollowLog
	}
	if !tr.Exists(fsutil.Path(source)) {
		return false
	}
	content := tr.ReadString(fsutil.Path(source))
	return tr.Err == nil && strings.Contains(content, cmd.SuccessMarker)
}

// finalize is the Verifying→Finalized transition. All artifact classes are
// verified in scratch before the first move, so a partial move can never
// look like success.
func (st *Stage) finalize() error {
	tr := st.transaction(st.Scratch)

	moves := map[string][]fsutil.Path{}
	var missing []string
	for _, class := range st.Artifacts {
		matches := tr.Glob(fsutil.Path(class.Pattern))
		if tr.Err != nil {
			return &StagingError{Stage: st.Name, Err: tr.Err}
		}
		if len(matches) == 0 {
			if !class.Optional {
				missing = append(missing, class.Name)
			}
			continue
		}
		moves[class.Name] = matches
	}
	if missing != nil {
		return &FinalizationError{Stage: st.Name, Missing: missing}
	}

	out := st.transaction("")
	for _, class := range st.Artifacts {
		for _, rel := range moves[class.Name] {
			out.Move(st.Scratch.JoinP(rel), st.OutputDir.Join(rel.Base()))
		}
	}

	// Diagnostics travel by copy: the scratch stays self-consistent for
	// inspection when KeepScratch is set.
	for _, pattern := range st.LogArtifacts {
		for _, rel := range tr.Glob(fsutil.Path(pattern)) {
			out.CopyAbs(st.Scratch.JoinP(rel), st.OutputDir.Join(rel.Base()))
		}
	}

	if out.Err != nil {
		return &StagingError{Stage: st.Name, Err: out.Err}
	}
	if tr.Err != nil {
		return &StagingError{Stage: st.Name, Err: tr.Err}
	}
	return nil
}

func benign(status int, codes []int) bool {
	for _, c := range codes {
		if c == status {
			return true
		}
	}
	return false
}
