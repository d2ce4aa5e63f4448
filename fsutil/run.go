package fsutil

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hpcloud/tail"
)

// RunOptions controls a subprocess invocation.
type RunOptions struct {
	// Cwd is the working directory, relative to the transaction root.
	Cwd Path
	// LogFile receives the combined stdout/stderr of the process,
	// relative to the transaction root. Always written, whatever the
	// outcome of the run.
	LogFile Path
	// FollowLog, when set, names a file the executable itself writes
	// (e.g. rsl.out.0000); it is tailed for the duration of the run and
	// echoed to the transaction logger. MPI executables report there
	// rather than on stdout.
	FollowLog Path
	// Stdin, when set, is a file fed to the process on standard input,
	// relative to the transaction root. The Fortran preprocessors take
	// their namelist input that way.
	Stdin Path
	// Env holds extra NAME=VALUE pairs appended to the inherited
	// environment.
	Env []string
}

// Run invokes a command synchronously and returns its exit status. A
// non-zero status does not set tr.Err: whether it is fatal depends on the
// caller's whitelist. Setup failures (missing executable, unwritable log)
// do set tr.Err and return -1.
func (tr *Transaction) Run(opts RunOptions, command string, args ...string) int {
	if tr.Err != nil {
		return -1
	}

	tr.logf("\tRun %s %s (cwd %s)", command, strings.Join(args, " "), opts.Cwd)

	logPath := tr.Root.JoinP(opts.LogFile).String()
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(0664))
	if err != nil {
		tr.Err = fmt.Errorf("Run `%s`: open log `%s`: %w", command, opts.LogFile, err)
		return -1
	}
	defer logFile.Close()

	cmd := exec.Command(command, args...)
	cmd.Dir = tr.Root.JoinP(opts.Cwd).String()
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if opts.Stdin != "" {
		stdin, err := os.Open(tr.Root.JoinP(opts.Stdin).String())
		if err != nil {
			tr.Err = fmt.Errorf("Run `%s`: open stdin `%s`: %w", command, opts.Stdin, err)
			return -1
		}
		defer stdin.Close()
		cmd.Stdin = stdin
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var follower *tail.Tail
	if opts.FollowLog != "" {
		follower, err = tail.TailFile(tr.Root.JoinP(opts.FollowLog).String(), tail.Config{
			Follow:    true,
			MustExist: false,
			ReOpen:    true,
		})
		if err != nil {
			tr.Err = fmt.Errorf("Run `%s`: tail `%s`: %w", command, opts.FollowLog, err)
			return -1
		}
		go func() {
			for l := range follower.Lines {
				if l.Err != nil {
					break
				}
				tr.logf("\t| %s", l.Text)
			}
		}()
	}

	err = cmd.Run()
	if follower != nil {
		follower.Stop()
	}

	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	tr.Err = fmt.Errorf("Run `%s`: %w", command, err)
	return -1
}

// LastLines returns up to n trailing lines of a file, for echoing the tail
// of an executable's log into an error report.
func LastLines(path string, n int) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("(cannot read %s: %s)", path, err)
	}
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
