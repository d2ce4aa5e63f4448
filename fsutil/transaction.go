// Package fsutil implements the filesystem layer the stages run on: a
// Transaction groups a sequence of operations rooted at a directory, and
// the first failing operation latches into Err and turns every subsequent
// call into a no-op. Callers write straight-line staging code and check
// Err once at the end.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Transaction is a sequence of filesystem operations rooted at Root.
// After the first error, every operation is a no-op and Err holds the cause.
type Transaction struct {
	Root Path
	Err  error
	Log  *zap.SugaredLogger
}

func (tr *Transaction) logf(format string, args ...interface{}) {
	if tr.Log != nil {
		tr.Log.Infof(format, args...)
	}
}

// Exists reports whether file exists under Root.
func (tr *Transaction) Exists(file Path) bool {
	if tr.Err != nil {
		return false
	}
	_, err := os.Stat(tr.Root.JoinP(file).String())
	if !os.IsNotExist(err) && err != nil {
		tr.Err = fmt.Errorf("Exists `%s`: Stat error: %w", file, err)
	}
	return err == nil
}

// Stat returns file info for a path under Root, or nil if it is missing.
func (tr *Transaction) Stat(file Path) os.FileInfo {
	if tr.Err != nil {
		return nil
	}
	info, err := os.Stat(tr.Root.JoinP(file).String())
	if err != nil {
		if !os.IsNotExist(err) {
			tr.Err = fmt.Errorf("Stat `%s`: %w", file, err)
		}
		return nil
	}
	return info
}

// ReaddirAbs lists the names in an absolute directory.
func (tr *Transaction) ReaddirAbs(dir Path) []string {
	if tr.Err != nil {
		return nil
	}
	entries, err := os.ReadDir(dir.String())
	if err != nil {
		tr.Err = fmt.Errorf("ReaddirAbs `%s`: %w", dir, err)
		return nil
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

// Readdir lists the names in a directory under Root.
func (tr *Transaction) Readdir(dir Path) []string {
	return tr.ReaddirAbs(tr.Root.JoinP(dir))
}

// Glob returns the paths under Root matching pattern, relative to Root.
func (tr *Transaction) Glob(pattern Path) []Path {
	if tr.Err != nil {
		return nil
	}
	matches, err := filepath.Glob(tr.Root.JoinP(pattern).String())
	if err != nil {
		tr.Err = fmt.Errorf("Glob `%s`: %w", pattern, err)
		return nil
	}
	res := make([]Path, len(matches))
	prefix := tr.Root.String() + string(os.PathSeparator)
	for i, m := range matches {
		res[i] = Path(strings.TrimPrefix(m, prefix))
	}
	return res
}

// Copy copies a file under Root to another path under Root.
func (tr *Transaction) Copy(from, to Path) {
	tr.CopyAbs(tr.Root.JoinP(from), to)
}

// CopyAbs copies an absolute source file to a path under Root.
func (tr *Transaction) CopyAbs(from, to Path) {
	if tr.Err != nil {
		return
	}

	tr.logf("\tCopy from %s to %s", from, to)
	source, err := os.Open(from.String())
	if err != nil {
		tr.Err = fmt.Errorf("CopyAbs from `%s` to `%s`: Open error: %w", from, to, err)
		return
	}
	defer source.Close()

	target, err := os.OpenFile(tr.Root.JoinP(to).String(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(0664))
	if err != nil {
		tr.Err = fmt.Errorf("CopyAbs from `%s` to `%s`: OpenFile error: %w", from, to, err)
		return
	}
	defer target.Close()

	_, err = io.Copy(target, source)
	if err != nil {
		tr.Err = fmt.Errorf("CopyAbs from `%s` to `%s`: Copy error: %w", from, to, err)
	}
}

// Move renames a file under Root to another path under Root, falling back
// to copy+remove when the rename crosses filesystems.
func (tr *Transaction) Move(from, to Path) {
	if tr.Err != nil {
		return
	}
	tr.logf("\tMove from %s to %s", from, to)

	err := os.Rename(tr.Root.JoinP(from).String(), tr.Root.JoinP(to).String())
	if err == nil {
		return
	}

	tr.Copy(from, to)
	if tr.Err != nil {
		tr.Err = fmt.Errorf("Move from `%s` to `%s`: %w", from, to, tr.Err)
		return
	}
	if err := os.Remove(tr.Root.JoinP(from).String()); err != nil {
		tr.Err = fmt.Errorf("Move from `%s` to `%s`: Remove error: %w", from, to, err)
	}
}

// Save writes content to a file under Root.
func (tr *Transaction) Save(targetPath Path, content []byte) {
	if tr.Err != nil {
		return
	}

	err := os.WriteFile(tr.Root.JoinP(targetPath).String(), content, os.FileMode(0664))
	if err != nil {
		tr.Err = fmt.Errorf("Save to `%s`: WriteFile error: %w", targetPath, err)
	}
}

// ReadString reads a whole file under Root.
func (tr *Transaction) ReadString(file Path) string {
	if tr.Err != nil {
		return ""
	}
	content, err := os.ReadFile(tr.Root.JoinP(file).String())
	if err != nil {
		tr.Err = fmt.Errorf("ReadString `%s`: %w", file, err)
		return ""
	}
	return string(content)
}

// LinkAbs symlinks an absolute source into a path under Root.
func (tr *Transaction) LinkAbs(from, to Path) {
	if tr.Err != nil {
		return
	}
	tr.logf("\tLink from %s to %s", from, to)
	err := os.Symlink(from.String(), tr.Root.JoinP(to).String())
	if err != nil {
		tr.Err = fmt.Errorf("LinkAbs from `%s` to `%s`: Symlink error: %w", from, to, err)
	}
}

// MkDir creates a directory (and parents) under Root.
func (tr *Transaction) MkDir(dir Path) {
	if tr.Err != nil {
		return
	}

	err := os.MkdirAll(tr.Root.JoinP(dir).String(), os.FileMode(0755))
	if err != nil {
		tr.Err = fmt.Errorf("MkDir `%s`: MkdirAll error: %w", dir, err)
	}
}

// RmDir removes a directory tree under Root.
func (tr *Transaction) RmDir(dir Path) {
	if tr.Err != nil {
		return
	}
	tr.logf("\tRmDir %s", dir)

	err := os.RemoveAll(tr.Root.JoinP(dir).String())
	if err != nil {
		tr.Err = fmt.Errorf("RmDir `%s`: RemoveAll error: %w", dir, err)
	}
}

// RmFile removes a single file under Root.
func (tr *Transaction) RmFile(file Path) {
	if tr.Err != nil {
		return
	}
	tr.logf("\tRmFile %s", file)
	err := os.Remove(tr.Root.JoinP(file).String())
	if err != nil {
		tr.Err = fmt.Errorf("RmFile `%s`: Remove error: %w", file, err)
	}
}
