package fsutil

import (
	"fmt"
	"path"
)

// Path is a filesystem path used as a value, with convenience joins.
type Path string

// Join appends a literal part.
func (pt Path) Join(part string) Path {
	return Path(path.Join(string(pt), part))
}

// JoinP appends another Path.
func (pt Path) JoinP(part Path) Path {
	return Path(path.Join(string(pt), string(part)))
}

// JoinF appends a formatted part.
func (pt Path) JoinF(part string, args ...interface{}) Path {
	partF := fmt.Sprintf(part, args...)
	return Path(path.Join(string(pt), partF))
}

// PathF builds a Path from a format string.
func PathF(format string, args ...interface{}) Path {
	return Path(fmt.Sprintf(format, args...))
}

// Base returns the last element of the path.
func (pt Path) Base() string {
	return path.Base(string(pt))
}

func (pt Path) String() string {
	return string(pt)
}
