package pathinfo

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyPath       = errors.New("path must not be empty")
	ErrEmptySegment    = errors.New("path contains an empty segment")
	ErrPartialSegment  = errors.New("wildcard must be a whole segment")
	ErrLeadingWildcard = errors.New("path must not start with a wildcard")
)

// PathError records a failed operation together with the path that caused it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s: %v", e.Op, describePath(e.Path), e.Err)
}

func (e *PathError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describePath(path string) string {
	if path == "" {
		return "<empty>"
	}
	return path
}

// Wrap attaches op and path to err unless err already carries a path.
func Wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pathErr *PathError
	if errors.As(err, &pathErr) {
		return err
	}
	return &PathError{Op: op, Path: path, Err: err}
}

// StateSeparator splits a dependency target from the state instance that owns
// it, as in `total@cart`.
const StateSeparator = "@"

// SplitTarget splits `path@state` into its parts. state is empty when the
// target lives in the same state instance as its source.
func SplitTarget(target string) (path, state string) {
	path, state, found := strings.Cut(target, StateSeparator)
	if !found {
		return target, ""
	}
	return path, state
}
