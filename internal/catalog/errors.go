package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("file not found")
	ErrBuild           = errors.New("catalog build failed")
	ErrInvalidFilename = errors.New("invalid filename")
)

// BuildError aborts a catalog build. The previous snapshot stays published.
type BuildError struct {
	Op   string
	Path string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

func (e *BuildError) Is(target error) bool { return target == ErrBuild }
