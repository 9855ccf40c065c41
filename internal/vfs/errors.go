package vfs

import (
	"errors"
	"fmt"
)

// Sentinel errors. Operations return them wrapped in a *PathError.
var (
	ErrNotFound      = errors.New("no such file or directory")
	ErrNotADirectory = errors.New("not a directory")
	ErrIsADirectory  = errors.New("is a directory")
	ErrInvalidPath   = errors.New("invalid path")
)

// PathError records a failed operation on a path.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

func pathErr(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Err: err}
}

// IsNotFound reports whether err means the path did not resolve.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
