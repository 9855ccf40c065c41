package git

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// POSIX error codes the engine understands.
const (
	ENOENT    = "ENOENT"
	EEXIST    = "EEXIST"
	ENOTDIR   = "ENOTDIR"
	EISDIR    = "EISDIR"
	ENOTEMPTY = "ENOTEMPTY"
	EINVAL    = "EINVAL"
	EIO       = "EIO"
)

// FS is the storage contract the engine runs on. Paths are absolute,
// slash-separated. Implementations must report a missing path as an
// *FSError with Code ENOENT; the engine relies on that to tell "not created
// yet" from a real failure.
type FS interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	Unlink(ctx context.Context, path string) error
	Readdir(ctx context.Context, path string) ([]string, error)
	Mkdir(ctx context.Context, path string) error
	Rmdir(ctx context.Context, path string) error
	Stat(ctx context.Context, path string) (FileInfo, error)
	Lstat(ctx context.Context, path string) (FileInfo, error)
}

// FileInfo describes a path.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
	Dir     bool
}

// IsFile reports whether the path is a regular file.
func (fi FileInfo) IsFile() bool { return !fi.Dir }

// IsDirectory reports whether the path is a directory.
func (fi FileInfo) IsDirectory() bool { return fi.Dir }

// IsSymbolicLink is always false; symlinks are not supported.
func (fi FileInfo) IsSymbolicLink() bool { return false }

// FSError is a filesystem failure tagged with a POSIX code.
type FSError struct {
	Code string
	Op   string
	Path string
	Err  error
}

func (e *FSError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s '%s': %v", e.Code, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s '%s'", e.Code, e.Op, e.Path)
}

func (e *FSError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is an *FSError with the given code.
func HasCode(err error, code string) bool {
	var fe *FSError
	return errors.As(err, &fe) && fe.Code == code
}

// IsNotExist reports whether err is tagged ENOENT.
func IsNotExist(err error) bool {
	return HasCode(err, ENOENT)
}

// joinPath joins an absolute directory and a relative slash path.
func joinPath(dir, rel string) string {
	if rel == "" || rel == "." {
		return dir
	}
	if dir == "/" {
		return "/" + rel
	}
	return dir + "/" + rel
}

// parentPath returns the directory containing p.
func parentPath(p string) string {
	for i := len(p) - 1; i > 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "/"
}

// mkdirAll creates p and its parents, tolerating existing directories.
func mkdirAll(ctx context.Context, fs FS, p string) error {
	if p == "/" {
		return nil
	}
	fi, err := fs.Stat(ctx, p)
	if err == nil {
		if !fi.Dir {
			return &FSError{Code: ENOTDIR, Op: "mkdir", Path: p}
		}
		return nil
	}
	if !IsNotExist(err) {
		return err
	}
	if err := mkdirAll(ctx, fs, parentPath(p)); err != nil {
		return err
	}
	if err := fs.Mkdir(ctx, p); err != nil && !HasCode(err, EEXIST) {
		return err
	}
	return nil
}
