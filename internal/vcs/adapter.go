package vcs

import (
	"context"
	"errors"

	"github.com/steveyegge/vos/internal/git"
	"github.com/steveyegge/vos/internal/vfs"
)

// Adapter presents a *vfs.FS through the POSIX-like contract the git engine
// expects. VFS errors are translated to *git.FSError codes.
type Adapter struct {
	fs *vfs.FS
}

var _ git.FS = (*Adapter)(nil)

// NewAdapter wraps fs.
func NewAdapter(fs *vfs.FS) *Adapter {
	return &Adapter{fs: fs}
}

func fsErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	code := git.EIO
	switch {
	case errors.Is(err, vfs.ErrNotFound):
		code = git.ENOENT
	case errors.Is(err, vfs.ErrNotADirectory):
		code = git.ENOTDIR
	case errors.Is(err, vfs.ErrIsADirectory):
		code = git.EISDIR
	case errors.Is(err, vfs.ErrInvalidPath):
		code = git.EINVAL
	}
	return &git.FSError{Code: code, Op: op, Path: path, Err: err}
}

func (a *Adapter) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, err := a.fs.ReadFile(path)
	return data, fsErr("open", path, err)
}

// WriteFile requires the parent directory to exist, unlike vfs.WriteFile.
func (a *Adapter) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := a.requireDir("open", path, vfs.Dir(path)); err != nil {
		return err
	}
	return fsErr("open", path, a.fs.WriteFile(ctx, path, data, false))
}

func (a *Adapter) Unlink(ctx context.Context, path string) error {
	st, err := a.fs.Stat(path)
	if err != nil {
		return fsErr("unlink", path, err)
	}
	if st.IsDir() {
		return &git.FSError{Code: git.EISDIR, Op: "unlink", Path: path}
	}
	return fsErr("unlink", path, a.fs.Delete(ctx, path))
}

func (a *Adapter) Readdir(_ context.Context, path string) ([]string, error) {
	entries, err := a.fs.ReadDir(path)
	if err != nil {
		return nil, fsErr("scandir", path, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

func (a *Adapter) Mkdir(ctx context.Context, path string) error {
	if a.fs.Exists(path) {
		return &git.FSError{Code: git.EEXIST, Op: "mkdir", Path: path}
	}
	if err := a.requireDir("mkdir", path, vfs.Dir(path)); err != nil {
		return err
	}
	return fsErr("mkdir", path, a.fs.Mkdir(ctx, path))
}

func (a *Adapter) Rmdir(ctx context.Context, path string) error {
	if vfs.Clean(path) == "/" {
		return &git.FSError{Code: git.EINVAL, Op: "rmdir", Path: path}
	}
	entries, err := a.fs.ReadDir(path)
	if err != nil {
		return fsErr("rmdir", path, err)
	}
	if len(entries) > 0 {
		return &git.FSError{Code: git.ENOTEMPTY, Op: "rmdir", Path: path}
	}
	return fsErr("rmdir", path, a.fs.Delete(ctx, path))
}

func (a *Adapter) Stat(_ context.Context, path string) (git.FileInfo, error) {
	st, err := a.fs.Stat(path)
	if err != nil {
		return git.FileInfo{}, fsErr("stat", path, err)
	}
	return git.FileInfo{
		Name:    st.Name,
		Size:    st.Size,
		ModTime: st.LastModified,
		Dir:     st.IsDir(),
	}, nil
}

// Lstat is Stat; the VFS has no symbolic links.
func (a *Adapter) Lstat(ctx context.Context, path string) (git.FileInfo, error) {
	return a.Stat(ctx, path)
}

func (a *Adapter) requireDir(op, path, dir string) error {
	st, err := a.fs.Stat(dir)
	if err != nil {
		return fsErr(op, path, err)
	}
	if !st.IsDir() {
		return &git.FSError{Code: git.ENOTDIR, Op: op, Path: path}
	}
	return nil
}
