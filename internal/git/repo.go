// Package git is a small embedded git engine. It reads and writes real
// loose objects (blob, tree, commit) and refs over any FS, so repositories
// created here can be inspected by stock git once exported.
package git

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/vos/internal/logging"
)

// DefaultBranch is the branch HEAD points at after Init.
const DefaultBranch = "main"

const gitDirName = ".git"

// Repository is a working tree rooted at Dir with its .git directory.
type Repository struct {
	fs     FS
	dir    string
	gitDir string
	now    func() time.Time
	log    *zap.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the time source used for commit timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func newRepository(fs FS, dir string, opts ...Option) *Repository {
	r := &Repository{
		fs:     fs,
		dir:    path.Clean("/" + dir),
		now:    time.Now,
		log:    logging.Named("git"),
	}
	r.gitDir = joinPath(r.dir, gitDirName)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the working tree root.
func (r *Repository) Dir() string { return r.dir }

// Init creates an empty repository at dir. Re-initialising an existing
// repository leaves it untouched.
func Init(ctx context.Context, fs FS, dir string, opts ...Option) (*Repository, error) {
	r := newRepository(fs, dir, opts...)
	if ok, err := r.exists(ctx); err != nil {
		return nil, err
	} else if ok {
		return r, nil
	}

	for _, d := range []string{"objects", "refs/heads", "refs/tags"} {
		if err := mkdirAll(ctx, fs, joinPath(r.gitDir, d)); err != nil {
			return nil, fmt.Errorf("init %s: %w", r.dir, err)
		}
	}
	files := []struct{ name, body string }{
		{"config", "[core]\n\trepositoryformatversion = 0\n\tfilemode = false\n\tbare = false\n"},
		{"description", "Unnamed repository; edit this file 'description' to name the repository.\n"},
		{"HEAD", "ref: refs/heads/" + DefaultBranch + "\n"},
	}
	for _, f := range files {
		if err := fs.WriteFile(ctx, joinPath(r.gitDir, f.name), []byte(f.body)); err != nil {
			return nil, fmt.Errorf("init %s: %w", r.dir, err)
		}
	}
	r.log.Debug("initialized repository", zap.String("dir", r.dir))
	return r, nil
}

// Open returns the repository at dir or ErrNotARepository.
func Open(ctx context.Context, fs FS, dir string, opts ...Option) (*Repository, error) {
	r := newRepository(fs, dir, opts...)
	ok, err := r.exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", r.dir, ErrNotARepository)
	}
	return r, nil
}

// FindRoot walks up from start to the nearest directory containing .git.
func FindRoot(ctx context.Context, fs FS, start string) (string, error) {
	dir := path.Clean("/" + start)
	for {
		fi, err := fs.Stat(ctx, joinPath(dir, gitDirName))
		if err == nil && fi.IsDirectory() {
			return dir, nil
		}
		if err != nil && !IsNotExist(err) && !HasCode(err, ENOTDIR) {
			return "", err
		}
		if dir == "/" {
			return "", fmt.Errorf("%s: %w", start, ErrNotARepository)
		}
		dir = parentPath(dir)
	}
}

func (r *Repository) exists(ctx context.Context) (bool, error) {
	_, err := r.fs.Stat(ctx, joinPath(r.gitDir, "HEAD"))
	if err == nil {
		return true, nil
	}
	if IsNotExist(err) || HasCode(err, ENOTDIR) {
		return false, nil
	}
	return false, err
}

// headRef returns the ref HEAD points at, e.g. "refs/heads/main".
func (r *Repository) headRef(ctx context.Context) (string, error) {
	data, err := r.fs.ReadFile(ctx, joinPath(r.gitDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	s := strings.TrimSpace(string(data))
	ref, ok := strings.CutPrefix(s, "ref: ")
	if !ok {
		return "", fmt.Errorf("detached HEAD is not supported")
	}
	return ref, nil
}

// Branch returns the short name of the current branch.
func (r *Repository) Branch(ctx context.Context) (string, error) {
	ref, err := r.headRef(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(ref, "refs/heads/"), nil
}

// ResolveHead returns the commit HEAD points at, or "" on an unborn branch.
func (r *Repository) ResolveHead(ctx context.Context) (string, error) {
	ref, err := r.headRef(ctx)
	if err != nil {
		return "", err
	}
	data, err := r.fs.ReadFile(ctx, joinPath(r.gitDir, ref))
	if IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", ref, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (r *Repository) updateHead(ctx context.Context, oid string) error {
	ref, err := r.headRef(ctx)
	if err != nil {
		return err
	}
	p := joinPath(r.gitDir, ref)
	if err := mkdirAll(ctx, r.fs, parentPath(p)); err != nil {
		return err
	}
	return r.fs.WriteFile(ctx, p, []byte(oid+"\n"))
}

// headFiles returns the flattened tree of HEAD, empty on an unborn branch.
func (r *Repository) headFiles(ctx context.Context) (map[string]string, error) {
	oid, err := r.ResolveHead(ctx)
	if err != nil || oid == "" {
		return map[string]string{}, err
	}
	c, err := r.readCommit(ctx, oid)
	if err != nil {
		return nil, err
	}
	return r.flattenTree(ctx, c.Tree)
}

func (r *Repository) readCommit(ctx context.Context, oid string) (CommitInfo, error) {
	data, err := r.readTyped(ctx, oid, ObjectCommit)
	if err != nil {
		return CommitInfo{}, err
	}
	return decodeCommit(oid, data)
}

// normalize turns a user path (relative to the repo root) into a clean
// slash path. "" and "." mean the whole tree.
func (r *Repository) normalize(p string) (string, error) {
	if strings.HasPrefix(p, "/") {
		rel, ok := strings.CutPrefix(path.Clean(p), r.dir)
		if !ok || (rel != "" && !strings.HasPrefix(rel, "/") && r.dir != "/") {
			return "", fmt.Errorf("%s: outside repository %s", p, r.dir)
		}
		p = strings.TrimPrefix(rel, "/")
	}
	clean := path.Clean(p)
	if clean == "." || clean == "" {
		return ".", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%s: outside repository %s", p, r.dir)
	}
	if clean == gitDirName || strings.HasPrefix(clean, gitDirName+"/") {
		return "", fmt.Errorf("%s: %w", p, &PathspecError{Pathspec: p})
	}
	return clean, nil
}

func under(p, prefix string) bool {
	return prefix == "." || p == prefix || strings.HasPrefix(p, prefix+"/")
}

// worktreeFile is a file found in the working tree.
type worktreeFile struct {
	info FileInfo
	abs  string
}

// walkWorktree lists regular files below rel (relative to the repo root),
// skipping .git.
func (r *Repository) walkWorktree(ctx context.Context, rel string) (map[string]worktreeFile, error) {
	out := map[string]worktreeFile{}
	var walk func(relDir string) error
	walk = func(relDir string) error {
		names, err := r.fs.Readdir(ctx, joinPath(r.dir, relDir))
		if err != nil {
			return err
		}
		for _, name := range names {
			child := name
			if relDir != "." {
				child = relDir + "/" + name
			}
			if child == gitDirName {
				continue
			}
			abs := joinPath(r.dir, child)
			fi, err := r.fs.Lstat(ctx, abs)
			if err != nil {
				return err
			}
			switch {
			case fi.IsDirectory():
				if err := walk(child); err != nil {
					return err
				}
			case fi.IsFile():
				out[child] = worktreeFile{info: fi, abs: abs}
			}
		}
		return nil
	}

	abs := joinPath(r.dir, rel)
	fi, err := r.fs.Lstat(ctx, abs)
	if IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if fi.IsFile() {
		out[rel] = worktreeFile{info: fi, abs: abs}
		return out, nil
	}
	if err := walk(rel); err != nil {
		return nil, err
	}
	return out, nil
}

func parseZone(z string) (*time.Location, error) {
	if len(z) != 5 || (z[0] != '+' && z[0] != '-') {
		return nil, fmt.Errorf("bad timezone %q", z)
	}
	h, err1 := strconv.Atoi(z[1:3])
	m, err2 := strconv.Atoi(z[3:5])
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("bad timezone %q", z)
	}
	offset := h*3600 + m*60
	if z[0] == '-' {
		offset = -offset
	}
	if offset == 0 {
		return time.UTC, nil
	}
	return time.FixedZone("", offset), nil
}

func unixIn(secs int64, loc *time.Location) time.Time {
	return time.Unix(secs, 0).In(loc)
}
