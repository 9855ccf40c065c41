package git

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Add stages pathspec. A directory (or ".") stages every file below it and
// records deletions of tracked files that no longer exist.
func (r *Repository) Add(ctx context.Context, pathspec string) error {
	rel, err := r.normalize(pathspec)
	if err != nil {
		return err
	}
	ix, err := r.readIndex(ctx)
	if err != nil {
		return err
	}
	files, err := r.walkWorktree(ctx, rel)
	if err != nil {
		return fmt.Errorf("add %s: %w", pathspec, err)
	}

	matched := len(files) > 0
	for p := range ix.entries {
		if under(p, rel) {
			matched = true
			if _, ok := files[p]; !ok {
				delete(ix.entries, p)
			}
		}
	}
	if !matched {
		return &PathspecError{Pathspec: pathspec}
	}

	for p, f := range files {
		data, err := r.fs.ReadFile(ctx, f.abs)
		if err != nil {
			return fmt.Errorf("add %s: %w", p, err)
		}
		oid, err := r.writeObject(ctx, ObjectBlob, data)
		if err != nil {
			return err
		}
		ix.entries[p] = IndexEntry{Path: p, OID: oid, Size: int64(len(data)), ModTime: f.info.ModTime}
	}
	return r.writeIndex(ctx, ix)
}

// Remove unstages pathspec and deletes it from the working tree. Parent
// directories left empty are removed too.
func (r *Repository) Remove(ctx context.Context, pathspec string) error {
	rel, err := r.normalize(pathspec)
	if err != nil {
		return err
	}
	if rel == "." {
		return fmt.Errorf("refusing to remove the repository root")
	}
	ix, err := r.readIndex(ctx)
	if err != nil {
		return err
	}

	var removed []string
	for p := range ix.entries {
		if under(p, rel) {
			delete(ix.entries, p)
			removed = append(removed, p)
		}
	}
	if len(removed) == 0 {
		return &PathspecError{Pathspec: pathspec}
	}
	sort.Strings(removed)

	for _, p := range removed {
		abs := joinPath(r.dir, p)
		if err := r.fs.Unlink(ctx, abs); err != nil && !IsNotExist(err) {
			return fmt.Errorf("rm %s: %w", p, err)
		}
		r.pruneEmptyDirs(ctx, parentPath(abs))
	}
	return r.writeIndex(ctx, ix)
}

func (r *Repository) pruneEmptyDirs(ctx context.Context, dir string) {
	for dir != r.dir && strings.HasPrefix(dir, r.dir) {
		if err := r.fs.Rmdir(ctx, dir); err != nil {
			return
		}
		dir = parentPath(dir)
	}
}

// Commit records the index as a new commit on the current branch.
func (r *Repository) Commit(ctx context.Context, opts CommitOptions) (string, error) {
	if strings.TrimSpace(opts.Message) == "" {
		return "", ErrEmptyMessage
	}
	ix, err := r.readIndex(ctx)
	if err != nil {
		return "", err
	}
	parent, err := r.ResolveHead(ctx)
	if err != nil {
		return "", err
	}

	tree, err := r.writeTree(ctx, ix.oids())
	if err != nil {
		return "", err
	}
	if parent == "" && len(ix.entries) == 0 {
		return "", ErrNothingToCommit
	}
	if parent != "" {
		pc, err := r.readCommit(ctx, parent)
		if err != nil {
			return "", err
		}
		if pc.Tree == tree {
			return "", ErrNothingToCommit
		}
	}

	author := opts.Author
	if author.When.IsZero() {
		author.When = r.now()
	}
	committer := author
	if opts.Committer != nil {
		committer = *opts.Committer
		if committer.When.IsZero() {
			committer.When = author.When
		}
	}
	c := CommitInfo{
		Tree:      tree,
		Author:    author,
		Committer: committer,
		Message:   opts.Message,
	}
	if parent != "" {
		c.Parents = []string{parent}
	}

	oid, err := r.writeObject(ctx, ObjectCommit, encodeCommit(c))
	if err != nil {
		return "", err
	}
	if err := r.updateHead(ctx, oid); err != nil {
		return "", err
	}
	r.log.Debug("committed",
		zap.String("dir", r.dir),
		zap.String("oid", oid),
		zap.Int("files", len(ix.entries)))
	return oid, nil
}

// Log returns up to depth commits reachable from HEAD along first parents,
// newest first. depth <= 0 means no limit.
func (r *Repository) Log(ctx context.Context, depth int) ([]CommitInfo, error) {
	oid, err := r.ResolveHead(ctx)
	if err != nil {
		return nil, err
	}
	if oid == "" {
		return nil, ErrNoCommits
	}
	var out []CommitInfo
	for oid != "" && (depth <= 0 || len(out) < depth) {
		c, err := r.readCommit(ctx, oid)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		oid = ""
		if len(c.Parents) > 0 {
			oid = c.Parents[0]
		}
	}
	return out, nil
}

// StatusMatrix compares HEAD, the working tree and the index for every
// known path, sorted by path. Paths identical in all three are included
// as [1,1,1].
func (r *Repository) StatusMatrix(ctx context.Context) ([]StatusRow, error) {
	head, err := r.headFiles(ctx)
	if err != nil {
		return nil, err
	}
	ix, err := r.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	files, err := r.walkWorktree(ctx, ".")
	if err != nil {
		return nil, err
	}

	paths := map[string]struct{}{}
	for p := range head {
		paths[p] = struct{}{}
	}
	for p := range ix.entries {
		paths[p] = struct{}{}
	}
	for p := range files {
		paths[p] = struct{}{}
	}

	rows := make([]StatusRow, 0, len(paths))
	for p := range paths {
		headOID, inHead := head[p]
		entry, inIndex := ix.entries[p]

		workOID := ""
		if f, ok := files[p]; ok {
			data, err := r.fs.ReadFile(ctx, f.abs)
			if err != nil {
				return nil, err
			}
			workOID = HashObject(ObjectBlob, data)
		}

		row := StatusRow{Path: p}
		if inHead {
			row.Head = HeadPresent
		}
		switch {
		case workOID == "":
			row.Workdir = WorkdirAbsent
		case inHead && workOID == headOID:
			row.Workdir = WorkdirUnchanged
		default:
			row.Workdir = WorkdirChanged
		}
		switch {
		case !inIndex:
			row.Stage = StageAbsent
		case inHead && entry.OID == headOID:
			row.Stage = StageHead
		case workOID != "" && entry.OID == workOID:
			row.Stage = StageWorkdir
		default:
			row.Stage = StageDifferent
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
	return rows, nil
}
