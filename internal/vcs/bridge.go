// Package vcs bridges the virtual filesystem to the embedded git engine.
// It exposes repository operations addressed by VFS directory and converts
// engine state into status labels the shell prints.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/vos/internal/git"
	"github.com/steveyegge/vos/internal/logging"
	"github.com/steveyegge/vos/internal/types"
	"github.com/steveyegge/vos/internal/vfs"
)

var (
	// ErrNotCached is returned when cloning a URL that is not in the catalog.
	ErrNotCached = errors.New("no proxy configured and repository is not cached")

	// ErrDestinationExists is returned when cloning into a non-empty directory.
	ErrDestinationExists = errors.New("destination path already exists and is not an empty directory")
)

// Identities used for commits.
var (
	BotIdentity  = git.Signature{Name: "vos-bot", Email: "bot@vos.local"}
	UserIdentity = git.Signature{Name: "vos-user", Email: "user@vos.local"}
)

// Bridge runs git operations against directories of a VFS.
type Bridge struct {
	fs      *vfs.FS
	adapter *Adapter
	catalog Catalog
	author  git.Signature
	now     func() time.Time
	log     *zap.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithCatalog replaces the default clone catalog.
func WithCatalog(c Catalog) Option {
	return func(b *Bridge) { b.catalog = c }
}

// WithAuthor overrides the commit identity.
func WithAuthor(sig git.Signature) Option {
	return func(b *Bridge) { b.author = sig }
}

// WithClock overrides the commit time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// NewBridge creates a bridge over fs.
func NewBridge(fs *vfs.FS, opts ...Option) *Bridge {
	b := &Bridge{
		fs:      fs,
		adapter: NewAdapter(fs),
		catalog: DefaultCatalog(),
		author:  UserIdentity,
		now:     time.Now,
		log:     logging.Named("vcs"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Adapter returns the git.FS view of the VFS.
func (b *Bridge) Adapter() *Adapter {
	return b.adapter
}

// Catalog returns the clone catalog.
func (b *Bridge) Catalog() Catalog {
	return b.catalog
}

// open finds the repository containing dir.
func (b *Bridge) open(ctx context.Context, dir string) (*git.Repository, error) {
	root, err := git.FindRoot(ctx, b.adapter, dir)
	if err != nil {
		return nil, err
	}
	return git.Open(ctx, b.adapter, root, git.WithClock(b.now))
}

// Init creates a repository rooted at dir, creating dir if needed. It
// reports whether a repository already existed there.
func (b *Bridge) Init(ctx context.Context, dir string) (bool, error) {
	existed := b.fs.Exists(vfs.Resolve(dir, ".git/HEAD"))
	if err := b.fs.Mkdir(ctx, dir); err != nil {
		return false, err
	}
	if _, err := git.Init(ctx, b.adapter, dir, git.WithClock(b.now)); err != nil {
		return false, err
	}
	return existed, nil
}

// CloneResult describes a completed clone.
type CloneResult struct {
	Dir    string
	Commit string
	Files  int
}

// Clone hydrates dir from the catalog entry for url and commits every file
// as the bot identity. Unknown URLs fail before the filesystem is touched.
func (b *Bridge) Clone(ctx context.Context, url, dir string) (CloneResult, error) {
	entry, ok := b.catalog.Lookup(url)
	if !ok {
		return CloneResult{}, fmt.Errorf("unable to access '%s': %w", url, ErrNotCached)
	}
	if st, err := b.fs.Stat(dir); err == nil {
		if !st.IsDir() {
			return CloneResult{}, fmt.Errorf("destination path '%s': %w", dir, ErrDestinationExists)
		}
		entries, err := b.fs.ReadDir(dir)
		if err != nil {
			return CloneResult{}, err
		}
		if len(entries) > 0 {
			return CloneResult{}, fmt.Errorf("destination path '%s': %w", dir, ErrDestinationExists)
		}
	}

	if err := b.fs.Mkdir(ctx, dir); err != nil {
		return CloneResult{}, err
	}
	repo, err := git.Init(ctx, b.adapter, dir, git.WithClock(b.now))
	if err != nil {
		return CloneResult{}, err
	}
	for _, f := range entry.Files {
		if err := b.fs.WriteFile(ctx, vfs.Resolve(dir, f.Path), []byte(f.Content), false); err != nil {
			return CloneResult{}, fmt.Errorf("hydrate %s: %w", f.Path, err)
		}
	}
	if err := repo.Add(ctx, "."); err != nil {
		return CloneResult{}, err
	}
	bot := BotIdentity
	bot.When = entry.CommittedAt
	oid, err := repo.Commit(ctx, git.CommitOptions{
		Message: "Initial commit",
		Author:  bot,
	})
	if err != nil {
		return CloneResult{}, err
	}

	b.log.Info("cloned from catalog",
		zap.String("url", entry.URL),
		zap.String("dir", dir),
		zap.String("commit", oid))
	return CloneResult{Dir: repo.Dir(), Commit: oid, Files: len(entry.Files)}, nil
}

// Status returns one item per known path, including unmodified ones.
// Use Active to drop those for display.
func (b *Bridge) Status(ctx context.Context, dir string) ([]types.GitStatusItem, error) {
	repo, err := b.open(ctx, dir)
	if err != nil {
		return nil, err
	}
	rows, err := repo.StatusMatrix(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]types.GitStatusItem, len(rows))
	for i, r := range rows {
		items[i] = Classify(r)
	}
	return items, nil
}

// Add stages path (absolute, or relative to the repository root).
func (b *Bridge) Add(ctx context.Context, dir, path string) error {
	repo, err := b.open(ctx, dir)
	if err != nil {
		return err
	}
	return repo.Add(ctx, path)
}

// Remove unstages path and deletes it from the working tree.
func (b *Bridge) Remove(ctx context.Context, dir, path string) error {
	repo, err := b.open(ctx, dir)
	if err != nil {
		return err
	}
	return repo.Remove(ctx, path)
}

// Commit records the index with the bridge's author identity.
func (b *Bridge) Commit(ctx context.Context, dir, message string) (string, error) {
	repo, err := b.open(ctx, dir)
	if err != nil {
		return "", err
	}
	return repo.Commit(ctx, git.CommitOptions{Message: message, Author: b.author})
}

// LogEntry is one commit as shown by `git log`.
type LogEntry struct {
	OID       string    `json:"oid"`
	Author    string    `json:"author"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Log returns up to depth commits, newest first.
func (b *Bridge) Log(ctx context.Context, dir string, depth int) ([]LogEntry, error) {
	repo, err := b.open(ctx, dir)
	if err != nil {
		return nil, err
	}
	commits, err := repo.Log(ctx, depth)
	if err != nil {
		return nil, err
	}
	out := make([]LogEntry, len(commits))
	for i, c := range commits {
		out[i] = LogEntry{
			OID:       c.OID,
			Author:    c.Author.Name,
			Email:     c.Author.Email,
			Timestamp: c.Author.When,
			Message:   c.Message,
		}
	}
	return out, nil
}

// Branch returns the current branch of the repository containing dir.
func (b *Bridge) Branch(ctx context.Context, dir string) (string, error) {
	repo, err := b.open(ctx, dir)
	if err != nil {
		return "", err
	}
	return repo.Branch(ctx)
}
