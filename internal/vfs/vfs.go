// Package vfs implements the persistent in-memory filesystem every other
// component operates on. The whole tree is serialized to a single blob and
// saved after each mutation.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/vos/internal/events"
	"github.com/steveyegge/vos/internal/logging"
	"github.com/steveyegge/vos/internal/metrics"
	"github.com/steveyegge/vos/internal/storage"
)

// DefaultKey is the storage key the tree is persisted under.
const DefaultKey = "vfs/root"

// FS is the virtual filesystem. All methods are safe for concurrent use;
// a single mutex makes each operation atomic.
type FS struct {
	mu       sync.Mutex
	tree     *arena
	revision uint64
	// saved is the last blob known to match storage; nil means none.
	saved []byte

	store    storage.Store
	key      string
	notifier events.Notifier
	now      func() time.Time
	log      *zap.Logger
}

// Option configures an FS.
type Option func(*FS)

// WithStore persists the tree to store under key (DefaultKey when empty).
func WithStore(store storage.Store, key string) Option {
	return func(fs *FS) {
		fs.store = store
		if key != "" {
			fs.key = key
		}
	}
}

// WithNotifier publishes file-change events to n.
func WithNotifier(n events.Notifier) Option {
	return func(fs *FS) { fs.notifier = n }
}

// WithClock overrides time.Now for lastModified stamps.
func WithClock(now func() time.Time) Option {
	return func(fs *FS) { fs.now = now }
}

// New creates an FS holding an empty root and does not touch storage.
func New(opts ...Option) *FS {
	fs := &FS{
		key:      DefaultKey,
		notifier: events.NopNotifier{},
		now:      time.Now,
		log:      logging.Named("vfs"),
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.tree = newArena(fs.now())
	return fs
}

// Open creates an FS and loads the persisted tree, if any.
func Open(ctx context.Context, opts ...Option) (*FS, error) {
	fs := New(opts...)
	if fs.store == nil {
		return fs, nil
	}
	if err := fs.Reload(ctx); err != nil {
		return nil, err
	}
	return fs, nil
}

// Reload replaces the in-memory tree with the persisted blob. A missing blob
// leaves an empty root.
func (fs *FS) Reload(ctx context.Context) error {
	if fs.store == nil {
		return nil
	}
	data, err := fs.store.Load(ctx, fs.key)
	if errors.Is(err, storage.ErrNotFound) {
		fs.log.Debug("no persisted tree, starting empty", zap.String("key", fs.key))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load filesystem: %w", err)
	}
	tree, err := unmarshalTree(data)
	if err != nil {
		return fmt.Errorf("failed to decode filesystem: %w", err)
	}

	fs.mu.Lock()
	fs.tree = tree
	fs.saved = data
	fs.revision++
	nodes := tree.live
	fs.mu.Unlock()

	metrics.SetVFSTreeSize(nodes)
	fs.log.Debug("filesystem loaded", zap.Int("nodes", nodes), zap.Int("bytes", len(data)))
	fs.notifier.Publish(events.NewFileChangeEvent("/", "reload"))
	return nil
}

// Revision increases on every change to the tree. Pollers compare it to
// detect changes without subscribing to events.
func (fs *FS) Revision() uint64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.revision
}

// Exists reports whether path resolves to a node.
func (fs *FS) Exists(path string) bool {
	segs, err := Split(path)
	if err != nil {
		return false
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, depth := fs.tree.lookup(segs)
	return depth == len(segs)
}

// resolveLocked returns the node at path or a NotFound/InvalidPath error.
func (fs *FS) resolveLocked(op, path string) (nodeID, []string, error) {
	segs, err := Split(path)
	if err != nil {
		return noNode, nil, pathErr(op, path, err)
	}
	id, depth := fs.tree.lookup(segs)
	if depth != len(segs) {
		return noNode, segs, pathErr(op, path, ErrNotFound)
	}
	return id, segs, nil
}

// ReadFile returns a copy of the file's content.
func (fs *FS) ReadFile(path string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	id, _, err := fs.resolveLocked("read", path)
	if err != nil {
		return nil, err
	}
	n := fs.tree.get(id)
	if n.isDir() {
		return nil, pathErr("read", path, ErrIsADirectory)
	}
	return append([]byte{}, n.content...), nil
}

// Stat describes the node at path.
func (fs *FS) Stat(path string) (FileStat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	id, segs, err := fs.resolveLocked("stat", path)
	if err != nil {
		return FileStat{}, err
	}
	return statOf(fs.tree.get(id), Join(segs...)), nil
}

// ReadDir lists a directory's children in insertion order.
func (fs *FS) ReadDir(path string) ([]FileStat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	id, segs, err := fs.resolveLocked("readdir", path)
	if err != nil {
		return nil, err
	}
	n := fs.tree.get(id)
	if !n.isDir() {
		return nil, pathErr("readdir", path, ErrNotADirectory)
	}
	base := Join(segs...)
	if base == "/" {
		base = ""
	}
	out := make([]FileStat, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, statOf(fs.tree.get(n.index[name]), base+"/"+name))
	}
	return out, nil
}

// Walk visits path and every node below it in depth-first insertion order.
// The tree is locked for the duration of the walk; fn must not call back into fs.
func (fs *FS) Walk(path string, fn func(FileStat) error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	id, segs, err := fs.resolveLocked("walk", path)
	if err != nil {
		return err
	}
	return fs.walkLocked(id, Join(segs...), fn)
}

func (fs *FS) walkLocked(id nodeID, p string, fn func(FileStat) error) error {
	n := fs.tree.get(id)
	if err := fn(statOf(n, p)); err != nil {
		return err
	}
	if !n.isDir() {
		return nil
	}
	base := p
	if base == "/" {
		base = ""
	}
	for _, name := range n.order {
		if err := fs.walkLocked(n.index[name], base+"/"+name, fn); err != nil {
			return err
		}
	}
	return nil
}

// ensureDirsLocked walks segs from the root creating missing directories.
// It fails with ErrNotADirectory if a file occupies any segment and reports
// whether anything was created.
func (fs *FS) ensureDirsLocked(segs []string, now time.Time) (nodeID, bool, error) {
	cur := rootID
	created := false
	for _, seg := range segs {
		if !fs.tree.get(cur).isDir() {
			return noNode, created, ErrNotADirectory
		}
		next, ok := fs.tree.child(cur, seg)
		if !ok {
			next = fs.tree.alloc(node{name: seg, kind: KindDir, modTime: now})
			fs.tree.attach(cur, seg, next)
			fs.tree.get(cur).modTime = now
			created = true
		}
		cur = next
	}
	if !fs.tree.get(cur).isDir() {
		return noNode, created, ErrNotADirectory
	}
	return cur, created, nil
}

// WriteFile creates or replaces the file at path, creating missing parent
// directories. With appendMode the content is added to any existing content.
// When persisting fails the tree is left as it was before the call.
func (fs *FS) WriteFile(ctx context.Context, path string, content []byte, appendMode bool) error {
	op := "write"
	if appendMode {
		op = "append"
	}
	segs, err := Split(path)
	if err != nil {
		metrics.RecordVFSOperation(op, false)
		return pathErr(op, path, err)
	}
	if len(segs) == 0 {
		metrics.RecordVFSOperation(op, false)
		return pathErr(op, path, ErrIsADirectory)
	}
	canonical := Join(segs...)

	fs.mu.Lock()
	now := fs.now()
	parent, _, err := fs.ensureDirsLocked(segs[:len(segs)-1], now)
	if err != nil {
		fs.mu.Unlock()
		metrics.RecordVFSOperation(op, false)
		return pathErr(op, path, err)
	}

	name := segs[len(segs)-1]
	if id, ok := fs.tree.child(parent, name); ok {
		n := fs.tree.get(id)
		if n.isDir() {
			fs.mu.Unlock()
			metrics.RecordVFSOperation(op, false)
			return pathErr(op, path, ErrIsADirectory)
		}
		if appendMode {
			n.content = append(n.content, content...)
		} else {
			n.content = append([]byte{}, content...)
		}
		n.modTime = now
	} else {
		id := fs.tree.alloc(node{name: name, kind: KindFile, content: append([]byte{}, content...), modTime: now})
		fs.tree.attach(parent, name, id)
		fs.tree.get(parent).modTime = now
	}
	err = fs.commitLocked(ctx)
	fs.mu.Unlock()

	metrics.RecordVFSOperation(op, err == nil)
	if err != nil {
		return pathErr(op, path, err)
	}
	fs.notifier.Publish(events.NewFileChangeEvent(canonical, op))
	return nil
}

// Mkdir creates path and any missing parents. Existing directories are not an error.
func (fs *FS) Mkdir(ctx context.Context, path string) error {
	segs, err := Split(path)
	if err != nil {
		metrics.RecordVFSOperation("mkdir", false)
		return pathErr("mkdir", path, err)
	}

	fs.mu.Lock()
	_, created, err := fs.ensureDirsLocked(segs, fs.now())
	if err != nil {
		fs.mu.Unlock()
		metrics.RecordVFSOperation("mkdir", false)
		return pathErr("mkdir", path, err)
	}
	if !created {
		fs.mu.Unlock()
		metrics.RecordVFSOperation("mkdir", true)
		return nil
	}
	err = fs.commitLocked(ctx)
	fs.mu.Unlock()

	metrics.RecordVFSOperation("mkdir", err == nil)
	if err != nil {
		return pathErr("mkdir", path, err)
	}
	fs.notifier.Publish(events.NewFileChangeEvent(Join(segs...), "mkdir"))
	return nil
}

// Delete removes the node at path and its subtree. A missing path is a no-op
// and does not persist. The root cannot be deleted.
func (fs *FS) Delete(ctx context.Context, path string) error {
	segs, err := Split(path)
	if err == nil && len(segs) == 0 {
		err = ErrInvalidPath
	}
	if err != nil {
		metrics.RecordVFSOperation("delete", false)
		return pathErr("delete", path, err)
	}

	fs.mu.Lock()
	parent, depth := fs.tree.lookup(segs[:len(segs)-1])
	if depth != len(segs)-1 || !fs.tree.get(parent).isDir() {
		fs.mu.Unlock()
		metrics.RecordVFSOperation("delete", true)
		return nil
	}
	id := fs.tree.detach(parent, segs[len(segs)-1])
	if id == noNode {
		fs.mu.Unlock()
		metrics.RecordVFSOperation("delete", true)
		return nil
	}
	fs.tree.release(id)
	fs.tree.get(parent).modTime = fs.now()
	err = fs.commitLocked(ctx)
	fs.mu.Unlock()

	metrics.RecordVFSOperation("delete", err == nil)
	if err != nil {
		return pathErr("delete", path, err)
	}
	fs.notifier.Publish(events.NewFileChangeEvent(Join(segs...), "delete"))
	return nil
}

// commitLocked persists the whole tree and bumps the revision. If encoding
// or saving fails the tree is rolled back to the last saved state, so a
// mutation that returns an error leaves no trace.
func (fs *FS) commitLocked(ctx context.Context) error {
	if fs.store == nil {
		fs.revision++
		metrics.SetVFSTreeSize(fs.tree.live)
		return nil
	}
	start := time.Now()
	data, err := fs.tree.marshal()
	if err != nil {
		fs.rollbackLocked()
		return fmt.Errorf("failed to encode filesystem: %w", err)
	}
	if err := fs.store.Save(ctx, fs.key, data); err != nil {
		fs.log.Error("failed to persist filesystem", zap.Error(err))
		fs.rollbackLocked()
		return fmt.Errorf("failed to persist filesystem: %w", err)
	}
	fs.saved = data
	fs.revision++
	metrics.SetVFSTreeSize(fs.tree.live)
	metrics.RecordVFSPersist(time.Since(start))
	return nil
}

// rollbackLocked restores the tree from the last saved blob.
func (fs *FS) rollbackLocked() {
	if fs.saved == nil {
		fs.tree = newArena(fs.now())
		return
	}
	tree, err := unmarshalTree(fs.saved)
	if err != nil {
		// saved was produced by marshal or accepted by Reload
		fs.log.Error("failed to restore filesystem after save error", zap.Error(err))
		return
	}
	fs.tree = tree
}

// Flush persists the current tree unconditionally.
func (fs *FS) Flush(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.commitLocked(ctx)
}

// Marshal returns the serialized tree in its persisted form.
func (fs *FS) Marshal() ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.tree.marshal()
}

// Unmarshal replaces the tree with a serialized one and persists it. On a
// save failure the previous tree stays in place.
func (fs *FS) Unmarshal(ctx context.Context, data []byte) error {
	tree, err := unmarshalTree(data)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	fs.tree = tree
	err = fs.commitLocked(ctx)
	fs.mu.Unlock()
	if err != nil {
		return err
	}
	fs.notifier.Publish(events.NewFileChangeEvent("/", "reload"))
	return nil
}

// NodeCount returns the number of nodes in the tree, including the root.
func (fs *FS) NodeCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.tree.live
}
