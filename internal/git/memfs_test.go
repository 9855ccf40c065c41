package git

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memFS is a minimal FS used by the engine tests.
type memFS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
	now   time.Time
}

func newMemFS() *memFS {
	return &memFS{
		files: map[string][]byte{},
		dirs:  map[string]bool{"/": true},
		now:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func (m *memFS) ReadFile(_ context.Context, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[p] {
		return nil, &FSError{Code: EISDIR, Op: "open", Path: p}
	}
	data, ok := m.files[p]
	if !ok {
		return nil, &FSError{Code: ENOENT, Op: "open", Path: p}
	}
	return append([]byte(nil), data...), nil
}

func (m *memFS) WriteFile(_ context.Context, p string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[parentPath(p)] {
		return &FSError{Code: ENOENT, Op: "open", Path: p}
	}
	if m.dirs[p] {
		return &FSError{Code: EISDIR, Op: "open", Path: p}
	}
	m.files[p] = append([]byte(nil), data...)
	return nil
}

func (m *memFS) Unlink(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; !ok {
		return &FSError{Code: ENOENT, Op: "unlink", Path: p}
	}
	delete(m.files, p)
	return nil
}

func (m *memFS) children(p string) []string {
	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}
	seen := map[string]bool{}
	collect := func(k string) {
		if k != p && strings.HasPrefix(k, prefix) {
			rest := strings.TrimPrefix(k, prefix)
			if !strings.Contains(rest, "/") {
				seen[rest] = true
			}
		}
	}
	for k := range m.files {
		collect(k)
	}
	for k := range m.dirs {
		collect(k)
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *memFS) Readdir(_ context.Context, p string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[p] {
		if _, ok := m.files[p]; ok {
			return nil, &FSError{Code: ENOTDIR, Op: "scandir", Path: p}
		}
		return nil, &FSError{Code: ENOENT, Op: "scandir", Path: p}
	}
	return m.children(p), nil
}

func (m *memFS) Mkdir(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[p] {
		return &FSError{Code: EEXIST, Op: "mkdir", Path: p}
	}
	if !m.dirs[parentPath(p)] {
		return &FSError{Code: ENOENT, Op: "mkdir", Path: p}
	}
	m.dirs[p] = true
	return nil
}

func (m *memFS) Rmdir(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[p] {
		return &FSError{Code: ENOENT, Op: "rmdir", Path: p}
	}
	if len(m.children(p)) > 0 {
		return &FSError{Code: ENOTEMPTY, Op: "rmdir", Path: p}
	}
	delete(m.dirs, p)
	return nil
}

func (m *memFS) Stat(_ context.Context, p string) (FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[p] {
		return FileInfo{Name: p, Dir: true, ModTime: m.now}, nil
	}
	if data, ok := m.files[p]; ok {
		return FileInfo{Name: p, Size: int64(len(data)), ModTime: m.now}, nil
	}
	return FileInfo{}, &FSError{Code: ENOENT, Op: "stat", Path: p}
}

func (m *memFS) Lstat(ctx context.Context, p string) (FileInfo, error) {
	return m.Stat(ctx, p)
}

// put writes a worktree file, creating parents.
func (m *memFS) put(p, content string) {
	for d := parentPath(p); d != "/"; d = parentPath(d) {
		m.dirs[d] = true
	}
	m.files[p] = []byte(content)
}
