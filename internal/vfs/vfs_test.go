package vfs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/vos/internal/events"
	"github.com/steveyegge/vos/internal/storage"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func newTestFS(t *testing.T) (*FS, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	fs, err := Open(context.Background(), WithStore(mem, ""), WithClock(fixedClock()))
	require.NoError(t, err)
	return fs, mem
}

// listing flattens the tree so two trees can be compared with cmp.Diff.
func listing(t *testing.T, fs *FS) []FileStat {
	t.Helper()
	var out []FileStat
	require.NoError(t, fs.Walk("/", func(st FileStat) error {
		out = append(out, st)
		return nil
	}))
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFS(t)

	paths := []string{"/a.txt", "/workspace/t.txt", "/deep/ly/nested/dir/file.go", "/unicode/héllo wörld.md"}
	for i, p := range paths {
		content := []byte(fmt.Sprintf("content %d\x00\xff", i))
		require.NoError(t, fs.WriteFile(ctx, p, content, false))
		got, err := fs.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, content, got, p)
	}

	assert.True(t, fs.Exists("/deep/ly/nested"))
	st, err := fs.Stat("/deep/ly/nested/dir/file.go")
	require.NoError(t, err)
	assert.Equal(t, "go", st.Language)
	assert.Equal(t, KindFile, st.Kind)
}

func TestWriteOverwriteAndAppend(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFS(t)

	require.NoError(t, fs.WriteFile(ctx, "/log.txt", []byte("one"), false))
	require.NoError(t, fs.WriteFile(ctx, "/log.txt", []byte("two"), true))
	got, err := fs.ReadFile("/log.txt")
	require.NoError(t, err)
	assert.Equal(t, "onetwo", string(got))

	require.NoError(t, fs.WriteFile(ctx, "/log.txt", []byte("three"), false))
	got, _ = fs.ReadFile("/log.txt")
	assert.Equal(t, "three", string(got))

	// append to a missing file creates it
	require.NoError(t, fs.WriteFile(ctx, "/new.txt", []byte("x"), true))
	got, _ = fs.ReadFile("/new.txt")
	assert.Equal(t, "x", string(got))
}

func TestReadFileCopiesContent(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFS(t)
	require.NoError(t, fs.WriteFile(ctx, "/f", []byte("abc"), false))

	got, _ := fs.ReadFile("/f")
	got[0] = 'z'
	again, _ := fs.ReadFile("/f")
	assert.Equal(t, "abc", string(again))
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFS(t)
	require.NoError(t, fs.WriteFile(ctx, "/dir/file.txt", []byte("x"), false))

	_, err := fs.ReadFile("/missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	var pe *PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "read", pe.Op)
	assert.Equal(t, "/missing", pe.Path)

	_, err = fs.ReadFile("/dir")
	assert.True(t, errors.Is(err, ErrIsADirectory))

	_, err = fs.ReadDir("/dir/file.txt")
	assert.True(t, errors.Is(err, ErrNotADirectory))

	_, err = fs.ReadDir("/nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = fs.WriteFile(ctx, "/dir", []byte("x"), false)
	assert.True(t, errors.Is(err, ErrIsADirectory))

	err = fs.WriteFile(ctx, "/dir/file.txt/child", []byte("x"), false)
	assert.True(t, errors.Is(err, ErrNotADirectory))

	err = fs.Mkdir(ctx, "/dir/file.txt")
	assert.True(t, errors.Is(err, ErrNotADirectory))

	for _, bad := range []string{"", "relative/path", "/a/../b", "/./a", "/a\x00b"} {
		err = fs.WriteFile(ctx, bad, nil, false)
		assert.True(t, errors.Is(err, ErrInvalidPath), "path %q: %v", bad, err)
	}

	err = fs.Delete(ctx, "/")
	assert.True(t, errors.Is(err, ErrInvalidPath))

	err = fs.WriteFile(ctx, "/", nil, false)
	assert.True(t, errors.Is(err, ErrIsADirectory))
}

func TestMkdirIdempotent(t *testing.T) {
	ctx := context.Background()
	fs, mem := newTestFS(t)

	require.NoError(t, fs.Mkdir(ctx, "/a/b/c"))
	saves := mem.Saves()
	before := listing(t, fs)

	require.NoError(t, fs.Mkdir(ctx, "/a/b/c"))
	require.NoError(t, fs.Mkdir(ctx, "/a/b"))
	assert.Equal(t, saves, mem.Saves(), "mkdir of existing dirs must not persist")
	if diff := cmp.Diff(before, listing(t, fs)); diff != "" {
		t.Errorf("tree changed after repeated mkdir (-before +after):\n%s", diff)
	}

	entries, err := fs.ReadDir("/a")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadDirInsertionOrder(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFS(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, fs.WriteFile(ctx, "/d/"+name, []byte(name), false))
	}
	require.NoError(t, fs.Mkdir(ctx, "/d/beta"))

	entries, err := fs.ReadDir("/d")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid", "beta"}, names)
	assert.Equal(t, "/d/zeta", entries[0].Path)
	assert.Equal(t, int64(4), entries[0].Size)
	assert.True(t, entries[3].IsDir())

	root, err := fs.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.Equal(t, "/d", root[0].Path)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	fs, mem := newTestFS(t)

	require.NoError(t, fs.WriteFile(ctx, "/p/q/r.txt", []byte("x"), false))
	require.NoError(t, fs.WriteFile(ctx, "/p/s.txt", []byte("y"), false))
	nodes := fs.NodeCount()

	require.NoError(t, fs.Delete(ctx, "/p/q"))
	assert.False(t, fs.Exists("/p/q"))
	assert.False(t, fs.Exists("/p/q/r.txt"))
	assert.True(t, fs.Exists("/p/s.txt"))
	assert.Equal(t, nodes-2, fs.NodeCount(), "subtree slots must be released")

	saves := mem.Saves()
	rev := fs.Revision()
	require.NoError(t, fs.Delete(ctx, "/p/q"))
	require.NoError(t, fs.Delete(ctx, "/nothing/here"))
	require.NoError(t, fs.Delete(ctx, "/p/s.txt/under-a-file"))
	assert.Equal(t, saves, mem.Saves(), "deleting a missing path must not persist")
	assert.Equal(t, rev, fs.Revision())

	// freed slots are reused and order is still insertion order
	require.NoError(t, fs.WriteFile(ctx, "/p/t.txt", []byte("z"), false))
	entries, _ := fs.ReadDir("/p")
	require.Len(t, entries, 2)
	assert.Equal(t, "s.txt", entries[0].Name)
	assert.Equal(t, "t.txt", entries[1].Name)
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, mem := newTestFS(t)

	require.NoError(t, fs.WriteFile(ctx, "/home/user/notes.md", []byte("# hi"), false))
	require.NoError(t, fs.Mkdir(ctx, "/tmp"))
	require.NoError(t, fs.WriteFile(ctx, "/home/user/bin/run.sh", []byte{0, 1, 2, 255}, false))
	require.NoError(t, fs.WriteFile(ctx, "/home/user/empty", nil, false))
	require.NoError(t, fs.WriteFile(ctx, "/home/a.txt", []byte("a"), false))

	reopened, err := Open(ctx, WithStore(mem, ""))
	require.NoError(t, err)

	if diff := cmp.Diff(listing(t, fs), listing(t, reopened)); diff != "" {
		t.Errorf("tree differs after reload (-want +got):\n%s", diff)
	}

	a, err := fs.Marshal()
	require.NoError(t, err)
	b, err := reopened.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))

	empty, err := reopened.ReadFile("/home/user/empty")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWireFormatUsesOrderedPairs(t *testing.T) {
	ctx := context.Background()
	fs := New(WithClock(func() time.Time { return time.Unix(0, 0).UTC() }))
	require.NoError(t, fs.WriteFile(ctx, "/b", []byte("hi"), false))
	require.NoError(t, fs.Mkdir(ctx, "/a"))

	data, err := fs.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"kind": "dir",
		"lastModified": "1970-01-01T00:00:00Z",
		"children": [
			["b", {"kind": "file", "content": "aGk=", "lastModified": "1970-01-01T00:00:00Z"}],
			["a", {"kind": "dir", "lastModified": "1970-01-01T00:00:00Z"}]
		]
	}`, string(data))
}

func TestUnmarshalRejectsCorruptTrees(t *testing.T) {
	ctx := context.Background()
	tests := map[string]string{
		"root is a file":  `{"kind":"file"}`,
		"duplicate names": `{"kind":"dir","children":[["a",{"kind":"file"}],["a",{"kind":"dir"}]]}`,
		"slash in name":   `{"kind":"dir","children":[["a/b",{"kind":"file"}]]}`,
		"bad pair":        `{"kind":"dir","children":[["a"]]}`,
		"unknown kind":    `{"kind":"dir","children":[["a",{"kind":"link"}]]}`,
		"not json":        `{`,
	}
	for name, blob := range tests {
		t.Run(name, func(t *testing.T) {
			fs := New()
			require.NoError(t, fs.WriteFile(ctx, "/keep", []byte("x"), false))
			assert.Error(t, fs.Unmarshal(ctx, []byte(blob)))
			assert.True(t, fs.Exists("/keep"), "failed unmarshal must leave the tree untouched")
		})
	}
}

func TestEventsAndRevision(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus(16)
	sub := bus.Subscribe(events.EventTypeFileChange)
	defer bus.Unsubscribe(sub)

	fs := New(WithNotifier(bus))
	rev := fs.Revision()

	require.NoError(t, fs.WriteFile(ctx, "/x//y.txt", []byte("1"), false))
	require.NoError(t, fs.Mkdir(ctx, "/m"))
	require.NoError(t, fs.Delete(ctx, "/m"))
	assert.Equal(t, rev+3, fs.Revision())

	want := []events.FileChangeData{
		{Path: "/x/y.txt", Operation: "write"},
		{Path: "/m", Operation: "mkdir"},
		{Path: "/m", Operation: "delete"},
	}
	for _, w := range want {
		select {
		case ev := <-sub.C:
			data, err := ev.GetFileChangeData()
			require.NoError(t, err)
			assert.Equal(t, w, *data)
		case <-time.After(time.Second):
			t.Fatalf("missing event for %s", w.Path)
		}
	}
}

type failingStore struct{ *storage.Memory }

func (failingStore) Save(context.Context, string, []byte) error {
	return errors.New("disk full")
}

// flakyStore fails every Save while failing is set.
type flakyStore struct {
	*storage.Memory
	failing bool
}

func (f *flakyStore) Save(ctx context.Context, key string, data []byte) error {
	if f.failing {
		return errors.New("disk full")
	}
	return f.Memory.Save(ctx, key, data)
}

func TestPersistFailureIsReported(t *testing.T) {
	ctx := context.Background()
	fs := New(WithStore(failingStore{storage.NewMemory()}, ""))

	err := fs.WriteFile(ctx, "/a.txt", []byte("x"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, fs.Exists("/a.txt"))
	assert.Equal(t, 1, fs.NodeCount())
}

func TestPersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Memory: storage.NewMemory()}
	fs, err := Open(ctx, WithStore(store, ""))
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile(ctx, "/w/a.txt", []byte("one"), false))
	before, err := fs.Marshal()
	require.NoError(t, err)
	rev := fs.Revision()

	store.failing = true
	require.Error(t, fs.WriteFile(ctx, "/w/a.txt", []byte("two"), false))
	require.Error(t, fs.WriteFile(ctx, "/w/a.txt", []byte("+"), true))
	require.Error(t, fs.Mkdir(ctx, "/w/sub/deeper"))
	require.Error(t, fs.Delete(ctx, "/w"))

	got, err := fs.ReadFile("/w/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
	assert.False(t, fs.Exists("/w/sub"))
	assert.Equal(t, rev, fs.Revision())
	after, err := fs.Marshal()
	require.NoError(t, err)
	if diff := cmp.Diff(string(before), string(after)); diff != "" {
		t.Errorf("tree changed after failed saves (-before +after):\n%s", diff)
	}

	store.failing = false
	require.NoError(t, fs.WriteFile(ctx, "/w/a.txt", []byte("three"), false))
	got, err = fs.ReadFile("/w/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "three", string(got))
}

func TestReloadPicksUpExternalChanges(t *testing.T) {
	ctx := context.Background()
	fs, mem := newTestFS(t)
	require.NoError(t, fs.WriteFile(ctx, "/a", []byte("1"), false))

	other, err := Open(ctx, WithStore(mem, ""))
	require.NoError(t, err)
	require.NoError(t, other.WriteFile(ctx, "/b", []byte("2"), false))

	assert.False(t, fs.Exists("/b"))
	require.NoError(t, fs.Reload(ctx))
	assert.True(t, fs.Exists("/b"))
}
