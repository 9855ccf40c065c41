package control

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/steveyegge/vos/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	mu        sync.Mutex
	lines     []string
	cwds      []string
	reloads   int
	reloadErr error
	revision  uint64
}

func (b *fakeBackend) Exec(_ context.Context, cwd, line string) types.ShellResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	b.cwds = append(b.cwds, cwd)
	b.revision++
	if line == "foobar" {
		return types.Failure(types.ExitCommandNotFound, "foobar: command not found\n")
	}
	return types.Success(line + "\n")
}

func (b *fakeBackend) Tasks() []types.ScheduledTask {
	return []types.ScheduledTask{{ID: "t1", Name: "backup", Kind: types.TaskKindCommand, Action: "ls"}}
}

func (b *fakeBackend) SchedulerRunning() bool { return true }

func (b *fakeBackend) Reload(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloads++
	return b.reloadErr
}

func (b *fakeBackend) Revision() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revision
}

// socketPath keeps the path short; unix socket paths are limited to ~100 bytes.
func socketPath(t *testing.T) string {
	dir, err := os.MkdirTemp("", "vosctl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, SocketName)
}

func startServer(t *testing.T, b Backend) (*Server, *Client) {
	t.Helper()
	path := socketPath(t)
	srv, err := NewServer(path, NewHandler(b))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, srv.Stop()) })
	return srv, NewClient(path)
}

func TestExec(t *testing.T) {
	b := &fakeBackend{}
	_, client := startServer(t, b)

	res, err := client.Exec("/workspace", "echo hi")
	require.NoError(t, err)
	assert.Equal(t, types.Success("echo hi\n"), res)

	res, err = client.Exec("", "foobar")
	require.NoError(t, err)
	assert.Equal(t, types.ExitCommandNotFound, res.ExitCode)
	assert.Contains(t, res.Stderr, "not found")

	assert.Equal(t, []string{"echo hi", "foobar"}, b.lines)
	assert.Equal(t, []string{"/workspace", ""}, b.cwds)
}

func TestExecRequiresLine(t *testing.T) {
	_, client := startServer(t, &fakeBackend{})
	_, err := client.Exec("", "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a command line")
}

func TestStatus(t *testing.T) {
	_, client := startServer(t, &fakeBackend{revision: 7})
	resp, err := client.Status()
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.Running)
	assert.Equal(t, uint64(7), resp.Data.Revision)
	require.Len(t, resp.Data.Tasks, 1)
	assert.Equal(t, "backup", resp.Data.Tasks[0].Name)
}

func TestReload(t *testing.T) {
	b := &fakeBackend{}
	_, client := startServer(t, b)

	resp, err := client.Reload()
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, b.reloads)

	b.mu.Lock()
	b.reloadErr = errors.New("storage unavailable")
	b.mu.Unlock()
	resp, err = client.Reload()
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "storage unavailable", resp.Error)
}

func TestUnknownCommand(t *testing.T) {
	_, client := startServer(t, &fakeBackend{})
	resp, err := client.SendCommand(Command{Type: "shutdown"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown command type")
}

func TestMalformedRequest(t *testing.T) {
	srv, _ := startServer(t, &fakeBackend{})
	conn, err := net.Dial("unix", srv.SocketPath())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("{not json\n"))
	require.NoError(t, err)
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "failed to decode command")
}

func TestStopRemovesSocket(t *testing.T) {
	path := socketPath(t)
	srv, err := NewServer(path, NewHandler(&fakeBackend{}))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	assert.True(t, srv.IsRunning())
	assert.Error(t, srv.Start(context.Background()))

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())
	assert.False(t, srv.IsRunning())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = NewClient(path).Status()
	assert.Error(t, err)
}
