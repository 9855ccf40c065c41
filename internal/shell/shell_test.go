package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/vos/internal/pkgmgr"
	"github.com/steveyegge/vos/internal/types"
	"github.com/steveyegge/vos/internal/vcs"
	"github.com/steveyegge/vos/internal/vfs"
)

var testNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

type fakeTasks struct {
	tasks []types.ScheduledTask
}

func (f *fakeTasks) Add(_ context.Context, t types.ScheduledTask) (types.ScheduledTask, error) {
	if err := t.Validate(); err != nil {
		return types.ScheduledTask{}, err
	}
	t.ID = fmt.Sprintf("task-%d", len(f.tasks)+1)
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeTasks) List() []types.ScheduledTask { return f.tasks }

func (f *fakeTasks) Delete(_ context.Context, id string) error {
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return errors.New("task not found: " + id)
}

type fakeObjectives struct {
	seen []string
	err  error
}

func (f *fakeObjectives) ExecuteObjective(_ context.Context, objective string) (string, error) {
	f.seen = append(f.seen, objective)
	return "done: " + objective, f.err
}

func newShell(t *testing.T) (*Shell, *vfs.FS) {
	t.Helper()
	fs := vfs.New(vfs.WithClock(func() time.Time { return testNow }))
	ctx := context.Background()
	for _, d := range []string{"/home/user", "/workspace", "/tmp"} {
		require.NoError(t, fs.Mkdir(ctx, d))
	}
	sh := New(fs,
		WithVCS(vcs.NewBridge(fs, vcs.WithClock(func() time.Time { return testNow }))),
		WithPackages(pkgmgr.New(fs, pkgmgr.DefaultRegistry(), pkgmgr.Config{})),
		WithClock(func() time.Time { return testNow }),
	)
	return sh, fs
}

func run(t *testing.T, sh *Shell, line string) types.ShellResult {
	t.Helper()
	return sh.Execute(context.Background(), line)
}

func mustRun(t *testing.T, sh *Shell, line string) string {
	t.Helper()
	res := run(t, sh, line)
	require.Equal(t, 0, res.ExitCode, "%s: stderr=%q", line, res.Stderr)
	return res.Stdout
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"ls -la /tmp", []string{"ls", "-la", "/tmp"}},
		{`echo "hello world" > f`, []string{"echo", "hello world", ">", "f"}},
		{`echo 'a  b'`, []string{"echo", "a  b"}},
		{`git commit -m ""`, []string{"git", "commit", "-m", ""}},
		{`echo "it's"`, []string{"echo", "its"}},
		{"a\tb", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Tokenize(tt.line)); diff != "" {
				t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	sh, _ := newShell(t)
	res := run(t, sh, "foobar --x")
	assert.Equal(t, types.ExitCommandNotFound, res.ExitCode)
	assert.Contains(t, res.Stderr, "foobar: command not found")
	assert.Empty(t, res.Stdout)
}

func TestEmptyLine(t *testing.T) {
	sh, _ := newShell(t)
	assert.Equal(t, types.Success(""), run(t, sh, "   "))
}

func TestEchoRedirectAndCat(t *testing.T) {
	sh, fs := newShell(t)

	assert.Equal(t, "", mustRun(t, sh, "echo hi > /workspace/t.txt"))
	assert.Equal(t, "hi", mustRun(t, sh, "cat /workspace/t.txt"))

	mustRun(t, sh, "echo more >> /workspace/t.txt")
	data, err := fs.ReadFile("/workspace/t.txt")
	require.NoError(t, err)
	assert.Equal(t, "himore", string(data))

	mustRun(t, sh, "echo replaced > /workspace/t.txt")
	assert.Equal(t, "replaced", mustRun(t, sh, "cat /workspace/t.txt"))

	assert.Equal(t, "a b c\n", mustRun(t, sh, "echo a b c"))

	res := run(t, sh, "echo x >")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
}

func TestCatErrors(t *testing.T) {
	sh, _ := newShell(t)
	res := run(t, sh, "cat /nope")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Equal(t, "cat: /nope: No such file or directory\n", res.Stderr)

	res = run(t, sh, "cat /workspace")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "Is a directory")
}

func TestCdPwd(t *testing.T) {
	sh, _ := newShell(t)
	assert.Equal(t, "/home/user\n", mustRun(t, sh, "pwd"))

	mustRun(t, sh, "cd /workspace")
	assert.Equal(t, "/workspace\n", mustRun(t, sh, "pwd"))

	mustRun(t, sh, "mkdir -p a/b")
	mustRun(t, sh, "cd a/b")
	mustRun(t, sh, "cd ../..")
	assert.Equal(t, "/workspace", sh.Cwd())

	mustRun(t, sh, "cd ../../../..")
	assert.Equal(t, "/", sh.Cwd())

	res := run(t, sh, "cd /missing")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Equal(t, "/", sh.Cwd())

	mustRun(t, sh, "touch /tmp/file")
	res = run(t, sh, "cd /tmp/file")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "Not a directory")
	assert.Equal(t, "/", sh.Cwd())

	mustRun(t, sh, "cd")
	assert.Equal(t, "/home/user", sh.Cwd())
	assert.Equal(t, "/home/user", sh.Env()["PWD"])
}

func TestLs(t *testing.T) {
	sh, _ := newShell(t)
	mustRun(t, sh, "cd /workspace")
	mustRun(t, sh, "touch zeta.txt")
	mustRun(t, sh, "mkdir src")
	mustRun(t, sh, "touch alpha.go")

	assert.Equal(t, "alpha.go\nsrc/\nzeta.txt\n", mustRun(t, sh, "ls"))
	assert.Equal(t, "alpha.go\nsrc/\nzeta.txt\n", mustRun(t, sh, "ls /workspace"))
	assert.Equal(t, "alpha.go\n", mustRun(t, sh, "ls alpha.go"))
	assert.Equal(t, "", mustRun(t, sh, "ls src"))

	res := run(t, sh, "ls nothing")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "No such file or directory")
}

func TestMkdir(t *testing.T) {
	sh, fs := newShell(t)
	mustRun(t, sh, "mkdir /workspace/one")
	assert.True(t, fs.Exists("/workspace/one"))

	// Existing directories and missing parents are both fine
	mustRun(t, sh, "mkdir /workspace/one")
	mustRun(t, sh, "mkdir /workspace")
	mustRun(t, sh, "mkdir /workspace/a/b/c")
	st, err := fs.Stat("/workspace/a/b/c")
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	mustRun(t, sh, "mkdir -p /workspace/x/y")
	mustRun(t, sh, "mkdir -p /workspace/x/y")
	st, err = fs.Stat("/workspace/x/y")
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	mustRun(t, sh, "echo data > /workspace/file")
	res := run(t, sh, "mkdir /workspace/file/sub")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "Not a directory")
	assert.False(t, fs.Exists("/workspace/file/sub"))

	res = run(t, sh, "mkdir")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
}

func TestRm(t *testing.T) {
	sh, fs := newShell(t)
	mustRun(t, sh, "mkdir -p /workspace/tree/deep")
	mustRun(t, sh, "echo x > /workspace/tree/deep/f")

	before := fs.Revision()
	mustRun(t, sh, "rm /workspace/missing")
	assert.Equal(t, before, fs.Revision())

	mustRun(t, sh, "rm -rf /workspace/tree")
	assert.False(t, fs.Exists("/workspace/tree"))

	res := run(t, sh, "rm -rf /")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.True(t, fs.Exists("/workspace"))
}

func TestEnvAndWhoami(t *testing.T) {
	fs := vfs.New()
	sh := New(fs, WithUser("ada"), WithEnv(map[string]string{"LANG": "C"}))
	assert.Equal(t, "ada\n", mustRun(t, sh, "whoami"))
	assert.Equal(t, "/home/ada", sh.Cwd())

	env := mustRun(t, sh, "env")
	for _, want := range []string{"HOME=/home/ada", "USER=ada", "LANG=C", "PWD=/home/ada", "PATH=", "SHELL=", "TERM="} {
		assert.Contains(t, env, want)
	}
}

func TestHelpListsEveryCommand(t *testing.T) {
	sh, _ := newShell(t)
	out := mustRun(t, sh, "help")
	for _, name := range Commands() {
		assert.Contains(t, out, name)
	}
}

func TestGitExitCodesOutsideRepository(t *testing.T) {
	sh, _ := newShell(t)
	mustRun(t, sh, "mkdir /workspace/plain")
	mustRun(t, sh, "cd /workspace/plain")
	mustRun(t, sh, "echo x > x")

	tests := []struct {
		line string
		want int
	}{
		{"git status", types.ExitFailure},
		{"git add x", types.ExitFailure},
		{"git commit -m hi", types.ExitFailure},
		{"git branch", types.ExitFailure},
		{"git log", types.ExitFatal},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			res := run(t, sh, tt.line)
			assert.Equal(t, tt.want, res.ExitCode)
			assert.Contains(t, res.Stderr, "fatal: not a git repository")
		})
	}
}

func TestGitWorkflow(t *testing.T) {
	sh, _ := newShell(t)
	mustRun(t, sh, "mkdir -p /workspace/proj")
	mustRun(t, sh, "cd /workspace/proj")

	res := run(t, sh, "git status")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "not a git repository")

	assert.Equal(t, "Initialized empty Git repository in /workspace/proj/.git/\n", mustRun(t, sh, "git init"))
	assert.Contains(t, mustRun(t, sh, "git init"), "Reinitialized existing")

	res = run(t, sh, "git log")
	assert.Equal(t, types.ExitFatal, res.ExitCode)
	assert.Contains(t, res.Stderr, "does not have any commits yet")

	mustRun(t, sh, "echo hello > a.txt")
	status := mustRun(t, sh, "git status")
	assert.Contains(t, status, "Untracked files:\n\ta.txt\n")

	mustRun(t, sh, "git add a.txt")
	status = mustRun(t, sh, "git status")
	assert.Contains(t, status, "Changes to be committed:")
	assert.Contains(t, status, "new file:   a.txt")

	out := mustRun(t, sh, `git commit -m "first commit"`)
	assert.Regexp(t, `^\[main [0-9a-f]{7}\] first commit\n$`, out)
	assert.Contains(t, mustRun(t, sh, "git status"), "nothing to commit, working tree clean")

	mustRun(t, sh, "echo changed > a.txt")
	status = mustRun(t, sh, "git status")
	assert.Contains(t, status, "Changes not staged for commit:")
	assert.Contains(t, status, "modified:   a.txt")

	mustRun(t, sh, "git add .")
	mustRun(t, sh, `git commit -m "second"`)

	log := mustRun(t, sh, "git log --oneline")
	lines := strings.Split(strings.TrimSpace(log), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], " second"))
	assert.True(t, strings.HasSuffix(lines[1], " first commit"))

	full := mustRun(t, sh, "git log -n 1")
	assert.Contains(t, full, "Author: vos-user <user@vos.local>")
	assert.Equal(t, 1, strings.Count(full, "commit "))

	assert.Equal(t, "* main\n", mustRun(t, sh, "git branch"))

	res = run(t, sh, `git commit -m "nothing"`)
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "nothing to commit")

	res = run(t, sh, "git commit")
	assert.Equal(t, types.ExitFailure, res.ExitCode)

	res = run(t, sh, "git add nope.txt")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "did not match any files")

	res = run(t, sh, "git frobnicate")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
}

func TestGitRm(t *testing.T) {
	sh, fs := newShell(t)
	mustRun(t, sh, "mkdir -p /workspace/r")
	mustRun(t, sh, "cd /workspace/r")
	mustRun(t, sh, "git init")
	mustRun(t, sh, "echo x > gone.txt")
	mustRun(t, sh, "git add gone.txt")
	mustRun(t, sh, `git commit -m add`)

	assert.Equal(t, "rm 'gone.txt'\n", mustRun(t, sh, "git rm gone.txt"))
	assert.False(t, fs.Exists("/workspace/r/gone.txt"))
	assert.Contains(t, mustRun(t, sh, "git status"), "deleted:    gone.txt")
}

func TestGitClone(t *testing.T) {
	sh, fs := newShell(t)
	mustRun(t, sh, "cd /workspace")

	out := mustRun(t, sh, "git clone "+vcs.StarterURL+".git")
	assert.Contains(t, out, "Cloning into 'starter'...")
	assert.True(t, fs.Exists("/workspace/starter/README.md"))

	mustRun(t, sh, "cd starter")
	log := mustRun(t, sh, "git log --oneline")
	assert.Equal(t, 1, strings.Count(log, "\n"))
	assert.Contains(t, mustRun(t, sh, "git status"), "working tree clean")

	mustRun(t, sh, "cd /workspace")
	before := fs.Revision()
	res := run(t, sh, "git clone https://example.com/other/repo elsewhere")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "not cached")
	assert.Equal(t, before, fs.Revision())
	assert.False(t, fs.Exists("/workspace/elsewhere"))
}

func TestApm(t *testing.T) {
	sh, fs := newShell(t)
	assert.Equal(t, "(no packages installed)\n", mustRun(t, sh, "apm list"))

	out := mustRun(t, sh, "apm install lodash@^4")
	assert.Contains(t, out, "+ lodash@4.17.21")
	assert.True(t, fs.Exists("/usr/lib/apm/lodash/index.star"))
	assert.Equal(t, "lodash@4.17.21\n", mustRun(t, sh, "apm list"))

	res := run(t, sh, "apm install not-a-real-package")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "not-a-real-package")

	res = run(t, sh, "apm publish")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
}

func TestNode(t *testing.T) {
	ctx := context.Background()
	sh, fs := newShell(t)
	mustRun(t, sh, "cd /workspace")

	assert.Equal(t, "3\n", mustRun(t, sh, `node "print(1 + 2)"`))
	assert.Equal(t, "7\n", mustRun(t, sh, `js -e "print(3 + 4)"`))

	require.NoError(t, fs.WriteFile(ctx, "/workspace/main.star",
		[]byte(`print(require("path").basename("/a/b.txt"), process_args)`+"\n"), false))
	res := run(t, sh, "node main.star")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "process_args")

	require.NoError(t, fs.WriteFile(ctx, "/workspace/main.star",
		[]byte(`print(require("path").basename("/a/b.txt"), require("process").argv)`+"\n"), false))
	assert.Equal(t, "b.txt [\"x\"]\n", mustRun(t, sh, "node main.star x"))

	require.NoError(t, fs.WriteFile(ctx, "/workspace/bad.star",
		[]byte(`print("before")`+"\n"+`require("left-pad-missing")`+"\n"), false))
	res = run(t, sh, "node bad.star")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Equal(t, "before\n", res.Stdout)
	assert.Contains(t, res.Stderr, "left-pad-missing")

	res = run(t, sh, "node")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
}

func TestNodeChildProcessUsesShell(t *testing.T) {
	ctx := context.Background()
	sh, fs := newShell(t)
	mustRun(t, sh, "cd /workspace")
	mustRun(t, sh, "echo content > note.txt")
	require.NoError(t, fs.WriteFile(ctx, "/workspace/cp.star",
		[]byte(`print(require("child_process").exec_sync("cat note.txt"))`+"\n"), false))

	assert.Equal(t, "content\n", mustRun(t, sh, "node cp.star"))
	assert.Equal(t, "/workspace", sh.Cwd())
}

func TestNpxAgent(t *testing.T) {
	sh, _ := newShell(t)
	tasks := &fakeTasks{}
	obj := &fakeObjectives{}
	sh.SetTasks(tasks)
	sh.SetObjectives(obj)

	assert.Equal(t, "done: summarize the repo\n", mustRun(t, sh, "npx agent run summarize the repo"))
	assert.Equal(t, []string{"summarize the repo"}, obj.seen)

	out := mustRun(t, sh, `npx agent schedule --every 5s --name backup "ls -la /workspace"`)
	assert.Contains(t, out, "Scheduled task task-1 (backup, every 5s)")
	require.Len(t, tasks.tasks, 1)
	task := tasks.tasks[0]
	assert.Equal(t, types.RecurrenceInterval, task.Recurrence)
	assert.Equal(t, 5, task.IntervalSeconds)
	assert.Equal(t, "ls -la /workspace", task.Action)
	assert.Equal(t, types.TaskKindCommand, task.Kind)
	assert.Equal(t, testNow, task.NextRunAt)

	mustRun(t, sh, "npx agent schedule --daily --kind agent-objective write a haiku")
	assert.Equal(t, types.RecurrenceDaily, tasks.tasks[1].Recurrence)
	assert.Equal(t, "write a haiku", tasks.tasks[1].Name)

	list := mustRun(t, sh, "npx agent tasks")
	assert.Contains(t, list, "task-1")
	assert.Contains(t, list, "write a haiku")

	mustRun(t, sh, "npx agent cancel task-1")
	assert.Len(t, tasks.tasks, 1)

	for _, bad := range []string{
		"npx agent schedule --hourly --daily x",
		"npx agent schedule --every 1500ms x",
		"npx agent schedule --kind bogus x",
		"npx agent schedule --once",
		"npx agent cancel nope",
		"npx agent bogus",
		"npx other",
	} {
		res := run(t, sh, bad)
		assert.Equal(t, types.ExitFailure, res.ExitCode, bad)
	}

	res := run(t, sh, "npx agent media a cat")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, ErrMediaUnavailable)

	obj.err = errors.New("no API key")
	res = run(t, sh, "npx agent run anything")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "no API key")
}

func TestNpxWithoutServices(t *testing.T) {
	sh := New(vfs.New())
	for _, line := range []string{"npx agent run x", "npx agent tasks", "git status", "apm list"} {
		res := run(t, sh, line)
		assert.Equal(t, types.ExitFailure, res.ExitCode, line)
		assert.Contains(t, res.Stderr, "not available", line)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	sh, _ := newShell(t)
	builtins["boom"] = builtin{run: func(*Shell, context.Context, []string) types.ShellResult { panic("kaboom") }}
	defer delete(builtins, "boom")

	res := run(t, sh, "boom")
	assert.Equal(t, types.ExitFailure, res.ExitCode)
	assert.Contains(t, res.Stderr, "kaboom")
}

func TestForkKeepsOwnCwd(t *testing.T) {
	sh, _ := newShell(t)
	res := sh.Exec(context.Background(), "/tmp", "pwd")
	assert.Equal(t, "/tmp\n", res.Stdout)
	assert.Equal(t, "/home/user", sh.Cwd())
}
