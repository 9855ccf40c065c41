package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/vos/internal/git"
	"github.com/steveyegge/vos/internal/types"
	"github.com/steveyegge/vos/internal/vcs"
	"github.com/steveyegge/vos/internal/vfs"
)

type gitSubcommand func(s *Shell, ctx context.Context, args []string) types.ShellResult

var gitSubcommands = map[string]gitSubcommand{
	"clone":  (*Shell).gitClone,
	"init":   (*Shell).gitInit,
	"status": (*Shell).gitStatus,
	"add":    (*Shell).gitAdd,
	"rm":     (*Shell).gitRm,
	"commit": (*Shell).gitCommit,
	"log":    (*Shell).gitLog,
	"branch": (*Shell).gitBranch,
}

func (s *Shell) cmdGit(ctx context.Context, args []string) types.ShellResult {
	if s.vcs == nil {
		return fail("git", "version control is not available")
	}
	if len(args) == 0 {
		return types.Failure(types.ExitFailure, "usage: %s\n", builtins["git"].usage)
	}
	sub, ok := gitSubcommands[args[0]]
	if !ok {
		return fail("git", "'%s' is not a git command", args[0])
	}
	return sub(s, ctx, args[1:])
}

// gitFailure renders an engine error with git's wording. Only log treats a
// missing repository or an unborn branch as fatal (128); every other
// subcommand reports failures with 1.
func gitFailure(err error) types.ShellResult {
	return gitFailureCode(types.ExitFailure, err)
}

func gitFailureCode(code int, err error) types.ShellResult {
	switch {
	case errors.Is(err, git.ErrNotARepository):
		return types.Failure(code, "fatal: not a git repository (or any of the parent directories): .git\n")
	case errors.Is(err, git.ErrNoCommits):
		return types.Failure(code, "fatal: your current branch '%s' does not have any commits yet\n", git.DefaultBranch)
	}
	var pathspec *git.PathspecError
	if errors.As(err, &pathspec) {
		return types.Failure(types.ExitFailure, "fatal: %s\n", pathspec.Error())
	}
	return types.Failure(code, "git: %v\n", err)
}

// cloneDir derives the default clone target from the last URL segment.
func cloneDir(url string) string {
	u := vcs.NormalizeURL(url)
	name := u[strings.LastIndexAny(u, "/:")+1:]
	if name == "" {
		return "repo"
	}
	return name
}

func (s *Shell) gitClone(ctx context.Context, args []string) types.ShellResult {
	if len(args) == 0 {
		return fail("git", "clone: you must specify a repository to clone")
	}
	url := args[0]
	dir := cloneDir(url)
	if len(args) > 1 {
		dir = args[1]
	}
	res, err := s.vcs.Clone(ctx, url, s.resolve(dir))
	if err != nil {
		return gitFailure(err)
	}
	return types.Success(fmt.Sprintf("Cloning into '%s'...\nChecked out %d files at %s\n", dir, res.Files, shortOID(res.Commit)))
}

func (s *Shell) gitInit(ctx context.Context, args []string) types.ShellResult {
	dir := s.Cwd()
	if len(args) > 0 {
		dir = s.resolve(args[0])
	}
	existed, err := s.vcs.Init(ctx, dir)
	if err != nil {
		return gitFailure(err)
	}
	verb := "Initialized empty"
	if existed {
		verb = "Reinitialized existing"
	}
	return types.Success(fmt.Sprintf("%s Git repository in %s/\n", verb, vfs.Resolve(dir, ".git")))
}

func (s *Shell) gitStatus(ctx context.Context, _ []string) types.ShellResult {
	items, err := s.vcs.Status(ctx, s.Cwd())
	if err != nil {
		return gitFailure(err)
	}
	branch, err := s.vcs.Branch(ctx, s.Cwd())
	if err != nil {
		return gitFailure(err)
	}

	var staged, unstaged, untracked []types.GitStatusItem
	for _, it := range vcs.Active(items) {
		switch {
		case it.Staged:
			staged = append(staged, it)
		case it.Status == types.GitStatusNew:
			untracked = append(untracked, it)
		default:
			unstaged = append(unstaged, it)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "On branch %s\n", branch)
	if len(staged)+len(unstaged)+len(untracked) == 0 {
		b.WriteString("nothing to commit, working tree clean\n")
		return types.Success(b.String())
	}
	section := func(title string, rows []types.GitStatusItem, label bool) {
		if len(rows) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", title)
		for _, r := range rows {
			if label {
				fmt.Fprintf(&b, "\t%-12s%s\n", statusLabel(r)+":", r.Path)
			} else {
				fmt.Fprintf(&b, "\t%s\n", r.Path)
			}
		}
		b.WriteByte('\n')
	}
	section("Changes to be committed", staged, true)
	section("Changes not staged for commit", unstaged, true)
	section("Untracked files", untracked, false)
	return types.Success(b.String())
}

func statusLabel(it types.GitStatusItem) string {
	switch it.Status {
	case types.GitStatusNew:
		return "new file"
	case types.GitStatusUnknown:
		return "unknown " + it.Triple()
	}
	return string(it.Status)
}

func (s *Shell) gitAdd(ctx context.Context, args []string) types.ShellResult {
	if len(args) == 0 {
		return fail("git", "add: nothing specified, nothing added")
	}
	for _, arg := range args {
		if err := s.vcs.Add(ctx, s.Cwd(), s.resolve(arg)); err != nil {
			return gitFailure(err)
		}
	}
	return types.Success("")
}

func (s *Shell) gitRm(ctx context.Context, args []string) types.ShellResult {
	set := flags("git rm")
	set.BoolP("recursive", "r", false, "allow recursive removal")
	set.BoolP("force", "f", false, "override the up-to-date check")
	if err := set.Parse(args); err != nil {
		return fail("git", "rm: %v", err)
	}
	if set.NArg() == 0 {
		return fail("git", "rm: no pathspec given")
	}
	var b strings.Builder
	for _, arg := range set.Args() {
		if err := s.vcs.Remove(ctx, s.Cwd(), s.resolve(arg)); err != nil {
			return gitFailure(err)
		}
		fmt.Fprintf(&b, "rm '%s'\n", arg)
	}
	return types.Success(b.String())
}

func (s *Shell) gitCommit(ctx context.Context, args []string) types.ShellResult {
	set := flags("git commit")
	message := set.StringP("message", "m", "", "commit message")
	if err := set.Parse(args); err != nil {
		return fail("git", "commit: %v", err)
	}
	if !set.Changed("message") {
		return fail("git", "commit: a message is required (-m <msg>)")
	}
	oid, err := s.vcs.Commit(ctx, s.Cwd(), *message)
	if err != nil {
		return gitFailure(err)
	}
	branch, _ := s.vcs.Branch(ctx, s.Cwd())
	summary, _, _ := strings.Cut(*message, "\n")
	return types.Success(fmt.Sprintf("[%s %s] %s\n", branch, shortOID(oid), summary))
}

func (s *Shell) gitLog(ctx context.Context, args []string) types.ShellResult {
	set := flags("git log")
	depth := set.IntP("max-count", "n", 0, "limit the number of commits")
	oneline := set.Bool("oneline", false, "one commit per line")
	if err := set.Parse(args); err != nil {
		return fail("git", "log: %v", err)
	}
	entries, err := s.vcs.Log(ctx, s.Cwd(), *depth)
	if err != nil {
		return gitFailureCode(types.ExitFatal, err)
	}
	var b strings.Builder
	for i, e := range entries {
		if *oneline {
			summary, _, _ := strings.Cut(e.Message, "\n")
			fmt.Fprintf(&b, "%s %s\n", shortOID(e.OID), summary)
			continue
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "commit %s\n", e.OID)
		fmt.Fprintf(&b, "Author: %s <%s>\n", e.Author, e.Email)
		fmt.Fprintf(&b, "Date:   %s\n\n", e.Timestamp.Format("Mon Jan 2 15:04:05 2006 -0700"))
		for _, line := range strings.Split(strings.TrimRight(e.Message, "\n"), "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	return types.Success(b.String())
}

func (s *Shell) gitBranch(ctx context.Context, _ []string) types.ShellResult {
	branch, err := s.vcs.Branch(ctx, s.Cwd())
	if err != nil {
		return gitFailure(err)
	}
	return types.Success("* " + branch + "\n")
}

func shortOID(oid string) string {
	if len(oid) > 7 {
		return oid[:7]
	}
	return oid
}
