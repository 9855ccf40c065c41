package git

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotARepository is returned when no .git directory exists.
	ErrNotARepository = errors.New("not a git repository")
	// ErrNoCommits is returned by Log when HEAD points at an unborn branch.
	ErrNoCommits = errors.New("your current branch does not have any commits yet")
	// ErrNothingToCommit is returned when the index matches HEAD.
	ErrNothingToCommit = errors.New("nothing to commit, working tree clean")
	// ErrEmptyMessage is returned when a commit has no message.
	ErrEmptyMessage = errors.New("aborting commit due to empty commit message")
)

// PathspecError is returned when Add or Remove match nothing.
type PathspecError struct {
	Pathspec string
}

func (e *PathspecError) Error() string {
	return fmt.Sprintf("pathspec '%s' did not match any files", e.Pathspec)
}

// Signature identifies an author or committer.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

func (s Signature) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// CommitOptions configures a commit.
type CommitOptions struct {
	// Message is the commit message (required)
	Message string
	// Author of the commit. When.IsZero() means "now" from the repository clock.
	Author Signature
	// Committer defaults to Author
	Committer *Signature
}

// CommitInfo is one entry of the log.
type CommitInfo struct {
	OID       string
	Tree      string
	Parents   []string
	Author    Signature
	Committer Signature
	Message   string
}

// Summary returns the first line of the message.
func (c CommitInfo) Summary() string {
	for i := 0; i < len(c.Message); i++ {
		if c.Message[i] == '\n' {
			return c.Message[:i]
		}
	}
	return c.Message
}

// Status matrix codes.
const (
	HeadAbsent  = 0
	HeadPresent = 1

	WorkdirAbsent    = 0
	WorkdirUnchanged = 1 // identical to HEAD
	WorkdirChanged   = 2 // differs from HEAD (or HEAD absent)

	StageAbsent    = 0
	StageHead      = 1 // identical to HEAD
	StageWorkdir   = 2 // identical to the working tree
	StageDifferent = 3 // differs from both
)

// StatusRow is one row of the status matrix.
type StatusRow struct {
	Path    string
	Head    int
	Workdir int
	Stage   int
}
