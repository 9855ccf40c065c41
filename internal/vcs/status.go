package vcs

import (
	"github.com/steveyegge/vos/internal/git"
	"github.com/steveyegge/vos/internal/types"
)

// Classify maps a status matrix row to a label.
//
// Staged is a heuristic over the triple: a stage code of 2 or 3 means the
// index differs from HEAD, and [1,0,0] is a staged deletion. Rows such as
// [1,1,3] or partially staged edits can be misreported.
func Classify(r git.StatusRow) types.GitStatusItem {
	item := types.GitStatusItem{
		Path:    r.Path,
		Head:    r.Head,
		Workdir: r.Workdir,
		Stage:   r.Stage,
	}
	switch {
	case r.Head == git.HeadAbsent && r.Workdir == git.WorkdirChanged:
		item.Status = types.GitStatusNew
	case r.Head == git.HeadPresent && r.Workdir == git.WorkdirChanged:
		item.Status = types.GitStatusModified
	case r.Head == git.HeadPresent && r.Workdir == git.WorkdirAbsent:
		item.Status = types.GitStatusDeleted
	case r.Head == git.HeadPresent && r.Workdir == git.WorkdirUnchanged:
		item.Status = types.GitStatusUnmodified
	default:
		item.Status = types.GitStatusUnknown
	}
	item.Staged = r.Stage == git.StageWorkdir || r.Stage == git.StageDifferent ||
		(r.Head == git.HeadPresent && r.Workdir == git.WorkdirAbsent && r.Stage == git.StageAbsent)
	return item
}

// Active drops unmodified items.
func Active(items []types.GitStatusItem) []types.GitStatusItem {
	out := make([]types.GitStatusItem, 0, len(items))
	for _, it := range items {
		if it.Status != types.GitStatusUnmodified {
			out = append(out, it)
		}
	}
	return out
}
