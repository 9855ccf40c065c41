package repl

import (
	"sort"
	"strings"

	"github.com/steveyegge/vos/internal/shell"
	"github.com/steveyegge/vos/internal/vfs"
)

// completer implements readline.AutoCompleter: the first word completes
// command names, later words complete VFS paths relative to the cwd.
type completer struct {
	shell *shell.Shell
	fs    *vfs.FS
	extra []string
}

// Do returns the suffixes that extend the word under the cursor, and the
// length of that word.
func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	head := string(line[:pos])
	start := strings.LastIndexAny(head, " \t") + 1
	word := head[start:]

	var candidates []string
	if strings.TrimSpace(head[:start]) == "" {
		candidates = c.commands(word)
	} else {
		candidates = c.paths(word)
	}

	out := make([][]rune, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, []rune(strings.TrimPrefix(cand, word)))
	}
	return out, len([]rune(word))
}

func (c *completer) commands(prefix string) []string {
	var out []string
	for _, name := range append(shell.Commands(), c.extra...) {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name+" ")
		}
	}
	sort.Strings(out)
	return out
}

// paths lists entries of the word's directory whose names extend its base.
func (c *completer) paths(word string) []string {
	dirPart, base := "", word
	if i := strings.LastIndex(word, "/"); i >= 0 {
		dirPart, base = word[:i+1], word[i+1:]
	}
	dir := c.shell.Cwd()
	if dirPart != "" {
		dir = vfs.Resolve(dir, dirPart)
	}

	entries, err := c.fs.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name, base) {
			continue
		}
		cand := dirPart + e.Name
		if e.IsDir() {
			cand += "/"
		} else {
			cand += " "
		}
		out = append(out, cand)
	}
	sort.Strings(out)
	return out
}
