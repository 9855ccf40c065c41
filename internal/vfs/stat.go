package vfs

import (
	"strings"
	"time"
)

// Kind discriminates files from directories.
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// FileStat is a read-only projection of a node, computed on demand.
type FileStat struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Kind         Kind      `json:"kind"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	Language     string    `json:"language,omitempty"`
}

// IsDir reports whether the stat describes a directory.
func (s FileStat) IsDir() bool {
	return s.Kind == KindDir
}

var languages = map[string]string{
	".go":   "go",
	".js":   "javascript",
	".mjs":  "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".py":   "python",
	".md":   "markdown",
	".json": "json",
	".star": "starlark",
	".html": "html",
	".css":  "css",
	".sh":   "shell",
	".yaml": "yaml",
	".yml":  "yaml",
	".txt":  "plaintext",
	".flow": "plaintext",
}

// LanguageFor infers an editor language id from a file name.
func LanguageFor(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return "plaintext"
	}
	if lang, ok := languages[strings.ToLower(name[i:])]; ok {
		return lang
	}
	return "plaintext"
}

func statOf(n *node, p string) FileStat {
	st := FileStat{
		Name:         n.name,
		Path:         p,
		Kind:         n.kind,
		LastModified: n.modTime,
	}
	if p == "/" {
		st.Name = "/"
	}
	if n.kind == KindFile {
		st.Size = int64(len(n.content))
		st.Language = LanguageFor(n.name)
	}
	return st
}
