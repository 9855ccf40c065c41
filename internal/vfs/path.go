package vfs

import (
	"strings"
)

// Split validates an absolute path and returns its segments.
// "/" yields no segments. Empty segments (from "//" or a trailing "/") are
// dropped; "." and ".." are rejected because relative resolution is the
// caller's job (see Resolve).
func Split(p string) ([]string, error) {
	if p == "" || p[0] != '/' || strings.ContainsRune(p, 0) {
		return nil, ErrInvalidPath
	}
	raw := strings.Split(p, "/")
	segs := raw[:0]
	for _, s := range raw {
		switch s {
		case "":
			continue
		case ".", "..":
			return nil, ErrInvalidPath
		}
		segs = append(segs, s)
	}
	return segs, nil
}

// Join builds a canonical absolute path from segments.
func Join(segs ...string) string {
	return "/" + strings.Join(segs, "/")
}

// Clean canonicalizes an absolute path, or returns it unchanged if invalid.
func Clean(p string) string {
	segs, err := Split(p)
	if err != nil {
		return p
	}
	return Join(segs...)
}

// Resolve interprets arg relative to the absolute directory cwd.
// "." is a no-op and ".." pops one segment, never above the root.
// An arg starting with "/" ignores cwd.
func Resolve(cwd, arg string) string {
	var segs []string
	if !strings.HasPrefix(arg, "/") {
		for _, s := range strings.Split(cwd, "/") {
			if s != "" {
				segs = append(segs, s)
			}
		}
	}
	for _, s := range strings.Split(arg, "/") {
		switch s {
		case "", ".":
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, s)
		}
	}
	return Join(segs...)
}

// Dir returns the parent of a canonical absolute path ("/" for top-level entries).
func Dir(p string) string {
	segs, err := Split(p)
	if err != nil || len(segs) == 0 {
		return "/"
	}
	return Join(segs[:len(segs)-1]...)
}

// Base returns the last segment of p ("/" for the root).
func Base(p string) string {
	segs, err := Split(p)
	if err != nil || len(segs) == 0 {
		return "/"
	}
	return segs[len(segs)-1]
}
