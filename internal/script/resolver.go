package script

import (
	"errors"
	"strings"

	"go.starlark.net/starlark"

	"github.com/steveyegge/vos/internal/vfs"
)

// ErrModuleNotFound tells a Chain to try the next resolver.
var ErrModuleNotFound = errors.New("module not found")

// Resolver maps a require() name to a module value.
type Resolver interface {
	Resolve(s *Session, name string) (starlark.Value, error)
}

// Chain tries resolvers in order until one does not return
// ErrModuleNotFound.
type Chain []Resolver

func (c Chain) Resolve(s *Session, name string) (starlark.Value, error) {
	for _, r := range c {
		v, err := r.Resolve(s, name)
		if errors.Is(err, ErrModuleNotFound) {
			continue
		}
		return v, err
	}
	return nil, ErrModuleNotFound
}

// CoreModule builds a built-in module bound to a session.
type CoreModule func(s *Session) starlark.Value

// CoreResolver serves built-in modules. Nil Modules means DefaultCoreModules.
// A "node:" prefix is accepted and ignored.
type CoreResolver struct {
	Modules map[string]CoreModule
}

func (c CoreResolver) Resolve(s *Session, name string) (starlark.Value, error) {
	modules := c.Modules
	if modules == nil {
		modules = DefaultCoreModules()
	}
	name = strings.TrimPrefix(name, "node:")
	build, ok := modules[name]
	if !ok {
		return nil, ErrModuleNotFound
	}
	id := "core:" + name
	if v, ok := s.cache[id]; ok {
		return v, nil
	}
	v := build(s)
	s.cache[id] = v
	return v, nil
}

// FileResolver loads scripts from the VFS for names starting with "/",
// "./" or "../". It tries the path itself, then path + ".star", then
// path/index.star.
type FileResolver struct{}

func isFileRequest(name string) bool {
	return strings.HasPrefix(name, "/") || strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../")
}

func (FileResolver) Resolve(s *Session, name string) (starlark.Value, error) {
	if !isFileRequest(name) {
		return nil, ErrModuleNotFound
	}
	base := vfs.Resolve(s.Dir(), name)
	fs := s.FS()
	for _, candidate := range []string{base, base + ".star", base + "/index.star"} {
		st, err := fs.Stat(candidate)
		if err != nil || st.IsDir() {
			continue
		}
		src, err := fs.ReadFile(candidate)
		if err != nil {
			return nil, err
		}
		return s.execModule("file:"+candidate, candidate, vfs.Dir(candidate), string(src))
	}
	return nil, ErrModuleNotFound
}

// PackageResolver resolves bare names through the package side-channel,
// installing them when needed.
type PackageResolver struct {
	Packages Packages
}

func (p PackageResolver) Resolve(s *Session, name string) (starlark.Value, error) {
	if isFileRequest(name) || name == "" {
		return nil, ErrModuleNotFound
	}
	id := "pkg:" + name
	if v, ok := s.cache[id]; ok {
		return v, nil
	}
	src, err := p.Packages.EnsureInstalled(s.Context(), name)
	if err != nil {
		return nil, err
	}
	return s.execModule(id, name, "/", src)
}
