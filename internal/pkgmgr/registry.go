package pkgmgr

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// Package is one published version of a package.
type Package struct {
	Name         string
	Version      string // canonical semver with a leading "v"
	Description  string
	Dependencies []string // name[@constraint]
	Source       string
}

// Registry resolves a name and version constraint to a package.
type Registry interface {
	Lookup(ctx context.Context, name, constraint string) (Package, error)
}

// CatalogRegistry is an offline registry backed by a fixed package list.
type CatalogRegistry struct {
	versions map[string][]Package // sorted newest first
}

// NewCatalogRegistry indexes pkgs by name.
func NewCatalogRegistry(pkgs ...Package) *CatalogRegistry {
	r := &CatalogRegistry{versions: map[string][]Package{}}
	for _, p := range pkgs {
		p.Version = canonical(p.Version)
		r.versions[p.Name] = append(r.versions[p.Name], p)
	}
	for _, vs := range r.versions {
		sort.Slice(vs, func(i, j int) bool { return semver.Compare(vs[i].Version, vs[j].Version) > 0 })
	}
	return r
}

// Names lists every package in the catalog.
func (r *CatalogRegistry) Names() []string {
	names := make([]string, 0, len(r.versions))
	for n := range r.versions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the newest version of name satisfying constraint.
func (r *CatalogRegistry) Lookup(_ context.Context, name, constraint string) (Package, error) {
	vs, ok := r.versions[name]
	if !ok {
		return Package{}, ErrNotFound
	}
	match, err := parseConstraint(constraint)
	if err != nil {
		return Package{}, err
	}
	for _, p := range vs {
		if match(p.Version) {
			return p, nil
		}
	}
	return Package{}, fmt.Errorf("no version matching %q: %w", constraint, ErrNotFound)
}

func canonical(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// parseConstraint accepts "", "latest", an exact version, "^x.y.z" (same
// major, at least x.y.z), "~x.y.z" (same minor) or a bare major/minor
// prefix such as "4" or "4.17".
func parseConstraint(c string) (func(string) bool, error) {
	c = strings.TrimSpace(c)
	if c == "" || c == "latest" || c == "*" {
		return func(string) bool { return true }, nil
	}

	op := ""
	if strings.HasPrefix(c, "^") || strings.HasPrefix(c, "~") {
		op, c = c[:1], c[1:]
	}
	want := c
	if !strings.HasPrefix(want, "v") {
		want = "v" + want
	}
	if !semver.IsValid(want) {
		return nil, fmt.Errorf("invalid version %q", c)
	}
	full := semver.Canonical(want)

	switch {
	case op == "^":
		return func(v string) bool {
			return semver.Major(v) == semver.Major(full) && semver.Compare(v, full) >= 0
		}, nil
	case op == "~":
		return func(v string) bool {
			return semver.MajorMinor(v) == semver.MajorMinor(full) && semver.Compare(v, full) >= 0
		}, nil
	case strings.Count(want, ".") < 2:
		// "v4" or "v4.17" is a prefix match.
		prefix := want
		return func(v string) bool {
			return v == prefix || strings.HasPrefix(v, prefix+".")
		}, nil
	default:
		return func(v string) bool { return semver.Compare(v, full) == 0 }, nil
	}
}
