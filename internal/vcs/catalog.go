package vcs

import (
	"strings"
	"time"
)

// CatalogFile is one file of a cataloged repository.
type CatalogFile struct {
	Path    string
	Content string
}

// CatalogEntry is a repository that can be cloned without network access.
type CatalogEntry struct {
	URL         string
	Description string
	Files       []CatalogFile
	// CommittedAt is the fixed timestamp of the hydration commit.
	CommittedAt time.Time
}

// Catalog maps normalized URLs to their fixed manifests.
type Catalog map[string]CatalogEntry

// NormalizeURL strips trailing slashes and a ".git" suffix.
func NormalizeURL(url string) string {
	u := strings.TrimSpace(url)
	u = strings.TrimRight(u, "/")
	u = strings.TrimSuffix(u, ".git")
	return strings.TrimRight(u, "/")
}

// Lookup finds the entry for url.
func (c Catalog) Lookup(url string) (CatalogEntry, bool) {
	e, ok := c[NormalizeURL(url)]
	return e, ok
}

// NewCatalog builds a catalog from entries, keyed by normalized URL.
func NewCatalog(entries ...CatalogEntry) Catalog {
	c := make(Catalog, len(entries))
	for _, e := range entries {
		c[NormalizeURL(e.URL)] = e
	}
	return c
}

// StarterURL is the one repository shipped in the default catalog.
const StarterURL = "https://github.com/vos-project/starter"

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() Catalog {
	return NewCatalog(CatalogEntry{
		URL:         StarterURL,
		Description: "Starter project for vos scripts",
		CommittedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Files: []CatalogFile{
			{Path: "README.md", Content: starterReadme},
			{Path: ".gitignore", Content: "node_modules/\n*.log\n"},
			{Path: "package.json", Content: starterPackageJSON},
			{Path: "index.star", Content: starterIndex},
			{Path: "lib/greet.star", Content: starterGreet},
		},
	})
}

const starterReadme = `# starter

A minimal vos project.

    node index.star
`

const starterPackageJSON = `{
  "name": "starter",
  "version": "1.0.0",
  "main": "index.star",
  "dependencies": {
    "lodash": "^4.17.21"
  }
}
`

const starterIndex = `greet = require("./lib/greet.star")
path = require("path")

print(greet.hello("world"))
print(path.join("/workspace", "starter"))
`

const starterGreet = `def hello(name):
    return "hello, " + name + "!"

exports = struct(hello = hello)
`
