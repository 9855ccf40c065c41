package git

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const indexVersion = 1

// IndexEntry is one staged file.
type IndexEntry struct {
	Path    string    `json:"path"`
	OID     string    `json:"oid"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// The index is stored as JSON rather than git's binary DIRC format; object
// and ref layout is unchanged so only the staging area is engine-specific.
type indexFile struct {
	Version int          `json:"version"`
	Entries []IndexEntry `json:"entries"`
}

type index struct {
	entries map[string]IndexEntry
}

func (ix *index) oids() map[string]string {
	out := make(map[string]string, len(ix.entries))
	for p, e := range ix.entries {
		out[p] = e.OID
	}
	return out
}

func (r *Repository) indexPath() string {
	return joinPath(r.gitDir, "index")
}

func (r *Repository) readIndex(ctx context.Context) (*index, error) {
	ix := &index{entries: map[string]IndexEntry{}}
	data, err := r.fs.ReadFile(ctx, r.indexPath())
	if IsNotExist(err) {
		return ix, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	if f.Version != indexVersion {
		return nil, fmt.Errorf("unsupported index version %d", f.Version)
	}
	for _, e := range f.Entries {
		ix.entries[e.Path] = e
	}
	return ix, nil
}

func (r *Repository) writeIndex(ctx context.Context, ix *index) error {
	f := indexFile{Version: indexVersion, Entries: make([]IndexEntry, 0, len(ix.entries))}
	for _, e := range ix.entries {
		f.Entries = append(f.Entries, e)
	}
	sort.Slice(f.Entries, func(i, j int) bool { return f.Entries[i].Path < f.Entries[j].Path })
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := r.fs.WriteFile(ctx, r.indexPath(), data); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}
