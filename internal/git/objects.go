package git

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Object types.
const (
	ObjectBlob   = "blob"
	ObjectTree   = "tree"
	ObjectCommit = "commit"
)

const (
	modeFile = "100644"
	modeTree = "40000"
)

// HashObject returns the object id git would assign to data of the given type.
func HashObject(typ string, data []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", typ, len(data))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (r *Repository) objectPath(oid string) string {
	return joinPath(r.gitDir, "objects/"+oid[:2]+"/"+oid[2:])
}

// writeObject stores a loose object and returns its id. Existing objects
// are left untouched.
func (r *Repository) writeObject(ctx context.Context, typ string, data []byte) (string, error) {
	oid := HashObject(typ, data)
	p := r.objectPath(oid)
	if _, err := r.fs.Stat(ctx, p); err == nil {
		return oid, nil
	} else if !IsNotExist(err) {
		return "", err
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	fmt.Fprintf(zw, "%s %d\x00", typ, len(data))
	if _, err := zw.Write(data); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	if err := mkdirAll(ctx, r.fs, parentPath(p)); err != nil {
		return "", err
	}
	if err := r.fs.WriteFile(ctx, p, buf.Bytes()); err != nil {
		return "", fmt.Errorf("write object %s: %w", oid, err)
	}
	return oid, nil
}

// readObject loads and inflates a loose object.
func (r *Repository) readObject(ctx context.Context, oid string) (string, []byte, error) {
	if len(oid) != 40 {
		return "", nil, fmt.Errorf("invalid object id %q", oid)
	}
	raw, err := r.fs.ReadFile(ctx, r.objectPath(oid))
	if err != nil {
		return "", nil, fmt.Errorf("read object %s: %w", oid, err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", nil, fmt.Errorf("inflate object %s: %w", oid, err)
	}
	defer zr.Close()
	full, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, fmt.Errorf("inflate object %s: %w", oid, err)
	}

	nul := bytes.IndexByte(full, 0)
	if nul < 0 {
		return "", nil, fmt.Errorf("corrupt object %s: missing header", oid)
	}
	typ, size, ok := strings.Cut(string(full[:nul]), " ")
	if !ok {
		return "", nil, fmt.Errorf("corrupt object %s: bad header", oid)
	}
	n, err := strconv.Atoi(size)
	if err != nil || n != len(full)-nul-1 {
		return "", nil, fmt.Errorf("corrupt object %s: size mismatch", oid)
	}
	return typ, full[nul+1:], nil
}

func (r *Repository) readTyped(ctx context.Context, oid, want string) ([]byte, error) {
	typ, data, err := r.readObject(ctx, oid)
	if err != nil {
		return nil, err
	}
	if typ != want {
		return nil, fmt.Errorf("object %s is a %s, not a %s", oid, typ, want)
	}
	return data, nil
}

type treeEntry struct {
	Mode string
	Name string
	OID  string
}

func (e treeEntry) isTree() bool { return e.Mode == modeTree }

// sortKey orders entries the way git does: directories compare as if
// their name had a trailing slash.
func (e treeEntry) sortKey() string {
	if e.isTree() {
		return e.Name + "/"
	}
	return e.Name
}

func encodeTree(entries []treeEntry) ([]byte, error) {
	sorted := append([]treeEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].sortKey() < sorted[j].sortKey() })

	var buf bytes.Buffer
	for _, e := range sorted {
		raw, err := hex.DecodeString(e.OID)
		if err != nil || len(raw) != sha1.Size {
			return nil, fmt.Errorf("tree entry %s: invalid object id %q", e.Name, e.OID)
		}
		fmt.Fprintf(&buf, "%s %s\x00", e.Mode, e.Name)
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

func decodeTree(data []byte) ([]treeEntry, error) {
	var entries []treeEntry
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("corrupt tree: missing mode")
		}
		nul := bytes.IndexByte(data, 0)
		if nul < sp || nul+1+sha1.Size > len(data) {
			return nil, fmt.Errorf("corrupt tree: truncated entry")
		}
		entries = append(entries, treeEntry{
			Mode: string(data[:sp]),
			Name: string(data[sp+1 : nul]),
			OID:  hex.EncodeToString(data[nul+1 : nul+1+sha1.Size]),
		})
		data = data[nul+1+sha1.Size:]
	}
	return entries, nil
}

// writeTree builds nested tree objects from a flat path→oid map and
// returns the root tree id.
func (r *Repository) writeTree(ctx context.Context, files map[string]string) (string, error) {
	type dir struct {
		files map[string]string
		dirs  map[string]*dir
	}
	newDir := func() *dir { return &dir{files: map[string]string{}, dirs: map[string]*dir{}} }
	root := newDir()
	for p, oid := range files {
		segs := strings.Split(p, "/")
		d := root
		for _, s := range segs[:len(segs)-1] {
			sub, ok := d.dirs[s]
			if !ok {
				sub = newDir()
				d.dirs[s] = sub
			}
			d = sub
		}
		d.files[segs[len(segs)-1]] = oid
	}

	var write func(d *dir) (string, error)
	write = func(d *dir) (string, error) {
		entries := make([]treeEntry, 0, len(d.files)+len(d.dirs))
		for name, oid := range d.files {
			entries = append(entries, treeEntry{Mode: modeFile, Name: name, OID: oid})
		}
		for name, sub := range d.dirs {
			oid, err := write(sub)
			if err != nil {
				return "", err
			}
			entries = append(entries, treeEntry{Mode: modeTree, Name: name, OID: oid})
		}
		data, err := encodeTree(entries)
		if err != nil {
			return "", err
		}
		return r.writeObject(ctx, ObjectTree, data)
	}
	return write(root)
}

// flattenTree returns every blob reachable from a tree, keyed by path.
func (r *Repository) flattenTree(ctx context.Context, oid string) (map[string]string, error) {
	out := map[string]string{}
	var walk func(oid, prefix string) error
	walk = func(oid, prefix string) error {
		data, err := r.readTyped(ctx, oid, ObjectTree)
		if err != nil {
			return err
		}
		entries, err := decodeTree(data)
		if err != nil {
			return err
		}
		for _, e := range entries {
			p := e.Name
			if prefix != "" {
				p = prefix + "/" + e.Name
			}
			if e.isTree() {
				if err := walk(e.OID, p); err != nil {
					return err
				}
				continue
			}
			out[p] = e.OID
		}
		return nil
	}
	if err := walk(oid, ""); err != nil {
		return nil, err
	}
	return out, nil
}

func formatSignature(s Signature) string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.When.Format("-0700"))
}

func encodeCommit(c CommitInfo) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", formatSignature(c.Author))
	fmt.Fprintf(&buf, "committer %s\n", formatSignature(c.Committer))
	buf.WriteString("\n")
	buf.WriteString(c.Message)
	if !strings.HasSuffix(c.Message, "\n") {
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

func decodeCommit(oid string, data []byte) (CommitInfo, error) {
	c := CommitInfo{OID: oid}
	header, msg, ok := strings.Cut(string(data), "\n\n")
	if !ok {
		return c, fmt.Errorf("corrupt commit %s: missing message", oid)
	}
	c.Message = strings.TrimSuffix(msg, "\n")
	for _, line := range strings.Split(header, "\n") {
		key, val, _ := strings.Cut(line, " ")
		switch key {
		case "tree":
			c.Tree = val
		case "parent":
			c.Parents = append(c.Parents, val)
		case "author":
			sig, err := parseSignature(val)
			if err != nil {
				return c, fmt.Errorf("commit %s: %w", oid, err)
			}
			c.Author = sig
		case "committer":
			sig, err := parseSignature(val)
			if err != nil {
				return c, fmt.Errorf("commit %s: %w", oid, err)
			}
			c.Committer = sig
		}
	}
	if c.Tree == "" {
		return c, fmt.Errorf("corrupt commit %s: missing tree", oid)
	}
	return c, nil
}

func parseSignature(s string) (Signature, error) {
	lt := strings.LastIndex(s, "<")
	gt := strings.LastIndex(s, ">")
	if lt < 0 || gt < lt {
		return Signature{}, fmt.Errorf("bad signature %q", s)
	}
	sig := Signature{
		Name:  strings.TrimSpace(s[:lt]),
		Email: s[lt+1 : gt],
	}
	fields := strings.Fields(s[gt+1:])
	if len(fields) != 2 {
		return Signature{}, fmt.Errorf("bad signature time %q", s)
	}
	secs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("bad signature time %q", s)
	}
	loc, err := parseZone(fields[1])
	if err != nil {
		return Signature{}, err
	}
	sig.When = unixIn(secs, loc)
	return sig, nil
}
