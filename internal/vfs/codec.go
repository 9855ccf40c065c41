package vfs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// wireNode is the persisted form of a node. Directory children are an
// ordered array of [name, node] pairs so iteration order survives a reload.
type wireNode struct {
	Kind         Kind        `json:"kind"`
	Content      []byte      `json:"content,omitempty"`
	LastModified time.Time   `json:"lastModified"`
	Children     []wireChild `json:"children,omitempty"`
}

type wireChild struct {
	Name string
	Node *wireNode
}

func (c wireChild) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{c.Name, c.Node})
}

func (c *wireChild) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("child entry must be a [name, node] pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &c.Name); err != nil {
		return fmt.Errorf("child name: %w", err)
	}
	c.Node = &wireNode{}
	return json.Unmarshal(pair[1], c.Node)
}

// encode converts the subtree at id to wire form.
func (a *arena) encode(id nodeID) *wireNode {
	n := a.get(id)
	w := &wireNode{Kind: n.kind, LastModified: n.modTime}
	if n.kind == KindFile {
		w.Content = n.content
		return w
	}
	w.Children = make([]wireChild, 0, len(n.order))
	for _, name := range n.order {
		w.Children = append(w.Children, wireChild{Name: name, Node: a.encode(n.index[name])})
	}
	return w
}

// decodeTree builds a fresh arena from a wire tree, validating every invariant.
func decodeTree(root *wireNode) (*arena, error) {
	if root == nil || root.Kind != KindDir {
		return nil, fmt.Errorf("root must be a directory")
	}
	a := &arena{}
	if _, err := a.decode(root, "", "/"); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *arena) decode(w *wireNode, name, p string) (nodeID, error) {
	switch w.Kind {
	case KindFile:
		content := w.Content
		if content == nil {
			content = []byte{}
		}
		return a.alloc(node{name: name, kind: KindFile, content: content, modTime: w.LastModified}), nil
	case KindDir:
		id := a.alloc(node{name: name, kind: KindDir, modTime: w.LastModified})
		for _, c := range w.Children {
			if c.Name == "" || c.Name == "." || c.Name == ".." || strings.ContainsAny(c.Name, "/\x00") {
				return noNode, fmt.Errorf("invalid child name %q under %s", c.Name, p)
			}
			if _, dup := a.child(id, c.Name); dup {
				return noNode, fmt.Errorf("duplicate child %q under %s", c.Name, p)
			}
			if c.Node == nil {
				return noNode, fmt.Errorf("child %q under %s has no node", c.Name, p)
			}
			childID, err := a.decode(c.Node, c.Name, strings.TrimSuffix(p, "/")+"/"+c.Name)
			if err != nil {
				return noNode, err
			}
			a.attach(id, c.Name, childID)
		}
		return id, nil
	default:
		return noNode, fmt.Errorf("unknown node kind %q at %s", w.Kind, p)
	}
}

// marshal serializes the whole tree.
func (a *arena) marshal() ([]byte, error) {
	return json.Marshal(a.encode(rootID))
}

// unmarshalTree parses a persisted blob into a new arena.
func unmarshalTree(data []byte) (*arena, error) {
	var root wireNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse tree: %w", err)
	}
	return decodeTree(&root)
}
