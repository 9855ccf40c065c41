package vfs

import "time"

// nodeID is a handle into the arena. The root is always rootID.
type nodeID int32

const (
	rootID nodeID = 0
	noNode nodeID = -1
)

// node is one arena slot. Directories keep child order in order and
// look children up through index; neither holds pointers to other nodes.
type node struct {
	live    bool
	name    string
	kind    Kind
	content []byte
	modTime time.Time
	order   []string
	index   map[string]nodeID
}

func (n *node) isDir() bool {
	return n.kind == KindDir
}

// arena owns every node of a tree. Freed slots are reused.
type arena struct {
	nodes []node
	free  []nodeID
	live  int
}

func newArena(now time.Time) *arena {
	a := &arena{}
	a.alloc(node{kind: KindDir, modTime: now})
	return a
}

func (a *arena) get(id nodeID) *node {
	return &a.nodes[id]
}

func (a *arena) alloc(n node) nodeID {
	n.live = true
	if n.kind == KindDir && n.index == nil {
		n.index = make(map[string]nodeID)
	}
	a.live++
	if k := len(a.free); k > 0 {
		id := a.free[k-1]
		a.free = a.free[:k-1]
		a.nodes[id] = n
		return id
	}
	a.nodes = append(a.nodes, n)
	return nodeID(len(a.nodes) - 1)
}

// release frees id and its whole subtree.
func (a *arena) release(id nodeID) {
	n := a.get(id)
	for _, name := range n.order {
		a.release(n.index[name])
	}
	a.nodes[id] = node{}
	a.free = append(a.free, id)
	a.live--
}

// child looks up name in directory dir.
func (a *arena) child(dir nodeID, name string) (nodeID, bool) {
	id, ok := a.get(dir).index[name]
	return id, ok
}

// attach adds child under dir as name, preserving insertion order.
func (a *arena) attach(dir nodeID, name string, child nodeID) {
	d := a.get(dir)
	d.order = append(d.order, name)
	d.index[name] = child
}

// detach removes name from dir and returns the removed handle.
func (a *arena) detach(dir nodeID, name string) nodeID {
	d := a.get(dir)
	id, ok := d.index[name]
	if !ok {
		return noNode
	}
	delete(d.index, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return id
}

// lookup walks segs from the root. It returns the deepest node reached and
// how many segments were consumed; a full match has depth == len(segs).
func (a *arena) lookup(segs []string) (id nodeID, depth int) {
	id = rootID
	for depth < len(segs) {
		n := a.get(id)
		if !n.isDir() {
			return id, depth
		}
		next, ok := n.index[segs[depth]]
		if !ok {
			return id, depth
		}
		id = next
		depth++
	}
	return id, depth
}
