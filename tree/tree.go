package tree

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tcmur/tcmur/errno"
)

// Tree is the single in-memory hierarchy a running tcmur instance
// exposes through FUSE, per spec.md section 4.4. All structural
// mutation (Add, Remove) and lookup go through tree.mu, matching the
// original's single tree_lock in fuse_tree.c.
type Tree struct {
	mu   sync.Mutex
	root *Node
}

// New returns an empty tree with just a root directory.
func New() *Tree {
	now := time.Now()
	root := &Node{
		id:    nextID(),
		name:  "",
		mode:  ModeDir,
		refs:  1,
		atime: now, mtime: now, ctime: now,
	}
	return &Tree{root: root}
}

// Root returns the tree's root directory node.
func (t *Tree) Root() *Node { return t.root }

func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// lookupLocked walks segs from n, returning the final matched node, or
// the error from the original's fnode_lookup: ENOENT for a path
// component that doesn't exist, ENOTDIR for descending through a
// non-directory. Must be called with t.mu held.
func lookupLocked(n *Node, segs []string) (*Node, error) {
	if len(segs) == 0 {
		return n, nil
	}
	if n.mode != ModeDir {
		return nil, errno.New(20) // ENOTDIR
	}
	want := segs[0]
	for c := n.child; c != nil; c = c.sibling {
		if c.name == want {
			return lookupLocked(c, segs[1:])
		}
	}
	return nil, errno.New(2) // ENOENT
}

// Lookup resolves a '/'-separated path from the tree root, exactly as
// the original's fuse_node_lookup does: a leading slash is tolerated
// but not required, and a path matching more than one sibling at any
// level cannot happen because Add rejects duplicate names.
func (t *Tree) Lookup(path string) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lookupLocked(t.root, splitPath(path))
}

// Add creates a node named name under parent (spec.md section 4.4's
// "add"). mode selects the node's type; ops may be nil for a plain
// directory. Returns EEXIST if a child of that name already exists
// (matching the original's fuse_node_add behavior of refusing rather
// than returning the existing node, except for directories -- see
// Mkdir below, which is the one case the original treats specially).
func (t *Tree) Add(parent *Node, name string, mode Mode, ops *Ops, data interface{}) (*Node, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if parent == nil {
		parent = t.root
	}
	if parent.mode != ModeDir {
		return nil, errno.New(20) // ENOTDIR
	}
	for c := parent.child; c != nil; c = c.sibling {
		if c.name == name {
			return nil, errno.Newf(17, "node %q already exists", name) // EEXIST
		}
	}

	now := time.Now()
	n := &Node{
		id:     nextID(),
		name:   name,
		mode:   mode,
		parent: parent,
		ops:    ops,
		data:   data,
		refs:   1,
		atime:  now, mtime: now, ctime: now,
	}
	n.sibling = parent.child
	parent.child = n
	parent.mtime = now
	return n, nil
}

// Mkdir creates intermediate directories along path as needed and
// returns the final directory node, matching the original's
// fuse_tree_mkdir: a path segment that already exists and is a
// directory is reused rather than rejected; one that exists and is not
// a directory is an error.
func (t *Tree) Mkdir(path string) (*Node, error) {
	segs := splitPath(path)
	cur := t.root
	for _, seg := range segs {
		t.mu.Lock()
		if cur.mode != ModeDir {
			t.mu.Unlock()
			return nil, errno.New(20) // ENOTDIR
		}
		var found *Node
		for c := cur.child; c != nil; c = c.sibling {
			if c.name == seg {
				found = c
				break
			}
		}
		t.mu.Unlock()

		if found != nil {
			if found.mode != ModeDir {
				return nil, errno.Newf(20, "%q exists and is not a directory", seg)
			}
			cur = found
			continue
		}
		n, err := t.Add(cur, seg, ModeDir, nil, nil)
		if err != nil {
			return nil, err
		}
		cur = n
	}
	return cur, nil
}

// Remove unlinks the child named name from parent. It returns ENOENT if
// no such child exists, ENOTEMPTY if the child is a directory with
// children, and EBUSY if the child's reference count is above the one
// reference the tree itself holds -- exactly the original's fnode_remove
// checks in fuse_tree.c.
func (t *Tree) Remove(parent *Node, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if parent == nil {
		parent = t.root
	}
	var prev, victim *Node
	for c := parent.child; c != nil; prev, c = c, c.sibling {
		if c.name == name {
			victim = c
			break
		}
	}
	if victim == nil {
		return errno.New(2) // ENOENT
	}
	if victim.child != nil {
		return errno.New(39) // ENOTEMPTY
	}
	if victim.refCount() > 1 {
		return errno.New(16) // EBUSY
	}

	if prev == nil {
		parent.child = victim.sibling
	} else {
		prev.sibling = victim.sibling
	}
	victim.parent = nil
	victim.sibling = nil
	parent.mtime = time.Now()
	return nil
}

// Children returns the direct children of n, in the order they were
// added (the original walks its singly-linked list in LIFO order; core
// callers here don't depend on a particular order, so this reverses it
// back to insertion order for friendlier ReadDirAll and dump output).
func (t *Tree) Children(n *Node) []*Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	var kids []*Node
	for c := n.child; c != nil; c = c.sibling {
		kids = append(kids, c)
	}
	for i, j := 0, len(kids)-1; i < j; i, j = i+1, j-1 {
		kids[i], kids[j] = kids[j], kids[i]
	}
	return kids
}

// Format renders the whole tree from its root the way the original's
// fuse_tree_fmt does: one line per node, children in insertion order,
// four spaces of indentation per level, in the shape
//
//	node@<id>={name='NAME' mode=0MODE TYPE size=SIZE refs=REFS}
//
// with TYPE one of DIR, BLK, or REG. The original used the C node's
// pointer value as its identity; this substitutes the node's
// synthetic, monotonically increasing serial number, which serves the
// same "distinguish nodes in a dump" purpose without exposing a real
// address. See SPEC_FULL.md's supplemented feature "dump node
// formatting fields".
func (t *Tree) Format() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sb strings.Builder
	formatNode(&sb, t.root, 0)
	return sb.String()
}

func formatNode(sb *strings.Builder, n *Node, level int) {
	fmt.Fprintf(sb, "%*snode@%d={name='%s' mode=0%o%s size=%d refs=%d}\n",
		level*4, "", n.id, n.name, unixModeBits(n.mode)|0644, typeSuffix(n.mode), n.Size(), n.refCount())
	// The child list is newest-first; walk it backwards so children
	// appear in insertion order.
	var kids []*Node
	for c := n.child; c != nil; c = c.sibling {
		kids = append(kids, c)
	}
	for i := len(kids) - 1; i >= 0; i-- {
		formatNode(sb, kids[i], level+1)
	}
}
