package repo

import (
	"sort"
	"strings"
)

// Entry is one row of the host's flat recursive tree listing: a path plus
// whether it names a file or a folder. Paths are POSIX-style.
type Entry struct {
	path string
	kind NodeKind
	size int
}

// NewEntry creates a listing Entry.
func NewEntry(path string, kind NodeKind, size int) Entry {
	return Entry{path: path, kind: kind, size: size}
}

// Path returns the entry path.
func (e Entry) Path() string { return e.path }

// Kind returns whether the entry is a file or folder.
func (e Entry) Kind() NodeKind { return e.kind }

// Size returns the entry size in bytes (0 for folders).
func (e Entry) Size() int { return e.size }

// FlattenFiles reduces a flat tree listing to an ordered list of file paths,
// excluding folders. Listing order is preserved.
func FlattenFiles(entries []Entry) []string {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.kind == KindFile {
			paths = append(paths, e.path)
		}
	}
	return paths
}

// Node is one node of a rebuilt display tree.
type Node struct {
	path     string
	kind     NodeKind
	children []*Node
}

// Path returns the full path of the node.
func (n *Node) Path() string { return n.path }

// Kind returns whether the node is a file or folder.
func (n *Node) Kind() NodeKind { return n.kind }

// Name returns the final path segment.
func (n *Node) Name() string {
	if idx := strings.LastIndex(n.path, "/"); idx >= 0 {
		return n.path[idx+1:]
	}
	return n.path
}

// Children returns the ordered child nodes.
func (n *Node) Children() []*Node { return n.children }

// Tree is a hierarchical view rebuilt from a flat indexed-file list.
type Tree struct {
	roots []*Node
}

// Roots returns the ordered top-level nodes.
func (t Tree) Roots() []*Node { return t.roots }

// BuildTree reconstructs a hierarchy from a flat list of indexed files.
// Intermediate folder nodes are created on demand, nodes are deduplicated by
// full path, and a node whose parent was never listed is promoted to the
// root rather than dropped. After construction every level is sorted folders
// first, then lexicographically by full path. An empty input yields an
// empty tree.
func BuildTree(files []File) Tree {
	nodes := make(map[string]*Node)
	attached := make(map[string]bool)
	var roots []*Node

	ensure := func(path string, kind NodeKind) *Node {
		if n, ok := nodes[path]; ok {
			return n
		}
		n := &Node{path: path, kind: kind}
		nodes[path] = n
		return n
	}

	var link func(n *Node)
	link = func(n *Node) {
		if attached[n.path] {
			return
		}
		attached[n.path] = true

		parent := parentPath(n.path)
		if parent == "" {
			roots = append(roots, n)
			return
		}
		p := ensure(parent, KindFolder)
		p.children = append(p.children, n)
		link(p)
	}

	for _, f := range files {
		if f.Path() == "" {
			continue
		}
		n := ensure(f.Path(), f.Kind())
		link(n)
	}

	sortLevel(roots)
	for _, n := range nodes {
		sortLevel(n.children)
	}

	return Tree{roots: roots}
}

// Paths flattens the tree back to the set of file paths it contains.
// Folders are excluded, matching FlattenFiles.
func (t Tree) Paths() []string {
	var paths []string
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if n.kind == KindFile {
				paths = append(paths, n.path)
			}
			walk(n.children)
		}
	}
	walk(t.roots)
	return paths
}

func parentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// sortLevel orders siblings folders-first, ties broken lexicographically by
// full path.
func sortLevel(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.kind != b.kind {
			return a.kind == KindFolder
		}
		return a.path < b.path
	})
}
