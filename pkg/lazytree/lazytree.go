// Package lazytree provides a copy-on-write mutable view over a
// committed git tree. Edits are path-addressed; Hash materializes only
// the subtrees whose contents changed, bottom-up, and caches the result
// until the next edit.
package lazytree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/forklift/pkg/gitcli"
)

// TreeStore is the tree side of the git plumbing the lazy tree needs:
// single-level listings and single-level tree construction.
type TreeStore interface {
	LsTree(tree gitcli.Hash) ([]gitcli.TreeEntry, error)
	Mktree(entries []gitcli.TreeEntry) (gitcli.Hash, error)
}

// node is one directory. Entries are loaded lazily from the underlying
// tree hash; children holds instantiated subdirectories.
type node struct {
	hash     gitcli.Hash
	entries  map[string]gitcli.TreeEntry
	children map[string]*node
	loaded   bool
	dirty    bool
}

// Tree is a mutable tree rooted either empty or at an existing tree
// object.
type Tree struct {
	store TreeStore
	root  *node
}

// New creates a Tree over the given root hash. An absent hash starts
// from the empty tree.
func New(store TreeStore, root gitcli.Hash) *Tree {
	return &Tree{store: store, root: newNode(root)}
}

func newNode(hash gitcli.Hash) *node {
	return &node{hash: hash, children: map[string]*node{}}
}

// load populates a node's entry map from the store on first access.
func (t *Tree) load(n *node) error {
	if n.loaded {
		return nil
	}

	n.entries = map[string]gitcli.TreeEntry{}
	n.loaded = true

	if n.hash.IsNone() || n.hash == gitcli.EmptyTreeHash {
		return nil
	}

	entries, err := t.store.LsTree(n.hash)
	if err != nil {
		return err
	}

	for _, e := range entries {
		n.entries[e.Name] = e
	}

	return nil
}

// walk descends to the directory holding the last path segment. With
// create set, missing directories are created (and blob entries in the
// way are displaced); without it, a missing directory returns nil.
func (t *Tree) walk(path string, create bool) (*node, string, error) {
	n := t.root

	for {
		head, rest, nested := strings.Cut(path, "/")
		if !nested {
			loadErr := t.load(n)
			if loadErr != nil {
				return nil, "", loadErr
			}

			return n, head, nil
		}

		loadErr := t.load(n)
		if loadErr != nil {
			return nil, "", loadErr
		}

		child, ok := n.children[head]
		if !ok {
			entry, exists := n.entries[head]

			switch {
			case exists && entry.Type == "tree":
				child = newNode(entry.Hash)
			case create:
				child = newNode(gitcli.None)
			default:
				return nil, "", nil
			}

			n.children[head] = child
		}

		n, path = child, rest
	}
}

// markDirty flags every directory along path, root included.
func (t *Tree) markDirty(path string) {
	n := t.root

	for {
		n.dirty = true

		head, rest, nested := strings.Cut(path, "/")
		if !nested {
			return
		}

		child, ok := n.children[head]
		if !ok {
			return
		}

		n, path = child, rest
	}
}

// Set records file at path, replacing any prior entry there.
func (t *Tree) Set(path string, file gitcli.File) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", gitcli.ErrParse)
	}

	dir, name, err := t.walk(path, true)
	if err != nil {
		return err
	}

	dir.entries[name] = gitcli.TreeEntry{Mode: file.Mode, Type: "blob", Hash: file.Blob, Name: name}
	delete(dir.children, name)
	t.markDirty(path)

	return nil
}

// Delete removes the entry at path. A missing path is a no-op.
func (t *Tree) Delete(path string) error {
	dir, name, err := t.walk(path, false)
	if err != nil {
		return err
	}

	if dir == nil {
		return nil
	}

	if _, ok := dir.entries[name]; !ok {
		return nil
	}

	delete(dir.entries, name)
	delete(dir.children, name)
	t.markDirty(path)

	return nil
}

// Hash returns the root tree hash, rebuilding dirty subtrees bottom-up.
// It is idempotent between edits.
func (t *Tree) Hash() (gitcli.Hash, error) {
	hash, empty, err := t.hashNode(t.root)
	if err != nil {
		return gitcli.None, err
	}

	if empty || hash.IsNone() {
		return t.store.Mktree(nil)
	}

	return hash, nil
}

// hashNode materializes one node. Empty dirty subtrees are reported so
// the parent drops their entries: git trees never contain empty trees.
func (t *Tree) hashNode(n *node) (gitcli.Hash, bool, error) {
	if !n.dirty {
		return n.hash, false, nil
	}

	loadErr := t.load(n)
	if loadErr != nil {
		return gitcli.None, false, loadErr
	}

	for name, child := range n.children {
		hash, empty, err := t.hashNode(child)
		if err != nil {
			return gitcli.None, false, err
		}

		if empty {
			delete(n.entries, name)
			delete(n.children, name)

			continue
		}

		n.entries[name] = gitcli.TreeEntry{Mode: gitcli.ModeTree, Type: "tree", Hash: hash, Name: name}
	}

	if len(n.entries) == 0 {
		n.dirty = false
		n.hash = gitcli.None

		return gitcli.None, true, nil
	}

	names := make([]string, 0, len(n.entries))
	for name := range n.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	entries := make([]gitcli.TreeEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, n.entries[name])
	}

	hash, err := t.store.Mktree(entries)
	if err != nil {
		return gitcli.None, false, err
	}

	n.hash = hash
	n.dirty = false

	return hash, false, nil
}
