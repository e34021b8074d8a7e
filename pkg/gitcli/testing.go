package gitcli

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// MemRepo is an in-memory object store implementing the same plumbing
// surface as Runner, for tests of components that drive git. Trees are
// content-addressed so the canonicality guarantees of the real plumbing
// hold.
type MemRepo struct {
	trees   map[Hash][]TreeEntry
	commits map[Hash]*memCommit

	// seq records commit creation order; parents are always created
	// before children, so it doubles as a topological key for RevList.
	seq map[Hash]int
	n   int
}

type memCommit struct {
	tree    Hash
	parents []Hash
	author  Signature
	message []byte
}

// NewMemRepo creates an empty in-memory repository.
func NewMemRepo() *MemRepo {
	m := &MemRepo{
		trees:   map[Hash][]TreeEntry{},
		commits: map[Hash]*memCommit{},
		seq:     map[Hash]int{},
	}

	m.trees[EmptyTreeHash] = nil

	return m
}

// CommitCount returns how many commits the repository holds.
func (m *MemRepo) CommitCount() int {
	return len(m.commits)
}

// Mktree stores one tree level and returns its content hash.
func (m *MemRepo) Mktree(entries []TreeEntry) (Hash, error) {
	if len(entries) == 0 {
		return EmptyTreeHash, nil
	}

	sorted := append([]TreeEntry{}, entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var b strings.Builder
	for _, e := range sorted {
		fmt.Fprintf(&b, "%s %s %s\t%s\x00", e.Mode, e.Type, e.Hash, e.Name)
	}

	hash := hashBytes("tree", []byte(b.String()))
	m.trees[hash] = sorted

	return hash, nil
}

// LsTree lists one stored tree level.
func (m *MemRepo) LsTree(tree Hash) ([]TreeEntry, error) {
	entries, ok := m.trees[tree]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tree %s", ErrParse, tree)
	}

	return append([]TreeEntry{}, entries...), nil
}

// MakeTree builds a nested tree from a flat file list.
func (m *MemRepo) MakeTree(files []File) (Hash, error) {
	return makeTree(m.Mktree, files)
}

// CommitTree stores a commit object and returns its hash.
func (m *MemRepo) CommitTree(tree Hash, parents []Hash, author Signature, message []byte) (Hash, error) {
	if _, ok := m.trees[tree]; !ok {
		return None, fmt.Errorf("%w: unknown tree %s", ErrParse, tree)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "tree %s\n", tree)
	for _, p := range parents {
		fmt.Fprintf(&b, "parent %s\n", p)
	}

	fmt.Fprintf(&b, "author %s <%s> %s %s\n\n", author.Name, author.Email, author.Time, author.Timezone)
	b.Write(message)

	hash := hashBytes("commit", []byte(b.String()))

	if _, ok := m.commits[hash]; !ok {
		m.commits[hash] = &memCommit{
			tree:    tree,
			parents: append([]Hash{}, parents...),
			author:  author,
			message: append([]byte{}, message...),
		}
		m.n++
		m.seq[hash] = m.n
	}

	return hash, nil
}

// Commit builds a commit whose tree is assembled from files. Test
// convenience on top of MakeTree and CommitTree.
func (m *MemRepo) Commit(files []File, parents []Hash, author Signature, message []byte) (Hash, error) {
	tree, err := m.MakeTree(files)
	if err != nil {
		return None, err
	}

	return m.CommitTree(tree, parents, author, message)
}

// Metadata returns the typed projection of a stored commit.
func (m *MemRepo) Metadata(commit Hash) (*Metadata, error) {
	c, ok := m.commits[commit]
	if !ok {
		return nil, fmt.Errorf("%w: unknown commit %s", ErrParse, commit)
	}

	meta := &Metadata{
		Hash:        commit,
		Tree:        c.tree,
		Parents:     append([]Hash{}, c.parents...),
		Author:      c.author,
		Message:     append([]byte{}, c.message...),
		Annotations: map[string][]string{},
	}

	parseAnnotations(meta)

	return meta, nil
}

// ListFiles flattens the commit's tree into file records ordered by
// path.
func (m *MemRepo) ListFiles(commit Hash) ([]File, error) {
	c, ok := m.commits[commit]
	if !ok {
		return nil, fmt.Errorf("%w: unknown commit %s", ErrParse, commit)
	}

	files, err := m.flatten(c.tree, "")
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return files, nil
}

func (m *MemRepo) flatten(tree Hash, prefix string) ([]File, error) {
	entries, err := m.LsTree(tree)
	if err != nil {
		return nil, err
	}

	var files []File

	for _, e := range entries {
		if e.Type == "tree" {
			sub, subErr := m.flatten(e.Hash, prefix+e.Name+"/")
			if subErr != nil {
				return nil, subErr
			}

			files = append(files, sub...)

			continue
		}

		files = append(files, File{Path: prefix + e.Name, Mode: e.Mode, Blob: e.Hash})
	}

	return files, nil
}

// DiffTree computes the symmetric difference of two commit trees. An
// absent `a` diffs against the empty tree.
func (m *MemRepo) DiffTree(a, b Hash) ([]Change, error) {
	before := map[string]File{}

	if !a.IsNone() {
		files, err := m.ListFiles(a)
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			before[f.Path] = f
		}
	}

	afterFiles, err := m.ListFiles(b)
	if err != nil {
		return nil, err
	}

	after := map[string]File{}
	for _, f := range afterFiles {
		after[f.Path] = f
	}

	paths := map[string]struct{}{}
	for p := range before {
		paths[p] = struct{}{}
	}

	for p := range after {
		paths[p] = struct{}{}
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}

	sort.Strings(sorted)

	var changes []Change

	for _, p := range sorted {
		src, inBefore := before[p]
		dst, inAfter := after[p]

		switch {
		case inBefore && !inAfter:
			changes = append(changes, Change{Op: OpDelete, File: src})
		case !inBefore && inAfter:
			changes = append(changes, Change{Op: OpAdd, File: dst})
		case src != dst:
			changes = append(changes, Change{Op: OpReplace, File: dst})
		}
	}

	return changes, nil
}

// RevList returns the commits reachable from `to` but not `from`, in
// topological parent-before-child order.
func (m *MemRepo) RevList(from, to Hash) ([]RevEntry, error) {
	excluded := map[Hash]struct{}{}

	if !from.IsNone() {
		m.ancestors(from, excluded)
	}

	reachable := map[Hash]struct{}{}
	m.ancestors(to, reachable)

	var hashes []Hash

	for h := range reachable {
		if _, ok := excluded[h]; !ok {
			hashes = append(hashes, h)
		}
	}

	sort.Slice(hashes, func(i, j int) bool { return m.seq[hashes[i]] < m.seq[hashes[j]] })

	entries := make([]RevEntry, 0, len(hashes))
	for _, h := range hashes {
		entries = append(entries, RevEntry{Hash: h, Parents: append([]Hash{}, m.commits[h].parents...)})
	}

	return entries, nil
}

func (m *MemRepo) ancestors(start Hash, into map[Hash]struct{}) {
	stack := []Hash{start}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := into[h]; ok {
			continue
		}

		c, found := m.commits[h]
		if !found {
			continue
		}

		into[h] = struct{}{}
		stack = append(stack, c.parents...)
	}
}

func hashBytes(kind string, data []byte) Hash {
	sum := sha1.Sum(append([]byte(kind+"\x00"), data...))

	return Hash(hex.EncodeToString(sum[:]))
}
