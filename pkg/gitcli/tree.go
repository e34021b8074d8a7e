package gitcli

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// ModeTree is the entry mode of a subtree.
const ModeTree = "040000"

// ListFiles returns every blob reachable from the commit's tree, ordered
// by path.
func (r *Runner) ListFiles(commit Hash) ([]File, error) {
	out, err := r.run("ls-tree", "-r", "-z", commit.String())
	if err != nil {
		return nil, err
	}

	entries, err := parseLsTree(out)
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(entries))
	for _, e := range entries {
		files = append(files, File{Path: e.Name, Mode: e.Mode, Blob: e.Hash})
	}

	return files, nil
}

// LsTree lists one level of the given tree object.
func (r *Runner) LsTree(tree Hash) ([]TreeEntry, error) {
	out, err := r.run("ls-tree", "-z", tree.String())
	if err != nil {
		return nil, err
	}

	return parseLsTree(out)
}

// parseLsTree parses NUL-terminated ls-tree rows:
// "<mode> <type> <hash>\t<name>".
func parseLsTree(out []byte) ([]TreeEntry, error) {
	var entries []TreeEntry

	for _, row := range bytes.Split(out, []byte{0}) {
		if len(row) == 0 {
			continue
		}

		meta, name, ok := bytes.Cut(row, []byte{'\t'})
		if !ok {
			return nil, fmt.Errorf("%w: ls-tree row %q", ErrParse, row)
		}

		fields := strings.Fields(string(meta))
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: ls-tree row %q", ErrParse, row)
		}

		entries = append(entries, TreeEntry{
			Mode: fields[0],
			Type: fields[1],
			Hash: Hash(fields[2]),
			Name: string(name),
		})
	}

	return entries, nil
}

// Mktree builds one tree object from single-level entries and returns its
// hash. Entries may reference blobs and subtrees.
func (r *Runner) Mktree(entries []TreeEntry) (Hash, error) {
	var input bytes.Buffer

	for _, e := range entries {
		fmt.Fprintf(&input, "%s %s %s\t%s", e.Mode, e.Type, e.Hash, e.Name)
		input.WriteByte(0)
	}

	out, err := r.runInput(input.Bytes(), nil, "mktree", "-z")
	if err != nil {
		return None, err
	}

	return Hash(bytes.TrimRight(out, "\n")), nil
}

// MakeTree builds a nested tree from a flat file list and returns the
// root tree hash. The result is canonical: equal file sets yield equal
// hashes regardless of input order.
func (r *Runner) MakeTree(files []File) (Hash, error) {
	return makeTree(r.Mktree, files)
}

// makeTree recursively assembles nested trees through any single-level
// tree builder.
func makeTree(mktree func([]TreeEntry) (Hash, error), files []File) (Hash, error) {
	type dir struct {
		blobs map[string]File
		subs  map[string][]File
	}

	d := dir{blobs: map[string]File{}, subs: map[string][]File{}}

	for _, f := range files {
		head, rest, nested := strings.Cut(f.Path, "/")
		if nested {
			d.subs[head] = append(d.subs[head], File{Path: rest, Mode: f.Mode, Blob: f.Blob})
		} else {
			d.blobs[head] = f
		}
	}

	names := make([]string, 0, len(d.blobs)+len(d.subs))
	for name := range d.blobs {
		names = append(names, name)
	}

	for name := range d.subs {
		names = append(names, name)
	}

	sort.Strings(names)

	entries := make([]TreeEntry, 0, len(names))

	for _, name := range names {
		if f, ok := d.blobs[name]; ok {
			entries = append(entries, TreeEntry{Mode: f.Mode, Type: "blob", Hash: f.Blob, Name: name})

			continue
		}

		sub, err := makeTree(mktree, d.subs[name])
		if err != nil {
			return None, err
		}

		entries = append(entries, TreeEntry{Mode: ModeTree, Type: "tree", Hash: sub, Name: name})
	}

	return mktree(entries)
}
