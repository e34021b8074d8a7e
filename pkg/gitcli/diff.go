package gitcli

import (
	"bytes"
	"fmt"
	"strings"
)

// DiffOp is the kind of a single diff-tree operation.
type DiffOp int

// Diff operations. For Add and Replace the attached File is the target
// record; for Delete it is the source record.
const (
	OpAdd DiffOp = iota
	OpReplace
	OpDelete
)

// String returns the short status letter of the operation.
func (op DiffOp) String() string {
	switch op {
	case OpAdd:
		return "A"
	case OpReplace:
		return "R"
	case OpDelete:
		return "D"
	default:
		return "?"
	}
}

// Change is one file-level operation of a tree diff.
type Change struct {
	Op   DiffOp
	File File
}

// DiffTree diffs two commits as a sequence of file operations covering
// exactly the symmetric difference of their trees. An absent `a` means
// the empty tree.
func (r *Runner) DiffTree(a, b Hash) ([]Change, error) {
	from := a
	if from.IsNone() {
		from = EmptyTreeHash
	}

	out, err := r.run("diff-tree", "-r", "-z", "--no-renames", from.String(), b.String())
	if err != nil {
		return nil, err
	}

	return parseDiffTree(out)
}

// parseDiffTree parses -z raw rows:
// ":<srcmode> <dstmode> <srchash> <dsthash> <status>\0<path>\0".
func parseDiffTree(out []byte) ([]Change, error) {
	var changes []Change

	fields := bytes.Split(out, []byte{0})

	for i := 0; i+1 < len(fields); i += 2 {
		meta := string(fields[i])
		path := string(fields[i+1])

		if !strings.HasPrefix(meta, ":") {
			return nil, fmt.Errorf("%w: diff-tree row %q", ErrParse, meta)
		}

		cols := strings.Fields(meta[1:])
		if len(cols) != 5 {
			return nil, fmt.Errorf("%w: diff-tree row %q", ErrParse, meta)
		}

		srcMode, dstMode := cols[0], cols[1]
		srcHash, dstHash := Hash(cols[2]), Hash(cols[3])
		status := cols[4]

		switch status[0] {
		case 'A':
			changes = append(changes, Change{Op: OpAdd, File: File{Path: path, Mode: dstMode, Blob: dstHash}})
		case 'M', 'T':
			changes = append(changes, Change{Op: OpReplace, File: File{Path: path, Mode: dstMode, Blob: dstHash}})
		case 'D':
			changes = append(changes, Change{Op: OpDelete, File: File{Path: path, Mode: srcMode, Blob: srcHash}})
		default:
			return nil, fmt.Errorf("%w: diff-tree status %q for %q", ErrParse, status, path)
		}
	}

	return changes, nil
}
