package gitcli

import (
	"bytes"
	"fmt"
	"strings"
)

// RevEntry is one commit of a rev-list walk, with its parents in order
// (first parent first).
type RevEntry struct {
	Hash    Hash
	Parents []Hash
}

// RevList returns the commits after `from` up to and including `to`, in
// topological parent-before-child order. An absent `from` walks from the
// roots.
func (r *Runner) RevList(from, to Hash) ([]RevEntry, error) {
	args := []string{"rev-list", "--reverse", "--topo-order", "--parents", to.String()}
	if !from.IsNone() {
		args = append(args, "^"+from.String())
	}

	out, err := r.run(args...)
	if err != nil {
		return nil, err
	}

	var entries []RevEntry

	for _, line := range strings.Split(string(bytes.TrimSpace(out)), "\n") {
		if line == "" {
			continue
		}

		cols := strings.Fields(line)
		if len(cols) == 0 {
			return nil, fmt.Errorf("%w: rev-list line %q", ErrParse, line)
		}

		entry := RevEntry{Hash: Hash(cols[0])}
		for _, p := range cols[1:] {
			entry.Parents = append(entry.Parents, Hash(p))
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
