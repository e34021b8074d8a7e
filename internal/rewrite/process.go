package rewrite

import (
	"github.com/Sumatoshi-tech/forklift/pkg/gitcli"
	"github.com/Sumatoshi-tech/forklift/pkg/lazytree"
)

// processCommits walks the pending upstream commits in rev-list order,
// eliding filtered no-ops and emitting rewritten commits for the rest.
// It returns the last commit emitted, or None when everything was
// elided.
func (r *Rewriter) processCommits(pending []gitcli.RevEntry, commitsMap map[gitcli.Hash]gitcli.Hash) (gitcli.Hash, error) {
	var (
		lastCommit      = gitcli.None
		lastEmittedTree = gitcli.None
		lastVerified    = -1
		ignoreUntil     = 0
	)

	total := len(pending)

	i := 1
	for i <= total {
		skipped, err := r.tryLookForward(pending, i, &ignoreUntil, commitsMap)
		if err != nil {
			return gitcli.None, err
		}

		if skipped > 0 {
			i += skipped

			continue
		}

		entry := pending[i-1]

		meta, err := r.git.Metadata(entry.Hash)
		if err != nil {
			return gitcli.None, err
		}

		r.observer.Progress(i, total, entry.Hash, meta)

		if r.metrics != nil {
			r.metrics.CommitsRead.Inc()
		}

		parent := gitcli.None
		if len(meta.Parents) > 0 {
			parent = meta.Parents[0]
		}

		rawDiff, err := r.git.DiffTree(parent, entry.Hash)
		if err != nil {
			return gitcli.None, err
		}

		diff, err := r.filter.FilterDiff(rawDiff)
		if err != nil {
			return gitcli.None, err
		}

		// Non-merge commits with an empty filtered diff leave the
		// filtered tree unchanged: no commit is emitted. Merges are
		// always emitted so the filtered DAG mirrors upstream.
		if len(meta.Parents) <= 1 && len(diff) == 0 {
			if len(meta.Parents) == 1 {
				if mapped, ok := commitsMap[meta.Parents[0]]; ok {
					commitsMap[entry.Hash] = mapped
				}
			}

			if r.metrics != nil {
				r.metrics.CommitsElided.Inc()
			}

			i++

			continue
		}

		treeHash, err := r.applyDiff(meta, diff, commitsMap)
		if err != nil {
			return gitcli.None, err
		}

		newHash, err := r.emit(entry.Hash, treeHash, meta, commitsMap)
		if err != nil {
			return gitcli.None, err
		}

		lastCommit = newHash
		lastEmittedTree = treeHash

		if !r.dryRun && (len(meta.Parents) > 1 || i-lastVerified >= verifyIntegrityDistance) {
			lastVerified = i

			verifyErr := r.verify(entry.Hash, treeHash)
			if verifyErr != nil {
				return gitcli.None, verifyErr
			}
		}

		i++
	}

	if !r.dryRun && !lastEmittedTree.IsNone() {
		verifyErr := r.verify(pending[total-1].Hash, lastEmittedTree)
		if verifyErr != nil {
			return gitcli.None, verifyErr
		}
	}

	return lastCommit, nil
}

// tryLookForward elides a whole window of commits when their combined
// filtered effect is empty. Returns how many commits were skipped (zero
// when the window does not apply). Any merge inside the window disables
// compression for the window: a filtered no-op merge must still be
// emitted.
func (r *Rewriter) tryLookForward(pending []gitcli.RevEntry, i int, ignoreUntil *int, commitsMap map[gitcli.Hash]gitcli.Hash) (int, error) {
	w := r.lookForward
	if w == 0 || i < *ignoreUntil {
		return 0, nil
	}

	total := len(pending)
	if i+w-1 > total {
		return 0, nil
	}

	window := pending[i-1 : i-1+w]

	if len(window[0].Parents) != 1 {
		return 0, nil
	}

	parent := window[0].Parents[0]

	mapped, ok := commitsMap[parent]
	if !ok {
		return 0, nil
	}

	for _, entry := range window {
		if len(entry.Parents) != 1 {
			*ignoreUntil = i + w

			return 0, nil
		}
	}

	rawDiff, err := r.git.DiffTree(parent, window[w-1].Hash)
	if err != nil {
		return 0, err
	}

	diff, err := r.filter.FilterDiff(rawDiff)
	if err != nil {
		return 0, err
	}

	if len(diff) != 0 {
		*ignoreUntil = i + w

		return 0, nil
	}

	for j, entry := range window {
		commitsMap[entry.Hash] = mapped
		r.observer.Progress(i+j, total, entry.Hash, nil)
	}

	if r.metrics != nil {
		r.metrics.CommitsElided.Add(float64(w))
	}

	return w, nil
}

// applyDiff applies the filtered diff on top of the mapped first
// parent's tree and returns the resulting tree hash.
func (r *Rewriter) applyDiff(meta *gitcli.Metadata, diff []gitcli.Change, commitsMap map[gitcli.Hash]gitcli.Hash) (gitcli.Hash, error) {
	baseTree := gitcli.None

	if len(meta.Parents) > 0 {
		filteredParent, err := r.findFiltered(meta.Parents[0], commitsMap)
		if err != nil {
			return gitcli.None, err
		}

		parentMeta, err := r.git.Metadata(filteredParent)
		if err != nil {
			return gitcli.None, err
		}

		baseTree = parentMeta.Tree
	}

	tree := lazytree.New(r.git, baseTree)

	for _, change := range diff {
		switch change.Op {
		case gitcli.OpAdd, gitcli.OpReplace:
			setErr := tree.Set(change.File.Path, change.File)
			if setErr != nil {
				return gitcli.None, setErr
			}
		case gitcli.OpDelete:
			delErr := tree.Delete(change.File.Path)
			if delErr != nil {
				return gitcli.None, delErr
			}
		}
	}

	return tree.Hash()
}

// emit writes the rewritten commit: mapped parents, preserved author
// identity and message, and the annotation linking back to upstream.
func (r *Rewriter) emit(orig, tree gitcli.Hash, meta *gitcli.Metadata, commitsMap map[gitcli.Hash]gitcli.Hash) (gitcli.Hash, error) {
	parents := make([]gitcli.Hash, 0, len(meta.Parents))

	for _, parent := range meta.Parents {
		mapped, err := r.findFiltered(parent, commitsMap)
		if err != nil {
			return gitcli.None, err
		}

		parents = append(parents, mapped)
	}

	message := make([]byte, 0, len(meta.Message)+len(r.annotationKey)+len(orig)+8)
	message = append(message, meta.Message...)
	message = append(message, []byte("\n\n"+r.annotationKey+": "+orig.String()+"\n")...)

	if r.dryRun {
		// Keep the walk consistent without writing: map onto the
		// filtered first parent (or ROOT for a root commit).
		mapped := commitsMap[rootKey]
		if len(parents) > 0 {
			mapped = parents[0]
		}

		commitsMap[orig] = mapped
		r.observer.Committed(orig, gitcli.None, meta)

		return gitcli.None, nil
	}

	newHash, err := r.git.CommitTree(tree, parents, meta.Author, message)
	if err != nil {
		return gitcli.None, err
	}

	commitsMap[orig] = newHash
	r.observer.Committed(orig, newHash, meta)

	if r.metrics != nil {
		r.metrics.CommitsEmitted.Inc()
	}

	return newHash, nil
}
