// Package rewrite reproduces upstream history on the filtered branch,
// commit for commit, restricted to the configured path subset. The
// result is bit-identical to filtering each upstream commit
// independently, but is produced incrementally from commit-to-parent
// diffs. Author identity, authored timestamps and the parent DAG
// (including merges) are preserved.
package rewrite

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/forklift/internal/observability"
	"github.com/Sumatoshi-tech/forklift/pkg/gitcli"
	"github.com/Sumatoshi-tech/forklift/pkg/lazytree"
	"github.com/Sumatoshi-tech/forklift/pkg/pathfilter"
)

// Git is the plumbing surface the rewriter drives. *gitcli.Runner
// satisfies it; tests substitute an in-memory implementation.
type Git interface {
	lazytree.TreeStore

	ListFiles(commit gitcli.Hash) ([]gitcli.File, error)
	MakeTree(files []gitcli.File) (gitcli.Hash, error)
	DiffTree(a, b gitcli.Hash) ([]gitcli.Change, error)
	RevList(from, to gitcli.Hash) ([]gitcli.RevEntry, error)
	Metadata(commit gitcli.Hash) (*gitcli.Metadata, error)
	CommitTree(tree gitcli.Hash, parents []gitcli.Hash, author gitcli.Signature, message []byte) (gitcli.Hash, error)
}

// Annotation keys written to filtered commit messages.
const (
	// RecoveredAnnotationKey marks synthetic history imported for
	// newly-wanted paths by the ADD phase.
	RecoveredAnnotationKey = "RecoveredFromCommit"
)

// rootKey is the sentinel commits-map key for the synthetic empty-tree
// ancestor.
const rootKey = gitcli.Hash("ROOT")

// initialCommitMessage is the fixed message of the ROOT sentinel commit.
const initialCommitMessage = "Initial filtered commit"

// verifyIntegrityDistance is the commit interval between from-scratch
// integrity verifications. Merge commits and the final commit are always
// verified.
const verifyIntegrityDistance = 1000

// Sentinel errors. All are fatal: the filtered branch is left at
// whatever commits were already created.
var (
	// ErrIntegrity indicates the incrementally built tree diverged from
	// the tree recomputed from scratch.
	ErrIntegrity = errors.New("integrity verification failed")
	// ErrNoRoot indicates a parent could not be resolved through the
	// commits map and no ROOT sentinel exists.
	ErrNoRoot = errors.New("no ROOT sentinel in commits map")
	// ErrUnexpectedMerge indicates a merge on the resolution path where
	// only first-parent chains are legal.
	ErrUnexpectedMerge = errors.New("merge commit while resolving filtered parent")
)

// Rewriter is the commit-level state machine extending the filtered
// branch toward an upstream target.
type Rewriter struct {
	git    Git
	filter *pathfilter.Filter

	// annotationKey names the message annotation recording the
	// upstream hash each filtered commit derives from.
	annotationKey string

	// lookForward is the opt-in compression window; zero disables it.
	lookForward int

	observer Observer
	metrics  *observability.Metrics
	dryRun   bool
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithLookForward enables run compression over a window of w commits.
func WithLookForward(w int) Option {
	return func(r *Rewriter) { r.lookForward = w }
}

// WithObserver installs progress and commit hooks.
func WithObserver(obs Observer) Option {
	return func(r *Rewriter) { r.observer = obs }
}

// WithMetrics installs prometheus counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Rewriter) { r.metrics = m }
}

// WithDryRun walks and reports without creating commits.
func WithDryRun() Option {
	return func(r *Rewriter) { r.dryRun = true }
}

// New creates a Rewriter. annotationKey is the key recorded on every
// emitted commit (conventionally "OriginalCommit").
func New(git Git, filter *pathfilter.Filter, annotationKey string, opts ...Option) *Rewriter {
	r := &Rewriter{
		git:           git,
		filter:        filter,
		annotationKey: annotationKey,
		observer:      nopObserver{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run extends the filtered branch from parentFiltered toward the
// upstream commit goal and returns the new head. When every pending
// upstream commit is a filtered no-op the input head is returned
// unchanged.
func (r *Rewriter) Run(parentFiltered, goal gitcli.Hash) (gitcli.Hash, error) {
	anchor, anchorMeta, err := r.findAnchor(parentFiltered)
	if err != nil {
		return gitcli.None, err
	}

	cursor := gitcli.None
	if anchorMeta != nil {
		cursor = gitcli.Hash(anchorMeta.Annotation(r.annotationKey)[0])
		slog.Info("continuing from known commit", "filtered", anchor, "upstream", cursor)
	} else {
		slog.Info("no known last commit; rewriting from the beginning")
	}

	commitsMap, err := r.buildCommitsMap(parentFiltered)
	if err != nil {
		return gitcli.None, err
	}

	if _, ok := commitsMap[rootKey]; !ok {
		root, rootErr := r.makeRoot(parentFiltered)
		if rootErr != nil {
			return gitcli.None, rootErr
		}

		commitsMap[rootKey] = root
	}

	slog.Info("loaded commit mapping", "commits", len(commitsMap))

	// Commits may have been stacked on the branch after the anchor
	// (manual fixes with no annotation). Re-point the cursor so new
	// commits extend the current head rather than the anchor.
	if anchorMeta != nil && anchor != parentFiltered {
		commitsMap[cursor] = parentFiltered
	}

	pending, err := r.git.RevList(cursor, goal)
	if err != nil {
		return gitcli.None, err
	}

	slog.Info("commits to process", "count", len(pending))

	if len(pending) == 0 {
		return parentFiltered, nil
	}

	head, err := r.processCommits(pending, commitsMap)
	if err != nil {
		return gitcli.None, err
	}

	if head.IsNone() {
		// Every pending commit was elided.
		return parentFiltered, nil
	}

	return head, nil
}

// findAnchor walks the filtered branch from head along first parents and
// returns the first commit carrying the annotation, with its metadata.
// Both results are nil-ish when the branch has no annotated commit.
func (r *Rewriter) findAnchor(head gitcli.Hash) (gitcli.Hash, *gitcli.Metadata, error) {
	current := head

	for {
		meta, err := r.git.Metadata(current)
		if err != nil {
			return gitcli.None, nil, err
		}

		if len(meta.Annotation(r.annotationKey)) > 0 {
			return current, meta, nil
		}

		if len(meta.Parents) == 0 {
			return gitcli.None, nil, nil
		}

		current = meta.Parents[0]
	}
}

// buildCommitsMap scans the whole filtered branch and maps every
// annotated upstream hash to its filtered commit. The ROOT sentinel is
// recognized by its fixed message.
func (r *Rewriter) buildCommitsMap(head gitcli.Hash) (map[gitcli.Hash]gitcli.Hash, error) {
	entries, err := r.git.RevList(gitcli.None, head)
	if err != nil {
		return nil, err
	}

	commitsMap := make(map[gitcli.Hash]gitcli.Hash, len(entries))

	for idx, entry := range entries {
		meta, metaErr := r.git.Metadata(entry.Hash)
		if metaErr != nil {
			return nil, metaErr
		}

		for _, orig := range meta.Annotation(r.annotationKey) {
			commitsMap[gitcli.Hash(orig)] = entry.Hash
		}

		if meta.Title() == initialCommitMessage {
			commitsMap[rootKey] = entry.Hash
		}

		if (idx+1)%10000 == 0 {
			slog.Debug("reading filtered branch", "done", idx+1, "total", len(entries))
		}
	}

	return commitsMap, nil
}

// makeRoot creates the synthetic empty-tree ancestor on demand, parented
// on the current filtered head.
func (r *Rewriter) makeRoot(parentFiltered gitcli.Hash) (gitcli.Hash, error) {
	empty, err := r.git.Mktree(nil)
	if err != nil {
		return gitcli.None, err
	}

	if r.dryRun {
		return parentFiltered, nil
	}

	return r.git.CommitTree(empty, []gitcli.Hash{parentFiltered}, gitcli.Signature{}, []byte(initialCommitMessage))
}

// findFiltered resolves an upstream commit to its filtered counterpart.
// An unmapped commit resolves through its least mapped ancestor,
// climbing first parents down to the ROOT sentinel. The map is extended
// with the resolution.
func (r *Rewriter) findFiltered(commit gitcli.Hash, commitsMap map[gitcli.Hash]gitcli.Hash) (gitcli.Hash, error) {
	lookFor := commit

	for {
		if mapped, ok := commitsMap[lookFor]; ok {
			commitsMap[commit] = mapped

			return mapped, nil
		}

		if lookFor == rootKey {
			return gitcli.None, ErrNoRoot
		}

		meta, err := r.git.Metadata(lookFor)
		if err != nil {
			return gitcli.None, err
		}

		switch len(meta.Parents) {
		case 0:
			lookFor = rootKey
		case 1:
			lookFor = meta.Parents[0]
		default:
			return gitcli.None, fmt.Errorf("%w: %s", ErrUnexpectedMerge, lookFor)
		}
	}
}

// verify recomputes the filtered tree of originalCommit from scratch and
// compares it against the incrementally produced tree.
func (r *Rewriter) verify(originalCommit, tree gitcli.Hash) error {
	files, err := r.git.ListFiles(originalCommit)
	if err != nil {
		return err
	}

	expected, err := r.git.MakeTree(r.filter.FilterFiles(nil, files))
	if err != nil {
		return err
	}

	if expected != tree {
		return fmt.Errorf("%w: commit %s: expected tree %s, built %s",
			ErrIntegrity, originalCommit, expected, tree)
	}

	return nil
}
