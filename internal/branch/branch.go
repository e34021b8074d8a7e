// Package branch orchestrates filter-change maintenance of the filtered
// branch head in three independently invocable phases: DELETE drops
// newly unwanted files, ADD imports the history of newly wanted files
// and merges it in, FORWARD advances the branch to a newer upstream
// commit. Each phase returns a new head, or its input unchanged when it
// is a no-op.
package branch

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/forklift/internal/rewrite"
	"github.com/Sumatoshi-tech/forklift/pkg/gitcli"
	"github.com/Sumatoshi-tech/forklift/pkg/lazytree"
	"github.com/Sumatoshi-tech/forklift/pkg/pathfilter"
)

// deleteMessage is the commit message of the DELETE phase.
const deleteMessage = "Remove unnecessary files due to filter change"

// addMergeMessage is the commit message of the ADD phase merge.
const addMergeMessage = "Merge recovered history of newly wanted files"

// addLookForward is the compression window used when replaying upstream
// history for a small set of newly wanted files.
const addLookForward = 1000

// Sentinel errors.
var (
	// ErrNoCursor indicates the branch head has no first-parent
	// ancestor carrying the original-commit annotation.
	ErrNoCursor = errors.New("filtered branch has no original-commit cursor")
	// ErrInconsistent indicates the branch head tree does not match
	// the filtered projection of its cursor.
	ErrInconsistent = errors.New("filtered branch is inconsistent with filters")
)

// Driver runs the maintenance phases against one repository.
type Driver struct {
	git           rewrite.Git
	filter        *pathfilter.Filter
	annotationKey string
	observer      rewrite.Observer
}

// New creates a Driver. annotationKey names the original-commit
// annotation on the filtered branch.
func New(git rewrite.Git, filter *pathfilter.Filter, annotationKey string) *Driver {
	return &Driver{git: git, filter: filter, annotationKey: annotationKey}
}

// SetObserver installs rewriter hooks used by the ADD and FORWARD
// phases.
func (d *Driver) SetObserver(obs rewrite.Observer) {
	d.observer = obs
}

// cursor returns the upstream hash the head is pinned at: the
// annotation of the nearest first-parent ancestor carrying one.
func (d *Driver) cursor(head gitcli.Hash) (gitcli.Hash, error) {
	current := head

	for {
		meta, err := d.git.Metadata(current)
		if err != nil {
			return gitcli.None, err
		}

		if values := meta.Annotation(d.annotationKey); len(values) > 0 {
			return gitcli.Hash(values[0]), nil
		}

		if len(meta.Parents) == 0 {
			return gitcli.None, fmt.Errorf("%w: head %s", ErrNoCursor, head)
		}

		current = meta.Parents[0]
	}
}

// Delete drops every file the filter no longer wants, as one commit.
// Returns current unchanged when the filter already holds.
func (d *Driver) Delete(current gitcli.Hash) (gitcli.Hash, error) {
	meta, err := d.git.Metadata(current)
	if err != nil {
		return gitcli.None, err
	}

	cursor, err := d.cursor(current)
	if err != nil {
		return gitcli.None, err
	}

	files, err := d.git.ListFiles(current)
	if err != nil {
		return gitcli.None, err
	}

	tree := lazytree.New(d.git, meta.Tree)

	for _, file := range files {
		if d.filter.Want(file.Path) {
			continue
		}

		delErr := tree.Delete(file.Path)
		if delErr != nil {
			return gitcli.None, delErr
		}
	}

	newTree, err := tree.Hash()
	if err != nil {
		return gitcli.None, err
	}

	if newTree == meta.Tree {
		return current, nil
	}

	message := []byte(deleteMessage + "\n\n" + d.annotationKey + ": " + cursor.String() + "\n")

	return d.git.CommitTree(newTree, []gitcli.Hash{current}, gitcli.Signature{}, message)
}

// Add imports the upstream history of newly wanted files on a side
// branch and merges it into current. Returns current unchanged when the
// filter brings in no new files.
func (d *Driver) Add(current gitcli.Hash) (gitcli.Hash, error) {
	cursor, err := d.cursor(current)
	if err != nil {
		return gitcli.None, err
	}

	upstreamFiles, err := d.git.ListFiles(cursor)
	if err != nil {
		return gitcli.None, err
	}

	currentFiles, err := d.git.ListFiles(current)
	if err != nil {
		return gitcli.None, err
	}

	existing := make(map[string]struct{}, len(currentFiles))
	for _, file := range currentFiles {
		existing[file.Path] = struct{}{}
	}

	var toAdd []string

	for _, file := range upstreamFiles {
		if !d.filter.Want(file.Path) {
			continue
		}

		if _, ok := existing[file.Path]; !ok {
			toAdd = append(toAdd, file.Path)
		}
	}

	if len(toAdd) == 0 {
		return current, nil
	}

	sideOpts := append([]rewrite.Option{rewrite.WithLookForward(addLookForward)}, d.sideOptions()...)
	side := rewrite.New(d.git, pathfilter.NewExact(toAdd), rewrite.RecoveredAnnotationKey, sideOpts...)

	sideHead, err := side.Run(current, cursor)
	if err != nil {
		return gitcli.None, err
	}

	return d.mergeSideBranch(current, sideHead, cursor)
}

func (d *Driver) sideOptions() []rewrite.Option {
	if d.observer == nil {
		return nil
	}

	return []rewrite.Option{rewrite.WithObserver(d.observer)}
}

// mergeSideBranch emits the two-parent merge whose tree is current's
// tree overlaid with the side branch files, and asserts the result
// against the from-scratch filtered projection of the cursor.
func (d *Driver) mergeSideBranch(current, sideHead, cursor gitcli.Hash) (gitcli.Hash, error) {
	currentMeta, err := d.git.Metadata(current)
	if err != nil {
		return gitcli.None, err
	}

	sideFiles, err := d.git.ListFiles(sideHead)
	if err != nil {
		return gitcli.None, err
	}

	tree := lazytree.New(d.git, currentMeta.Tree)

	for _, file := range sideFiles {
		setErr := tree.Set(file.Path, file)
		if setErr != nil {
			return gitcli.None, setErr
		}
	}

	mergedTree, err := tree.Hash()
	if err != nil {
		return gitcli.None, err
	}

	expected, err := d.expectedTree(cursor)
	if err != nil {
		return gitcli.None, err
	}

	if mergedTree != expected {
		return gitcli.None, fmt.Errorf("%w: merged tree %s, expected %s",
			rewrite.ErrIntegrity, mergedTree, expected)
	}

	message := []byte(addMergeMessage + "\n\n" + d.annotationKey + ": " + cursor.String() + "\n")

	return d.git.CommitTree(mergedTree, []gitcli.Hash{current, sideHead}, gitcli.Signature{}, message)
}

// expectedTree is the from-scratch filtered projection of an upstream
// commit.
func (d *Driver) expectedTree(cursor gitcli.Hash) (gitcli.Hash, error) {
	files, err := d.git.ListFiles(cursor)
	if err != nil {
		return gitcli.None, err
	}

	return d.git.MakeTree(d.filter.FilterFiles(nil, files))
}

// Forward advances the branch to the upstream target through the
// rewriter. The head must be filter-consistent before the run.
func (d *Driver) Forward(current, target gitcli.Hash, opts ...rewrite.Option) (gitcli.Hash, error) {
	cursor, err := d.cursor(current)
	if err != nil {
		return gitcli.None, err
	}

	expected, err := d.expectedTree(cursor)
	if err != nil {
		return gitcli.None, err
	}

	meta, err := d.git.Metadata(current)
	if err != nil {
		return gitcli.None, err
	}

	if meta.Tree != expected {
		return gitcli.None, fmt.Errorf("%w: head %s has tree %s, filters expect %s",
			ErrInconsistent, current, meta.Tree, expected)
	}

	opts = append(opts, d.sideOptions()...)

	return rewrite.New(d.git, d.filter, d.annotationKey, opts...).Run(current, target)
}

// Phases selects which driver phases Run composes.
type Phases struct {
	Delete  bool
	Add     bool
	Forward bool
}

// All enables every phase.
func All() Phases {
	return Phases{Delete: true, Add: true, Forward: true}
}

// Run composes the selected phases in DELETE, ADD, FORWARD order and
// returns the final head.
func (d *Driver) Run(current, target gitcli.Hash, phases Phases) (gitcli.Hash, error) {
	head := current

	var err error

	if phases.Delete {
		head, err = d.Delete(head)
		if err != nil {
			return gitcli.None, fmt.Errorf("delete phase: %w", err)
		}
	}

	if phases.Add {
		head, err = d.Add(head)
		if err != nil {
			return gitcli.None, fmt.Errorf("add phase: %w", err)
		}
	}

	if phases.Forward {
		head, err = d.Forward(head, target)
		if err != nil {
			return gitcli.None, fmt.Errorf("forward phase: %w", err)
		}
	}

	return head, nil
}
