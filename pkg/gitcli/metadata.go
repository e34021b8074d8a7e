package gitcli

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// annotationRe matches one trailing "KEY: VALUE" message line. Keys are
// case-sensitive.
var annotationRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9-]*): (.*)$`)

// identRe splits "Name <email> epoch offset".
var identRe = regexp.MustCompile(`^(.*) <(.*)> (\S+) (\S+)$`)

// Metadata is a read-only projection of one commit object.
type Metadata struct {
	Hash    Hash
	Tree    Hash
	Parents []Hash
	Author  Signature
	Message []byte

	// Annotations are the trailing "KEY: VALUE" lines of the message,
	// multi-valued, preserved byte for byte.
	Annotations map[string][]string
}

// Title returns the first message line.
func (m *Metadata) Title() string {
	title, _, _ := strings.Cut(string(m.Message), "\n")

	return title
}

// Annotation returns the values recorded under key, oldest first.
func (m *Metadata) Annotation(key string) []string {
	return m.Annotations[key]
}

// Metadata reads one commit object via cat-file, preserving the exact
// message bytes and the raw author time and timezone strings.
func (r *Runner) Metadata(commit Hash) (*Metadata, error) {
	out, err := r.run("cat-file", "commit", commit.String())
	if err != nil {
		return nil, err
	}

	meta, err := parseCommitObject(out)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", commit, err)
	}

	meta.Hash = commit

	return meta, nil
}

// parseCommitObject parses the raw bytes of a commit object.
func parseCommitObject(raw []byte) (*Metadata, error) {
	header, message, ok := bytes.Cut(raw, []byte("\n\n"))
	if !ok {
		return nil, fmt.Errorf("%w: commit object without message separator", ErrParse)
	}

	meta := &Metadata{Message: message, Annotations: map[string][]string{}}

	for _, line := range strings.Split(string(header), "\n") {
		key, value, found := strings.Cut(line, " ")
		if !found {
			continue
		}

		switch key {
		case "tree":
			meta.Tree = Hash(value)
		case "parent":
			meta.Parents = append(meta.Parents, Hash(value))
		case "author":
			ident := identRe.FindStringSubmatch(value)
			if ident == nil {
				return nil, fmt.Errorf("%w: author line %q", ErrParse, value)
			}

			meta.Author = Signature{Name: ident[1], Email: ident[2], Time: ident[3], Timezone: ident[4]}
		}
	}

	if meta.Tree.IsNone() {
		return nil, fmt.Errorf("%w: commit object without tree", ErrParse)
	}

	parseAnnotations(meta)

	return meta, nil
}

// parseAnnotations extracts the trailing run of "KEY: VALUE" lines.
func parseAnnotations(meta *Metadata) {
	lines := strings.Split(strings.TrimRight(string(meta.Message), "\n"), "\n")

	first := len(lines)
	for first > 0 && annotationRe.MatchString(lines[first-1]) {
		first--
	}

	for _, line := range lines[first:] {
		parts := annotationRe.FindStringSubmatch(line)
		meta.Annotations[parts[1]] = append(meta.Annotations[parts[1]], parts[2])
	}
}

// CommitTree creates a commit for tree with the given parents, author
// identity and exact message bytes, and returns the new commit hash.
// Committer identity is left to git's environment defaults.
func (r *Runner) CommitTree(tree Hash, parents []Hash, author Signature, message []byte) (Hash, error) {
	args := []string{"commit-tree"}
	for _, p := range parents {
		args = append(args, "-p", p.String())
	}

	args = append(args, tree.String())

	// An empty identity falls through to git's own defaults, as for
	// synthetic commits (ROOT sentinel, filter-change deletes).
	var env []string

	if author.Name != "" || author.Email != "" {
		env = append(env,
			"GIT_AUTHOR_NAME="+author.Name,
			"GIT_AUTHOR_EMAIL="+author.Email,
			"GIT_AUTHOR_DATE="+author.Date(),
		)
	}

	out, err := r.runInput(message, env, args...)
	if err != nil {
		return None, err
	}

	return Hash(bytes.TrimRight(out, "\n")), nil
}
