package gitcli

// File is one blob reachable from a tree: path, 6-digit octal mode and
// blob hash. Equality is structural.
type File struct {
	Path string
	Mode string
	Blob Hash
}

// TreeEntry is one row of a single-level tree listing. Type is "blob" or
// "tree"; Name is the entry name without any directory prefix.
type TreeEntry struct {
	Mode string
	Type string
	Hash Hash
	Name string
}

// Signature is the author identity of a commit. Time and Timezone keep
// the raw epoch-seconds and offset strings from the commit object so
// re-committing round-trips them byte for byte.
type Signature struct {
	Name     string
	Email    string
	Time     string
	Timezone string
}

// Date returns the GIT_AUTHOR_DATE form "epoch offset".
func (s Signature) Date() string {
	return s.Time + " " + s.Timezone
}
