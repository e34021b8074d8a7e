package checker

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/forklift/pkg/depgraph"
)

// buildPackagesRetries is how many times the first-pass build is
// attempted: it fails sporadically under high system load.
const buildPackagesRetries = 3

// versionRe strips the version and revision suffix of a package atom.
var versionRe = regexp.MustCompile(`^(.*?)(-[0-9.]+)?(-r[0-9]+)?$`)

// StripVersion removes the trailing version/revision of a package atom.
func StripVersion(atom string) string {
	return versionRe.FindStringSubmatch(atom)[1]
}

// Board drives one board through the verification phases and holds its
// emerge bookkeeping. Counter mutation is serialized by the board mutex.
type Board struct {
	Name   string
	LogDir string

	state     *State
	cmds      Commands
	component string

	mu        sync.Mutex
	graph     *depgraph.Graph
	toVerify  map[string]struct{}
	scheduled map[string]struct{}
	completed map[string]struct{}
	passing   map[string]struct{}
	failed    map[string]struct{}
}

// NewBoard creates the per-board state, registered as pending.
func NewBoard(name, logDir string, state *State, cmds Commands, component string) *Board {
	state.Update(name, PhasePending)

	return &Board{
		Name:      name,
		LogDir:    logDir,
		state:     state,
		cmds:      cmds,
		component: component,
		scheduled: map[string]struct{}{},
		completed: map[string]struct{}{},
		passing:   map[string]struct{}{},
		failed:    map[string]struct{}{},
	}
}

// SetupBoard initializes the board sysroot, mirroring tool output into
// the status line.
func (b *Board) SetupBoard() {
	b.state.Update(b.Name, PhaseSetup)

	err := b.cmds.SetupBoard(b.Name, func(line string) {
		b.state.Update(b.Name, PhaseSetup, line)
	})
	if err != nil {
		b.state.Update(b.Name, PhaseFailed, "setup_board failed. further steps skipped.")

		return
	}

	b.state.Update(b.Name, PhaseSetup, "setup_board completed.")
}

// FirstPassBuild runs the stable-component full build, attempting it up
// to buildPackagesRetries times. The full log is kept only on definitive
// failure.
func (b *Board) FirstPassBuild() {
	if !b.crosWorkon("stop", b.component) {
		return
	}

	for trial := 0; trial < buildPackagesRetries; trial++ {
		if b.buildPackages() {
			b.state.Update(b.Name, PhaseBuild, "build_packages completed.")

			return
		}
	}

	b.state.Update(b.Name, PhaseFailed, "build_packages failed. further steps skipped.")
}

// buildPackages runs one build_packages attempt. The log file is written
// on failure and removed on success.
func (b *Board) buildPackages() bool {
	b.state.Update(b.Name, PhaseBuild)

	logPath := filepath.Join(b.LogDir, "build_packages")

	log, err := b.cmds.BuildPackages(b.Name, func(line string) {
		b.state.Update(b.Name, PhaseBuild, line)
	})
	if err != nil {
		writeLines(logPath, log)

		return false
	}

	os.Remove(logPath)

	return true
}

// EmergeComponent switches the component to the workon version and
// builds it.
func (b *Board) EmergeComponent() {
	if !b.crosWorkon("start", b.component) {
		return
	}

	b.state.Update(b.Name, "emerge_"+b.component)

	err := b.cmds.Emerge(b.Name, b.component, nil)
	if err != nil {
		b.state.Update(b.Name, PhaseFailed,
			fmt.Sprintf("emerge-$BOARD %s failed. further steps skipped.", b.component))

		return
	}

	b.state.Update(b.Name, "emerge_"+b.component,
		fmt.Sprintf("emerge-$BOARD %s completed.", b.component))
}

func (b *Board) crosWorkon(action, pkg string) bool {
	b.state.Update(b.Name, PhaseWorkon+"_"+action, "cros_workon "+action+" "+pkg)

	err := b.cmds.CrosWorkon(b.Name, action, pkg)
	if err != nil {
		b.state.Update(b.Name, PhaseFailed,
			fmt.Sprintf("cros_workon-$BOARD %s %s failed. further steps skipped.", action, pkg))

		return false
	}

	return true
}

// EnumerateDependencies queries the dependents of the component, then
// builds the in-set dependency graph by querying the dependents of each
// of them. An edge a → b means a depends on b within the verify set.
func (b *Board) EnumerateDependencies() {
	packages, err := b.dependedBy(b.component)
	if err != nil {
		b.state.Update(b.Name, PhaseFailed, "equery-$BOARD failed. further steps skipped.")

		return
	}

	toVerify := make(map[string]struct{}, len(packages))
	for _, pkg := range packages {
		toVerify[pkg] = struct{}{}
	}

	graph := depgraph.New()
	for pkg := range toVerify {
		graph.AddNode(pkg)
	}

	for pkg := range toVerify {
		dependents, depErr := b.dependedBy(pkg)
		if depErr != nil {
			b.state.Update(b.Name, PhaseFailed, "equery-$BOARD failed. further steps skipped.")

			return
		}

		for _, dependent := range dependents {
			if _, ok := toVerify[dependent]; ok {
				graph.AddDependency(dependent, pkg)
			}
		}
	}

	// Cycles do not fail the board: the scheduler breaks them, at the
	// cost of building some package before its dependencies.
	if _, acyclic := graph.Toposort(); !acyclic {
		slog.Warn("dependency graph has cycles", "board", b.Name)
	}

	b.mu.Lock()
	b.toVerify = toVerify
	b.graph = graph
	b.mu.Unlock()

	b.updateEmergeState()
}

// dependedBy lists the packages depending on pkg, version suffixes
// stripped.
func (b *Board) dependedBy(pkg string) ([]string, error) {
	b.state.Update(b.Name, PhaseDeps, "Enumerating packages depending on "+pkg)

	atoms, err := b.cmds.DependedBy(b.Name, pkg)
	if err != nil {
		return nil, err
	}

	packages := make([]string, 0, len(atoms))
	for _, atom := range atoms {
		packages = append(packages, StripVersion(atom))
	}

	return packages, nil
}

// BuildablePackages returns the packages to schedule next. A package is
// buildable when it is neither scheduled nor completed and every in-set
// dependency is completed. When nothing is buildable and nothing is in
// flight, one pending package is returned anyway so dependency cycles
// and missing edges cannot stall the board.
func (b *Board) BuildablePackages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var buildable, pending []string

	names := make([]string, 0, len(b.toVerify))
	for pkg := range b.toVerify {
		names = append(names, pkg)
	}

	sort.Strings(names)

	for _, pkg := range names {
		if _, ok := b.scheduled[pkg]; ok {
			continue
		}

		if _, ok := b.completed[pkg]; ok {
			continue
		}

		pending = append(pending, pkg)

		satisfied := true

		for _, dep := range b.graph.Dependencies(pkg) {
			if _, inSet := b.toVerify[dep]; !inSet {
				continue
			}

			if _, done := b.completed[dep]; !done {
				satisfied = false

				break
			}
		}

		if satisfied {
			buildable = append(buildable, pkg)
		}
	}

	if len(buildable) > 0 {
		return buildable
	}

	if len(b.scheduled) > 0 {
		return nil
	}

	// Cycle-break rule: restart with any pending package.
	if len(pending) > 0 {
		if cycle := b.graph.FindCycle(pending[0]); len(cycle) > 0 {
			b.state.Update(b.Name, PhaseEmerge,
				"Breaking dependency cycle: "+strings.Join(cycle, " -> "))
		}

		return pending[:1]
	}

	return nil
}

// MarkScheduled moves a package into the scheduled set.
func (b *Board) MarkScheduled(pkg string) {
	b.mu.Lock()
	b.scheduled[pkg] = struct{}{}
	b.mu.Unlock()

	b.updateEmergeState()
}

// MarkResult completes a package as passing or failed.
func (b *Board) MarkResult(pkg string, passed bool) {
	b.mu.Lock()
	delete(b.scheduled, pkg)
	b.completed[pkg] = struct{}{}

	if passed {
		b.passing[pkg] = struct{}{}
	} else {
		b.failed[pkg] = struct{}{}
	}
	b.mu.Unlock()

	b.updateEmergeState()
}

// VerifyCount returns the size of the board's verify set.
func (b *Board) VerifyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.toVerify)
}

// FailedPackages returns a copy of the board's failed set.
func (b *Board) FailedPackages() map[string]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]struct{}, len(b.failed))
	for pkg := range b.failed {
		out[pkg] = struct{}{}
	}

	return out
}

func (b *Board) updateEmergeState() {
	b.mu.Lock()
	msg := fmt.Sprintf("Queued/Running:%d, Completed:%d (Passing:%d, Failed:%d), Total:%d",
		len(b.scheduled), len(b.completed), len(b.passing), len(b.failed), len(b.toVerify))
	b.mu.Unlock()

	b.state.Update(b.Name, PhaseEmerge, msg)
}

// Emerge builds one dependent package, writing its log under the
// board's log directory. The log directory is removed again when the
// build passes.
func (b *Board) Emerge(pkg string) bool {
	logDir := filepath.Join(b.LogDir, pkg)

	mkErr := os.MkdirAll(logDir, 0o755)
	if mkErr != nil {
		return false
	}

	logPath := filepath.Join(logDir, "emerge_log")

	logFile, err := os.Create(logPath)
	if err != nil {
		return false
	}

	emergeErr := b.cmds.Emerge(b.Name, pkg, logFile)
	logFile.Close()

	if emergeErr != nil {
		return false
	}

	os.RemoveAll(logDir)

	return true
}

// writeLines writes a log file, one line per entry.
func writeLines(path string, lines []string) {
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()

	for _, line := range lines {
		fmt.Fprintln(f, line)
	}
}
