package checker

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Board phases. Failed and Bug are terminal and sticky: a board in
// either receives no further work.
const (
	PhasePending  = "pending"
	PhaseWaiting  = "waiting"
	PhaseSetup    = "setup_board"
	PhaseBuild    = "build_packages"
	PhaseWorkon   = "cros_workon"
	PhaseDeps     = "enumerate_dependencies"
	PhaseEmerge   = "emerge"
	PhaseFailed   = "failed"
	PhaseBug      = "bug"
	PhaseComplete = "complete"
)

// SystemPackage is the synthetic failure row for boards that died
// outside any particular package.
const SystemPackage = "SYSTEM"

// displayInterval is the refresh period of the status screen.
const displayInterval = time.Second

// BoardStatus is one row of a state snapshot.
type BoardStatus struct {
	Board   string
	Phase   string
	Message string
}

// State is the cross-board shared state. All mutation is serialized by
// one mutex; the display goroutine reads snapshots under the same lock.
type State struct {
	mu sync.Mutex

	order  []string
	phases map[string]string
	msgs   map[string]string
	failed map[string]map[string]struct{}

	started time.Time
	stop    chan struct{}
	done    chan struct{}
}

// NewState initializes the state for the given boards, all pending.
func NewState(boards []string) *State {
	s := &State{
		order:   append([]string{}, boards...),
		phases:  map[string]string{},
		msgs:    map[string]string{},
		failed:  map[string]map[string]struct{}{},
		started: time.Now(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	for _, board := range boards {
		s.phases[board] = PhasePending
	}

	return s
}

// Update records a board's phase and status message.
func (s *State) Update(board, phase string, msg ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phases[board] = phase

	if len(msg) > 0 {
		s.msgs[board] = msg[0]
	} else {
		s.msgs[board] = ""
	}
}

// AlreadyFailed reports whether the board is in a terminal phase.
func (s *State) AlreadyFailed(board string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase := s.phases[board]

	return phase == PhaseFailed || phase == PhaseBug
}

// SetFailed records the board's failing package set.
func (s *State) SetFailed(board string, packages map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]struct{}, len(packages))
	for pkg := range packages {
		set[pkg] = struct{}{}
	}

	s.failed[board] = set
}

// Failed returns the recorded failure sets, board → packages.
func (s *State) Failed() map[string]map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[string]struct{}, len(s.failed))

	for board, packages := range s.failed {
		set := make(map[string]struct{}, len(packages))
		for pkg := range packages {
			set[pkg] = struct{}{}
		}

		out[board] = set
	}

	return out
}

// Snapshot returns the per-board rows in board registration order.
func (s *State) Snapshot() []BoardStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]BoardStatus, 0, len(s.order))
	for _, board := range s.order {
		rows = append(rows, BoardStatus{Board: board, Phase: s.phases[board], Message: s.msgs[board]})
	}

	return rows
}

// StartDisplay launches the once-per-second status screen writer.
func (s *State) StartDisplay(w io.Writer) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(displayInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Print(w)
			}
		}
	}()
}

// StopDisplay stops the status screen and waits for the writer to exit.
func (s *State) StopDisplay() {
	close(s.stop)
	<-s.done
}

// Print renders the status screen: duration and load header, one row
// per board.
func (s *State) Print(w io.Writer) {
	rows := s.Snapshot()

	header := color.New(color.FgCyan, color.Bold)
	failedStyle := color.New(color.FgRed)

	fmt.Fprint(w, "\033c")
	header.Fprintln(w, "            PARALLEL PACKAGES CHECKER")
	fmt.Fprintf(w, "                           duration: %s, load: %s\n\n",
		time.Since(s.started).Truncate(time.Second), loadAverage())

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"BOARD", "PHASE", "STATUS"})

	for _, row := range rows {
		phase := row.Phase
		if phase == PhaseFailed || phase == PhaseBug {
			phase = failedStyle.Sprint(phase)
		}

		t.AppendRow(table.Row{row.Board, phase, row.Message})
	}

	t.Render()
	fmt.Fprintf(w, "\n                              %s\n\n", time.Now().Format(time.DateTime))
}

// loadAverage reads the 1/5/15 minute load from /proc/loadavg.
func loadAverage() string {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return "?"
	}

	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return "?"
	}

	return strings.Join(fields[:3], " ")
}

// FailedMatrix renders the failure matrix: the header row lists boards;
// each subsequent row is a failing package with an X under every board
// that failed it. align pads columns for the space-delimited text form.
func (s *State) FailedMatrix(delimiter string, align bool) string {
	failed := s.Failed()

	boards := make([]string, 0, len(failed))
	for board := range failed {
		boards = append(boards, board)
	}

	sort.Strings(boards)

	packages := map[string]struct{}{}

	for _, set := range failed {
		for pkg := range set {
			packages[pkg] = struct{}{}
		}
	}

	names := make([]string, 0, len(packages))
	for pkg := range packages {
		names = append(names, pkg)
	}

	sort.Strings(names)

	maxLen := 0
	if align {
		for _, pkg := range names {
			if len(pkg) > maxLen {
				maxLen = len(pkg)
			}
		}
	}

	var b strings.Builder

	b.WriteString(strings.Repeat(" ", maxLen))
	b.WriteString(delimiter)
	b.WriteString(strings.Join(boards, delimiter))
	b.WriteString("\n")

	for _, pkg := range names {
		fmt.Fprintf(&b, "%*s", maxLen, pkg)

		for _, board := range boards {
			b.WriteString(delimiter)

			if align {
				b.WriteString(strings.Repeat(" ", len(board)-1))
			}

			if _, ok := failed[board][pkg]; ok {
				b.WriteString("X")
			} else {
				b.WriteString(" ")
			}
		}

		b.WriteString("\n")
	}

	return b.String()
}
