package checker

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/Sumatoshi-tech/forklift/internal/observability"
)

// pool is a bounded work pool: submissions block until a slot frees.
type pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func newPool(size int) *pool {
	return &pool{sem: make(chan struct{}, size)}
}

// submit blocks until a slot is free, then runs fn on its own goroutine.
func (p *pool) submit(fn func()) {
	p.sem <- struct{}{}
	p.wg.Add(1)

	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()

		fn()
	}()
}

// wait blocks until every submitted task has finished.
func (p *pool) wait() {
	p.wg.Wait()
}

// Options configures a verification run.
type Options struct {
	OutputDir string
	Component string

	MaxSetupBoards   int
	MaxBuildPackages int
	MaxEmerges       int

	SkipSetupBoard     bool
	SkipFirstPassBuild bool
	ForceCleanBuild    bool

	AllowOutputDirExists bool
}

// Checker coordinates the cross-board verification run.
type Checker struct {
	opts    Options
	state   *State
	cmds    Commands
	boards  []*Board
	metrics *observability.Metrics
}

// New prepares a Checker for the given boards, creating the per-board
// log directories.
func New(boards []string, cmds Commands, opts Options, metrics *observability.Metrics) (*Checker, error) {
	state := NewState(boards)

	mkErr := makeDir(opts.OutputDir, opts.AllowOutputDirExists)
	if mkErr != nil {
		return nil, mkErr
	}

	c := &Checker{opts: opts, state: state, cmds: cmds, metrics: metrics}

	for _, name := range boards {
		logDir := filepath.Join(opts.OutputDir, "by-board", name)

		mkErr = makeDir(logDir, opts.AllowOutputDirExists)
		if mkErr != nil {
			return nil, mkErr
		}

		c.boards = append(c.boards, NewBoard(name, logDir, state, cmds, opts.Component))
	}

	return c, nil
}

// makeDir creates path, failing when it already exists unless allowed.
func makeDir(path string, allowExists bool) error {
	if !allowExists {
		if _, statErr := os.Stat(path); statErr == nil {
			return fmt.Errorf("output directory %s already exists", path)
		}
	}

	return os.MkdirAll(path, 0o755)
}

// State exposes the shared state, for the status display.
func (c *Checker) State() *State {
	return c.state
}

// guard converts a panic in a board task into the sticky bug phase.
func (c *Checker) guard(board string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				c.state.Update(board, PhaseBug,
					fmt.Sprintf("A bug occurred. Pool slots may have leaked.\n%v\n%s", r, debug.Stack()))
			}
		}()

		fn()
	}
}

// runPhase submits fn for every board not already failed and waits for
// the phase to drain.
func (c *Checker) runPhase(size int, waitingMsg string, fn func(b *Board)) {
	p := newPool(size)

	for _, board := range c.boards {
		if c.state.AlreadyFailed(board.Name) {
			continue
		}

		if waitingMsg != "" {
			c.state.Update(board.Name, PhaseWaiting, waitingMsg)
		}

		b := board

		p.submit(c.guard(b.Name, func() { fn(b) }))
	}

	p.wait()
}

// Run drives every phase to completion and writes the failure matrix.
// Per-board failures are recoverable: the run itself only errors on
// process-level problems (I/O on the output directory).
func (c *Checker) Run() error {
	if c.opts.ForceCleanBuild {
		cleanErr := c.cmds.CleanBuildroots(boardNames(c.boards))
		if cleanErr != nil {
			return fmt.Errorf("clean buildroots: %w", cleanErr)
		}
	}

	if !c.opts.SkipSetupBoard {
		c.runPhase(c.opts.MaxSetupBoards, "", (*Board).SetupBoard)
	}

	if !c.opts.SkipFirstPassBuild {
		c.runPhase(c.opts.MaxBuildPackages, "waiting for build_packages to start.", (*Board).FirstPassBuild)
	}

	c.runPhase(c.opts.MaxEmerges, "waiting for emerge "+c.opts.Component+" to start.", (*Board).EmergeComponent)
	c.runPhase(c.opts.MaxEmerges, "", (*Board).EnumerateDependencies)

	c.scheduleEmerges()

	for _, board := range c.boards {
		if c.state.AlreadyFailed(board.Name) {
			c.state.SetFailed(board.Name, map[string]struct{}{SystemPackage: {}})
		} else {
			c.state.SetFailed(board.Name, board.FailedPackages())
			c.state.Update(board.Name, PhaseComplete)
		}
	}

	return c.writeResults()
}

// scheduleEmerges runs the dependents of every board under one shared
// bounded pool, scheduling every buildable package and re-scanning after
// each completion.
func (c *Checker) scheduleEmerges() {
	p := newPool(c.opts.MaxEmerges)

	// The buffer covers every emerge that can ever complete, so a
	// finishing task never blocks while the scheduler waits on a slot.
	totalPackages := 0
	for _, board := range c.boards {
		totalPackages += board.VerifyCount()
	}

	done := make(chan struct{}, totalPackages+1)
	inflight := 0

	for {
		for _, board := range c.boards {
			if c.state.AlreadyFailed(board.Name) {
				continue
			}

			for _, pkg := range board.BuildablePackages() {
				board.MarkScheduled(pkg)
				inflight++

				b, name := board, pkg

				p.submit(c.guard(b.Name, func() {
					passed := b.Emerge(name)
					b.MarkResult(name, passed)

					if c.metrics != nil {
						result := "pass"
						if !passed {
							result = "fail"
						}

						c.metrics.Emerges.WithLabelValues(result).Inc()
					}

					done <- struct{}{}
				}))
			}
		}

		if inflight == 0 {
			break
		}

		<-done
		inflight--
	}

	p.wait()
}

func boardNames(boards []*Board) []string {
	names := make([]string, 0, len(boards))
	for _, b := range boards {
		names = append(names, b.Name)
	}

	return names
}

// writeResults copies per-package failure logs into the by-packages
// view and writes the aligned text and CSV matrices. The matrix files
// are written even when every package passed: the header row still
// lists the boards.
func (c *Checker) writeResults() error {
	for board, packages := range c.state.Failed() {
		for pkg := range packages {
			src := filepath.Join(c.opts.OutputDir, "by-board", board, pkg, "emerge_log")

			if _, statErr := os.Stat(src); statErr != nil {
				// SYSTEM rows and pre-emerge failures have no log.
				continue
			}

			dstDir := filepath.Join(c.opts.OutputDir, "by-packages", pkg)

			mkErr := os.MkdirAll(dstDir, 0o755)
			if mkErr != nil {
				return mkErr
			}

			copyErr := copyFile(src, filepath.Join(dstDir, board))
			if copyErr != nil {
				return copyErr
			}
		}
	}

	text := c.state.FailedMatrix("     ", true)

	writeErr := os.WriteFile(filepath.Join(c.opts.OutputDir, "matrix.txt"), []byte(text), 0o644)
	if writeErr != nil {
		return writeErr
	}

	csv := c.state.FailedMatrix(",", false)

	writeErr = os.WriteFile(filepath.Join(c.opts.OutputDir, "matrix.csv"), []byte(csv), 0o644)
	if writeErr != nil {
		return writeErr
	}

	slog.Info("failure matrix written", "dir", c.opts.OutputDir)

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)

	return err
}
