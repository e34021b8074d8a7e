// Package checker verifies an upgraded component against every package
// depending on it, across a matrix of boards, in maximum-parallelism
// dependency order. External build tooling (setup_board, build_packages,
// cros_workon-$BOARD, emerge-$BOARD, equery-$BOARD) is reached only
// through the Commands contract.
package checker

import (
	"bufio"
	"io"
	"os/exec"
	"strings"
)

// Commands is the external tool surface of the verifier. Implementations
// return an error for a non-zero tool exit; any other failure mode is
// also an error.
type Commands interface {
	// SetupBoard initializes the board's sysroot, streaming combined
	// output lines into stream.
	SetupBoard(board string, stream func(line string)) error

	// BuildPackages runs the full-board build, streaming output lines
	// into stream and returning the complete log.
	BuildPackages(board string, stream func(line string)) ([]string, error)

	// CrosWorkon starts or stops working on a package. action is
	// "start" or "stop".
	CrosWorkon(board, action, pkg string) error

	// Emerge builds one package, writing combined output to out (which
	// may be nil to discard the output).
	Emerge(board, pkg string, out io.Writer) error

	// DependedBy lists the package atoms depending on pkg, with
	// version and revision suffixes still attached.
	DependedBy(board, pkg string) ([]string, error)

	// CleanBuildroots removes the build roots of the given boards.
	CleanBuildroots(boards []string) error
}

// buildPackagesScript is the in-chroot path of the build_packages tool.
const buildPackagesScript = "/mnt/host/source/src/scripts/build_packages"

// ExecCommands runs the real board tools.
type ExecCommands struct{}

// streamLines feeds non-empty trimmed output lines to stream and
// collects the full log.
func streamLines(r io.Reader, stream func(line string), collect *[]string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if collect != nil {
			*collect = append(*collect, line)
		}

		if trimmed := strings.TrimSpace(line); trimmed != "" && stream != nil {
			stream(trimmed)
		}
	}
}

// runStreaming runs cmd with stdout+stderr combined, streaming lines.
func runStreaming(cmd *exec.Cmd, stream func(line string), collect *[]string) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	cmd.Stderr = cmd.Stdout

	startErr := cmd.Start()
	if startErr != nil {
		return startErr
	}

	streamLines(stdout, stream, collect)

	return cmd.Wait()
}

// SetupBoard runs `setup_board --board <board>`.
func (ExecCommands) SetupBoard(board string, stream func(line string)) error {
	return runStreaming(exec.Command("setup_board", "--board", board), stream, nil)
}

// BuildPackages runs the full-board build with the stable component.
func (ExecCommands) BuildPackages(board string, stream func(line string)) ([]string, error) {
	var log []string

	err := runStreaming(
		exec.Command(buildPackagesScript, "--board", board, "--withdev", "--skip_setup_board"),
		stream, &log)

	return log, err
}

// CrosWorkon runs `cros_workon-<board> <action> <pkg>`.
func (ExecCommands) CrosWorkon(board, action, pkg string) error {
	return exec.Command("cros_workon-"+board, action, pkg).Run()
}

// Emerge runs `emerge-<board> <pkg>` with combined output to out.
func (ExecCommands) Emerge(board, pkg string, out io.Writer) error {
	cmd := exec.Command("emerge-"+board, pkg)
	cmd.Stdout = out
	cmd.Stderr = out

	return cmd.Run()
}

// DependedBy runs `equery-<board> d <pkg>` and returns the leading
// package atom of every top-level line. Indented lines are dependency
// details, not atoms.
//
// Line format:
//
//	media-libs/cros-camera-v4l2_test-0.0.1-r399 (>=chromeos-base/libchrome-0.0.1-r117:0/9999[cros-debug])
func (ExecCommands) DependedBy(board, pkg string) ([]string, error) {
	out, err := exec.Command("equery-"+board, "d", pkg).Output()
	if err != nil {
		return nil, err
	}

	var atoms []string

	for _, line := range strings.Split(string(out), "\n") {
		if line == "" || line[0] == ' ' {
			continue
		}

		atoms = append(atoms, strings.SplitN(line, " ", 2)[0])
	}

	return atoms, nil
}

// CleanBuildroots removes /build/<board> for every board.
func (ExecCommands) CleanBuildroots(boards []string) error {
	args := []string{"rm", "-rf"}
	for _, board := range boards {
		args = append(args, "/build/"+board)
	}

	return exec.Command("sudo", args...).Run()
}
