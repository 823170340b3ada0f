package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ErrNotFound indicates the program of a run action is not on the PATH.
var ErrNotFound = errors.New("program not found")

// ExecRunner starts programs directly, never through a shell.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner returns a runner wired to the process's standard streams.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run executes argv and waits for it. A non-zero exit is reported through the
// status with a nil error; the error is reserved for programs that could not
// be started.
func (r *ExecRunner) Run(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return -1, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return -1, fmt.Errorf("%w: no program named %q on the PATH", ErrNotFound, argv[0])
	}
	return -1, fmt.Errorf("run %s: %w", argv[0], err)
}
