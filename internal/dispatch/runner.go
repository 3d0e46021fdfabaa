package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/mattjoyce/cinema-bridge/internal/log"
)

// Spec describes one process invocation.
type Spec struct {
	Argv []string
	Dir  string
}

// Runner performs the platform side effects of a dispatch.
type Runner interface {
	// Output runs spec to completion and returns its combined output.
	Output(ctx context.Context, spec Spec) ([]byte, error)
	// Start launches spec and returns once the process exists.
	Start(ctx context.Context, spec Spec) error
}

// ExecRunner is the os/exec Runner.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{logger: log.WithComponent("runner")}
}

func (r *ExecRunner) Output(ctx context.Context, spec Spec) ([]byte, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}
	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	r.logger.Debug("running", "argv", spec.Argv, "dir", spec.Dir)
	return cmd.CombinedOutput()
}

// Start launches the process without tying it to ctx: a started process is
// never cancelled by the bridge. A goroutine reaps it when it exits.
func (r *ExecRunner) Start(_ context.Context, spec Spec) error {
	if len(spec.Argv) == 0 {
		return fmt.Errorf("empty argv")
	}
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if err := cmd.Start(); err != nil {
		return err
	}

	pid := cmd.Process.Pid
	r.logger.Debug("started", "argv", spec.Argv, "dir", spec.Dir, "pid", pid)
	go func() {
		err := cmd.Wait()
		r.logger.Debug("process exited", "pid", pid, "exit_code", cmd.ProcessState.ExitCode(), "error", err)
	}()
	return nil
}
