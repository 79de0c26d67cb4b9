package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"mendgate/internal/types"
)

var _ Runner = (*LocalRunner)(nil)

// LocalRunner shells out to project-configured commands in a working
// directory.
type LocalRunner struct {
	workdir  string
	buildCmd string
	testCmd  string
	lintCmd  string
}

// NewLocalRunner creates a runner for the given workdir and commands. An
// empty command makes the corresponding check report a skip-style pass.
func NewLocalRunner(workdir, buildCmd, testCmd, lintCmd string) *LocalRunner {
	return &LocalRunner{
		workdir:  workdir,
		buildCmd: buildCmd,
		testCmd:  testCmd,
		lintCmd:  lintCmd,
	}
}

// RunBuild runs the configured build command.
func (r *LocalRunner) RunBuild(ctx context.Context, timeout time.Duration) types.CheckResult {
	return r.run(ctx, "build", r.buildCmd, timeout)
}

// RunTests runs the configured test command.
func (r *LocalRunner) RunTests(ctx context.Context, timeout time.Duration) types.CheckResult {
	return r.run(ctx, "test", r.testCmd, timeout)
}

// RunLint runs the configured lint command.
func (r *LocalRunner) RunLint(ctx context.Context, timeout time.Duration) types.CheckResult {
	return r.run(ctx, "lint", r.lintCmd, timeout)
}

func (r *LocalRunner) run(parent context.Context, name, command string, timeout time.Duration) types.CheckResult {
	command = strings.TrimSpace(command)
	if command == "" {
		return types.CheckResult{
			Name:    name,
			Passed:  true,
			Message: "no command configured, skipped",
		}
	}

	ctx := parent
	cancel := func() {}
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	}
	defer cancel()

	start := time.Now()
	out, err := runShell(ctx, command, r.workdir)
	elapsed := time.Since(start)

	result := types.CheckResult{
		Name:     name,
		Output:   out,
		Duration: elapsed,
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.TimedOut = true
		result.Message = fmt.Sprintf("%s timed out after %s", name, timeout)
	case err != nil:
		result.Message = err.Error()
	default:
		result.Passed = true
		result.Message = fmt.Sprintf("%s passed", name)
	}
	return result
}

func runShell(ctx context.Context, command, workdir string) (string, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", command)
	} else {
		cmd = exec.CommandContext(ctx, "bash", "-lc", command)
	}
	if workdir != "" {
		cmd.Dir = workdir
	}

	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return string(out), ctx.Err()
	}
	if err != nil {
		return string(out), fmt.Errorf("command failed (%s): %w", command, err)
	}
	return string(out), nil
}
