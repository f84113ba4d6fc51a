package batchsign

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// DefaultTimeout is the hard limit for a single signtool run.
const DefaultTimeout = 30 * time.Second

// waitDelay bounds how long Wait keeps copying output after the child is
// gone, in case a grandchild still holds the pipes open.
const waitDelay = 5 * time.Second

// ExecResult is the captured result of one child process.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Executor runs an executable with a discrete argument vector.
//
// A timed out process that was killed is reported through
// ExecResult.TimedOut with a nil error. A *TerminateError means the process
// could not be killed.
type Executor interface {
	Execute(path string, args []string, timeout time.Duration) (ExecResult, error)
}

// ProcessExecutor runs child processes with os/exec. No shell is involved.
type ProcessExecutor struct{}

// Execute implements Executor.
func (ProcessExecutor) Execute(path string, args []string, timeout time.Duration) (ExecResult, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.Command(path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return ExecResult{}, fmt.Errorf("failed to start %s: %w", path, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return res, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("failed to wait for %s: %w", path, err)

	case <-timer.C:
		// Kill only fails for reasons the OS decides (access denied on Windows),
		// so this path is covered through a fake Executor rather than a real process.
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return ExecResult{TimedOut: true}, &TerminateError{Path: path, Err: err}
		}
		<-done
		return ExecResult{
			ExitCode: -1,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			TimedOut: true,
		}, nil
	}
}
