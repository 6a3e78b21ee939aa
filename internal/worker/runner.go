// Package worker runs out-of-process helper binaries with a bounded
// timeout. Native-library work (vector inserts, text generation) is pushed
// into these workers so a crash cannot take down the calling process.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrFailed indicates a worker exited abnormally, timed out, or could not
// be started.
var ErrFailed = errors.New("worker failed")

// Runner executes a worker binary. The indirection lets tests substitute
// deterministic successes and failures.
type Runner interface {
	// Run invokes the worker binary with the given arguments, bounded by
	// timeout. Returns the worker's stdout; stderr is folded into the
	// error on non-zero exit. Worker protocols put results on stdout and
	// diagnostics on stderr.
	Run(ctx context.Context, timeout time.Duration, bin string, args ...string) ([]byte, error)
}

// ExecRunner runs workers via os/exec.
type ExecRunner struct{}

var _ Runner = ExecRunner{}

// Run executes bin with args, killing the process when timeout elapses.
// Once spawned the worker runs to completion or timeout; there is no
// mid-flight cancellation beyond the context.
func (ExecRunner) Run(ctx context.Context, timeout time.Duration, bin string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return stdout.Bytes(), fmt.Errorf("%w: timed out after %s", ErrFailed, timeout)
		}
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = strings.TrimSpace(stdout.String())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), fmt.Errorf("%w: exit code %d: %s", ErrFailed, exitErr.ExitCode(), diag)
		}
		return stdout.Bytes(), fmt.Errorf("%w: %v", ErrFailed, err)
	}
	return stdout.Bytes(), nil
}
