package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

type processConfig struct {
	Command string
	Args    []string
	WorkDir string
	// Timeout of zero leaves limits to the planner driver.
	Timeout time.Duration
}

type processResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// runProcess executes a command and captures its output. A non-zero exit code
// is reported in the result, not as an error; only failures to execute at all
// (binary not found, timeout, cancellation) are errors.
func runProcess(ctx context.Context, cfg processConfig) (*processResult, error) {
	if cfg.Command == "" {
		return nil, errors.New("command is required")
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &processResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("command timed out after %v", cfg.Timeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return result, fmt.Errorf("command cancelled")
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("command execution failed: %w", err)
	}

	return result, nil
}
