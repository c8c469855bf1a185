package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunProcess(t *testing.T) {
	res, err := runProcess(context.Background(), processConfig{Command: "sh", Args: []string{"-c", "echo out; echo err >&2; exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
	assert.Equal(t, 3, res.ExitCode)
	assert.Positive(t, res.Duration)
}

func TestRunProcess_Errors(t *testing.T) {
	_, err := runProcess(context.Background(), processConfig{})
	assert.Error(t, err)

	_, err = runProcess(context.Background(), processConfig{Command: "/nonexistent/planner"})
	assert.Error(t, err)

	_, err = runProcess(context.Background(), processConfig{Command: "sleep", Args: []string{"5"}, Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
