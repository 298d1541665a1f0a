package ocr

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerCapturesOutput(t *testing.T) {
	r := newExecRunner(nil)

	out, _, err := r.Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestExecRunnerLogsFailureToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := newExecRunner(logger)

	_, errb, err := r.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, string(errb), "boom")
	assert.Contains(t, buf.String(), "ocr.exec.failed")
}

func TestTruncateCapsLongStderr(t *testing.T) {
	long := strings.Repeat("x", 10<<10)
	got := truncate(long, 8<<10)
	assert.Len(t, got, 8<<10+len("...(truncated)"))
	assert.True(t, strings.HasSuffix(got, "...(truncated)"))
}
