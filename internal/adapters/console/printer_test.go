package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStageSuccessPrintsDone(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Stage("Loading models")
	p.Success()

	out := buf.String()
	require.Contains(t, out, "Loading models")
	require.True(t, strings.HasSuffix(strings.TrimRight(out, "\n"), "Done."))
}

func TestStageFailurePrintsFailed(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Stage("Deploying model")
	p.Failure()

	require.Contains(t, buf.String(), "Failed.")
}

func TestFinishWithoutOpenStageIsNoop(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Failure()
	p.Success()
	require.Empty(t, buf.String())
}

func TestPrintlnCancelsSpinner(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Stage("Retrieving results")
	p.Println("Worker q1 joined")

	require.Contains(t, buf.String(), "Worker q1 joined\n")
	// El Println sólo cancela el spinner: la etapa sigue abierta y puede
	// cerrarse después.
	sizeBefore := buf.Len()
	p.Success()
	require.Greater(t, buf.Len(), sizeBefore)
	require.Contains(t, buf.String(), "Done.")
}

func TestLongStageTextIsTruncatedToWidth(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	long := strings.Repeat("x", 200)
	p.Stage(long)
	p.Success()

	flat := strings.ReplaceAll(buf.String(), "\n", "")
	for _, segment := range strings.Split(flat, "\r") {
		require.LessOrEqual(t, len([]rune(segment)), defaultWidth)
	}
}
