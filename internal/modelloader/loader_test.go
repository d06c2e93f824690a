package modelloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dev.csaopt.io/csaopt/internal/core/domain"
)

const fullDescriptor = `
dimensions: 2
precision: float64
distribution: uniform
globals: "N = 2"
functions:
  initialize: "def initialize(r, s): pass"
  generate_next: "def generate_next(s, n, r, t): pass"
  cool: "def cool(t, o): return o * 0.97"
  evaluate: "def evaluate(s): return 0.0"
  acceptance_func: "def acceptance_func(e1, e2, t, r): return True"
  empty_state: "def empty_state(): return (0.0, 0.0)"
`

func writeModel(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadNamesModelAfterFileStem(t *testing.T) {
	path := writeModel(t, "rastrigin.yaml", fullDescriptor)

	m, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "rastrigin", m.Name)
	require.Equal(t, domain.Minimize, m.Objective, "objective defaults to minimize")
	require.Equal(t, domain.Float64, m.Precision)
}

func TestLoadKeepsExplicitNameAndObjective(t *testing.T) {
	path := writeModel(t, "anything.yaml", "name: langermann\nobjective: maximize\n"+fullDescriptor)

	m, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "langermann", m.Name)
	require.Equal(t, domain.Maximize, m.Objective)
}

func TestLoadRejectsMissingFunctionSlot(t *testing.T) {
	path := writeModel(t, "broken.yaml", `
dimensions: 2
precision: float64
distribution: uniform
functions:
  initialize: "def initialize(r, s): pass"
`)

	_, err := Load(path)
	require.Error(t, err)
	verr, ok := err.(*domain.ValidationError)
	require.True(t, ok, "expected *ValidationError, got %T", err)
	require.Contains(t, verr.Missing, domain.FuncCool)
	require.Contains(t, verr.Missing, domain.FuncEmptyState)
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeModel(t, "bad.yaml", "functions: [not, a, map\n")
	_, err := Load(path)
	require.Error(t, err)
}
