package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/ports"
)

func sampleRun(id string, best float64) *domain.RunRecord {
	return &domain.RunRecord{
		ID:         id,
		Models:     []string{"rastrigin"},
		JobCount:   3,
		BestValue:  &best,
		BestState:  []float64{0.1, -0.2},
		StartedAt:  time.Now().UTC().Add(-time.Minute),
		FinishedAt: time.Now().UTC(),
	}
}

func TestMemoryStoreSaveGetList(t *testing.T) {
	s := NewMemoryRunStore()
	defer func() { require.NoError(t, s.Close()) }()

	require.NoError(t, s.Save(sampleRun("run-1", 1.5)))
	require.NoError(t, s.Save(sampleRun("run-2", -0.5)))

	got, err := s.Get("run-2")
	require.NoError(t, err)
	require.Equal(t, -0.5, *got.BestValue)

	runs, err := s.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-1", runs[0].ID, "list preserves insertion order")

	_, err = s.Get("run-9")
	require.Error(t, err)
}

func TestBoltStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := NewBoltRunStore(path, 0o600, "runs")
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	run := sampleRun("run-1", 2.25)
	run.Failures = []string{"1 job(s) unresolved after the collection deadline"}
	require.NoError(t, s.Save(run))

	got, err := s.Get("run-1")
	require.NoError(t, err)
	require.Equal(t, run.ID, got.ID)
	require.Equal(t, run.Failures, got.Failures)
	require.Equal(t, *run.BestValue, *got.BestValue)
	require.False(t, got.Succeeded())

	runs, err := s.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)

	_, err = s.Get("run-9")
	require.Error(t, err)
}

func TestNewRunStoreSelectsBackend(t *testing.T) {
	s, err := NewRunStore("memory", "")
	require.NoError(t, err)
	require.IsType(t, &MemoryRunStore{}, s)

	path := filepath.Join(t.TempDir(), "runs.db")
	var ps ports.RunStore
	ps, err = NewRunStore("persistent", path)
	require.NoError(t, err)
	require.IsType(t, &BoltRunStore{}, ps)
	require.NoError(t, ps.Close())

	_, err = NewRunStore("etcd", "")
	require.Error(t, err)
	_, ok := err.(*domain.ConfigError)
	require.True(t, ok, "expected *ConfigError, got %T", err)
}
