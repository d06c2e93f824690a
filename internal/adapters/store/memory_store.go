package store

import (
	"sync"

	"github.com/pkg/errors"

	"dev.csaopt.io/csaopt/internal/core/domain"
)

// MemoryRunStore guarda el histórico de ejecuciones en memoria. Útil para
// tests y para ejecuciones que no quieren dejar rastro en disco.
type MemoryRunStore struct {
	mu    sync.RWMutex
	runs  map[string]*domain.RunRecord
	order []string
}

// NewMemoryRunStore crea un almacén en memoria vacío.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*domain.RunRecord)}
}

func (s *MemoryRunStore) Save(run *domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryRunStore) Get(id string) (*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.Errorf("run %s not found", id)
	}
	return run, nil
}

func (s *MemoryRunStore) List() ([]*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.RunRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.runs[id])
	}
	return out, nil
}

func (s *MemoryRunStore) Close() error { return nil }
